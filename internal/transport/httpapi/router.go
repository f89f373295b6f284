package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kislikjeka/pesaprime/internal/transport/httpapi/handler"
	"github.com/kislikjeka/pesaprime/internal/transport/httpapi/middleware"
	"github.com/kislikjeka/pesaprime/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger         *logger.Logger
	AllowedOrigins []string
	AccountHandler *handler.AccountHandler
	CatalogHandler *handler.CatalogHandler
	AdminHandler   *handler.AdminHandler
	HealthHandler  *handler.HealthHandler
	RateLimiter    *middleware.RateLimiter
	Metrics        middleware.HTTPMetrics
	MetricsHandler http.Handler
	// AdminMiddleware guards /admin routes; nil leaves them open
	AdminMiddleware func(http.Handler) http.Handler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	log := logger.OrNop(cfg.Logger)
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}

	r.Get("/health", handler.GetHealth)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
	}
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if h := cfg.AccountHandler; h != nil {
			r.Route("/accounts/{accountID}", func(r chi.Router) {
				r.Get("/", h.GetOverview)
				r.Put("/currency", h.SwitchCurrency)
				r.Get("/entries", h.GetHistory)
				r.Post("/deposits", h.Deposit)
				r.Post("/withdrawals", h.Withdraw)
				r.Get("/bonuses", h.GetBonuses)
				r.Post("/bonuses/welcome", h.ClaimWelcomeBonus)
				r.Post("/bonuses/{bonusID}/claim", h.ClaimBonus)
				r.Get("/positions", h.GetPositions)
				r.Post("/positions", h.Invest)
				r.Get("/positions/{positionID}", h.GetPosition)
			})
		}

		if h := cfg.CatalogHandler; h != nil {
			r.Get("/currencies", h.ListCurrencies)
			r.Get("/assets", h.ListAssets)
			r.Get("/assets/{assetID}", h.GetAsset)
		}

		if h := cfg.AdminHandler; h != nil {
			r.Route("/admin", func(r chi.Router) {
				if cfg.AdminMiddleware != nil {
					r.Use(cfg.AdminMiddleware)
				}
				r.Post("/withdrawals/{entryID}/approve", h.ApproveWithdrawal)
				r.Post("/withdrawals/{entryID}/complete", h.CompleteWithdrawal)
				r.Post("/withdrawals/{entryID}/reject", h.RejectWithdrawal)
				r.Post("/accounts/{accountID}/adjustments", h.Adjust)
				r.Post("/accounts/{accountID}/bonuses", h.GrantBonus)
				r.Get("/accounts/{accountID}/reconcile", h.Reconcile)
				r.Post("/positions/{positionID}/cancel", h.CancelPosition)
				r.Post("/assets", h.CreateAsset)
				r.Put("/assets/{assetID}/price", h.UpdatePrice)
				r.Put("/assets/{assetID}/rates", h.UpdateRates)
				r.Post("/settlement/sweep", h.RunSweep)
			})
		}
	})

	return r
}
