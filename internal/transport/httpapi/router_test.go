package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/pesaprime/internal/module/wallet"
	"github.com/kislikjeka/pesaprime/internal/transport/httpapi"
	"github.com/kislikjeka/pesaprime/internal/transport/httpapi/handler"
	"github.com/kislikjeka/pesaprime/internal/transport/httpapi/middleware"
	"github.com/kislikjeka/pesaprime/pkg/logger"
	"github.com/kislikjeka/pesaprime/testutil/fixture"
)

const adminToken = "test-admin-token"

type recordedRequest struct {
	method, route string
	status        int
}

type recordingMetrics struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (m *recordingMetrics) RecordHTTP(method, route string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, recordedRequest{method, route, status})
}

func newServer(t *testing.T, opts fixture.Options) (*httptest.Server, *fixture.Env, *recordingMetrics) {
	t.Helper()
	env := fixture.New(t, opts)
	log := logger.NewNop()
	svc := wallet.NewService(env.Ledger, env.Investments, env.Engine, env.Currencies, log)
	metrics := &recordingMetrics{}

	router := httpapi.NewRouter(httpapi.Config{
		Logger:          log,
		AllowedOrigins:  []string{"http://localhost:5173"},
		AccountHandler:  handler.NewAccountHandler(svc, log),
		CatalogHandler:  handler.NewCatalogHandler(env.Catalog, env.Currencies, log),
		AdminHandler:    handler.NewAdminHandler(env.Ledger, env.Investments, env.Catalog, env.Engine, log),
		Metrics:         metrics,
		AdminMiddleware: middleware.AdminToken(adminToken),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, env, metrics
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func admin() []string {
	return []string{"Authorization", "Bearer " + adminToken}
}

// =============================================================================
// Account Routes
// =============================================================================

func TestRouter_DepositAndOverview(t *testing.T) {
	srv, env, _ := newServer(t, fixture.Options{})
	accountID := uuid.New()
	base := "/api/v1/accounts/" + accountID.String()

	status, body := do(t, srv, http.MethodPut, base+"/currency", map[string]string{"currency": "KES"})
	require.Equal(t, http.StatusOK, status, body)

	status, body = do(t, srv, http.MethodPost, base+"/deposits", map[string]string{
		"amount": "15000",
		"method": "mobile-money",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "KES", body["currency"])
	assert.Equal(t, "+", body["sign"])
	assert.Equal(t, "100", body["canonical_amount"])

	status, body = do(t, srv, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "15000", body["available"])

	env.RequireConsistent(t, accountID)
}

func TestRouter_ErrorMapping(t *testing.T) {
	srv, env, _ := newServer(t, fixture.Options{})
	accountID := env.Fund(t, "50")
	base := "/api/v1/accounts/" + accountID.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "malformed account id",
			method: http.MethodGet,
			path:   "/api/v1/accounts/not-a-uuid",
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "unknown method",
			method: http.MethodPost,
			path:   base + "/deposits",
			body:   map[string]string{"amount": "10", "method": "cash"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "insufficient funds",
			method: http.MethodPost,
			path:   base + "/withdrawals",
			body:   map[string]string{"amount": "80", "method": "bank", "destination": "KE-001"},
			status: http.StatusUnprocessableEntity,
			code:   "INSUFFICIENT_FUNDS",
		},
		{
			name:   "unknown position",
			method: http.MethodGet,
			path:   base + "/positions/" + uuid.NewString(),
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name:   "unknown currency",
			method: http.MethodPut,
			path:   base + "/currency",
			body:   map[string]string{"currency": "XYZ"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status, body)
			assert.Equal(t, tt.code, body["code"])
		})
	}

	assert.Equal(t, "50.00", env.Account(t, accountID).Available.StringFixed(2))
}

func TestRouter_InvestAndLazySettle(t *testing.T) {
	srv, env, _ := newServer(t, fixture.Options{})
	accountID := env.Fund(t, "1000")
	base := "/api/v1/accounts/" + accountID.String()

	status, body := do(t, srv, http.MethodPost, base+"/positions", map[string]any{
		"asset_id":       env.Asset.ID,
		"amount":         "100",
		"duration_hours": 1,
	})
	require.Equal(t, http.StatusCreated, status, body)
	positionID := body["id"].(string)
	assert.Equal(t, "active", body["status"])

	env.Clock.Advance(time.Hour)

	status, body = do(t, srv, http.MethodGet, base+"/positions/"+positionID, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "0.5", body["profit_loss"])

	assert.Equal(t, "1000.50", env.Account(t, accountID).Available.StringFixed(2))
	env.RequireConsistent(t, accountID)
}

func TestRouter_WelcomeBonusOnce(t *testing.T) {
	srv, _, _ := newServer(t, fixture.Options{WelcomeBonus: decimal.NewFromInt(500)})
	base := "/api/v1/accounts/" + uuid.NewString()

	status, body := do(t, srv, http.MethodPost, base+"/bonuses/welcome", nil)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "bonus", body["kind"])

	status, body = do(t, srv, http.MethodPost, base+"/bonuses/welcome", nil)
	assert.Equal(t, http.StatusConflict, status, body)
}

// =============================================================================
// Admin Routes
// =============================================================================

func TestRouter_AdminRequiresToken(t *testing.T) {
	srv, _, _ := newServer(t, fixture.Options{})

	status, _ := do(t, srv, http.MethodPost, "/api/v1/admin/settlement/sweep", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := do(t, srv, http.MethodPost, "/api/v1/admin/settlement/sweep", nil, admin()...)
	assert.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(0), body["settled"])
}

func TestRouter_WithdrawalApprovalFlow(t *testing.T) {
	srv, env, _ := newServer(t, fixture.Options{})
	accountID := env.Fund(t, "200")
	base := "/api/v1/accounts/" + accountID.String()

	status, body := do(t, srv, http.MethodPost, base+"/withdrawals", map[string]string{
		"amount":      "75",
		"method":      "mobile-money",
		"destination": "+254700000000",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "-", body["sign"])
	entryID := body["id"].(string)

	status, body = do(t, srv, http.MethodPost, "/api/v1/admin/withdrawals/"+entryID+"/reject",
		map[string]string{"reason": "name mismatch"}, admin()...)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "rejected", body["status"])

	status, _ = do(t, srv, http.MethodPost, "/api/v1/admin/withdrawals/"+entryID+"/complete", nil, admin()...)
	assert.Equal(t, http.StatusConflict, status)

	status, body = do(t, srv, http.MethodGet, "/api/v1/admin/accounts/"+accountID.String()+"/reconcile", nil, admin()...)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["balanced"])
	assert.Equal(t, "200.00", env.Account(t, accountID).Available.StringFixed(2))
}

func TestRouter_AssetRatesUpdate(t *testing.T) {
	srv, env, _ := newServer(t, fixture.Options{})

	status, body := do(t, srv, http.MethodPut, "/api/v1/admin/assets/"+env.Asset.ID.String()+"/rates",
		map[string]any{"return_rates": map[string]string{"2": "1.1", "4": "2.2"}}, admin()...)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []any{float64(2), float64(4)}, body["allowed_durations"])

	status, body = do(t, srv, http.MethodGet, "/api/v1/assets/"+env.Asset.ID.String(), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "BTC", body["symbol"])
}

// =============================================================================
// Middleware
// =============================================================================

func TestRouter_RecordsRoutePatterns(t *testing.T) {
	srv, _, metrics := newServer(t, fixture.Options{})

	status, _ := do(t, srv, http.MethodGet, "/api/v1/accounts/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusOK, status)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.NotEmpty(t, metrics.seen)
	last := metrics.seen[len(metrics.seen)-1]
	assert.Contains(t, last.route, "/api/v1/accounts/{accountID}")
	assert.Equal(t, http.StatusOK, last.status)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, handler.StatusOf(assert.AnError))
}
