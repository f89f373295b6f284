package asset

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/pesaprime/pkg/money"
)

// Category groups assets by market
type Category string

const (
	CategoryCrypto  Category = "crypto"
	CategoryForex   Category = "forex"
	CategoryFutures Category = "futures"
	CategoryStock   Category = "stock"
)

// RiskLevel is a display hint shown next to an asset
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// DefaultFreshness is how long a price stays current before NeedsUpdate reports it
const DefaultFreshness = 5 * time.Minute

// MaxDurationHours is the longest lock-up an asset may offer (one year)
const MaxDurationHours = 8760

var (
	defaultMinInvestment = decimal.NewFromInt(10)
	defaultMaxInvestment = decimal.NewFromInt(100000)
	minReturnRate        = decimal.NewFromInt(-100)
)

// Asset is an investable instrument with a fixed return-rate table
type Asset struct {
	ID               uuid.UUID
	Name             string
	Symbol           string // BTC, EURUSD, AAPL
	Description      string
	Category         Category
	RiskLevel        RiskLevel
	CurrentPrice     decimal.Decimal
	PreviousPrice    decimal.Decimal
	ChangePercentage decimal.Decimal
	MinInvestment    decimal.Decimal
	MaxInvestment    decimal.Decimal
	ReturnRates      map[int]decimal.Decimal // duration hours → percent
	AllowedDurations []int                   // hours, ascending
	IsActive         bool
	DisplayOrder     int
	LastUpdated      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DefaultReturnRates returns the standard rate table
func DefaultReturnRates() map[int]decimal.Decimal {
	return map[int]decimal.Decimal{
		1:  decimal.RequireFromString("0.5"),
		3:  decimal.RequireFromString("1.5"),
		6:  decimal.RequireFromString("3.0"),
		12: decimal.RequireFromString("6.0"),
		24: decimal.RequireFromString("12.0"),
	}
}

// DefaultDurations returns the standard allowed durations in hours
func DefaultDurations() []int {
	return []int{1, 3, 6, 12, 24}
}

// NewAsset creates an active asset with default limits and rates
func NewAsset(symbol, name string, category Category) *Asset {
	a := &Asset{
		ID:       uuid.New(),
		Symbol:   symbol,
		Name:     name,
		Category: category,
		IsActive: true,
	}
	a.ApplyDefaults()
	return a
}

// ApplyDefaults fills unset fields
func (a *Asset) ApplyDefaults() {
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.RiskLevel == "" {
		a.RiskLevel = RiskMedium
	}
	if a.MinInvestment.IsZero() {
		a.MinInvestment = defaultMinInvestment
	}
	if a.MaxInvestment.IsZero() {
		a.MaxInvestment = defaultMaxInvestment
	}
	if len(a.ReturnRates) == 0 {
		a.ReturnRates = DefaultReturnRates()
	}
	if len(a.AllowedDurations) == 0 {
		a.AllowedDurations = DefaultDurations()
	}
	slices.Sort(a.AllowedDurations)
}

// Validate validates the asset fields and its return-rate table
func (a *Asset) Validate() error {
	if a.Symbol == "" || len(a.Symbol) > 20 {
		return ErrInvalidSymbol
	}

	if strings.TrimSpace(a.Name) == "" {
		return ErrInvalidName
	}

	switch a.Category {
	case CategoryCrypto, CategoryForex, CategoryFutures, CategoryStock:
	default:
		return ErrInvalidCategory
	}

	switch a.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh, RiskVeryHigh:
	default:
		return ErrInvalidRiskLevel
	}

	if a.MinInvestment.Sign() <= 0 || a.MaxInvestment.LessThan(a.MinInvestment) {
		return ErrInvalidLimits
	}

	if a.CurrentPrice.Sign() < 0 || a.PreviousPrice.Sign() < 0 {
		return ErrNegativePrice
	}

	return ValidateRates(a.ReturnRates, a.AllowedDurations)
}

// ValidateRates checks that every allowed duration is within
// (0, MaxDurationHours] and has a rate strictly greater than -100%.
func ValidateRates(rates map[int]decimal.Decimal, durations []int) error {
	if len(durations) == 0 {
		return ErrNoDurations
	}

	for _, h := range durations {
		if h <= 0 || h > MaxDurationHours {
			return fmt.Errorf("%w: %dh", ErrDurationNotAllowed, h)
		}
		rate, ok := rates[h]
		if !ok {
			return fmt.Errorf("%w: %dh", ErrIncompleteRates, h)
		}
		if rate.LessThanOrEqual(minReturnRate) {
			return fmt.Errorf("%w: %dh=%s", ErrInvalidReturnRate, h, rate)
		}
	}

	return nil
}

// AllowsDuration reports whether hours is one of the allowed durations.
// Hours outside (0, MaxDurationHours] are never allowed, even on a stored
// asset that predates the limit.
func (a *Asset) AllowsDuration(hours int) bool {
	if hours <= 0 || hours > MaxDurationHours {
		return false
	}
	return slices.Contains(a.AllowedDurations, hours)
}

// ReturnRate returns the percentage for an allowed duration
func (a *Asset) ReturnRate(hours int) (decimal.Decimal, error) {
	if !a.AllowsDuration(hours) {
		return decimal.Zero, fmt.Errorf("%w: %dh on %s", ErrDurationNotAllowed, hours, a.Symbol)
	}
	rate, ok := a.ReturnRates[hours]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %dh on %s", ErrMissingReturnRate, hours, a.Symbol)
	}
	return rate, nil
}

// CheckAmount enforces the investment limits
func (a *Asset) CheckAmount(amount decimal.Decimal) error {
	if amount.LessThan(a.MinInvestment) {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, money.Format(amount), money.Format(a.MinInvestment))
	}
	if amount.GreaterThan(a.MaxInvestment) {
		return fmt.Errorf("%w: %s > %s", ErrAboveMaximum, money.Format(amount), money.Format(a.MaxInvestment))
	}
	return nil
}

// ApplyPrice records a new price, keeping the previous one and the change
func (a *Asset) ApplyPrice(price decimal.Decimal, now time.Time) error {
	if price.Sign() < 0 {
		return ErrNegativePrice
	}
	a.PreviousPrice = a.CurrentPrice
	a.CurrentPrice = price
	a.ChangePercentage = money.ChangePercent(a.PreviousPrice, price)
	a.LastUpdated = now
	a.UpdatedAt = now
	return nil
}

// NeedsUpdate reports whether the price is older than the freshness window
func (a *Asset) NeedsUpdate(now time.Time, window time.Duration) bool {
	if window <= 0 {
		window = DefaultFreshness
	}
	if a.LastUpdated.IsZero() {
		return true
	}
	return now.Sub(a.LastUpdated) > window
}

// Clone returns a deep copy so cached values are never shared
func (a *Asset) Clone() *Asset {
	c := *a
	c.ReturnRates = make(map[int]decimal.Decimal, len(a.ReturnRates))
	for k, v := range a.ReturnRates {
		c.ReturnRates[k] = v
	}
	c.AllowedDurations = slices.Clone(a.AllowedDurations)
	return &c
}
