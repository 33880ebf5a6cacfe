package currency

import (
	"context"
	"time"
)

// Rate is one row of the shared base-rate table. RateToBase expresses how many
// units of this currency one unit of the base currency buys; at most one row
// is flagged as base.
type Rate struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Symbol     string    `json:"symbol"`
	RateToBase float64   `json:"rate_to_base"`
	IsActive   bool      `json:"is_active"`
	IsBase     bool      `json:"is_base"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RepositoryPort abstracts rate-table access for the converter.
type RepositoryPort interface {
	// GetRate returns the rate row for a currency code, shared.ErrNotFound when absent.
	GetRate(ctx context.Context, code string) (*Rate, error)
	ListRates(ctx context.Context) ([]Rate, error)
}
