package customers

import (
	"context"
	"time"
)

// Customer is one customer row. TotalDebt tracks what the customer still owes
// across sales; TotalPurchases is the lifetime value of recorded sales.
type Customer struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Phone          *string   `json:"phone,omitempty"`
	Address        *string   `json:"address,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	TotalDebt      float64   `json:"total_debt"`
	TotalPurchases float64   `json:"total_purchases"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RepositoryPort abstracts customer storage for the ledger.
type RepositoryPort interface {
	// GetCustomer returns a customer by id, shared.ErrNotFound when absent.
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	// UpdateCustomerTotals overwrites the running totals.
	UpdateCustomerTotals(ctx context.Context, id int64, debt, purchases float64, now time.Time) error
}
