// Package customers maintains the per-customer running totals the sale ledger
// adjusts as sales are created, paid, cancelled, and restored.
package customers

import (
	"context"
	"fmt"
	"math"

	"github.com/dijla-pos/dijla-pos/internal/shared"
)

// Ledger adjusts customer debt and purchase totals.
type Ledger struct {
	repo  RepositoryPort
	clock shared.Clock
}

// NewLedger constructs a ledger.
func NewLedger(repo RepositoryPort, clock shared.Clock) *Ledger {
	return &Ledger{repo: repo, clock: clock}
}

// Get returns a customer row.
func (l *Ledger) Get(ctx context.Context, id int64) (*Customer, error) {
	customer, err := l.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("customer %d: %w", id, err)
	}
	return customer, nil
}

// AdjustDebt moves the customer's outstanding debt by delta. Negative deltas
// clamp at zero so payment reversals can never drive debt below nothing.
func (l *Ledger) AdjustDebt(ctx context.Context, id int64, delta float64) error {
	return l.adjust(ctx, id, delta, 0)
}

// AdjustPurchases moves the customer's lifetime purchase total by delta,
// clamped at zero.
func (l *Ledger) AdjustPurchases(ctx context.Context, id int64, delta float64) error {
	return l.adjust(ctx, id, 0, delta)
}

// RecordSale applies both totals of a newly created sale in one step.
func (l *Ledger) RecordSale(ctx context.Context, id int64, debt, purchases float64) error {
	return l.adjust(ctx, id, debt, purchases)
}

func (l *Ledger) adjust(ctx context.Context, id int64, debtDelta, purchasesDelta float64) error {
	customer, err := l.repo.GetCustomer(ctx, id)
	if err != nil {
		return fmt.Errorf("customer %d: %w", id, err)
	}
	debt := shared.Round2(math.Max(0, customer.TotalDebt+debtDelta))
	purchases := shared.Round2(math.Max(0, customer.TotalPurchases+purchasesDelta))
	if err := l.repo.UpdateCustomerTotals(ctx, id, debt, purchases, l.clock.Now()); err != nil {
		return fmt.Errorf("customer %d: %w", id, err)
	}
	return nil
}
