// Package inventory applies sale-driven stock movements. The sale ledger
// never touches product rows directly; it reserves quantities up front and
// commits the movement once the sale row exists.
package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dijla-pos/dijla-pos/internal/shared"
)

// ErrInsufficientStock is returned when a requested quantity exceeds what an
// active product has on hand. It wraps shared.ErrInvalid so callers that only
// classify by the shared sentinels still map it.
var ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", shared.ErrInvalid)

// Adjuster validates and applies stock movements for sales.
type Adjuster struct {
	repo   RepositoryPort
	clock  shared.Clock
	logger *slog.Logger
}

// NewAdjuster constructs an adjuster.
func NewAdjuster(repo RepositoryPort, clock shared.Clock, logger *slog.Logger) *Adjuster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adjuster{repo: repo, clock: clock, logger: logger}
}

// Reserve validates every line before any stock is touched: each product must
// exist, be active, and hold enough stock. It returns the products keyed by id
// so callers can price items without a second lookup. No mutation happens here.
func (a *Adjuster) Reserve(ctx context.Context, lines []Line) (map[int64]*Product, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", shared.ErrInvalid)
	}
	wanted := make(map[int64]int, len(lines))
	for _, line := range lines {
		if line.ProductID <= 0 {
			return nil, fmt.Errorf("%w: product id is required", shared.ErrInvalid)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %d", shared.ErrInvalid, line.ProductID)
		}
		wanted[line.ProductID] += line.Quantity
	}

	products := make(map[int64]*Product, len(wanted))
	for id, qty := range wanted {
		product, err := a.repo.GetProduct(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", id, err)
		}
		if !product.IsActive {
			return nil, fmt.Errorf("%w: product %q is not active", shared.ErrInvalid, product.Name)
		}
		if product.StockQuantity < qty {
			return nil, fmt.Errorf("%w: product %q has %d, requested %d",
				ErrInsufficientStock, product.Name, product.StockQuantity, qty)
		}
		products[id] = product
	}
	return products, nil
}

// Commit applies the stock movement for every line. Consuming lines decrement
// stock and restoring lines return it. Callers hold the per-product locks, so
// a reserve followed by a commit observes the same stock level.
func (a *Adjuster) Commit(ctx context.Context, lines []Line, dir Direction) error {
	now := a.clock.Now()
	for _, line := range lines {
		delta := -line.Quantity
		if dir == DirectionRestore {
			delta = line.Quantity
		}
		product, err := a.repo.UpdateProductStock(ctx, line.ProductID, delta, now)
		if err != nil {
			return fmt.Errorf("product %d: %w", line.ProductID, err)
		}
		if dir == DirectionConsume && product.StockQuantity <= product.MinStockLevel {
			a.logger.Warn("product stock at or below minimum",
				"product_id", product.ID,
				"product", product.Name,
				"stock", product.StockQuantity,
				"min_level", product.MinStockLevel,
			)
		}
	}
	return nil
}

// Get returns a single product.
func (a *Adjuster) Get(ctx context.Context, id int64) (*Product, error) {
	return a.repo.GetProduct(ctx, id)
}
