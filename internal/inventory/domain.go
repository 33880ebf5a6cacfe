package inventory

import (
	"context"
	"time"
)

// Product is one sellable stock item. CostPrice and SellingPrice are recorded
// in the product's own currency.
type Product struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Barcode       *string   `json:"barcode,omitempty"`
	Category      string    `json:"category"`
	CostPrice     float64   `json:"cost_price"`
	SellingPrice  float64   `json:"selling_price"`
	Currency      string    `json:"currency"`
	StockQuantity int       `json:"stock_quantity"`
	MinStockLevel int       `json:"min_stock_level"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Direction states which way a stock adjustment moves.
type Direction string

const (
	// DirectionConsume decrements stock when a sale is recorded or restored.
	DirectionConsume Direction = "consume"
	// DirectionRestore returns stock when a sale is cancelled.
	DirectionRestore Direction = "restore"
)

// Line is one product/quantity pair of a stock adjustment.
type Line struct {
	ProductID int64
	Quantity  int
}

// RepositoryPort abstracts product storage for the adjuster.
type RepositoryPort interface {
	// GetProduct returns a product by id, shared.ErrNotFound when absent.
	GetProduct(ctx context.Context, id int64) (*Product, error)
	// UpdateProductStock applies a signed stock delta and returns the updated row.
	UpdateProductStock(ctx context.Context, id int64, delta int, now time.Time) (*Product, error)
}
