package sales

import (
	"context"
	"time"
)

// RepositoryPort abstracts sale storage. Implementations must return
// shared.ErrNotFound for missing rows and shared.ErrConflict for duplicate
// invoice numbers. Commit makes the preceding mutations durable; stores that
// persist eagerly implement it as a no-op.
type RepositoryPort interface {
	CreateSale(ctx context.Context, sale *Sale) error
	GetSale(ctx context.Context, id int64) (*Sale, error)
	UpdateSale(ctx context.Context, sale *Sale) error
	DeleteSale(ctx context.Context, id int64) error
	ListSales(ctx context.Context, req ListSalesRequest) ([]Sale, int, error)
	ListSalesBetween(ctx context.Context, from, to time.Time) ([]Sale, error)

	InsertSaleItem(ctx context.Context, item *SaleItem) error
	ListSaleItems(ctx context.Context, saleID int64) ([]SaleItem, error)
	DeleteSaleItems(ctx context.Context, saleID int64) error
	ListItemsForSales(ctx context.Context, saleIDs []int64) ([]ReportItem, error)

	InsertPayment(ctx context.Context, payment *Payment) error
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	ListPayments(ctx context.Context, saleID int64) ([]Payment, error)
	DeletePayment(ctx context.Context, id int64) error
	DeletePaymentsForSale(ctx context.Context, saleID int64) error

	InsertInstallment(ctx context.Context, installment *Installment) error
	UpdateInstallment(ctx context.Context, installment *Installment) error
	ListInstallments(ctx context.Context, saleID int64) ([]Installment, error)
	DeleteInstallmentsForSale(ctx context.Context, saleID int64) error
	CountOverdueInstallments(ctx context.Context, asOf time.Time) (int, error)
	ListDueInstallments(ctx context.Context, asOf time.Time) ([]Installment, error)

	Commit(ctx context.Context) error
}
