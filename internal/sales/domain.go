package sales

import (
	"context"
	"time"

	"github.com/dijla-pos/dijla-pos/internal/shared"
)

// PaymentType states how a sale is settled.
type PaymentType string

const (
	// PaymentCash is paid in full at the counter.
	PaymentCash PaymentType = "cash"
	// PaymentInstallment is paid over a schedule of monthly shares.
	PaymentInstallment PaymentType = "installment"
	// PaymentMixed has an up-front portion plus a schedule for the rest.
	PaymentMixed PaymentType = "mixed"
)

// SaleStatus is the lifecycle state of a sale.
type SaleStatus string

const (
	StatusPending   SaleStatus = "pending"
	StatusCompleted SaleStatus = "completed"
	StatusCancelled SaleStatus = "cancelled"
)

// InstallmentStatus is the lifecycle state of one installment share.
type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "pending"
	InstallmentPaid      InstallmentStatus = "paid"
	InstallmentOverdue   InstallmentStatus = "overdue"
	InstallmentCancelled InstallmentStatus = "cancelled"
)

// DefaultInstallmentCount applies when an installment-bearing sale does not
// name a share count.
const DefaultInstallmentCount = 3

// Sale is one recorded transaction. All monetary fields are in the sale's
// currency; ExchangeRate captures the conversion to the default currency at
// the time of sale so reports stay stable when rates move.
type Sale struct {
	ID              int64       `json:"id"`
	InvoiceNumber   string      `json:"invoice_number"`
	CustomerID      *int64      `json:"customer_id,omitempty"`
	Subtotal        float64     `json:"subtotal"`
	DiscountAmount  float64     `json:"discount_amount"`
	TaxAmount       float64     `json:"tax_amount"`
	TotalAmount     float64     `json:"total_amount"`
	InterestRate    float64     `json:"interest_rate"`
	InterestAmount  float64     `json:"interest_amount"`
	FinalAmount     float64     `json:"final_amount"`
	PaidAmount      float64     `json:"paid_amount"`
	RemainingAmount float64     `json:"remaining_amount"`
	Currency        string      `json:"currency"`
	ExchangeRate    float64     `json:"exchange_rate"`
	PaymentType     PaymentType `json:"payment_type"`
	Status          SaleStatus  `json:"status"`
	Notes           *string     `json:"notes,omitempty"`
	CreatedBy       int64       `json:"created_by"`
	SaleDate        time.Time   `json:"sale_date"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// SaleItem is one line of a sale. Name and prices are snapshotted at sale
// time so later product edits never rewrite history.
type SaleItem struct {
	ID          int64   `json:"id"`
	SaleID      int64   `json:"sale_id"`
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	CostPrice   float64 `json:"cost_price"`
	Discount    float64 `json:"discount"`
	Subtotal    float64 `json:"subtotal"`
	Currency    string  `json:"currency"`
}

// Payment is one settlement against a sale.
type Payment struct {
	ID           int64     `json:"id"`
	SaleID       int64     `json:"sale_id"`
	CustomerID   *int64    `json:"customer_id,omitempty"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	ExchangeRate float64   `json:"exchange_rate"`
	Method       string    `json:"method"`
	Notes        *string   `json:"notes,omitempty"`
	ReceivedBy   int64     `json:"received_by"`
	PaidAt       time.Time `json:"paid_at"`
}

// Installment is one share of a sale's payment schedule. RemainingAmount is
// always DueAmount minus PaidAmount.
type Installment struct {
	ID              int64             `json:"id"`
	SaleID          int64             `json:"sale_id"`
	CustomerID      *int64            `json:"customer_id,omitempty"`
	Sequence        int               `json:"sequence"`
	DueAmount       float64           `json:"due_amount"`
	PaidAmount      float64           `json:"paid_amount"`
	RemainingAmount float64           `json:"remaining_amount"`
	Currency        string            `json:"currency"`
	DueDate         time.Time         `json:"due_date"`
	Status          InstallmentStatus `json:"status"`
	PaidDate        *time.Time        `json:"paid_date,omitempty"`
}

// CreateSaleItemRequest is one requested line of a new sale.
type CreateSaleItemRequest struct {
	ProductID int64    `json:"product_id" validate:"required,gt=0"`
	Quantity  int      `json:"quantity" validate:"required,gt=0"`
	UnitPrice *float64 `json:"unit_price" validate:"omitempty,gt=0"`
	Discount  float64  `json:"discount" validate:"gte=0"`
}

// CreateSaleRequest describes a new sale. UnitPrice defaults to the product's
// selling price; Currency defaults to the stored default currency.
type CreateSaleRequest struct {
	CustomerID       *int64                  `json:"customer_id" validate:"omitempty,gt=0"`
	Items            []CreateSaleItemRequest `json:"items" validate:"required,min=1,dive"`
	DiscountAmount   float64                 `json:"discount_amount" validate:"gte=0"`
	TaxRate          float64                 `json:"tax_rate" validate:"gte=0,lte=100"`
	InterestRate     float64                 `json:"interest_rate" validate:"gte=0"`
	PaidAmount       float64                 `json:"paid_amount" validate:"gte=0"`
	Currency         string                  `json:"currency" validate:"omitempty,len=3,uppercase"`
	PaymentType      PaymentType             `json:"payment_type" validate:"required,oneof=cash installment mixed"`
	InstallmentCount int                     `json:"installment_count" validate:"gte=0"`
	PaymentMethod    string                  `json:"payment_method"`
	Notes            *string                 `json:"notes"`
	ActorID          int64                   `json:"actor_id" validate:"required,gt=0"`
}

// AddPaymentRequest records a settlement against an existing sale.
type AddPaymentRequest struct {
	SaleID  int64   `json:"sale_id" validate:"required,gt=0"`
	Amount  float64 `json:"amount" validate:"required,gt=0"`
	Method  string  `json:"method"`
	Notes   *string `json:"notes"`
	ActorID int64   `json:"actor_id" validate:"required,gt=0"`
}

// ListSalesRequest filters and pages the sale listing.
type ListSalesRequest struct {
	Status      SaleStatus  `json:"status" validate:"omitempty,oneof=pending completed cancelled"`
	PaymentType PaymentType `json:"payment_type" validate:"omitempty,oneof=cash installment mixed"`
	CustomerID  *int64      `json:"customer_id" validate:"omitempty,gt=0"`
	From        *time.Time  `json:"from"`
	To          *time.Time  `json:"to"`
	Page        int         `json:"page" validate:"gte=0"`
	PerPage     int         `json:"per_page" validate:"gte=0,lte=100"`
}

// SaleDetail is a sale with its line items, payments, and schedule.
type SaleDetail struct {
	Sale         Sale          `json:"sale"`
	Items        []SaleItem    `json:"items"`
	Payments     []Payment     `json:"payments"`
	Installments []Installment `json:"installments"`
}

// ListSalesResult is one page of sales.
type ListSalesResult struct {
	Sales      []Sale            `json:"sales"`
	Pagination shared.Pagination `json:"pagination"`
}

// ReportFilter bounds a sales report. Dates are truncated to whole days; an
// empty Currency reports every currency.
type ReportFilter struct {
	From     *time.Time `json:"from"`
	To       *time.Time `json:"to"`
	Currency string     `json:"currency"`
}

// CurrencyBucket aggregates the sales recorded in one currency.
type CurrencyBucket struct {
	Currency         string  `json:"currency"`
	SalesCount       int     `json:"sales_count"`
	TotalSales       float64 `json:"total_sales"`
	TotalPaid        float64 `json:"total_paid"`
	TotalRemaining   float64 `json:"total_remaining"`
	TotalProfit      float64 `json:"total_profit"`
	CashSales        int     `json:"cash_sales"`
	InstallmentSales int     `json:"installment_sales"`
	MixedSales       int     `json:"mixed_sales"`
	CompletedSales   int     `json:"completed_sales"`
	PendingSales     int     `json:"pending_sales"`
}

// Report is the per-currency sales summary. The USD/IQD fields flatten the
// two primary currencies for dashboards that render them side by side.
type Report struct {
	From                time.Time                 `json:"from"`
	To                  time.Time                 `json:"to"`
	Currencies          map[string]CurrencyBucket `json:"currencies"`
	TotalSalesUSD       float64                   `json:"total_sales_usd"`
	TotalPaidUSD        float64                   `json:"total_paid_usd"`
	TotalRemainingUSD   float64                   `json:"total_remaining_usd"`
	TotalProfitUSD      float64                   `json:"total_profit_usd"`
	TotalSalesIQD       float64                   `json:"total_sales_iqd"`
	TotalPaidIQD        float64                   `json:"total_paid_iqd"`
	TotalRemainingIQD   float64                   `json:"total_remaining_iqd"`
	TotalProfitIQD      float64                   `json:"total_profit_iqd"`
	SalesCount          int                       `json:"sales_count"`
	OverdueInstallments int                       `json:"overdue_installments"`
}

// ReportItem is the slim projection of sale items the report needs for profit.
type ReportItem struct {
	SaleID    int64   `json:"sale_id"`
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	CostPrice float64 `json:"cost_price"`
	Currency  string  `json:"currency"`
}

// CachePort abstracts the versioned report cache. Nil-safe wrappers in the
// service let tests and the file-store deployment run without Redis.
type CachePort interface {
	FetchJSON(ctx context.Context, key string, out any) (bool, error)
	StoreJSON(ctx context.Context, key string, value any) error
	Bump(ctx context.Context) error
	BuildKey(ctx context.Context, parts ...string) (string, error)
}
