// Package pg is the PostgreSQL store driver. It implements the same
// repository ports as the file store; writes are durable as they happen, so
// Commit is a no-op. The ledger's keyed locks still serialize mutating
// operations, which keeps the two drivers behaviourally equivalent.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dijla-pos/dijla-pos/internal/customers"
	"github.com/dijla-pos/dijla-pos/internal/currency"
	"github.com/dijla-pos/dijla-pos/internal/inventory"
	"github.com/dijla-pos/dijla-pos/internal/sales"
	"github.com/dijla-pos/dijla-pos/internal/settings"
	"github.com/dijla-pos/dijla-pos/internal/shared"
)

const uniqueViolation = "23505"

// Store implements the ledger repository ports over pgx.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Commit is a no-op: every statement is already durable.
func (s *Store) Commit(ctx context.Context) error { return nil }

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", shared.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// --- sales ---

const saleColumns = `id, invoice_number, customer_id, subtotal, discount_amount, tax_amount,
total_amount, interest_rate, interest_amount, final_amount, paid_amount, remaining_amount,
currency, exchange_rate, payment_type, status, notes, created_by, sale_date, created_at, updated_at`

func scanSale(row pgx.Row) (*sales.Sale, error) {
	var s sales.Sale
	err := row.Scan(
		&s.ID, &s.InvoiceNumber, &s.CustomerID, &s.Subtotal, &s.DiscountAmount, &s.TaxAmount,
		&s.TotalAmount, &s.InterestRate, &s.InterestAmount, &s.FinalAmount, &s.PaidAmount, &s.RemainingAmount,
		&s.Currency, &s.ExchangeRate, &s.PaymentType, &s.Status, &s.Notes, &s.CreatedBy, &s.SaleDate,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &s, nil
}

func (s *Store) CreateSale(ctx context.Context, sale *sales.Sale) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sales (invoice_number, customer_id, subtotal, discount_amount, tax_amount,
			total_amount, interest_rate, interest_amount, final_amount, paid_amount, remaining_amount,
			currency, exchange_rate, payment_type, status, notes, created_by, sale_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		RETURNING id`,
		sale.InvoiceNumber, sale.CustomerID, sale.Subtotal, sale.DiscountAmount, sale.TaxAmount,
		sale.TotalAmount, sale.InterestRate, sale.InterestAmount, sale.FinalAmount, sale.PaidAmount,
		sale.RemainingAmount, sale.Currency, sale.ExchangeRate, sale.PaymentType, sale.Status,
		sale.Notes, sale.CreatedBy, sale.SaleDate, sale.CreatedAt, sale.UpdatedAt,
	).Scan(&sale.ID)
	return mapErrorNil(err)
}

func (s *Store) GetSale(ctx context.Context, id int64) (*sales.Sale, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	return scanSale(row)
}

func (s *Store) UpdateSale(ctx context.Context, sale *sales.Sale) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sales SET customer_id=$2, subtotal=$3, discount_amount=$4, tax_amount=$5,
			total_amount=$6, interest_rate=$7, interest_amount=$8, final_amount=$9, paid_amount=$10,
			remaining_amount=$11, currency=$12, exchange_rate=$13, payment_type=$14, status=$15,
			notes=$16, updated_at=$17
		WHERE id = $1`,
		sale.ID, sale.CustomerID, sale.Subtotal, sale.DiscountAmount, sale.TaxAmount,
		sale.TotalAmount, sale.InterestRate, sale.InterestAmount, sale.FinalAmount, sale.PaidAmount,
		sale.RemainingAmount, sale.Currency, sale.ExchangeRate, sale.PaymentType, sale.Status,
		sale.Notes, sale.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) ListSales(ctx context.Context, req sales.ListSalesRequest) ([]sales.Sale, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if req.Status != "" {
		where += ` AND status = ` + arg(req.Status)
	}
	if req.PaymentType != "" {
		where += ` AND payment_type = ` + arg(req.PaymentType)
	}
	if req.CustomerID != nil {
		where += ` AND customer_id = ` + arg(*req.CustomerID)
	}
	if req.From != nil {
		where += ` AND sale_date >= ` + arg(*req.From)
	}
	if req.To != nil {
		where += ` AND sale_date <= ` + arg(*req.To)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	page, perPage := req.Page, req.PerPage
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}
	query := `SELECT ` + saleColumns + ` FROM sales` + where +
		` ORDER BY sale_date DESC LIMIT ` + arg(perPage) + ` OFFSET ` + arg((page-1)*perPage)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	out := []sales.Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *sale)
	}
	return out, total, rows.Err()
}

func (s *Store) ListSalesBetween(ctx context.Context, from, to time.Time) ([]sales.Sale, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE sale_date >= $1 AND sale_date <= $2 ORDER BY sale_date`,
		from, to)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []sales.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sale)
	}
	return out, rows.Err()
}

// --- sale items ---

func (s *Store) InsertSaleItem(ctx context.Context, item *sales.SaleItem) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sale_items (sale_id, product_id, product_name, quantity, unit_price, cost_price, discount, subtotal, currency)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`,
		item.SaleID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice,
		item.CostPrice, item.Discount, item.Subtotal, item.Currency,
	).Scan(&item.ID)
	return mapErrorNil(err)
}

func (s *Store) ListSaleItems(ctx context.Context, saleID int64) ([]sales.SaleItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sale_id, product_id, product_name, quantity, unit_price, cost_price, discount, subtotal, currency
		FROM sale_items WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []sales.SaleItem
	for rows.Next() {
		var item sales.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.Quantity,
			&item.UnitPrice, &item.CostPrice, &item.Discount, &item.Subtotal, &item.Currency); err != nil {
			return nil, mapError(err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSaleItems(ctx context.Context, saleID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
	return mapErrorNil(err)
}

func (s *Store) ListItemsForSales(ctx context.Context, saleIDs []int64) ([]sales.ReportItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sale_id, product_id, quantity, unit_price, cost_price, currency
		FROM sale_items WHERE sale_id = ANY($1)`, saleIDs)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []sales.ReportItem
	for rows.Next() {
		var item sales.ReportItem
		if err := rows.Scan(&item.SaleID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.CostPrice, &item.Currency); err != nil {
			return nil, mapError(err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// --- payments ---

func (s *Store) InsertPayment(ctx context.Context, payment *sales.Payment) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO payments (sale_id, customer_id, amount, currency, exchange_rate, method, notes, received_by, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`,
		payment.SaleID, payment.CustomerID, payment.Amount, payment.Currency, payment.ExchangeRate,
		payment.Method, payment.Notes, payment.ReceivedBy, payment.PaidAt,
	).Scan(&payment.ID)
	return mapErrorNil(err)
}

func (s *Store) GetPayment(ctx context.Context, id int64) (*sales.Payment, error) {
	var p sales.Payment
	err := s.pool.QueryRow(ctx, `
		SELECT id, sale_id, customer_id, amount, currency, exchange_rate, method, notes, received_by, paid_at
		FROM payments WHERE id = $1`, id).
		Scan(&p.ID, &p.SaleID, &p.CustomerID, &p.Amount, &p.Currency, &p.ExchangeRate,
			&p.Method, &p.Notes, &p.ReceivedBy, &p.PaidAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (s *Store) ListPayments(ctx context.Context, saleID int64) ([]sales.Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sale_id, customer_id, amount, currency, exchange_rate, method, notes, received_by, paid_at
		FROM payments WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []sales.Payment
	for rows.Next() {
		var p sales.Payment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.CustomerID, &p.Amount, &p.Currency, &p.ExchangeRate,
			&p.Method, &p.Notes, &p.ReceivedBy, &p.PaidAt); err != nil {
			return nil, mapError(err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeletePayment(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) DeletePaymentsForSale(ctx context.Context, saleID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM payments WHERE sale_id = $1`, saleID)
	return mapErrorNil(err)
}

// --- installments ---

func (s *Store) InsertInstallment(ctx context.Context, inst *sales.Installment) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO installments (sale_id, customer_id, sequence, due_amount, paid_amount, remaining_amount, currency, due_date, status, paid_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id`,
		inst.SaleID, inst.CustomerID, inst.Sequence, inst.DueAmount, inst.PaidAmount,
		inst.RemainingAmount, inst.Currency, inst.DueDate, inst.Status, inst.PaidDate,
	).Scan(&inst.ID)
	return mapErrorNil(err)
}

func (s *Store) UpdateInstallment(ctx context.Context, inst *sales.Installment) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE installments SET paid_amount=$2, remaining_amount=$3, status=$4, paid_date=$5
		WHERE id = $1`,
		inst.ID, inst.PaidAmount, inst.RemainingAmount, inst.Status, inst.PaidDate,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) ListInstallments(ctx context.Context, saleID int64) ([]sales.Installment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sale_id, customer_id, sequence, due_amount, paid_amount, remaining_amount, currency, due_date, status, paid_date
		FROM installments WHERE sale_id = $1 ORDER BY sequence`, saleID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanInstallments(rows)
}

func (s *Store) DeleteInstallmentsForSale(ctx context.Context, saleID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM installments WHERE sale_id = $1`, saleID)
	return mapErrorNil(err)
}

func (s *Store) CountOverdueInstallments(ctx context.Context, asOf time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM installments
		WHERE status = 'overdue' OR (status = 'pending' AND due_date < $1)`, asOf).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

func (s *Store) ListDueInstallments(ctx context.Context, asOf time.Time) ([]sales.Installment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sale_id, customer_id, sequence, due_amount, paid_amount, remaining_amount, currency, due_date, status, paid_date
		FROM installments WHERE status = 'pending' AND due_date < $1 ORDER BY due_date`, asOf)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanInstallments(rows)
}

func scanInstallments(rows pgx.Rows) ([]sales.Installment, error) {
	var out []sales.Installment
	for rows.Next() {
		var inst sales.Installment
		if err := rows.Scan(&inst.ID, &inst.SaleID, &inst.CustomerID, &inst.Sequence, &inst.DueAmount,
			&inst.PaidAmount, &inst.RemainingAmount, &inst.Currency, &inst.DueDate, &inst.Status,
			&inst.PaidDate); err != nil {
			return nil, mapError(err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// --- products ---

func (s *Store) GetProduct(ctx context.Context, id int64) (*inventory.Product, error) {
	var p inventory.Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, barcode, category, cost_price, selling_price, currency, stock_quantity, min_stock_level, is_active, created_at, updated_at
		FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Barcode, &p.Category, &p.CostPrice, &p.SellingPrice, &p.Currency,
			&p.StockQuantity, &p.MinStockLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (s *Store) UpdateProductStock(ctx context.Context, id int64, delta int, now time.Time) (*inventory.Product, error) {
	var p inventory.Product
	err := s.pool.QueryRow(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = $3
		WHERE id = $1
		RETURNING id, name, barcode, category, cost_price, selling_price, currency, stock_quantity, min_stock_level, is_active, created_at, updated_at`,
		id, delta, now).
		Scan(&p.ID, &p.Name, &p.Barcode, &p.Category, &p.CostPrice, &p.SellingPrice, &p.Currency,
			&p.StockQuantity, &p.MinStockLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

// --- customers ---

func (s *Store) GetCustomer(ctx context.Context, id int64) (*customers.Customer, error) {
	var c customers.Customer
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, phone, address, notes, total_debt, total_purchases, is_active, created_at, updated_at
		FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Notes, &c.TotalDebt, &c.TotalPurchases,
			&c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

func (s *Store) UpdateCustomerTotals(ctx context.Context, id int64, debt, purchases float64, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE customers SET total_debt = $2, total_purchases = $3, updated_at = $4 WHERE id = $1`,
		id, debt, purchases, now)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// --- currency rates ---

func (s *Store) GetRate(ctx context.Context, code string) (*currency.Rate, error) {
	var r currency.Rate
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, symbol, rate_to_base, is_active, is_base, updated_at
		FROM currency_rates WHERE code = $1`, code).
		Scan(&r.ID, &r.Code, &r.Name, &r.Symbol, &r.RateToBase, &r.IsActive, &r.IsBase, &r.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

func (s *Store) ListRates(ctx context.Context) ([]currency.Rate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, symbol, rate_to_base, is_active, is_base, updated_at
		FROM currency_rates ORDER BY code`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []currency.Rate
	for rows.Next() {
		var r currency.Rate
		if err := rows.Scan(&r.ID, &r.Code, &r.Name, &r.Symbol, &r.RateToBase, &r.IsActive,
			&r.IsBase, &r.UpdatedAt); err != nil {
			return nil, mapError(err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- settings ---

func (s *Store) GetSetting(ctx context.Context, key string) (*settings.Setting, error) {
	var row settings.Setting
	err := s.pool.QueryRow(ctx, `
		SELECT key, value, description, updated_by, updated_at FROM settings WHERE key = $1`, key).
		Scan(&row.Key, &row.Value, &row.Description, &row.UpdatedBy, &row.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &row, nil
}

// --- audit ---

func (s *Store) Record(ctx context.Context, log shared.AuditLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, action, entity, entity_id, meta, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		log.ID, log.ActorID, log.Action, log.Entity, log.EntityID, log.Meta, log.At)
	return mapErrorNil(err)
}

func mapErrorNil(err error) error {
	if err == nil {
		return nil
	}
	return mapError(err)
}
