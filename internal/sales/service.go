// Package sales implements the sale transaction ledger: creating sales,
// settling them over time, cancelling and restoring them, and reporting on
// them per currency. It is the only writer of sale status and the only
// component allowed to move product stock and customer totals as a side
// effect of a sale.
package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dijla-pos/dijla-pos/internal/customers"
	"github.com/dijla-pos/dijla-pos/internal/currency"
	"github.com/dijla-pos/dijla-pos/internal/inventory"
	"github.com/dijla-pos/dijla-pos/internal/settings"
	"github.com/dijla-pos/dijla-pos/internal/shared"
)

// SettingsPort provides the stored currency configuration.
type SettingsPort interface {
	CurrencySettings(ctx context.Context) (settings.CurrencySettings, error)
}

// Service orchestrates ledger operations. Every mutating operation runs under
// keyed locks covering the sale and the touched products/customer, and
// registers compensations so a mid-operation failure leaves no partial state.
type Service struct {
	repo      RepositoryPort
	products  *inventory.Adjuster
	customers *customers.Ledger
	converter *currency.Converter
	settings  SettingsPort
	clock     shared.Clock
	locks     *shared.KeyedMutex
	audit     shared.AuditPort
	cache     CachePort
	logger    *slog.Logger
	validate  *validator.Validate
}

// NewService builds the ledger service. Audit and cache may be nil.
func NewService(
	repo RepositoryPort,
	products *inventory.Adjuster,
	custs *customers.Ledger,
	converter *currency.Converter,
	settingsPort SettingsPort,
	clock shared.Clock,
	audit shared.AuditPort,
	cache CachePort,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		products:  products,
		customers: custs,
		converter: converter,
		settings:  settingsPort,
		clock:     clock,
		locks:     shared.NewKeyedMutex(),
		audit:     audit,
		cache:     cache,
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Create records a new sale: totals, stock movement, optional up-front
// payment, installment schedule, and customer totals, all or nothing.
func (s *Service) Create(ctx context.Context, req CreateSaleRequest) (*Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalid, err)
	}

	cs, err := s.settings.CurrencySettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load currency settings: %w", err)
	}
	saleCurrency := req.Currency
	if saleCurrency == "" {
		saleCurrency = cs.DefaultCurrency
	}
	rate, err := s.resolveRate(ctx, saleCurrency, cs)
	if err != nil {
		return nil, err
	}

	lines := make([]inventory.Line, 0, len(req.Items))
	lockKeys := make([]string, 0, len(req.Items)+1)
	for _, item := range req.Items {
		lines = append(lines, inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity})
		lockKeys = append(lockKeys, shared.ProductLockKey(item.ProductID))
	}
	if req.CustomerID != nil {
		lockKeys = append(lockKeys, shared.CustomerLockKey(*req.CustomerID))
	}
	unlock := s.locks.Lock(lockKeys...)
	defer unlock()

	stock, err := s.products.Reserve(ctx, lines)
	if err != nil {
		return nil, err
	}

	priced := make([]pricedLine, 0, len(req.Items))
	for _, item := range req.Items {
		product := stock[item.ProductID]
		unitPrice := product.SellingPrice
		if item.UnitPrice != nil {
			unitPrice = *item.UnitPrice
		}
		priced = append(priced, pricedLine{
			ProductID:   item.ProductID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   unitPrice,
			CostPrice:   product.CostPrice,
			Discount:    item.Discount,
		})
	}

	totals, err := ComputeTotals(priced, req.DiscountAmount, req.TaxRate)
	if err != nil {
		return nil, err
	}
	totals, err = totals.ApplyInterest(req.InterestRate, req.PaymentType)
	if err != nil {
		return nil, err
	}

	paid := shared.Round2(req.PaidAmount)
	if paid > totals.FinalAmount {
		paid = totals.FinalAmount
	}
	remaining := shared.Round2(totals.FinalAmount - paid)
	status := StatusPending
	if remaining <= 0 {
		status = StatusCompleted
	}

	now := s.clock.Now()
	sale := &Sale{
		InvoiceNumber:   s.invoiceNumber(now),
		CustomerID:      req.CustomerID,
		Subtotal:        totals.Subtotal,
		DiscountAmount:  totals.DiscountAmount,
		TaxAmount:       totals.TaxAmount,
		TotalAmount:     totals.TotalAmount,
		InterestRate:    req.InterestRate,
		InterestAmount:  totals.InterestAmount,
		FinalAmount:     totals.FinalAmount,
		PaidAmount:      paid,
		RemainingAmount: remaining,
		Currency:        saleCurrency,
		ExchangeRate:    rate,
		PaymentType:     req.PaymentType,
		Status:          status,
		Notes:           req.Notes,
		CreatedBy:       req.ActorID,
		SaleDate:        now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var saga shared.Saga
	fail := func(err error) (*Sale, error) {
		saga.Compensate(ctx, s.logger)
		return nil, err
	}

	if err := s.createSaleRow(ctx, sale, now); err != nil {
		return nil, err
	}
	saga.Record("delete sale", func(ctx context.Context) error {
		return s.repo.DeleteSale(ctx, sale.ID)
	})

	if err := s.products.Commit(ctx, lines, inventory.DirectionConsume); err != nil {
		return fail(err)
	}
	saga.Record("restore stock", func(ctx context.Context) error {
		return s.products.Commit(ctx, lines, inventory.DirectionRestore)
	})

	for _, line := range priced {
		item := &SaleItem{
			SaleID:      sale.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			CostPrice:   line.CostPrice,
			Discount:    line.Discount,
			Subtotal:    line.Subtotal(),
			Currency:    saleCurrency,
		}
		if err := s.repo.InsertSaleItem(ctx, item); err != nil {
			return fail(fmt.Errorf("persist sale item: %w", err))
		}
	}
	saga.Record("delete sale items", func(ctx context.Context) error {
		return s.repo.DeleteSaleItems(ctx, sale.ID)
	})

	if paid > 0 {
		payment := &Payment{
			SaleID:       sale.ID,
			CustomerID:   req.CustomerID,
			Amount:       paid,
			Currency:     saleCurrency,
			ExchangeRate: rate,
			Method:       req.PaymentMethod,
			ReceivedBy:   req.ActorID,
			PaidAt:       now,
		}
		if err := s.repo.InsertPayment(ctx, payment); err != nil {
			return fail(fmt.Errorf("persist payment: %w", err))
		}
		saga.Record("delete payments", func(ctx context.Context) error {
			return s.repo.DeletePaymentsForSale(ctx, sale.ID)
		})
	}

	if installmentBearing(req.PaymentType) && remaining > 0 {
		count := req.InstallmentCount
		if count <= 0 {
			count = DefaultInstallmentCount
		}
		schedule, err := GenerateSchedule(sale.ID, req.CustomerID, remaining, count, saleCurrency, now)
		if err != nil {
			return fail(err)
		}
		for i := range schedule {
			if err := s.repo.InsertInstallment(ctx, &schedule[i]); err != nil {
				return fail(fmt.Errorf("persist installment: %w", err))
			}
		}
		saga.Record("delete installments", func(ctx context.Context) error {
			return s.repo.DeleteInstallmentsForSale(ctx, sale.ID)
		})
	}

	if req.CustomerID != nil && remaining > 0 {
		customerID := *req.CustomerID
		if err := s.customers.RecordSale(ctx, customerID, remaining, totals.FinalAmount); err != nil {
			return fail(err)
		}
		saga.Record("revert customer totals", func(ctx context.Context) error {
			return s.customers.RecordSale(ctx, customerID, -remaining, -totals.FinalAmount)
		})
	}

	if err := s.repo.Commit(ctx); err != nil {
		return fail(fmt.Errorf("commit sale: %w", err))
	}

	s.recordAudit(ctx, req.ActorID, "sale:create", sale.ID, map[string]any{
		"invoice":      sale.InvoiceNumber,
		"final_amount": sale.FinalAmount,
		"currency":     sale.Currency,
		"payment_type": sale.PaymentType,
	})
	s.bumpReportCache(ctx)
	return sale, nil
}

// AddPayment settles part or all of a sale's remaining balance. The applied
// amount is clamped to what remains; the surplus is never taken.
func (s *Service) AddPayment(ctx context.Context, req AddPaymentRequest) (*Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalid, err)
	}

	unlock := s.locks.Lock(shared.SaleLockKey(req.SaleID))
	defer unlock()

	sale, err := s.repo.GetSale(ctx, req.SaleID)
	if err != nil {
		return nil, fmt.Errorf("sale %d: %w", req.SaleID, err)
	}
	if sale.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: sale is cancelled", shared.ErrInvalid)
	}
	if sale.RemainingAmount <= 0 {
		return nil, fmt.Errorf("%w: sale is already fully paid", shared.ErrInvalid)
	}

	applied := shared.Round2(req.Amount)
	if applied > sale.RemainingAmount {
		applied = sale.RemainingAmount
	}
	now := s.clock.Now()

	var saga shared.Saga
	fail := func(err error) (*Sale, error) {
		saga.Compensate(ctx, s.logger)
		return nil, err
	}

	payment := &Payment{
		SaleID:       sale.ID,
		CustomerID:   sale.CustomerID,
		Amount:       applied,
		Currency:     sale.Currency,
		ExchangeRate: sale.ExchangeRate,
		Method:       req.Method,
		Notes:        req.Notes,
		ReceivedBy:   req.ActorID,
		PaidAt:       now,
	}
	if err := s.repo.InsertPayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("persist payment: %w", err)
	}
	saga.Record("delete payment", func(ctx context.Context) error {
		return s.repo.DeletePayment(ctx, payment.ID)
	})

	prev := *sale
	sale.PaidAmount = shared.Round2(sale.PaidAmount + applied)
	sale.RemainingAmount = shared.Round2(sale.FinalAmount - sale.PaidAmount)
	if sale.RemainingAmount <= 0 {
		sale.RemainingAmount = 0
		sale.Status = StatusCompleted
	}
	sale.UpdatedAt = now
	if err := s.repo.UpdateSale(ctx, sale); err != nil {
		return fail(fmt.Errorf("update sale: %w", err))
	}
	saga.Record("revert sale totals", func(ctx context.Context) error {
		return s.repo.UpdateSale(ctx, &prev)
	})

	if sale.CustomerID != nil {
		customerID := *sale.CustomerID
		unlockCustomer := s.locks.Lock(shared.CustomerLockKey(customerID))
		defer unlockCustomer()
		if err := s.customers.AdjustDebt(ctx, customerID, -applied); err != nil {
			return fail(err)
		}
		saga.Record("revert customer debt", func(ctx context.Context) error {
			return s.customers.AdjustDebt(ctx, customerID, applied)
		})
	}

	installments, err := s.repo.ListInstallments(ctx, sale.ID)
	if err != nil {
		return fail(fmt.Errorf("list installments: %w", err))
	}
	if err := s.applyInstallmentChanges(ctx, &saga, ApplyPayment(installments, applied, now), installments); err != nil {
		return fail(err)
	}

	if err := s.repo.Commit(ctx); err != nil {
		return fail(fmt.Errorf("commit payment: %w", err))
	}

	s.recordAudit(ctx, req.ActorID, "sale:add_payment", sale.ID, map[string]any{
		"payment_id": payment.ID,
		"amount":     applied,
	})
	s.bumpReportCache(ctx)
	return sale, nil
}

// RemovePayment reverses a recorded settlement: the payment row is deleted,
// the sale's balance and the customer's debt grow back, and the most recently
// covered installments are reclaimed. A sale never stays completed after a
// payment is removed.
func (s *Service) RemovePayment(ctx context.Context, saleID, paymentID, actorID int64) (*Payment, error) {
	if saleID <= 0 || paymentID <= 0 {
		return nil, fmt.Errorf("%w: sale and payment ids are required", shared.ErrInvalid)
	}

	unlock := s.locks.Lock(shared.SaleLockKey(saleID))
	defer unlock()

	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("payment %d: %w", paymentID, err)
	}
	if payment.SaleID != saleID {
		return nil, fmt.Errorf("%w: payment %d does not belong to sale %d", shared.ErrNotFound, paymentID, saleID)
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("sale %d: %w", saleID, err)
	}

	var saga shared.Saga
	fail := func(err error) (*Payment, error) {
		saga.Compensate(ctx, s.logger)
		return nil, err
	}

	if err := s.repo.DeletePayment(ctx, payment.ID); err != nil {
		return nil, fmt.Errorf("delete payment: %w", err)
	}
	restored := *payment
	saga.Record("restore payment", func(ctx context.Context) error {
		return s.repo.InsertPayment(ctx, &restored)
	})

	prev := *sale
	sale.PaidAmount = shared.Round2(sale.PaidAmount - payment.Amount)
	if sale.PaidAmount < 0 {
		sale.PaidAmount = 0
	}
	sale.RemainingAmount = shared.Round2(sale.FinalAmount - sale.PaidAmount)
	if sale.Status == StatusCompleted {
		sale.Status = StatusPending
	}
	sale.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateSale(ctx, sale); err != nil {
		return fail(fmt.Errorf("update sale: %w", err))
	}
	saga.Record("revert sale totals", func(ctx context.Context) error {
		return s.repo.UpdateSale(ctx, &prev)
	})

	if sale.CustomerID != nil {
		customerID := *sale.CustomerID
		unlockCustomer := s.locks.Lock(shared.CustomerLockKey(customerID))
		defer unlockCustomer()
		if err := s.customers.AdjustDebt(ctx, customerID, payment.Amount); err != nil {
			return fail(err)
		}
		saga.Record("revert customer debt", func(ctx context.Context) error {
			return s.customers.AdjustDebt(ctx, customerID, -payment.Amount)
		})
	}

	installments, err := s.repo.ListInstallments(ctx, sale.ID)
	if err != nil {
		return fail(fmt.Errorf("list installments: %w", err))
	}
	if err := s.applyInstallmentChanges(ctx, &saga, ReversePayment(installments, payment.Amount), installments); err != nil {
		return fail(err)
	}

	if err := s.repo.Commit(ctx); err != nil {
		return fail(fmt.Errorf("commit payment removal: %w", err))
	}

	s.recordAudit(ctx, actorID, "sale:remove_payment", sale.ID, map[string]any{
		"payment_id": payment.ID,
		"amount":     payment.Amount,
	})
	s.bumpReportCache(ctx)
	return payment, nil
}

// Cancel voids a sale: stock returns, customer totals shrink, outstanding
// installments are cancelled, and the sale becomes terminal until restored.
func (s *Service) Cancel(ctx context.Context, saleID, actorID int64) (*Sale, error) {
	unlock := s.locks.Lock(shared.SaleLockKey(saleID))
	defer unlock()

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("sale %d: %w", saleID, err)
	}
	if sale.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: sale is already cancelled", shared.ErrInvalid)
	}

	items, err := s.repo.ListSaleItems(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("list sale items: %w", err)
	}
	lines, refKeys := itemLines(items)
	if sale.CustomerID != nil {
		refKeys = append(refKeys, shared.CustomerLockKey(*sale.CustomerID))
	}
	// One sorted acquisition so the customer/product order matches Create.
	unlockRefs := s.locks.Lock(refKeys...)
	defer unlockRefs()

	var saga shared.Saga
	fail := func(err error) (*Sale, error) {
		saga.Compensate(ctx, s.logger)
		return nil, err
	}

	if err := s.products.Commit(ctx, lines, inventory.DirectionRestore); err != nil {
		return nil, err
	}
	saga.Record("consume stock", func(ctx context.Context) error {
		return s.products.Commit(ctx, lines, inventory.DirectionConsume)
	})

	if sale.CustomerID != nil {
		customerID := *sale.CustomerID
		remaining, final := sale.RemainingAmount, sale.FinalAmount
		if err := s.customers.RecordSale(ctx, customerID, -remaining, -final); err != nil {
			return fail(err)
		}
		saga.Record("restore customer totals", func(ctx context.Context) error {
			return s.customers.RecordSale(ctx, customerID, remaining, final)
		})
	}

	installments, err := s.repo.ListInstallments(ctx, saleID)
	if err != nil {
		return fail(fmt.Errorf("list installments: %w", err))
	}
	if err := s.applyInstallmentChanges(ctx, &saga, CancelOutstanding(installments), installments); err != nil {
		return fail(err)
	}

	prev := *sale
	sale.Status = StatusCancelled
	sale.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateSale(ctx, sale); err != nil {
		return fail(fmt.Errorf("update sale: %w", err))
	}
	saga.Record("revert sale status", func(ctx context.Context) error {
		return s.repo.UpdateSale(ctx, &prev)
	})

	if err := s.repo.Commit(ctx); err != nil {
		return fail(fmt.Errorf("commit cancellation: %w", err))
	}

	s.recordAudit(ctx, actorID, "sale:cancel", sale.ID, map[string]any{"invoice": sale.InvoiceNumber})
	s.bumpReportCache(ctx)
	return sale, nil
}

// Restore reverses a cancellation. Stock is checked again before it is
// consumed: if another sale took the goods in the meantime the restore fails
// rather than oversubscribe.
func (s *Service) Restore(ctx context.Context, saleID, actorID int64) (*Sale, error) {
	unlock := s.locks.Lock(shared.SaleLockKey(saleID))
	defer unlock()

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("sale %d: %w", saleID, err)
	}
	if sale.Status != StatusCancelled {
		return nil, fmt.Errorf("%w: sale is not cancelled", shared.ErrInvalid)
	}

	items, err := s.repo.ListSaleItems(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("list sale items: %w", err)
	}
	lines, refKeys := itemLines(items)
	if sale.CustomerID != nil {
		refKeys = append(refKeys, shared.CustomerLockKey(*sale.CustomerID))
	}
	// One sorted acquisition so the customer/product order matches Create.
	unlockRefs := s.locks.Lock(refKeys...)
	defer unlockRefs()

	if _, err := s.products.Reserve(ctx, lines); err != nil {
		return nil, err
	}

	var saga shared.Saga
	fail := func(err error) (*Sale, error) {
		saga.Compensate(ctx, s.logger)
		return nil, err
	}

	if err := s.products.Commit(ctx, lines, inventory.DirectionConsume); err != nil {
		return nil, err
	}
	saga.Record("restore stock", func(ctx context.Context) error {
		return s.products.Commit(ctx, lines, inventory.DirectionRestore)
	})

	if sale.CustomerID != nil {
		customerID := *sale.CustomerID
		remaining, final := sale.RemainingAmount, sale.FinalAmount
		if err := s.customers.RecordSale(ctx, customerID, remaining, final); err != nil {
			return fail(err)
		}
		saga.Record("revert customer totals", func(ctx context.Context) error {
			return s.customers.RecordSale(ctx, customerID, -remaining, -final)
		})
	}

	installments, err := s.repo.ListInstallments(ctx, saleID)
	if err != nil {
		return fail(fmt.Errorf("list installments: %w", err))
	}
	if err := s.applyInstallmentChanges(ctx, &saga, RestoreCancelled(installments), installments); err != nil {
		return fail(err)
	}

	prev := *sale
	if sale.RemainingAmount <= 0 {
		sale.Status = StatusCompleted
	} else {
		sale.Status = StatusPending
	}
	sale.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateSale(ctx, sale); err != nil {
		return fail(fmt.Errorf("update sale: %w", err))
	}
	saga.Record("revert sale status", func(ctx context.Context) error {
		return s.repo.UpdateSale(ctx, &prev)
	})

	if err := s.repo.Commit(ctx); err != nil {
		return fail(fmt.Errorf("commit restore: %w", err))
	}

	s.recordAudit(ctx, actorID, "sale:restore", sale.ID, map[string]any{"invoice": sale.InvoiceNumber})
	s.bumpReportCache(ctx)
	return sale, nil
}

// Get returns a sale with its items, payments, and installment schedule.
func (s *Service) Get(ctx context.Context, saleID int64) (*SaleDetail, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("sale %d: %w", saleID, err)
	}
	items, err := s.repo.ListSaleItems(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("list sale items: %w", err)
	}
	payments, err := s.repo.ListPayments(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	installments, err := s.repo.ListInstallments(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	return &SaleDetail{Sale: *sale, Items: items, Payments: payments, Installments: installments}, nil
}

// List returns one filtered page of sales.
func (s *Service) List(ctx context.Context, req ListSalesRequest) (*ListSalesResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalid, err)
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PerPage <= 0 {
		req.PerPage = 10
	}
	rows, total, err := s.repo.ListSales(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return &ListSalesResult{
		Sales:      rows,
		Pagination: shared.NewPagination(req.Page, req.PerPage, total),
	}, nil
}

// Purge hard-deletes a cancelled sale and everything attached to it.
func (s *Service) Purge(ctx context.Context, saleID, actorID int64) error {
	unlock := s.locks.Lock(shared.SaleLockKey(saleID))
	defer unlock()

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return fmt.Errorf("sale %d: %w", saleID, err)
	}
	if sale.Status != StatusCancelled {
		return fmt.Errorf("%w: only cancelled sales can be purged", shared.ErrInvalid)
	}

	if err := s.repo.DeleteInstallmentsForSale(ctx, saleID); err != nil {
		return fmt.Errorf("delete installments: %w", err)
	}
	if err := s.repo.DeletePaymentsForSale(ctx, saleID); err != nil {
		return fmt.Errorf("delete payments: %w", err)
	}
	if err := s.repo.DeleteSaleItems(ctx, saleID); err != nil {
		return fmt.Errorf("delete sale items: %w", err)
	}
	if err := s.repo.DeleteSale(ctx, saleID); err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	if err := s.repo.Commit(ctx); err != nil {
		return fmt.Errorf("commit purge: %w", err)
	}

	s.recordAudit(ctx, actorID, "sale:purge", saleID, map[string]any{"invoice": sale.InvoiceNumber})
	s.bumpReportCache(ctx)
	return nil
}

// MarkOverdueInstallments flips pending installments whose due date has
// passed to overdue. Invoked by the periodic scan job. The due listing is
// only a candidate set; each sale's rows are re-read under its lock so a
// payment landing mid-scan is never overwritten with a stale snapshot.
func (s *Service) MarkOverdueInstallments(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.repo.ListDueInstallments(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due installments: %w", err)
	}
	seen := make(map[int64]bool, len(due))
	saleIDs := make([]int64, 0, len(due))
	for _, inst := range due {
		if !seen[inst.SaleID] {
			seen[inst.SaleID] = true
			saleIDs = append(saleIDs, inst.SaleID)
		}
	}

	marked := 0
	for _, saleID := range saleIDs {
		n, err := s.markOverdueForSale(ctx, saleID, now)
		marked += n
		if err != nil {
			return marked, err
		}
	}
	if marked > 0 {
		if err := s.repo.Commit(ctx); err != nil {
			return marked, fmt.Errorf("commit overdue scan: %w", err)
		}
		s.logger.Info("marked overdue installments", "count", marked)
	}
	return marked, nil
}

func (s *Service) markOverdueForSale(ctx context.Context, saleID int64, now time.Time) (int, error) {
	unlock := s.locks.Lock(shared.SaleLockKey(saleID))
	defer unlock()

	installments, err := s.repo.ListInstallments(ctx, saleID)
	if err != nil {
		return 0, fmt.Errorf("list installments for sale %d: %w", saleID, err)
	}
	marked := 0
	for _, inst := range installments {
		if inst.Status != InstallmentPending || !inst.DueDate.Before(now) {
			continue
		}
		inst.Status = InstallmentOverdue
		if err := s.repo.UpdateInstallment(ctx, &inst); err != nil {
			return marked, fmt.Errorf("update installment %d: %w", inst.ID, err)
		}
		marked++
	}
	return marked, nil
}

// applyInstallmentChanges persists mutated installments and records
// compensations restoring the prior rows.
func (s *Service) applyInstallmentChanges(ctx context.Context, saga *shared.Saga, changed, before []Installment) error {
	if len(changed) == 0 {
		return nil
	}
	prior := make(map[int64]Installment, len(before))
	for _, inst := range before {
		prior[inst.ID] = inst
	}
	for i := range changed {
		inst := changed[i]
		if err := s.repo.UpdateInstallment(ctx, &inst); err != nil {
			return fmt.Errorf("update installment %d: %w", inst.ID, err)
		}
		prev := prior[inst.ID]
		saga.Record("revert installment", func(ctx context.Context) error {
			return s.repo.UpdateInstallment(ctx, &prev)
		})
	}
	return nil
}

// createSaleRow persists the sale, regenerating the invoice number once if
// the generator collides.
func (s *Service) createSaleRow(ctx context.Context, sale *Sale, now time.Time) error {
	err := s.repo.CreateSale(ctx, sale)
	if errors.Is(err, shared.ErrConflict) {
		sale.InvoiceNumber = s.invoiceNumber(now)
		err = s.repo.CreateSale(ctx, sale)
	}
	if err != nil {
		return fmt.Errorf("persist sale: %w", err)
	}
	return nil
}

// resolveRate resolves the sale currency's rate against the default currency,
// falling back to the stored USD/IQD rates when the rate table does not know
// the currency.
func (s *Service) resolveRate(ctx context.Context, saleCurrency string, cs settings.CurrencySettings) (float64, error) {
	rate, err := s.converter.Rate(ctx, saleCurrency, cs.DefaultCurrency)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return 0, err
	}
	if saleCurrency == "USD" {
		return cs.USDRate, nil
	}
	return cs.IQDRate, nil
}

func (s *Service) invoiceNumber(now time.Time) string {
	return fmt.Sprintf("INV-%d-%03d", now.UnixMilli(), rand.Intn(1000))
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, saleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.NewAuditLog(actorID, action, "sale", fmt.Sprintf("%d", saleID), meta))
}

func (s *Service) bumpReportCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", "error", err)
	}
}

func installmentBearing(t PaymentType) bool {
	return t == PaymentInstallment || t == PaymentMixed
}

func itemLines(items []SaleItem) ([]inventory.Line, []string) {
	lines := make([]inventory.Line, 0, len(items))
	keys := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity})
		keys = append(keys, shared.ProductLockKey(item.ProductID))
	}
	return lines, keys
}
