// Package store is the single-writer, whole-file persisted store behind the
// ledger. Everything lives in one JSON document held in memory; mutating
// operations change the in-memory state and Commit flushes the document
// atomically (write to a temp file, then rename). Callers serialize access
// through the ledger's keyed locks; the store's own mutex only guards the
// map structures.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dijla-pos/dijla-pos/internal/customers"
	"github.com/dijla-pos/dijla-pos/internal/currency"
	"github.com/dijla-pos/dijla-pos/internal/inventory"
	"github.com/dijla-pos/dijla-pos/internal/sales"
	"github.com/dijla-pos/dijla-pos/internal/settings"
	"github.com/dijla-pos/dijla-pos/internal/shared"
)

type document struct {
	NextID       map[string]int64               `json:"next_id"`
	Sales        map[int64]*sales.Sale          `json:"sales"`
	SaleItems    map[int64]*sales.SaleItem      `json:"sale_items"`
	Payments     map[int64]*sales.Payment       `json:"payments"`
	Installments map[int64]*sales.Installment   `json:"installments"`
	Products     map[int64]*inventory.Product   `json:"products"`
	Customers    map[int64]*customers.Customer  `json:"customers"`
	Rates        map[string]*currency.Rate      `json:"currency_rates"`
	Settings     map[string]*settings.Setting   `json:"settings"`
	Audit        []shared.AuditLog              `json:"audit"`
}

// Store implements every repository port of the ledger over one JSON file.
// An empty path keeps the store purely in memory, which the tests use.
type Store struct {
	mu     sync.RWMutex
	path   string
	doc    *document
	logger *slog.Logger
}

// Open loads the document at path, creating and seeding it when absent.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger, doc: emptyDocument()}
	if path == "" {
		s.seed()
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.seed()
		if err := s.flush(); err != nil {
			return nil, err
		}
		logger.Info("initialised new store", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	if err := json.Unmarshal(raw, s.doc); err != nil {
		return nil, fmt.Errorf("parse store: %w", err)
	}
	s.ensureMaps()
	s.seed()
	return s, nil
}

// ensureMaps guards against hand-edited documents with missing sections.
func (s *Store) ensureMaps() {
	empty := emptyDocument()
	if s.doc.NextID == nil {
		s.doc.NextID = empty.NextID
	}
	if s.doc.Sales == nil {
		s.doc.Sales = empty.Sales
	}
	if s.doc.SaleItems == nil {
		s.doc.SaleItems = empty.SaleItems
	}
	if s.doc.Payments == nil {
		s.doc.Payments = empty.Payments
	}
	if s.doc.Installments == nil {
		s.doc.Installments = empty.Installments
	}
	if s.doc.Products == nil {
		s.doc.Products = empty.Products
	}
	if s.doc.Customers == nil {
		s.doc.Customers = empty.Customers
	}
	if s.doc.Rates == nil {
		s.doc.Rates = empty.Rates
	}
	if s.doc.Settings == nil {
		s.doc.Settings = empty.Settings
	}
}

func emptyDocument() *document {
	return &document{
		NextID:       make(map[string]int64),
		Sales:        make(map[int64]*sales.Sale),
		SaleItems:    make(map[int64]*sales.SaleItem),
		Payments:     make(map[int64]*sales.Payment),
		Installments: make(map[int64]*sales.Installment),
		Products:     make(map[int64]*inventory.Product),
		Customers:    make(map[int64]*customers.Customer),
		Rates:        make(map[string]*currency.Rate),
		Settings:     make(map[string]*settings.Setting),
	}
}

// seed fills in the rows the ledger cannot run without: the two stock
// currencies and the currency settings, without overwriting existing rows.
func (s *Store) seed() {
	now := time.Now().UTC()
	if _, ok := s.doc.Rates["USD"]; !ok {
		s.doc.Rates["USD"] = &currency.Rate{
			ID: s.nextID("currency_rates"), Code: "USD", Name: "US Dollar", Symbol: "$",
			RateToBase: 1, IsActive: true, IsBase: true, UpdatedAt: now,
		}
	}
	if _, ok := s.doc.Rates["IQD"]; !ok {
		s.doc.Rates["IQD"] = &currency.Rate{
			ID: s.nextID("currency_rates"), Code: "IQD", Name: "Iraqi Dinar", Symbol: "IQD",
			RateToBase: settings.DefaultUSDRate, IsActive: true, UpdatedAt: now,
		}
	}
	defaults := map[string]string{
		settings.KeyDefaultCurrency: settings.DefaultCurrency,
		settings.KeyUSDRate:         fmt.Sprintf("%d", settings.DefaultUSDRate),
		settings.KeyIQDRate:         fmt.Sprintf("%d", settings.DefaultIQDRate),
	}
	for key, value := range defaults {
		if _, ok := s.doc.Settings[key]; !ok {
			s.doc.Settings[key] = &settings.Setting{Key: key, Value: value, UpdatedAt: now}
		}
	}
}

func (s *Store) nextID(entity string) int64 {
	s.doc.NextID[entity]++
	return s.doc.NextID[entity]
}

// Commit flushes the document to disk. In-memory stores treat it as a no-op.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *Store) flush() error {
	if s.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// --- sales ---

func (s *Store) CreateSale(ctx context.Context, sale *sales.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.doc.Sales {
		if existing.InvoiceNumber == sale.InvoiceNumber {
			return fmt.Errorf("%w: invoice %s already exists", shared.ErrConflict, sale.InvoiceNumber)
		}
	}
	sale.ID = s.nextID("sales")
	clone := *sale
	s.doc.Sales[sale.ID] = &clone
	return nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*sales.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.doc.Sales[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *sale
	return &clone, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale *sales.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Sales[sale.ID]; !ok {
		return shared.ErrNotFound
	}
	clone := *sale
	s.doc.Sales[sale.ID] = &clone
	return nil
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Sales[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.doc.Sales, id)
	return nil
}

func (s *Store) ListSales(ctx context.Context, req sales.ListSalesRequest) ([]sales.Sale, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []sales.Sale
	for _, sale := range s.doc.Sales {
		if req.Status != "" && sale.Status != req.Status {
			continue
		}
		if req.PaymentType != "" && sale.PaymentType != req.PaymentType {
			continue
		}
		if req.CustomerID != nil && (sale.CustomerID == nil || *sale.CustomerID != *req.CustomerID) {
			continue
		}
		if req.From != nil && sale.SaleDate.Before(*req.From) {
			continue
		}
		if req.To != nil && sale.SaleDate.After(*req.To) {
			continue
		}
		rows = append(rows, *sale)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SaleDate.After(rows[j].SaleDate) })

	total := len(rows)
	page, perPage := req.Page, req.PerPage
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}
	start := (page - 1) * perPage
	if start >= total {
		return []sales.Sale{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return rows[start:end], total, nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from, to time.Time) ([]sales.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []sales.Sale
	for _, sale := range s.doc.Sales {
		if sale.SaleDate.Before(from) || sale.SaleDate.After(to) {
			continue
		}
		rows = append(rows, *sale)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SaleDate.Before(rows[j].SaleDate) })
	return rows, nil
}

// --- sale items ---

func (s *Store) InsertSaleItem(ctx context.Context, item *sales.SaleItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.nextID("sale_items")
	clone := *item
	s.doc.SaleItems[item.ID] = &clone
	return nil
}

func (s *Store) ListSaleItems(ctx context.Context, saleID int64) ([]sales.SaleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []sales.SaleItem
	for _, item := range s.doc.SaleItems {
		if item.SaleID == saleID {
			rows = append(rows, *item)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (s *Store) DeleteSaleItems(ctx context.Context, saleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.doc.SaleItems {
		if item.SaleID == saleID {
			delete(s.doc.SaleItems, id)
		}
	}
	return nil
}

func (s *Store) ListItemsForSales(ctx context.Context, saleIDs []int64) ([]sales.ReportItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[int64]struct{}, len(saleIDs))
	for _, id := range saleIDs {
		wanted[id] = struct{}{}
	}
	var rows []sales.ReportItem
	for _, item := range s.doc.SaleItems {
		if _, ok := wanted[item.SaleID]; !ok {
			continue
		}
		rows = append(rows, sales.ReportItem{
			SaleID:    item.SaleID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			CostPrice: item.CostPrice,
			Currency:  item.Currency,
		})
	}
	return rows, nil
}

// --- payments ---

func (s *Store) InsertPayment(ctx context.Context, payment *sales.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payment.ID == 0 {
		payment.ID = s.nextID("payments")
	}
	clone := *payment
	s.doc.Payments[payment.ID] = &clone
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id int64) (*sales.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payment, ok := s.doc.Payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *payment
	return &clone, nil
}

func (s *Store) ListPayments(ctx context.Context, saleID int64) ([]sales.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []sales.Payment
	for _, payment := range s.doc.Payments {
		if payment.SaleID == saleID {
			rows = append(rows, *payment)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (s *Store) DeletePayment(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Payments[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.doc.Payments, id)
	return nil
}

func (s *Store) DeletePaymentsForSale(ctx context.Context, saleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, payment := range s.doc.Payments {
		if payment.SaleID == saleID {
			delete(s.doc.Payments, id)
		}
	}
	return nil
}

// --- installments ---

func (s *Store) InsertInstallment(ctx context.Context, inst *sales.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst.ID = s.nextID("installments")
	clone := *inst
	s.doc.Installments[inst.ID] = &clone
	return nil
}

func (s *Store) UpdateInstallment(ctx context.Context, inst *sales.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Installments[inst.ID]; !ok {
		return shared.ErrNotFound
	}
	clone := *inst
	s.doc.Installments[inst.ID] = &clone
	return nil
}

func (s *Store) ListInstallments(ctx context.Context, saleID int64) ([]sales.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []sales.Installment
	for _, inst := range s.doc.Installments {
		if inst.SaleID == saleID {
			rows = append(rows, *inst)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Sequence < rows[j].Sequence })
	return rows, nil
}

func (s *Store) DeleteInstallmentsForSale(ctx context.Context, saleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, inst := range s.doc.Installments {
		if inst.SaleID == saleID {
			delete(s.doc.Installments, id)
		}
	}
	return nil
}

func (s *Store) CountOverdueInstallments(ctx context.Context, asOf time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, inst := range s.doc.Installments {
		switch inst.Status {
		case sales.InstallmentOverdue:
			count++
		case sales.InstallmentPending:
			if inst.DueDate.Before(asOf) {
				count++
			}
		}
	}
	return count, nil
}

func (s *Store) ListDueInstallments(ctx context.Context, asOf time.Time) ([]sales.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []sales.Installment
	for _, inst := range s.doc.Installments {
		if inst.Status == sales.InstallmentPending && inst.DueDate.Before(asOf) {
			rows = append(rows, *inst)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DueDate.Before(rows[j].DueDate) })
	return rows, nil
}

// --- products ---

func (s *Store) GetProduct(ctx context.Context, id int64) (*inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.doc.Products[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *product
	return &clone, nil
}

func (s *Store) UpdateProductStock(ctx context.Context, id int64, delta int, now time.Time) (*inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.doc.Products[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	product.StockQuantity += delta
	product.UpdatedAt = now
	clone := *product
	return &clone, nil
}

// PutProduct inserts or replaces a product row.
func (s *Store) PutProduct(ctx context.Context, product *inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if product.ID == 0 {
		product.ID = s.nextID("products")
	}
	clone := *product
	s.doc.Products[product.ID] = &clone
	return nil
}

// --- customers ---

func (s *Store) GetCustomer(ctx context.Context, id int64) (*customers.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	customer, ok := s.doc.Customers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *customer
	return &clone, nil
}

func (s *Store) UpdateCustomerTotals(ctx context.Context, id int64, debt, purchases float64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.doc.Customers[id]
	if !ok {
		return shared.ErrNotFound
	}
	customer.TotalDebt = debt
	customer.TotalPurchases = purchases
	customer.UpdatedAt = now
	return nil
}

// PutCustomer inserts or replaces a customer row.
func (s *Store) PutCustomer(ctx context.Context, customer *customers.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if customer.ID == 0 {
		customer.ID = s.nextID("customers")
	}
	clone := *customer
	s.doc.Customers[customer.ID] = &clone
	return nil
}

// --- currency rates ---

func (s *Store) GetRate(ctx context.Context, code string) (*currency.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rate, ok := s.doc.Rates[code]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *rate
	return &clone, nil
}

func (s *Store) ListRates(ctx context.Context) ([]currency.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]currency.Rate, 0, len(s.doc.Rates))
	for _, rate := range s.doc.Rates {
		rows = append(rows, *rate)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	return rows, nil
}

// PutRate inserts or replaces a currency rate row.
func (s *Store) PutRate(ctx context.Context, rate *currency.Rate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rate.ID == 0 {
		rate.ID = s.nextID("currency_rates")
	}
	clone := *rate
	s.doc.Rates[rate.Code] = &clone
	return nil
}

// --- settings ---

func (s *Store) GetSetting(ctx context.Context, key string) (*settings.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	setting, ok := s.doc.Settings[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *setting
	return &clone, nil
}

// PutSetting inserts or replaces a settings row.
func (s *Store) PutSetting(ctx context.Context, setting *settings.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *setting
	s.doc.Settings[setting.Key] = &clone
	return nil
}

// --- audit ---

func (s *Store) Record(ctx context.Context, log shared.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Audit = append(s.doc.Audit, log)
	return nil
}
