package sales_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dijla-pos/dijla-pos/internal/customers"
	"github.com/dijla-pos/dijla-pos/internal/currency"
	"github.com/dijla-pos/dijla-pos/internal/inventory"
	"github.com/dijla-pos/dijla-pos/internal/sales"
	"github.com/dijla-pos/dijla-pos/internal/settings"
	"github.com/dijla-pos/dijla-pos/internal/shared"
	"github.com/dijla-pos/dijla-pos/internal/store"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store   *store.Store
	service *sales.Service
	clock   *fixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open("", nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.PutProduct(ctx, &inventory.Product{
		Name: "Laptop", Category: "electronics",
		CostPrice: 700, SellingPrice: 1000, Currency: "USD",
		StockQuantity: 10, MinStockLevel: 2, IsActive: true,
	}))
	require.NoError(t, s.PutProduct(ctx, &inventory.Product{
		Name: "Mouse", Category: "electronics",
		CostPrice: 5, SellingPrice: 15, Currency: "USD",
		StockQuantity: 50, MinStockLevel: 5, IsActive: true,
	}))
	require.NoError(t, s.PutCustomer(ctx, &customers.Customer{Name: "Ahmed", IsActive: true}))

	clock := &fixedClock{now: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}
	service := sales.NewService(
		s,
		inventory.NewAdjuster(s, clock, nil),
		customers.NewLedger(s, clock),
		currency.NewConverter(s),
		settings.NewProvider(s),
		clock,
		s,
		nil,
		nil,
	)
	return &fixture{store: s, service: service, clock: clock}
}

func (f *fixture) product(t *testing.T, id int64) *inventory.Product {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) customer(t *testing.T, id int64) *customers.Customer {
	t.Helper()
	c, err := f.store.GetCustomer(context.Background(), id)
	require.NoError(t, err)
	return c
}

func customerID(id int64) *int64 { return &id }

func TestCreateCashSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 100.0
	sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
		Items:       []sales.CreateSaleItemRequest{{ProductID: 2, Quantity: 2, UnitPrice: &price}},
		TaxRate:     10,
		PaidAmount:  220,
		Currency:    "USD",
		PaymentType: sales.PaymentCash,
		ActorID:     1,
	})
	require.NoError(t, err)

	require.InDelta(t, 200.0, sale.Subtotal, 0.001)
	require.InDelta(t, 20.0, sale.TaxAmount, 0.001)
	require.InDelta(t, 220.0, sale.TotalAmount, 0.001)
	require.InDelta(t, 0.0, sale.RemainingAmount, 0.001)
	require.Equal(t, sales.StatusCompleted, sale.Status)
	require.NotEmpty(t, sale.InvoiceNumber)

	require.Equal(t, 48, f.product(t, 2).StockQuantity)

	detail, err := f.service.Get(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	require.Len(t, detail.Payments, 1)
	require.InDelta(t, 220.0, detail.Payments[0].Amount, 0.001)
	require.Empty(t, detail.Installments)
}

func TestCreateInstallmentSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 300.0
	sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
		CustomerID:       customerID(1),
		Items:            []sales.CreateSaleItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: &price}},
		Currency:         "USD",
		PaymentType:      sales.PaymentInstallment,
		InstallmentCount: 3,
		ActorID:          1,
	})
	require.NoError(t, err)
	require.Equal(t, sales.StatusPending, sale.Status)
	require.InDelta(t, 300.0, sale.RemainingAmount, 0.001)

	detail, err := f.service.Get(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, detail.Installments, 3)
	for i, inst := range detail.Installments {
		require.InDelta(t, 100.0, inst.DueAmount, 0.001)
		require.Equal(t, sales.InstallmentPending, inst.Status)
		require.Equal(t, f.clock.now.AddDate(0, i+1, 0), inst.DueDate)
	}

	customer := f.customer(t, 1)
	require.InDelta(t, 300.0, customer.TotalDebt, 0.001)
	require.InDelta(t, 300.0, customer.TotalPurchases, 0.001)
}

func TestCreateAppliesInterest(t *testing.T) {
	f := newFixture(t)

	price := 300.0
	sale, err := f.service.Create(context.Background(), sales.CreateSaleRequest{
		Items:        []sales.CreateSaleItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: &price}},
		Currency:     "USD",
		PaymentType:  sales.PaymentInstallment,
		InterestRate: 10,
		ActorID:      1,
	})
	require.NoError(t, err)
	require.InDelta(t, 30.0, sale.InterestAmount, 0.001)
	require.InDelta(t, 330.0, sale.FinalAmount, 0.001)
}

func TestCreateInsufficientStockLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, sales.CreateSaleRequest{
		Items: []sales.CreateSaleItemRequest{
			{ProductID: 2, Quantity: 1},
			{ProductID: 1, Quantity: 11},
		},
		Currency:    "USD",
		PaymentType: sales.PaymentCash,
		ActorID:     1,
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	require.ErrorIs(t, err, shared.ErrInvalid)

	require.Equal(t, 50, f.product(t, 2).StockQuantity)
	require.Equal(t, 10, f.product(t, 1).StockQuantity)

	listing, err := f.service.List(ctx, sales.ListSalesRequest{})
	require.NoError(t, err)
	require.Empty(t, listing.Sales)
}

func TestCreateUnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), sales.CreateSaleRequest{
		Items:       []sales.CreateSaleItemRequest{{ProductID: 99, Quantity: 1}},
		Currency:    "USD",
		PaymentType: sales.PaymentCash,
		ActorID:     1,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateDefaultsCurrencyFromSettings(t *testing.T) {
	f := newFixture(t)

	price := 50.0
	sale, err := f.service.Create(context.Background(), sales.CreateSaleRequest{
		Items:       []sales.CreateSaleItemRequest{{ProductID: 2, Quantity: 1, UnitPrice: &price}},
		PaymentType: sales.PaymentCash,
		ActorID:     1,
	})
	require.NoError(t, err)
	require.Equal(t, "IQD", sale.Currency)
	require.InDelta(t, 1.0, sale.ExchangeRate, 0.000001)
}

func TestAddPaymentClampsToRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 150.0
	sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
		CustomerID:  customerID(1),
		Items:       []sales.CreateSaleItemRequest{{ProductID: 2, Quantity: 1, UnitPrice: &price}},
		Currency:    "USD",
		PaymentType: sales.PaymentInstallment,
		ActorID:     1,
	})
	require.NoError(t, err)
	require.InDelta(t, 150.0, sale.RemainingAmount, 0.001)

	updated, err := f.service.AddPayment(ctx, sales.AddPaymentRequest{
		SaleID:  sale.ID,
		Amount:  200,
		ActorID: 1,
	})
	require.NoError(t, err)
	require.InDelta(t, 0.0, updated.RemainingAmount, 0.001)
	require.InDelta(t, 150.0, updated.PaidAmount, 0.001)
	require.Equal(t, sales.StatusCompleted, updated.Status)

	detail, err := f.service.Get(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, detail.Payments, 1)
	require.InDelta(t, 150.0, detail.Payments[0].Amount, 0.001)
	for _, inst := range detail.Installments {
		require.Equal(t, sales.InstallmentPaid, inst.Status)
		require.NotNil(t, inst.PaidDate)
	}

	require.InDelta(t, 0.0, f.customer(t, 1).TotalDebt, 0.001)
}

func TestAddPaymentRejectsCancelledAndSettled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 100.0
	sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
		Items:       []sales.CreateSaleItemRequest{{ProductID: 2, Quantity: 1, UnitPrice: &price}},
		PaidAmount:  100,
		Currency:    "USD",
		PaymentType: sales.PaymentCash,
		ActorID:     1,
	})
	require.NoError(t, err)

	_, err = f.service.AddPayment(ctx, sales.AddPaymentRequest{SaleID: sale.ID, Amount: 10, ActorID: 1})
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = f.service.Cancel(ctx, sale.ID, 1)
	require.NoError(t, err)
	_, err = f.service.AddPayment(ctx, sales.AddPaymentRequest{SaleID: sale.ID, Amount: 10, ActorID: 1})
	require.ErrorIs(t, err, shared.ErrInvalid)
}

func TestRemovePaymentReversesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 300.0
	sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
		CustomerID:       customerID(1),
		Items:            []sales.CreateSaleItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: &price}},
		Currency:         "USD",
		PaymentType:      sales.PaymentInstallment,
		InstallmentCount: 3,
		ActorID:          1,
	})
	require.NoError(t, err)

	updated, err := f.service.AddPayment(ctx, sales.AddPaymentRequest{SaleID: sale.ID, Amount: 300, ActorID: 1})
	require.NoError(t, err)
	require.Equal(t, sales.StatusCompleted, updated.Status)

	detail, err := f.service.Get(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, detail.Payments, 1)

	removed, err := f.service.RemovePayment(ctx, sale.ID, detail.Payments[0].ID, 1)
	require.NoError(t, err)
	require.InDelta(t, 300.0, removed.Amount, 0.001)

	detail, err = f.service.Get(ctx, sale.ID)
	require.NoError(t, err)
	require.Empty(t, detail.Payments)
	require.Equal(t, sales.StatusPending, detail.Sale.Status)
	require.InDelta(t, 300.0, detail.Sale.RemainingAmount, 0.001)
	require.InDelta(t, 0.0, detail.Sale.PaidAmount, 0.001)
	for _, inst := range detail.Installments {
		require.Equal(t, sales.InstallmentPending, inst.Status)
		require.Nil(t, inst.PaidDate)
		require.InDelta(t, 0.0, inst.PaidAmount, 0.001)
	}

	require.InDelta(t, 300.0, f.customer(t, 1).TotalDebt, 0.001)
}

func TestRemovePaymentWrongSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 100.0
	sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
		Items:       []sales.CreateSaleItemRequest{{ProductID: 2, Quantity: 1, UnitPrice: &price}},
		PaidAmount:  50,
		Currency:    "USD",
		PaymentType: sales.PaymentMixed,
		ActorID:     1,
	})
	require.NoError(t, err)

	detail, err := f.service.Get(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, detail.Payments, 1)

	_, err = f.service.RemovePayment(ctx, sale.ID+1, detail.Payments[0].ID, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCancelAndRestoreAreInverses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 100.0
	sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
		CustomerID:  customerID(1),
		Items:       []sales.CreateSaleItemRequest{{ProductID: 1, Quantity: 5, UnitPrice: &price}},
		Currency:    "USD",
		PaymentType: sales.PaymentInstallment,
		ActorID:     1,
	})
	require.NoError(t, err)
	require.Equal(t, 5, f.product(t, 1).StockQuantity)
	require.InDelta(t, 500.0, f.customer(t, 1).TotalDebt, 0.001)

	cancelled, err := f.service.Cancel(ctx, sale.ID, 1)
	require.NoError(t, err)
	require.Equal(t, sales.StatusCancelled, cancelled.Status)
	require.Equal(t, 10, f.product(t, 1).StockQuantity)
	require.InDelta(t, 0.0, f.customer(t, 1).TotalDebt, 0.001)
	require.InDelta(t, 0.0, f.customer(t, 1).TotalPurchases, 0.001)

	detail, err := f.service.Get(ctx, sale.ID)
	require.NoError(t, err)
	for _, inst := range detail.Installments {
		require.Equal(t, sales.InstallmentCancelled, inst.Status)
	}

	restored, err := f.service.Restore(ctx, sale.ID, 1)
	require.NoError(t, err)
	require.Equal(t, sales.StatusPending, restored.Status)
	require.Equal(t, 5, f.product(t, 1).StockQuantity)
	require.InDelta(t, 500.0, f.customer(t, 1).TotalDebt, 0.001)

	detail, err = f.service.Get(ctx, sale.ID)
	require.NoError(t, err)
	for _, inst := range detail.Installments {
		require.Equal(t, sales.InstallmentPending, inst.Status)
	}
}

func TestCancelTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 10.0
	sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
		Items:       []sales.CreateSaleItemRequest{{ProductID: 2, Quantity: 1, UnitPrice: &price}},
		PaidAmount:  10,
		Currency:    "USD",
		PaymentType: sales.PaymentCash,
		ActorID:     1,
	})
	require.NoError(t, err)

	_, err = f.service.Cancel(ctx, sale.ID, 1)
	require.NoError(t, err)
	_, err = f.service.Cancel(ctx, sale.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = f.service.Restore(ctx, sale.ID, 1)
	require.NoError(t, err)
	_, err = f.service.Restore(ctx, sale.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalid)
}

func TestRestoreFailsWhenStockGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 100.0
	sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
		Items:       []sales.CreateSaleItemRequest{{ProductID: 1, Quantity: 6, UnitPrice: &price}},
		PaidAmount:  600,
		Currency:    "USD",
		PaymentType: sales.PaymentCash,
		ActorID:     1,
	})
	require.NoError(t, err)

	_, err = f.service.Cancel(ctx, sale.ID, 1)
	require.NoError(t, err)

	// Someone else buys most of the returned stock.
	other, err := f.service.Create(ctx, sales.CreateSaleRequest{
		Items:       []sales.CreateSaleItemRequest{{ProductID: 1, Quantity: 8, UnitPrice: &price}},
		PaidAmount:  800,
		Currency:    "USD",
		PaymentType: sales.PaymentCash,
		ActorID:     1,
	})
	require.NoError(t, err)
	require.NotNil(t, other)

	_, err = f.service.Restore(ctx, sale.ID, 1)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
}

func TestPurgeRequiresCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 20.0
	sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
		Items:       []sales.CreateSaleItemRequest{{ProductID: 2, Quantity: 1, UnitPrice: &price}},
		PaidAmount:  20,
		Currency:    "USD",
		PaymentType: sales.PaymentCash,
		ActorID:     1,
	})
	require.NoError(t, err)

	require.ErrorIs(t, f.service.Purge(ctx, sale.ID, 1), shared.ErrInvalid)

	_, err = f.service.Cancel(ctx, sale.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.service.Purge(ctx, sale.ID, 1))

	_, err = f.service.Get(ctx, sale.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMarkOverdueInstallments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 300.0
	sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
		Items:            []sales.CreateSaleItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: &price}},
		Currency:         "USD",
		PaymentType:      sales.PaymentInstallment,
		InstallmentCount: 3,
		ActorID:          1,
	})
	require.NoError(t, err)

	f.clock.now = f.clock.now.AddDate(0, 2, 1)
	marked, err := f.service.MarkOverdueInstallments(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, marked)

	detail, err := f.service.Get(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, sales.InstallmentOverdue, detail.Installments[0].Status)
	require.Equal(t, sales.InstallmentOverdue, detail.Installments[1].Status)
	require.Equal(t, sales.InstallmentPending, detail.Installments[2].Status)
}

func TestListSalesPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 10.0
	for i := 0; i < 4; i++ {
		f.clock.now = f.clock.now.Add(time.Minute)
		_, err := f.service.Create(ctx, sales.CreateSaleRequest{
			Items:       []sales.CreateSaleItemRequest{{ProductID: 2, Quantity: 1, UnitPrice: &price}},
			PaidAmount:  10,
			Currency:    "USD",
			PaymentType: sales.PaymentCash,
			ActorID:     1,
		})
		require.NoError(t, err)
	}

	page, err := f.service.List(ctx, sales.ListSalesRequest{Page: 1, PerPage: 3})
	require.NoError(t, err)
	require.Len(t, page.Sales, 3)
	require.Equal(t, 4, page.Pagination.Total)
	require.Equal(t, 2, page.Pagination.TotalPages)
}

func TestConcurrentCreateAndCancelFinish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Creates and cancels race over the same customer and product. The
	// buffered channel keeps at most a handful of sales outstanding so the
	// seeded stock is never exhausted.
	const rounds = 200
	saleIDs := make(chan int64, 4)
	errs := make(chan error, 2)

	go func() {
		defer close(saleIDs)
		for i := 0; i < rounds; i++ {
			f.clock.Advance(time.Millisecond)
			sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
				CustomerID:  customerID(1),
				Items:       []sales.CreateSaleItemRequest{{ProductID: 1, Quantity: 1}},
				Currency:    "USD",
				PaymentType: sales.PaymentInstallment,
				ActorID:     1,
			})
			if err != nil {
				errs <- err
				return
			}
			saleIDs <- sale.ID
		}
		errs <- nil
	}()
	go func() {
		for id := range saleIDs {
			if _, err := f.service.Cancel(ctx, id, 1); err != nil {
				errs <- err
				return
			}
		}
		errs <- nil
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case <-time.After(20 * time.Second):
			t.Fatal("concurrent create and cancel did not finish")
		}
	}

	require.Equal(t, 10, f.product(t, 1).StockQuantity)
	require.InDelta(t, 0, f.customer(t, 1).TotalDebt, 0.001)
}

// staleDueRepo feeds the overdue scan a snapshot taken before a payment
// landed, the way a scan that started just ahead of the payment would.
type staleDueRepo struct {
	*store.Store
	stale []sales.Installment
}

func (r *staleDueRepo) ListDueInstallments(ctx context.Context, asOf time.Time) ([]sales.Installment, error) {
	return r.stale, nil
}

func TestOverdueScanDoesNotClobberPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sale, err := f.service.Create(ctx, sales.CreateSaleRequest{
		CustomerID:  customerID(1),
		Items:       []sales.CreateSaleItemRequest{{ProductID: 2, Quantity: 20}},
		Currency:    "USD",
		PaymentType: sales.PaymentInstallment,
		ActorID:     1,
	})
	require.NoError(t, err)

	f.clock.now = f.clock.now.AddDate(0, 4, 1)
	stale, err := f.store.ListDueInstallments(ctx, f.clock.Now())
	require.NoError(t, err)
	require.NotEmpty(t, stale)

	_, err = f.service.AddPayment(ctx, sales.AddPaymentRequest{
		SaleID:  sale.ID,
		Amount:  sale.RemainingAmount,
		ActorID: 1,
	})
	require.NoError(t, err)

	scanner := sales.NewService(
		&staleDueRepo{Store: f.store, stale: stale},
		inventory.NewAdjuster(f.store, f.clock, nil),
		customers.NewLedger(f.store, f.clock),
		currency.NewConverter(f.store),
		settings.NewProvider(f.store),
		f.clock,
		f.store,
		nil,
		nil,
	)
	marked, err := scanner.MarkOverdueInstallments(ctx)
	require.NoError(t, err)
	require.Zero(t, marked)

	detail, err := f.service.Get(ctx, sale.ID)
	require.NoError(t, err)
	for _, inst := range detail.Installments {
		require.Equal(t, sales.InstallmentPaid, inst.Status)
		require.NotNil(t, inst.PaidDate)
		require.InDelta(t, inst.DueAmount, inst.PaidAmount, 0.001)
	}
}
