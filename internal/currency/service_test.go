package currency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dijla-pos/dijla-pos/internal/shared"
)

type memoryRepo struct {
	rates map[string]*Rate
}

func newMemoryRepo(rates ...*Rate) *memoryRepo {
	r := &memoryRepo{rates: make(map[string]*Rate)}
	for _, rate := range rates {
		r.rates[rate.Code] = rate
	}
	return r
}

func (r *memoryRepo) GetRate(ctx context.Context, code string) (*Rate, error) {
	rate, ok := r.rates[code]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *rate
	return &clone, nil
}

func (r *memoryRepo) ListRates(ctx context.Context) ([]Rate, error) {
	rows := make([]Rate, 0, len(r.rates))
	for _, rate := range r.rates {
		rows = append(rows, *rate)
	}
	return rows, nil
}

func stockRates() *memoryRepo {
	now := time.Now().UTC()
	return newMemoryRepo(
		&Rate{ID: 1, Code: "USD", Name: "US Dollar", Symbol: "$", RateToBase: 1, IsActive: true, IsBase: true, UpdatedAt: now},
		&Rate{ID: 2, Code: "IQD", Name: "Iraqi Dinar", Symbol: "IQD", RateToBase: 1500, IsActive: true, UpdatedAt: now},
		&Rate{ID: 3, Code: "EUR", Name: "Euro", Symbol: "€", RateToBase: 0.9, IsActive: false, UpdatedAt: now},
	)
}

func TestRateIdentityAndCross(t *testing.T) {
	c := NewConverter(stockRates())
	ctx := context.Background()

	rate, err := c.Rate(ctx, "USD", "USD")
	require.NoError(t, err)
	require.InDelta(t, 1.0, rate, 0.0000001)

	rate, err = c.Rate(ctx, "USD", "IQD")
	require.NoError(t, err)
	require.InDelta(t, 1500.0, rate, 0.0000001)

	forward, err := c.Rate(ctx, "USD", "IQD")
	require.NoError(t, err)
	back, err := c.Rate(ctx, "IQD", "USD")
	require.NoError(t, err)
	require.InDelta(t, 1.0, forward*back, 0.001)
}

func TestRateErrors(t *testing.T) {
	c := NewConverter(stockRates())
	ctx := context.Background()

	_, err := c.Rate(ctx, "USD", "GBP")
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = c.Rate(ctx, "USD", "EUR")
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = c.Rate(ctx, "", "USD")
	require.ErrorIs(t, err, shared.ErrInvalid)
}

func TestConvert(t *testing.T) {
	c := NewConverter(stockRates())
	ctx := context.Background()

	amount, err := c.Convert(ctx, 10, "USD", "IQD")
	require.NoError(t, err)
	require.InDelta(t, 15000.0, amount, 0.001)

	amount, err = c.Convert(ctx, 1500, "IQD", "USD")
	require.NoError(t, err)
	require.InDelta(t, 1.0, amount, 0.001)

	_, err = c.Convert(ctx, -1, "USD", "IQD")
	require.ErrorIs(t, err, shared.ErrInvalid)
}

func TestRatesRelativeTo(t *testing.T) {
	c := NewConverter(stockRates())

	rates, err := c.RatesRelativeTo(context.Background(), "USD")
	require.NoError(t, err)
	require.Len(t, rates, 2)
	require.InDelta(t, 1.0, rates["USD"], 0.0000001)
	require.InDelta(t, 1500.0, rates["IQD"], 0.0000001)
}

func TestFormatterUsesSymbol(t *testing.T) {
	f := NewFormatter(stockRates())
	ctx := context.Background()

	out, err := f.Format(ctx, 1234.5, "USD")
	require.NoError(t, err)
	require.Equal(t, "$ 1,234.50", out)

	out, err = f.Format(ctx, 99, "XXX")
	require.NoError(t, err)
	require.Equal(t, "XXX 99.00", out)
}
