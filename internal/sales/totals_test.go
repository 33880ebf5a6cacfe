package sales

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dijla-pos/dijla-pos/internal/shared"
)

func TestComputeTotalsBasic(t *testing.T) {
	lines := []pricedLine{{ProductID: 1, Quantity: 2, UnitPrice: 100}}

	totals, err := ComputeTotals(lines, 0, 10)
	require.NoError(t, err)
	require.InDelta(t, 200.0, totals.Subtotal, 0.001)
	require.InDelta(t, 0.0, totals.DiscountAmount, 0.001)
	require.InDelta(t, 20.0, totals.TaxAmount, 0.001)
	require.InDelta(t, 220.0, totals.TotalAmount, 0.001)
}

func TestComputeTotalsIgnoresItemDiscounts(t *testing.T) {
	lines := []pricedLine{{ProductID: 1, Quantity: 2, UnitPrice: 100, Discount: 50}}

	totals, err := ComputeTotals(lines, 0, 10)
	require.NoError(t, err)
	require.InDelta(t, 200.0, totals.Subtotal, 0.001)
	require.InDelta(t, 20.0, totals.TaxAmount, 0.001)
	require.InDelta(t, 220.0, totals.TotalAmount, 0.001)
	// The discounted figure belongs on the item row only.
	require.InDelta(t, 150.0, lines[0].Subtotal(), 0.001)
}

func TestComputeTotalsDiscountFloorsAtZero(t *testing.T) {
	lines := []pricedLine{{ProductID: 1, Quantity: 1, UnitPrice: 50}}

	totals, err := ComputeTotals(lines, 80, 10)
	require.NoError(t, err)
	require.InDelta(t, 0.0, totals.TaxAmount, 0.001)
	require.InDelta(t, 0.0, totals.TotalAmount, 0.001)
}

func TestComputeTotalsOrderInvariant(t *testing.T) {
	a := []pricedLine{
		{ProductID: 1, Quantity: 3, UnitPrice: 19.99},
		{ProductID: 2, Quantity: 1, UnitPrice: 7.5, Discount: 0.5},
	}
	b := []pricedLine{a[1], a[0]}

	ta, err := ComputeTotals(a, 5, 15)
	require.NoError(t, err)
	tb, err := ComputeTotals(b, 5, 15)
	require.NoError(t, err)
	require.Equal(t, ta, tb)
}

func TestComputeTotalsValidation(t *testing.T) {
	lines := []pricedLine{{ProductID: 1, Quantity: 2, UnitPrice: 10}}

	_, err := ComputeTotals(nil, 0, 0)
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = ComputeTotals([]pricedLine{{ProductID: 1, Quantity: 0, UnitPrice: 10}}, 0, 0)
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = ComputeTotals([]pricedLine{{ProductID: 1, Quantity: 1, UnitPrice: 0}}, 0, 0)
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = ComputeTotals(lines, -1, 0)
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = ComputeTotals(lines, 0, 101)
	require.ErrorIs(t, err, shared.ErrInvalid)
}

func TestApplyInterest(t *testing.T) {
	totals := Totals{TotalAmount: 300, FinalAmount: 300}

	withInterest, err := totals.ApplyInterest(10, PaymentInstallment)
	require.NoError(t, err)
	require.InDelta(t, 30.0, withInterest.InterestAmount, 0.001)
	require.InDelta(t, 330.0, withInterest.FinalAmount, 0.001)

	cash, err := totals.ApplyInterest(10, PaymentCash)
	require.NoError(t, err)
	require.InDelta(t, 0.0, cash.InterestAmount, 0.001)
	require.InDelta(t, 300.0, cash.FinalAmount, 0.001)

	_, err = totals.ApplyInterest(-1, PaymentInstallment)
	require.ErrorIs(t, err, shared.ErrInvalid)
}
