package sales

import (
	"fmt"
	"math"

	"github.com/dijla-pos/dijla-pos/internal/shared"
)

// Totals is the monetary breakdown of a sale before payments.
type Totals struct {
	Subtotal       float64
	DiscountAmount float64
	TaxAmount      float64
	TotalAmount    float64
	InterestAmount float64
	FinalAmount    float64
}

// pricedLine is a sale line after product prices have been resolved.
type pricedLine struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   float64
	CostPrice   float64
	Discount    float64
}

// Subtotal is the line's contribution to the sale subtotal.
func (l pricedLine) Subtotal() float64 {
	return shared.Round2(float64(l.Quantity)*l.UnitPrice - l.Discount)
}

// ComputeTotals derives the sale totals from priced lines. The subtotal is
// the undiscounted quantity times unit price of every line; per-item
// discounts live on the stored item rows and do not move the sale totals.
// The sale-level discount applies to the subtotal and is floored at zero;
// tax applies after discount. Every stage is rounded to display precision so
// stored values match receipts.
func ComputeTotals(lines []pricedLine, discount, taxRate float64) (Totals, error) {
	if len(lines) == 0 {
		return Totals{}, fmt.Errorf("%w: at least one item is required", shared.ErrInvalid)
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return Totals{}, fmt.Errorf("%w: quantity must be positive for product %d", shared.ErrInvalid, line.ProductID)
		}
		if line.UnitPrice <= 0 {
			return Totals{}, fmt.Errorf("%w: unit price must be positive for product %d", shared.ErrInvalid, line.ProductID)
		}
		if line.Discount < 0 {
			return Totals{}, fmt.Errorf("%w: item discount must be non-negative for product %d", shared.ErrInvalid, line.ProductID)
		}
	}
	if discount < 0 {
		return Totals{}, fmt.Errorf("%w: discount must be non-negative", shared.ErrInvalid)
	}
	if taxRate < 0 || taxRate > 100 {
		return Totals{}, fmt.Errorf("%w: tax rate must be between 0 and 100", shared.ErrInvalid)
	}

	var subtotal float64
	for _, line := range lines {
		subtotal += float64(line.Quantity) * line.UnitPrice
	}
	subtotal = shared.Round2(subtotal)

	afterDiscount := shared.Round2(math.Max(0, subtotal-discount))
	tax := shared.Round2(afterDiscount * taxRate / 100)
	total := shared.Round2(afterDiscount + tax)

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: shared.Round2(discount),
		TaxAmount:      tax,
		TotalAmount:    total,
		FinalAmount:    total,
	}, nil
}

// ApplyInterest adds installment interest on top of the total. Interest is a
// flat percentage of the post-tax total, charged only on installment-bearing
// sales.
func (t Totals) ApplyInterest(rate float64, paymentType PaymentType) (Totals, error) {
	if rate < 0 {
		return Totals{}, fmt.Errorf("%w: interest rate must be non-negative", shared.ErrInvalid)
	}
	if rate == 0 || paymentType == PaymentCash {
		t.InterestAmount = 0
		t.FinalAmount = t.TotalAmount
		return t, nil
	}
	t.InterestAmount = shared.Round2(t.TotalAmount * rate / 100)
	t.FinalAmount = shared.Round2(t.TotalAmount + t.InterestAmount)
	return t, nil
}
