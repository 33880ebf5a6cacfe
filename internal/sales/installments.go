package sales

import (
	"fmt"
	"sort"
	"time"

	"github.com/dijla-pos/dijla-pos/internal/shared"
)

// GenerateSchedule splits a remaining balance into count equal monthly
// shares. Each share is rounded to display precision independently; the
// schedule sum may drift from the balance by less than a cent per share,
// which payment application absorbs. Due dates fall one month apart starting
// a month after the sale date.
func GenerateSchedule(saleID int64, customerID *int64, remaining float64, count int, currency string, saleDate time.Time) ([]Installment, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: installment count must be positive", shared.ErrInvalid)
	}
	if remaining <= 0 {
		return nil, fmt.Errorf("%w: nothing remaining to schedule", shared.ErrInvalid)
	}
	share := shared.Round2(remaining / float64(count))
	schedule := make([]Installment, 0, count)
	for i := 1; i <= count; i++ {
		schedule = append(schedule, Installment{
			SaleID:          saleID,
			CustomerID:      customerID,
			Sequence:        i,
			DueAmount:       share,
			RemainingAmount: share,
			Currency:        currency,
			DueDate:         saleDate.AddDate(0, i, 0),
			Status:          InstallmentPending,
		})
	}
	return schedule, nil
}

// ApplyPayment spreads an amount across unpaid installments in sequence
// order, consuming each share's remaining amount greedily. A share whose
// remaining amount reaches zero is marked paid with the payment date. Returns
// only the installments that changed.
func ApplyPayment(installments []Installment, amount float64, paidAt time.Time) []Installment {
	ordered := outstanding(installments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	var changed []Installment
	for _, inst := range ordered {
		if amount <= 0 {
			break
		}
		take := inst.RemainingAmount
		if amount < take {
			take = amount
		}
		inst.PaidAmount = shared.Round2(inst.PaidAmount + take)
		inst.RemainingAmount = shared.Round2(inst.DueAmount - inst.PaidAmount)
		if inst.RemainingAmount <= 0 {
			inst.RemainingAmount = 0
			inst.Status = InstallmentPaid
			at := paidAt
			inst.PaidDate = &at
		}
		amount = shared.Round2(amount - take)
		changed = append(changed, inst)
	}
	return changed
}

// ReversePayment reclaims allocations in reverse sequence order until the
// reclaimed sum covers the removed amount. A share losing any allocation
// drops back to pending with its paid date cleared. Returns only the
// installments that changed.
func ReversePayment(installments []Installment, amount float64) []Installment {
	allocated := make([]Installment, 0, len(installments))
	for _, inst := range installments {
		if inst.PaidAmount > 0 && inst.Status != InstallmentCancelled {
			allocated = append(allocated, inst)
		}
	}
	sort.Slice(allocated, func(i, j int) bool { return allocated[i].Sequence > allocated[j].Sequence })

	var changed []Installment
	for _, inst := range allocated {
		if amount <= 0 {
			break
		}
		reclaim := inst.PaidAmount
		if amount < reclaim {
			reclaim = amount
		}
		inst.PaidAmount = shared.Round2(inst.PaidAmount - reclaim)
		inst.RemainingAmount = shared.Round2(inst.DueAmount - inst.PaidAmount)
		inst.Status = InstallmentPending
		inst.PaidDate = nil
		amount = shared.Round2(amount - reclaim)
		changed = append(changed, inst)
	}
	return changed
}

// CancelOutstanding flips installments that are not yet paid to cancelled.
// Returns only the installments that changed.
func CancelOutstanding(installments []Installment) []Installment {
	var changed []Installment
	for _, inst := range installments {
		if inst.Status == InstallmentPending || inst.Status == InstallmentOverdue {
			inst.Status = InstallmentCancelled
			changed = append(changed, inst)
		}
	}
	return changed
}

// RestoreCancelled flips cancelled installments back to pending. Returns only
// the installments that changed.
func RestoreCancelled(installments []Installment) []Installment {
	var changed []Installment
	for _, inst := range installments {
		if inst.Status == InstallmentCancelled {
			inst.Status = InstallmentPending
			changed = append(changed, inst)
		}
	}
	return changed
}

func outstanding(installments []Installment) []Installment {
	out := make([]Installment, 0, len(installments))
	for _, inst := range installments {
		if inst.Status == InstallmentPending || inst.Status == InstallmentOverdue {
			out = append(out, inst)
		}
	}
	return out
}
