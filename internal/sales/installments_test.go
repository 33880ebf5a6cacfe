package sales

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dijla-pos/dijla-pos/internal/shared"
)

func TestGenerateScheduleEqualShares(t *testing.T) {
	saleDate := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	schedule, err := GenerateSchedule(1, nil, 300, 3, "USD", saleDate)
	require.NoError(t, err)
	require.Len(t, schedule, 3)
	for i, inst := range schedule {
		require.Equal(t, i+1, inst.Sequence)
		require.InDelta(t, 100.0, inst.DueAmount, 0.001)
		require.Equal(t, InstallmentPending, inst.Status)
		require.Equal(t, saleDate.AddDate(0, i+1, 0), inst.DueDate)
	}
}

func TestGenerateScheduleRoundingTolerance(t *testing.T) {
	schedule, err := GenerateSchedule(1, nil, 100, 3, "USD", time.Now())
	require.NoError(t, err)

	var sum float64
	for _, inst := range schedule {
		sum += inst.DueAmount
	}
	require.LessOrEqual(t, absDiff(sum, 100), float64(len(schedule))*0.01)
}

func TestGenerateScheduleValidation(t *testing.T) {
	_, err := GenerateSchedule(1, nil, 100, 0, "USD", time.Now())
	require.ErrorIs(t, err, shared.ErrInvalid)

	_, err = GenerateSchedule(1, nil, 0, 3, "USD", time.Now())
	require.ErrorIs(t, err, shared.ErrInvalid)
}

func TestApplyPaymentGreedyInOrder(t *testing.T) {
	paidAt := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	schedule, err := GenerateSchedule(1, nil, 300, 3, "USD", paidAt)
	require.NoError(t, err)

	changed := ApplyPayment(schedule, 150, paidAt)
	require.Len(t, changed, 2)

	require.Equal(t, 1, changed[0].Sequence)
	require.Equal(t, InstallmentPaid, changed[0].Status)
	require.NotNil(t, changed[0].PaidDate)
	require.InDelta(t, 0.0, changed[0].RemainingAmount, 0.001)

	require.Equal(t, 2, changed[1].Sequence)
	require.Equal(t, InstallmentPending, changed[1].Status)
	require.Nil(t, changed[1].PaidDate)
	require.InDelta(t, 50.0, changed[1].PaidAmount, 0.001)
	require.InDelta(t, 50.0, changed[1].RemainingAmount, 0.001)
}

func TestApplyPaymentSkipsPaidShares(t *testing.T) {
	paidAt := time.Now().UTC()
	schedule, _ := GenerateSchedule(1, nil, 200, 2, "USD", paidAt)
	schedule[0].Status = InstallmentPaid
	schedule[0].PaidAmount = 100
	schedule[0].RemainingAmount = 0

	changed := ApplyPayment(schedule, 100, paidAt)
	require.Len(t, changed, 1)
	require.Equal(t, 2, changed[0].Sequence)
	require.Equal(t, InstallmentPaid, changed[0].Status)
}

func TestApplyPaymentCoversOverdueShares(t *testing.T) {
	paidAt := time.Now().UTC()
	schedule, _ := GenerateSchedule(1, nil, 200, 2, "USD", paidAt)
	schedule[0].Status = InstallmentOverdue

	changed := ApplyPayment(schedule, 100, paidAt)
	require.Len(t, changed, 1)
	require.Equal(t, 1, changed[0].Sequence)
	require.Equal(t, InstallmentPaid, changed[0].Status)
}

func TestReversePaymentReclaimsLatestFirst(t *testing.T) {
	paidAt := time.Now().UTC()
	schedule, _ := GenerateSchedule(1, nil, 300, 3, "USD", paidAt)
	for i := range schedule {
		schedule[i].Status = InstallmentPaid
		schedule[i].PaidAmount = schedule[i].DueAmount
		schedule[i].RemainingAmount = 0
		schedule[i].PaidDate = &paidAt
	}

	changed := ReversePayment(schedule, 150)
	require.Len(t, changed, 2)

	require.Equal(t, 3, changed[0].Sequence)
	require.Equal(t, InstallmentPending, changed[0].Status)
	require.Nil(t, changed[0].PaidDate)
	require.InDelta(t, 100.0, changed[0].RemainingAmount, 0.001)

	require.Equal(t, 2, changed[1].Sequence)
	require.InDelta(t, 50.0, changed[1].PaidAmount, 0.001)
	require.InDelta(t, 50.0, changed[1].RemainingAmount, 0.001)
}

func TestCancelAndRestoreOutstanding(t *testing.T) {
	paidAt := time.Now().UTC()
	schedule, _ := GenerateSchedule(1, nil, 300, 3, "USD", paidAt)
	schedule[0].Status = InstallmentPaid
	schedule[1].Status = InstallmentOverdue

	cancelled := CancelOutstanding(schedule)
	require.Len(t, cancelled, 2)
	for _, inst := range cancelled {
		require.Equal(t, InstallmentCancelled, inst.Status)
	}

	restored := RestoreCancelled(cancelled)
	require.Len(t, restored, 2)
	for _, inst := range restored {
		require.Equal(t, InstallmentPending, inst.Status)
	}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
