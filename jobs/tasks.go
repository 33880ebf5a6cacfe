// Package jobs runs the ledger's background work on Asynq: the periodic scan
// that flips past-due installments to overdue, and the nightly warmup that
// precomputes the default sales report.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dijla-pos/dijla-pos/internal/sales"
	"github.com/dijla-pos/dijla-pos/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeOverdueScan marks past-due pending installments overdue.
	TaskTypeOverdueScan = "installments:overdue_scan"
	// TaskTypeReportWarmup precomputes the default sales report into the cache.
	TaskTypeReportWarmup = "reports:warmup"
)

// LedgerPort is the slice of the sale ledger the jobs call.
type LedgerPort interface {
	MarkOverdueInstallments(ctx context.Context) (int, error)
	Report(ctx context.Context, filter sales.ReportFilter) (*sales.Report, error)
}

// ReportWarmupPayload bounds the warmed-up report window in days back from now.
type ReportWarmupPayload struct {
	DaysBack int `json:"days_back"`
}

// NewOverdueScanTask constructs the overdue scan task.
func NewOverdueScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeOverdueScan, nil)
}

// NewReportWarmupTask constructs the report warmup task.
func NewReportWarmupTask(payload ReportWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReportWarmup, data), nil
}

// OverdueScanHandler processes TaskTypeOverdueScan tasks.
type OverdueScanHandler struct {
	Ledger LedgerPort
	Logger *slog.Logger
}

// Handle runs one overdue scan.
func (h *OverdueScanHandler) Handle(ctx context.Context, _ *asynq.Task) error {
	marked, err := h.Ledger.MarkOverdueInstallments(ctx)
	if err != nil {
		return err
	}
	h.Logger.Info("overdue installment scan finished", slog.Int("marked", marked))
	return nil
}

// ReportWarmupHandler processes TaskTypeReportWarmup tasks.
type ReportWarmupHandler struct {
	Ledger LedgerPort
	Logger *slog.Logger
	Clock  shared.Clock
}

// Handle computes the report for the requested window so the first dashboard
// request of the day hits a warm cache.
func (h *ReportWarmupHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReportWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.DaysBack <= 0 {
		payload.DaysBack = 30
	}
	clock := h.Clock
	if clock == nil {
		clock = shared.SystemClock()
	}
	from := clock.Now().AddDate(0, 0, -payload.DaysBack)
	report, err := h.Ledger.Report(ctx, sales.ReportFilter{From: &from})
	if err != nil {
		return err
	}
	h.Logger.Info("report warmup finished",
		slog.Int("sales", report.SalesCount),
		slog.Int("days_back", payload.DaysBack))
	return nil
}
