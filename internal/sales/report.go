package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/dijla-pos/dijla-pos/internal/shared"
)

// Report aggregates completed and pending sales inside an inclusive date
// range into per-currency buckets, with the USD and IQD buckets flattened for
// the dashboard. Results are served from the versioned cache when one is
// configured; any ledger mutation invalidates every cached report at once.
func (s *Service) Report(ctx context.Context, filter ReportFilter) (*Report, error) {
	from, to := s.reportRange(filter)

	key, err := s.reportCacheKey(ctx, filter, from, to)
	if err == nil && key != "" {
		var cached Report
		if hit, err := s.cache.FetchJSON(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	report, err := s.buildReport(ctx, filter, from, to)
	if err != nil {
		return nil, err
	}

	if key != "" {
		if err := s.cache.StoreJSON(ctx, key, report); err != nil {
			s.logger.Warn("report cache store failed", "error", err)
		}
	}
	return report, nil
}

func (s *Service) buildReport(ctx context.Context, filter ReportFilter, from, to time.Time) (*Report, error) {
	rows, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}

	var sales []Sale
	saleIDs := make([]int64, 0, len(rows))
	for _, sale := range rows {
		if sale.Status != StatusPending && sale.Status != StatusCompleted {
			continue
		}
		if filter.Currency != "" && sale.Currency != filter.Currency {
			continue
		}
		sales = append(sales, sale)
		saleIDs = append(saleIDs, sale.ID)
	}

	profitBySale := make(map[int64]float64, len(saleIDs))
	if len(saleIDs) > 0 {
		items, err := s.repo.ListItemsForSales(ctx, saleIDs)
		if err != nil {
			return nil, fmt.Errorf("list sale items: %w", err)
		}
		for _, item := range items {
			profitBySale[item.SaleID] += (item.UnitPrice - item.CostPrice) * float64(item.Quantity)
		}
	}

	buckets := make(map[string]CurrencyBucket)
	for _, sale := range sales {
		bucket := buckets[sale.Currency]
		bucket.Currency = sale.Currency
		bucket.SalesCount++
		bucket.TotalSales = shared.Round2(bucket.TotalSales + sale.FinalAmount)
		bucket.TotalPaid = shared.Round2(bucket.TotalPaid + sale.PaidAmount)
		bucket.TotalRemaining = shared.Round2(bucket.TotalRemaining + sale.RemainingAmount)
		bucket.TotalProfit = shared.Round2(bucket.TotalProfit + profitBySale[sale.ID])
		switch sale.PaymentType {
		case PaymentCash:
			bucket.CashSales++
		case PaymentInstallment:
			bucket.InstallmentSales++
		case PaymentMixed:
			bucket.MixedSales++
		}
		if sale.Status == StatusCompleted {
			bucket.CompletedSales++
		} else {
			bucket.PendingSales++
		}
		buckets[sale.Currency] = bucket
	}

	overdue, err := s.repo.CountOverdueInstallments(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("count overdue installments: %w", err)
	}

	usd := buckets["USD"]
	iqd := buckets["IQD"]
	return &Report{
		From:                from,
		To:                  to,
		Currencies:          buckets,
		TotalSalesUSD:       usd.TotalSales,
		TotalPaidUSD:        usd.TotalPaid,
		TotalRemainingUSD:   usd.TotalRemaining,
		TotalProfitUSD:      usd.TotalProfit,
		TotalSalesIQD:       iqd.TotalSales,
		TotalPaidIQD:        iqd.TotalPaid,
		TotalRemainingIQD:   iqd.TotalRemaining,
		TotalProfitIQD:      iqd.TotalProfit,
		SalesCount:          len(sales),
		OverdueInstallments: overdue,
	}, nil
}

// reportRange normalizes the filter to whole days. An open start reaches back
// thirty days; an open end runs through today.
func (s *Service) reportRange(filter ReportFilter) (time.Time, time.Time) {
	now := s.clock.Now()
	to := now
	if filter.To != nil {
		to = *filter.To
	}
	from := to.AddDate(0, 0, -30)
	if filter.From != nil {
		from = *filter.From
	}
	from = dayStart(from)
	to = dayStart(to).AddDate(0, 0, 1).Add(-time.Nanosecond)
	return from, to
}

func (s *Service) reportCacheKey(ctx context.Context, filter ReportFilter, from, to time.Time) (string, error) {
	if s.cache == nil {
		return "", fmt.Errorf("no cache")
	}
	return s.cache.BuildKey(ctx,
		"report",
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
		filter.Currency,
	)
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
