package sales

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *ReportCache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReportCache(client, time.Minute)
}

func TestReportCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "report", "2024-01-01", "2024-01-31", "")
	require.NoError(t, err)

	var miss Report
	hit, err := cache.FetchJSON(ctx, key, &miss)
	require.NoError(t, err)
	require.False(t, hit)

	stored := Report{SalesCount: 7, TotalSalesUSD: 123.45}
	require.NoError(t, cache.StoreJSON(ctx, key, stored))

	var got Report
	hit, err = cache.FetchJSON(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 7, got.SalesCount)
	require.InDelta(t, 123.45, got.TotalSalesUSD, 0.001)
}

func TestReportCacheBumpRetiresKeys(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "report", "2024-01-01", "2024-01-31", "")
	require.NoError(t, err)
	require.NoError(t, cache.StoreJSON(ctx, before, Report{SalesCount: 1}))

	require.NoError(t, cache.Bump(ctx))

	after, err := cache.BuildKey(ctx, "report", "2024-01-01", "2024-01-31", "")
	require.NoError(t, err)
	require.NotEqual(t, before, after)

	var got Report
	hit, err := cache.FetchJSON(ctx, after, &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestReportCacheNilClientIsNoop(t *testing.T) {
	var cache *ReportCache
	ctx := context.Background()

	require.NoError(t, cache.Bump(ctx))
	hit, err := cache.FetchJSON(ctx, "any", &Report{})
	require.NoError(t, err)
	require.False(t, hit)
}
