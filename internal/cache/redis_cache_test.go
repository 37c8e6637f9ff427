package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"retailledger/internal/domain"
)

func TestNoopCacheNeverHits(t *testing.T) {
	var c ReportCache = NoopReportCache{}
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, 1, &domain.SessionReport{SaleCount: 3}, time.Minute))
	got, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, got)
	require.NoError(t, c.Delete(ctx, 1))
}

func TestKeyIsNamespaced(t *testing.T) {
	require.Equal(t, "retailledger:session-report:42", key(42))
}

func TestRedisReportCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("RETAILLEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set RETAILLEDGER_TEST_REDIS_ADDR to run redis cache test")
	}
	ctx := context.Background()
	c := NewRedisReportCache(NewRedisClient(addr, "", 0))
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	id := time.Now().UnixNano()
	t.Cleanup(func() { _ = c.Delete(ctx, id) })

	_, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	want := &domain.SessionReport{
		Session:      domain.CashSession{ID: id, OpeningFloat: decimal.RequireFromString("50.00"), SalesTotal: decimal.RequireFromString("12.40")},
		SaleCount:    2,
		FinalBalance: decimal.RequireFromString("62.40"),
	}
	require.NoError(t, c.Set(ctx, id, want, time.Minute))

	got, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, got.SaleCount)
	require.True(t, got.FinalBalance.Equal(want.FinalBalance))

	require.NoError(t, c.Delete(ctx, id))
	_, ok, err = c.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}
