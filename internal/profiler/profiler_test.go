package profiler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexus-trading/vigil/internal/signal"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	trades map[string][]signal.TradeRecord
	calls  int
	err    error
}

func (f *fakeSource) WalletTrades(ctx context.Context, address string, limit int) ([]signal.TradeRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.trades[address], nil
}

func leg(mint string, isBuy bool, sol float64, at time.Time) signal.TradeRecord {
	return signal.TradeRecord{Mint: mint, IsBuy: isBuy, AmountSOL: sol, AmountTokens: 1000, Timestamp: at}
}

func TestProfileFromTrades_FIFOMatching(t *testing.T) {
	base := time.Now().Add(-1 * time.Hour)
	trades := []signal.TradeRecord{
		leg("mintA", true, 1.0, base),
		leg("mintA", true, 2.0, base.Add(60*time.Second)),
		leg("mintA", false, 1.5, base.Add(120*time.Second)),
		leg("mintA", false, 1.0, base.Add(180*time.Second)),
	}

	p := ProfileFromTrades("w1", trades, DefaultAlphaConfig())

	require.Equal(t, 2, p.TotalTrades)
	assert.Equal(t, 0, p.OpenPositions)

	// first sell pairs with the oldest buy: 1.5 - 1.0 = +0.5
	first := p.CompletedTrades[0]
	assert.True(t, first.ProfitSOL.Equal(decimal.NewFromFloat(0.5)), "got %s", first.ProfitSOL)
	assert.InDelta(t, 0.5, first.RMultiple, 1e-9)
	assert.InDelta(t, 50.0, first.ProfitPct, 1e-9)
	assert.Equal(t, int64(120), first.HoldSecs)

	// second sell pairs with the later buy: 1.0 - 2.0 = -1.0
	second := p.CompletedTrades[1]
	assert.True(t, second.ProfitSOL.Equal(decimal.NewFromInt(-1)), "got %s", second.ProfitSOL)
	assert.InDelta(t, -0.5, second.RMultiple, 1e-9)

	assert.Equal(t, 1, p.WinCount)
	assert.Equal(t, 1, p.LossCount)
	assert.InDelta(t, 0.5, p.WinRate, 1e-9)
	assert.True(t, p.TotalRealizedProfitSOL.Equal(decimal.NewFromFloat(-0.5)))
	assert.True(t, p.TotalVolumeSOL.Equal(decimal.NewFromFloat(5.5)))
	assert.True(t, p.AvgWinSOL.Equal(decimal.NewFromFloat(0.5)))
	assert.True(t, p.AvgLossSOL.Equal(decimal.NewFromInt(1)))
	assert.InDelta(t, 0.0, p.AvgRMultiple, 1e-9)
	assert.Equal(t, int64(120), p.AvgHoldSecs)
}

func TestProfileFromTrades_OpenPositionsCounted(t *testing.T) {
	base := time.Now().Add(-1 * time.Hour)
	trades := []signal.TradeRecord{
		leg("mintA", true, 1.0, base),
		leg("mintA", true, 1.0, base.Add(10*time.Second)),
		leg("mintA", true, 1.0, base.Add(20*time.Second)),
		leg("mintA", false, 2.0, base.Add(30*time.Second)),
	}

	p := ProfileFromTrades("w1", trades, DefaultAlphaConfig())

	assert.Equal(t, 1, p.TotalTrades)
	assert.Equal(t, 2, p.OpenPositions)
}

func TestProfileFromTrades_SellWithoutBuyIgnored(t *testing.T) {
	base := time.Now().Add(-1 * time.Hour)
	trades := []signal.TradeRecord{
		leg("mintA", false, 2.0, base),
	}

	p := ProfileFromTrades("w1", trades, DefaultAlphaConfig())

	assert.Zero(t, p.TotalTrades)
	assert.Zero(t, p.OpenPositions)
	assert.Equal(t, CategoryUnknown, p.Alpha.Category)
}

func TestProfileFromTrades_TokensDoNotCrossMatch(t *testing.T) {
	base := time.Now().Add(-1 * time.Hour)
	trades := []signal.TradeRecord{
		leg("mintA", true, 1.0, base),
		leg("mintB", false, 2.0, base.Add(10*time.Second)), // no mintB buy to pair with
		leg("mintA", false, 3.0, base.Add(20*time.Second)),
	}

	p := ProfileFromTrades("w1", trades, DefaultAlphaConfig())

	require.Equal(t, 1, p.TotalTrades)
	assert.Equal(t, "mintA", p.CompletedTrades[0].Mint)
	assert.True(t, p.CompletedTrades[0].ProfitSOL.Equal(decimal.NewFromInt(2)))
}

func TestProfileFromTrades_HoldTimeBuckets(t *testing.T) {
	base := time.Now().Add(-2 * time.Hour)
	trades := []signal.TradeRecord{
		leg("a", true, 1.0, base),
		leg("a", false, 1.1, base.Add(60*time.Second)), // quick flip, pre-grad, optimal
		leg("b", true, 1.0, base),
		leg("b", false, 1.1, base.Add(400*time.Second)), // pre-grad only
		leg("c", true, 1.0, base),
		leg("c", false, 1.1, base.Add(700*time.Second)), // neither
	}

	p := ProfileFromTrades("w1", trades, DefaultAlphaConfig())

	require.Equal(t, 3, p.TotalTrades)
	assert.Equal(t, 1, p.QuickFlipCount)
	assert.Equal(t, 2, p.PreGraduationTrades)
	assert.InDelta(t, 2.0/3.0, p.PreGraduationRatio, 1e-9)
}

func TestProfileFromTrades_Empty(t *testing.T) {
	p := ProfileFromTrades("w1", nil, DefaultAlphaConfig())

	assert.Zero(t, p.TotalTrades)
	assert.Zero(t, p.WinRate)
	assert.Equal(t, CategoryUnknown, p.Alpha.Category)
	assert.True(t, p.TotalRealizedProfitSOL.IsZero())
}

func TestProfile_Staleness(t *testing.T) {
	p := &Profile{FetchedAt: time.Now().Add(-2 * time.Hour)}
	assert.True(t, p.IsStale(1*time.Hour))
	assert.False(t, p.IsStale(3*time.Hour))
}

func TestProfiler_GetOrComputeCaches(t *testing.T) {
	base := time.Now().Add(-30 * time.Minute)
	src := &fakeSource{trades: map[string][]signal.TradeRecord{
		"w1": {
			leg("mintA", true, 1.0, base),
			leg("mintA", false, 1.5, base.Add(90*time.Second)),
		},
	}}
	prof := New(src, DefaultConfig())

	first, err := prof.GetOrCompute(context.Background(), "w1")
	require.NoError(t, err)
	second, err := prof.GetOrCompute(context.Background(), "w1")
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Same(t, first, second)

	stats := prof.Stats()
	assert.Equal(t, int64(1), stats.Computes)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, 1, stats.Cached)
}

func TestProfiler_SourceErrorPropagates(t *testing.T) {
	src := &fakeSource{err: errors.New("rpc down")}
	prof := New(src, DefaultConfig())

	_, err := prof.GetOrCompute(context.Background(), "w1")
	assert.ErrorContains(t, err, "rpc down")
	assert.Zero(t, prof.Size())
}

func TestProfiler_CategoryOverrideSticks(t *testing.T) {
	base := time.Now().Add(-30 * time.Minute)
	src := &fakeSource{trades: map[string][]signal.TradeRecord{
		"w1": {
			leg("mintA", true, 1.0, base),
			leg("mintA", false, 2.0, base.Add(90*time.Second)),
		},
	}}
	prof := New(src, DefaultConfig())

	// flagged before the first compute: the override wins over trade data
	prof.MarkBundled("w1")
	p, err := prof.GetOrCompute(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, CategoryBundledTeam, p.Alpha.Category)
	assert.True(t, p.ShouldAvoid())

	// flagging after compute patches the cached profile in place
	prof.MarkMevBot("w1")
	cached, ok := prof.Cached("w1")
	require.True(t, ok)
	assert.Equal(t, CategoryMevBot, cached.Alpha.Category)
}

func TestProfiler_InvalidateDropsProfileAndOverride(t *testing.T) {
	src := &fakeSource{trades: map[string][]signal.TradeRecord{}}
	prof := New(src, DefaultConfig())

	prof.MarkBundled("w1")
	_, err := prof.GetOrCompute(context.Background(), "w1")
	require.NoError(t, err)
	prof.Invalidate("w1")

	assert.Zero(t, prof.Size())
	p, err := prof.GetOrCompute(context.Background(), "w1")
	require.NoError(t, err)
	assert.NotEqual(t, CategoryBundledTeam, p.Alpha.Category)
}
