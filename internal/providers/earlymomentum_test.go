package providers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/vigil/internal/signal"
)

func emContext(mint string, curvePct float64) *signal.TokenContext {
	return &signal.TokenContext{
		Mint:            mint,
		Name:            "Token",
		Symbol:          "TKN",
		Creator:         "creator",
		BondingCurvePct: curvePct,
	}
}

func TestEarlyMomentum_DisabledEmitsNothing(t *testing.T) {
	cfg := DefaultEarlyMomentumConfig()
	cfg.Enabled = false
	p := NewEarlyMomentum(cfg)

	sigs := p.TokenSignals(context.Background(), emContext("m", 5.0))
	assert.Empty(t, sigs)
}

func TestEarlyMomentum_NoHistoryAllNeutral(t *testing.T) {
	p := NewEarlyMomentum(DefaultEarlyMomentumConfig())

	sigs := p.TokenSignals(context.Background(), emContext("m", 0))
	require.Len(t, sigs, 5)

	for _, s := range sigs {
		assert.Zero(t, s.Value, "signal %s should be neutral with no history", s.Type)
	}
	assert.Contains(t, findByType(t, sigs, signal.TypeVolumeSpike).Reason, "No trade history")
	assert.Contains(t, findByType(t, sigs, signal.TypeFirstTradesQuality).Reason, "No trades yet")
	assert.Contains(t, findByType(t, sigs, signal.TypeBondingCurvePosition).Reason, "not available")
}

func TestEarlyMomentum_VolumeSpike(t *testing.T) {
	p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
	p.SetBaselineVolume("m", 1.0)
	p.RecordTrade("m", true, 2.0, "t1", "creator")
	p.RecordTrade("m", true, 2.0, "t2", "creator")

	sigs := p.TokenSignals(context.Background(), emContext("m", 0))

	// 4 SOL against a 1 SOL baseline: ratio 4x, value (4-1)/5.
	spike := findByType(t, sigs, signal.TypeVolumeSpike)
	assert.InDelta(t, 0.6, spike.Value, 1e-9)
	assert.InDelta(t, 0.8, spike.Confidence, 1e-9)
	assert.Contains(t, spike.Reason, "Volume spike: 4.0x baseline")
}

func TestEarlyMomentum_NormalVolume(t *testing.T) {
	p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
	p.SetBaselineVolume("m", 10.0)
	p.RecordTrade("m", true, 2.0, "t1", "creator")

	sigs := p.TokenSignals(context.Background(), emContext("m", 0))

	spike := findByType(t, sigs, signal.TypeVolumeSpike)
	assert.Zero(t, spike.Value)
	assert.Contains(t, spike.Reason, "Normal volume: 0.2x baseline")
}

func TestEarlyMomentum_NoBaselineAssumesDouble(t *testing.T) {
	p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
	p.RecordTrade("m", true, 3.0, "t1", "creator")

	sigs := p.TokenSignals(context.Background(), emContext("m", 0))

	// Without a stored baseline the recent window counts as twice normal,
	// which never clears the 3x spike threshold.
	spike := findByType(t, sigs, signal.TypeVolumeSpike)
	assert.Zero(t, spike.Value)
	assert.Contains(t, spike.Reason, "Normal volume: 2.0x baseline")
}

func TestEarlyMomentum_Accumulation(t *testing.T) {
	p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
	for i := 0; i < 6; i++ {
		p.RecordTrade("m", true, 1.0, fmt.Sprintf("buyer%d", i), "creator")
	}
	p.RecordTrade("m", false, 0.5, "seller0", "creator")

	sigs := p.TokenSignals(context.Background(), emContext("m", 0))

	// buyer ratio 6.0, volume ratio 12.0, combined 9.0 -> value (9-1)/10.
	acc := findByType(t, sigs, signal.TypeAccumulationPattern)
	assert.InDelta(t, 0.8, acc.Value, 1e-9)
	assert.InDelta(t, 0.85, acc.Confidence, 1e-9)
	assert.Contains(t, acc.Reason, "Accumulation: 9.0 buy/sell ratio, 6 buyers vs 1 sellers")
}

func TestEarlyMomentum_Distribution(t *testing.T) {
	p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
	for i := 0; i < 5; i++ {
		p.RecordTrade("m", true, 0.1, fmt.Sprintf("buyer%d", i), "creator")
		p.RecordTrade("m", false, 1.0, fmt.Sprintf("seller%d", i), "creator")
	}

	sigs := p.TokenSignals(context.Background(), emContext("m", 0))

	acc := findByType(t, sigs, signal.TypeAccumulationPattern)
	assert.InDelta(t, -0.3, acc.Value, 1e-9)
	assert.Contains(t, acc.Reason, "Distribution")
}

func TestEarlyMomentum_AccumulationNeedsBuyers(t *testing.T) {
	p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
	for i := 0; i < 3; i++ {
		p.RecordTrade("m", true, 5.0, fmt.Sprintf("buyer%d", i), "creator")
	}

	sigs := p.TokenSignals(context.Background(), emContext("m", 0))

	acc := findByType(t, sigs, signal.TypeAccumulationPattern)
	assert.Zero(t, acc.Value)
	assert.Contains(t, acc.Reason, "Only 3 unique buyers (need 5)")
}

func TestEarlyMomentum_FirstTrades(t *testing.T) {
	t.Run("strong launch", func(t *testing.T) {
		p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
		p.RecordTrade("m", true, 1.5, "whale1", "creator")
		p.RecordTrade("m", true, 1.5, "whale2", "creator")
		for i := 0; i < 6; i++ {
			p.RecordTrade("m", true, 0.2, fmt.Sprintf("buyer%d", i), "creator")
		}
		p.RecordTrade("m", false, 0.1, "seller1", "creator")
		p.RecordTrade("m", false, 0.1, "seller2", "creator")

		sigs := p.TokenSignals(context.Background(), emContext("m", 0))
		ft := findByType(t, sigs, signal.TypeFirstTradesQuality)
		assert.InDelta(t, 0.8, ft.Value, 1e-9)
		assert.Contains(t, ft.Reason, "Strong launch: 2 whale buys, 80% buys in first 10 trades")
	})

	t.Run("good launch without whales", func(t *testing.T) {
		p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
		for i := 0; i < 9; i++ {
			p.RecordTrade("m", true, 0.1, fmt.Sprintf("buyer%d", i), "creator")
		}
		p.RecordTrade("m", false, 0.1, "seller", "creator")

		sigs := p.TokenSignals(context.Background(), emContext("m", 0))
		ft := findByType(t, sigs, signal.TypeFirstTradesQuality)
		assert.InDelta(t, 0.5, ft.Value, 1e-9)
		assert.Contains(t, ft.Reason, "Good launch")
	})

	t.Run("weak launch", func(t *testing.T) {
		p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
		p.RecordTrade("m", true, 0.1, "buyer", "creator")
		for i := 0; i < 9; i++ {
			p.RecordTrade("m", false, 0.5, fmt.Sprintf("seller%d", i), "creator")
		}

		sigs := p.TokenSignals(context.Background(), emContext("m", 0))
		ft := findByType(t, sigs, signal.TypeFirstTradesQuality)
		assert.InDelta(t, -0.5, ft.Value, 1e-9)
		assert.Contains(t, ft.Reason, "Weak launch: only 10% buys")
	})
}

func TestEarlyMomentum_BondingCurveBands(t *testing.T) {
	p := NewEarlyMomentum(DefaultEarlyMomentumConfig())

	cases := []struct {
		name      string
		pct       float64
		wantValue float64
		wantWords string
	}{
		{"very early", 5.0, 0.5, "Very early entry"}, // bonus 0.2 + 0.3
		{"early", 15.0, 0.2, "Early entry"},
		{"normal", 25.0, 0.0, "Normal entry"},
		{"late", 35.0, -0.3, "Late entry"},
		{"unknown", 0.0, 0.0, "not available"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sigs := p.TokenSignals(context.Background(), emContext("m", tc.pct))
			curve := findByType(t, sigs, signal.TypeBondingCurvePosition)
			assert.InDelta(t, tc.wantValue, curve.Value, 1e-9)
			assert.Contains(t, curve.Reason, tc.wantWords)
		})
	}
}

func TestEarlyMomentum_CreatorBuyback(t *testing.T) {
	p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
	p.RecordTrade("m", true, 2.5, "dev", "dev")

	sigs := p.TokenSignals(context.Background(), emContext("m", 0))
	bb := findByType(t, sigs, signal.TypeCreatorBuyback)
	assert.InDelta(t, 0.6, bb.Value, 1e-9)
	assert.InDelta(t, 0.85, bb.Confidence, 1e-9)
}

func TestEarlyMomentum_CreatorSellIsNotBuyback(t *testing.T) {
	p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
	p.RecordTrade("m", false, 2.5, "dev", "dev")

	sigs := p.TokenSignals(context.Background(), emContext("m", 0))
	bb := findByType(t, sigs, signal.TypeCreatorBuyback)
	assert.Zero(t, bb.Value)
	assert.Contains(t, bb.Reason, "No creator buyback")
}

func TestEarlyMomentum_RingDropsOldestTrades(t *testing.T) {
	p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
	for i := 0; i < 100; i++ {
		p.RecordTrade("m", false, 0.1, fmt.Sprintf("s%d", i), "creator")
	}
	for i := 0; i < 100; i++ {
		p.RecordTrade("m", true, 0.1, fmt.Sprintf("b%d", i), "creator")
	}

	p.mu.RLock()
	ringLen := len(p.activity["m"].trades)
	p.mu.RUnlock()
	assert.Equal(t, maxTradeHistory, ringLen)

	// The opening sells were evicted, so the first-trades window now reads
	// as an all-buy launch.
	sigs := p.TokenSignals(context.Background(), emContext("m", 0))
	ft := findByType(t, sigs, signal.TypeFirstTradesQuality)
	assert.InDelta(t, 0.5, ft.Value, 1e-9)
}

func TestEarlyMomentum_SubSignalFlags(t *testing.T) {
	cfg := DefaultEarlyMomentumConfig()
	cfg.VolumeSpikeEnabled = false
	cfg.CreatorBuyingBack = false
	p := NewEarlyMomentum(cfg)

	sigs := p.TokenSignals(context.Background(), emContext("m", 0))
	require.Len(t, sigs, 3)
	for _, s := range sigs {
		assert.NotEqual(t, signal.TypeVolumeSpike, s.Type)
		assert.NotEqual(t, signal.TypeCreatorBuyback, s.Type)
	}
}

func TestEarlyMomentum_CleanupOldEntries(t *testing.T) {
	p := NewEarlyMomentum(DefaultEarlyMomentumConfig())
	p.RecordTrade("old", true, 1.0, "t1", "creator")
	p.RecordTrade("new", true, 1.0, "t2", "creator")
	p.SetBaselineVolume("old", 5.0)

	p.mu.Lock()
	p.activity["old"].firstTrade = time.Now().Add(-2 * time.Hour)
	p.mu.Unlock()

	removed := p.CleanupOldEntries(time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, p.Tracked())

	p.mu.RLock()
	_, oldBaseline := p.baselines["old"]
	p.mu.RUnlock()
	assert.False(t, oldBaseline, "baseline for removed mint should be dropped")
}
