package scoring

import (
	"testing"

	"github.com/nexus-trading/vigil/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTunerConfig() TunerConfig {
	cfg := DefaultTunerConfig()
	cfg.MinSamples = 2
	cfg.RecalcMins = 0 // no rate limit in tests
	return cfg
}

func winOutcome(value float64) Outcome {
	return Outcome{
		Mint:    "mint-win",
		IsWin:   true,
		PnLPct:  50,
		Signals: []signal.Signal{signal.New(signal.TypeOrganicDemand, value, 1.0, "demand")},
	}
}

func lossOutcome(value float64, rug bool) Outcome {
	return Outcome{
		Mint:    "mint-loss",
		IsRug:   rug,
		PnLPct:  -80,
		Signals: []signal.Signal{signal.New(signal.TypeOrganicDemand, value, 1.0, "demand")},
	}
}

func TestTuner_SeedsCatalogWeights(t *testing.T) {
	tu := NewTuner(testTunerConfig())
	w := tu.Weights()

	assert.Equal(t, 2.0, w[signal.TypeKnownDeployer])
	assert.Equal(t, 1.0, w[signal.TypeOrganicDemand])
	assert.Len(t, w, len(signal.AllTypes()))
}

func TestTuner_PredictiveTypeGainsWeight(t *testing.T) {
	tu := NewTuner(testTunerConfig())

	// High organic-demand values preceded wins, low values preceded losses.
	tu.RecordOutcome(winOutcome(0.8))
	tu.RecordOutcome(winOutcome(0.7))
	tu.RecordOutcome(lossOutcome(-0.4, false))

	tu.Recalculate()

	w := tu.Weights()[signal.TypeOrganicDemand]
	assert.Greater(t, w, 1.0)
	assert.LessOrEqual(t, w, 1.5) // bounded to +50% of catalog
}

func TestTuner_MisleadingTypeLosesWeight(t *testing.T) {
	tu := NewTuner(testTunerConfig())

	// The signal looked great right before rugs.
	tu.RecordOutcome(winOutcome(-0.2))
	tu.RecordOutcome(lossOutcome(0.9, true))
	tu.RecordOutcome(lossOutcome(0.8, true))

	tu.Recalculate()

	w := tu.Weights()[signal.TypeOrganicDemand]
	assert.Less(t, w, 1.0)
	assert.GreaterOrEqual(t, w, 0.5) // bounded to -50% of catalog
}

func TestTuner_MinSamplesBlocksAdjustment(t *testing.T) {
	cfg := testTunerConfig()
	cfg.MinSamples = 10
	tu := NewTuner(cfg)

	tu.RecordOutcome(winOutcome(0.9))
	tu.Recalculate()

	assert.Equal(t, 1.0, tu.Weights()[signal.TypeOrganicDemand])
}

func TestTuner_WindowEvictsOldest(t *testing.T) {
	cfg := testTunerConfig()
	cfg.WindowSize = 3
	tu := NewTuner(cfg)

	for i := 0; i < 5; i++ {
		tu.RecordOutcome(winOutcome(0.5))
	}

	assert.Equal(t, 3, tu.Stats().SampleCount)
}

func TestTuner_Reset(t *testing.T) {
	tu := NewTuner(testTunerConfig())
	tu.RecordOutcome(winOutcome(0.8))
	tu.RecordOutcome(lossOutcome(-0.5, false))
	tu.Recalculate()

	tu.Reset()

	assert.Equal(t, 1.0, tu.Weights()[signal.TypeOrganicDemand])
	assert.Equal(t, 0, tu.Stats().SampleCount)
}

func TestTuner_Stats(t *testing.T) {
	tu := NewTuner(testTunerConfig())
	tu.RecordOutcome(winOutcome(0.5))
	tu.RecordOutcome(lossOutcome(0.1, true))

	st := tu.Stats()
	require.Equal(t, 2, st.SampleCount)
	assert.InDelta(t, 0.5, st.WinRate, 1e-9)
	assert.Equal(t, 1, st.RugCount)
	assert.True(t, st.Enabled)
}
