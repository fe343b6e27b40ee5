package profiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeAlpha_EliteClassification(t *testing.T) {
	cfg := DefaultAlphaConfig()
	score := ComputeAlpha(
		0.70, // win rate
		2.5,  // R-multiple
		0.3,  // pre-graduation ratio
		0.5,  // partial sell ratio
		0.7,  // optimal hold ratio
		50,   // trades
		3,    // days since last trade
		cfg,
	)

	assert.Equal(t, CategoryTrueSignal, score.Category)
	assert.True(t, score.IsElite())
	assert.Greater(t, score.Value, 0.0)
	assert.InDelta(t, 0.232, score.Value, 0.01)
}

func TestComputeAlpha_UnprofitableClassification(t *testing.T) {
	cfg := DefaultAlphaConfig()
	score := ComputeAlpha(0.30, 0.5, 0.0, 0.0, 0.3, 20, 2, cfg)

	assert.Equal(t, CategoryUnprofitable, score.Category)
	assert.False(t, score.IsElite())
	assert.Less(t, score.Value, 0.0)
}

func TestComputeAlpha_UnknownBelowMinTrades(t *testing.T) {
	cfg := DefaultAlphaConfig()
	score := ComputeAlpha(1.0, 5.0, 0.5, 0.5, 0.5, 4, 0, cfg)
	assert.Equal(t, CategoryUnknown, score.Category)
}

func TestComputeAlpha_NeutralBand(t *testing.T) {
	cfg := DefaultAlphaConfig()
	score := ComputeAlpha(0.50, 0.8, 0.0, 0.0, 0.0, 20, 2, cfg)
	assert.Equal(t, CategoryNeutral, score.Category)
}

func TestComputeAlpha_ProfitableNeedsBothGates(t *testing.T) {
	cfg := DefaultAlphaConfig()

	// decent win rate but sub-1x R falls through to Unprofitable
	score := ComputeAlpha(0.60, 0.9, 0.0, 0.0, 0.0, 20, 2, cfg)
	assert.Equal(t, CategoryUnprofitable, score.Category)

	score = ComputeAlpha(0.60, 1.2, 0.0, 0.0, 0.0, 20, 2, cfg)
	assert.Equal(t, CategoryProfitable, score.Category)
}

func TestComputeAlpha_EliteGateNeedsRecency(t *testing.T) {
	cfg := DefaultAlphaConfig()

	// elite numbers but inactive for 20 days demotes to Profitable
	score := ComputeAlpha(0.70, 2.5, 0.3, 0.5, 0.7, 50, 20, cfg)
	assert.Equal(t, CategoryProfitable, score.Category)
}

func TestComputeAlpha_ConfidenceGrowsWithSamples(t *testing.T) {
	cfg := DefaultAlphaConfig()

	few := ComputeAlpha(0.60, 1.5, 0.2, 0.0, 0.5, 10, 3, cfg)
	many := ComputeAlpha(0.60, 1.5, 0.2, 0.0, 0.5, 80, 3, cfg)

	assert.Greater(t, many.Confidence, few.Confidence)
	assert.LessOrEqual(t, many.Confidence, 1.0)
}

func TestNormalize(t *testing.T) {
	assert.InDelta(t, 0.5, normalize(0.5, 0.0, 1.0), 1e-9)
	assert.InDelta(t, 0.0, normalize(-1.0, 0.0, 1.0), 1e-9) // clamped low
	assert.InDelta(t, 1.0, normalize(2.0, 0.0, 1.0), 1e-9)  // clamped high
	assert.InDelta(t, 0.5, normalize(3.0, 1.0, 1.0), 1e-9)  // degenerate band
}

func TestAlphaScore_IsAvoid(t *testing.T) {
	for _, cat := range []Category{CategoryBundledTeam, CategoryMevBot, CategoryUnprofitable} {
		assert.True(t, AlphaScore{Category: cat}.IsAvoid(), "category %s", cat)
	}
	for _, cat := range []Category{CategoryTrueSignal, CategoryProfitable, CategoryNeutral, CategoryUnknown} {
		assert.False(t, AlphaScore{Category: cat}.IsAvoid(), "category %s", cat)
	}
}

func TestAlphaScore_Summary(t *testing.T) {
	score := ComputeAlpha(0.70, 2.5, 0.3, 0.5, 0.7, 50, 3, DefaultAlphaConfig())
	s := score.Summary()
	assert.Contains(t, s, "Alpha:")
	assert.Contains(t, s, "WR: 70%")
	assert.Contains(t, s, "TRUE_SIGNAL")
}
