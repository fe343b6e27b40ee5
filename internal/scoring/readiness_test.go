package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateReadiness_AllGatesPass(t *testing.T) {
	r := EvaluateReadiness(DefaultThresholds(), 0.5, 2, 10*time.Second)

	assert.True(t, r.ReadyForTrading)
	assert.Empty(t, r.Reason)
	// Ready to trade but not past the full-position bar.
	assert.False(t, r.ReadyForFull)
}

func TestEvaluateReadiness_NothingKnown(t *testing.T) {
	r := EvaluateReadiness(DefaultThresholds(), 0.1, 0, 2*time.Second)

	assert.False(t, r.ReadyForTrading)
	assert.False(t, r.ReadyForFull)
	assert.Contains(t, r.Reason, "data completeness")
	assert.Contains(t, r.Reason, "enriched components")
	assert.Contains(t, r.Reason, "age")
}

func TestEvaluateReadiness_FullPosition(t *testing.T) {
	r := EvaluateReadiness(DefaultThresholds(), 0.8, 3, 30*time.Second)

	assert.True(t, r.ReadyForTrading)
	assert.True(t, r.ReadyForFull)
}

func TestEvaluateReadiness_BoundaryIsInclusive(t *testing.T) {
	th := DefaultThresholds()
	// Exactly at each minimum passes: the checks are strict less-than.
	r := EvaluateReadiness(th, th.MinDataCompleteness, th.MinEnrichedComponents,
		time.Duration(th.MinTimeSinceLaunchSecs)*time.Second)

	assert.True(t, r.ReadyForTrading)
}
