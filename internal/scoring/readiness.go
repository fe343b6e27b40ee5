package scoring

import (
	"fmt"
	"strings"
	"time"
)

// Readiness reports whether enough is known about a token to trade it.
// A strong score over thin data is still thin data.
type Readiness struct {
	DataCompleteness   float64       `json:"data_completeness"` // [0,1]
	EnrichedComponents int           `json:"enriched_components"`
	TimeSinceLaunch    time.Duration `json:"time_since_launch"`
	ReadyForTrading    bool          `json:"ready_for_trading"`
	ReadyForFull       bool          `json:"ready_for_full"`
	Reason             string        `json:"reason,omitempty"`
}

// Full-position bar: well past the minimums, not just over them.
const (
	fullPositionCompleteness = 0.7
	fullPositionComponents   = 3
)

// EvaluateReadiness gates trading on data quality. All three minimums must
// hold; the reason lists every failing check.
func EvaluateReadiness(th Thresholds, completeness float64, components int, sinceLaunch time.Duration) Readiness {
	r := Readiness{
		DataCompleteness:   completeness,
		EnrichedComponents: components,
		TimeSinceLaunch:    sinceLaunch,
	}

	var reasons []string
	if completeness < th.MinDataCompleteness {
		reasons = append(reasons, fmt.Sprintf("data completeness %.2f < %.2f", completeness, th.MinDataCompleteness))
	}
	if components < th.MinEnrichedComponents {
		reasons = append(reasons, fmt.Sprintf("enriched components %d < %d", components, th.MinEnrichedComponents))
	}
	if sinceLaunch < time.Duration(th.MinTimeSinceLaunchSecs)*time.Second {
		reasons = append(reasons, fmt.Sprintf("age %.1fs < %ds", sinceLaunch.Seconds(), th.MinTimeSinceLaunchSecs))
	}

	r.ReadyForTrading = len(reasons) == 0
	r.Reason = strings.Join(reasons, ", ")
	r.ReadyForFull = r.ReadyForTrading &&
		completeness >= fullPositionCompleteness &&
		components >= fullPositionComponents
	return r
}
