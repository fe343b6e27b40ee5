package scoring

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nexus-trading/vigil/internal/signal"
)

// ---------------------------------------------------------------------------
// Scoring Engine -- confidence-weighted signal aggregation
// ---------------------------------------------------------------------------

// Recommendation is the engine's verdict on a token.
type Recommendation string

const (
	RecAvoid       Recommendation = "AVOID"
	RecObserve     Recommendation = "OBSERVE"
	RecProbe       Recommendation = "PROBE"
	RecOpportunity Recommendation = "OPPORTUNITY"
	RecStrongBuy   Recommendation = "STRONG_BUY"
)

// IsTrading reports whether the recommendation opens a position.
func (r Recommendation) IsTrading() bool {
	return r == RecProbe || r == RecOpportunity || r == RecStrongBuy
}

// probeMultiplier is the fixed fractional size for PROBE entries. Probes
// exist to buy outcome data for the weight tuner, not to make money, so
// their size never scales with score.
const probeMultiplier = 0.05

// Thresholds holds the cut lines of the recommendation ladder plus the
// readiness gate minimums.
type Thresholds struct {
	StrongBuy   float64 `yaml:"strong_buy"`
	Opportunity float64 `yaml:"opportunity"`
	Probe       float64 `yaml:"probe"`
	Avoid       float64 `yaml:"avoid"`

	// Below this aggregate confidence nothing is tradeable.
	MinConfidence float64 `yaml:"min_confidence"`

	// Readiness gate minimums.
	MinDataCompleteness    float64 `yaml:"min_data_completeness"`
	MinEnrichedComponents  int     `yaml:"min_enriched_components"`
	MinTimeSinceLaunchSecs int     `yaml:"min_time_since_launch_secs"`
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StrongBuy:              0.40,
		Opportunity:            0.10,
		Probe:                  -0.20,
		Avoid:                  -0.50,
		MinConfidence:          0.20,
		MinDataCompleteness:    0.3,
		MinEnrichedComponents:  1,
		MinTimeSinceLaunchSecs: 5,
	}
}

// Result is a full scoring outcome for one token.
type Result struct {
	Score            float64         `json:"score"`             // [-1, 1]
	RiskScore        float64         `json:"risk_score"`        // [0, 1]
	OpportunityScore float64         `json:"opportunity_score"` // [0, 1]
	Confidence       float64         `json:"confidence"`        // [0, 1]
	Signals          []signal.Signal `json:"signals,omitempty"`
	Recommendation   Recommendation  `json:"recommendation"`
	SizeMultiplier   float64         `json:"size_multiplier"`
	Summary          string          `json:"summary"`
}

// Engine aggregates signals into a Result. Weight overrides (from config or
// the tuner) replace catalog weights per signal type at scoring time.
type Engine struct {
	thresholds Thresholds

	mu        sync.RWMutex
	overrides map[signal.Type]float64
}

// NewEngine creates an engine with the given thresholds.
func NewEngine(thresholds Thresholds) *Engine {
	return &Engine{
		thresholds: thresholds,
		overrides:  make(map[signal.Type]float64),
	}
}

// SetWeights replaces the per-type weight overrides.
func (e *Engine) SetWeights(weights map[signal.Type]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides = make(map[signal.Type]float64, len(weights))
	for t, w := range weights {
		e.overrides[t] = w
	}
}

// Weights returns a copy of the current overrides.
func (e *Engine) Weights() map[signal.Type]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[signal.Type]float64, len(e.overrides))
	for t, w := range e.overrides {
		out[t] = w
	}
	return out
}

// Thresholds returns the engine's thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Score aggregates the given signals. With no signals the token is an
// unknown: neutral score, elevated risk, zero confidence, OBSERVE.
func (e *Engine) Score(signals []signal.Signal) Result {
	if len(signals) == 0 {
		return Result{
			Score:            0,
			RiskScore:        0.5,
			OpportunityScore: 0,
			Confidence:       0,
			Recommendation:   RecObserve,
			SizeMultiplier:   0,
			Summary:          "No signals available",
		}
	}

	e.mu.RLock()
	weighted := make([]signal.Signal, len(signals))
	for i, s := range signals {
		if w, ok := e.overrides[s.Type]; ok {
			s.Weight = w
		}
		weighted[i] = s
	}
	e.mu.RUnlock()

	var (
		weightedSum float64
		totalWeight float64
		confSum     float64
		riskSum     float64
		oppSum      float64
	)
	for _, s := range weighted {
		ew := s.Weight * s.Confidence
		weightedSum += s.Value * ew
		totalWeight += ew
		confSum += s.Confidence
		if s.IsRisk() {
			riskSum += -s.Value * s.Confidence * s.Weight
		} else if s.IsOpportunity() {
			oppSum += s.Value * s.Confidence * s.Weight
		}
	}

	score := 0.0
	if totalWeight > 0 {
		score = weightedSum / totalWeight
	}
	confidence := confSum / float64(len(weighted))
	risk := clamp01(riskSum)
	opp := clamp01(oppSum)

	rec := e.recommend(score, confidence)
	result := Result{
		Score:            score,
		RiskScore:        risk,
		OpportunityScore: opp,
		Confidence:       confidence,
		Signals:          weighted,
		Recommendation:   rec,
		SizeMultiplier:   e.sizeMultiplier(rec, score, risk, confidence),
	}
	result.Summary = buildSummary(result)
	return result
}

// FailClosed is the verdict when scoring cannot run at all. Maximum risk,
// full confidence: refusing to trade an unknown costs nothing.
func FailClosed(reason string) Result {
	return Result{
		Score:            -1.0,
		RiskScore:        1.0,
		OpportunityScore: 0,
		Confidence:       1.0,
		Recommendation:   RecAvoid,
		SizeMultiplier:   0,
		Summary:          fmt.Sprintf("FAIL-CLOSED: %s", reason),
	}
}

// ScoreByCategory returns the weighted average signal value per category.
func (e *Engine) ScoreByCategory(signals []signal.Signal) map[signal.Category]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sums := make(map[signal.Category]float64)
	weights := make(map[signal.Category]float64)
	for _, s := range signals {
		w := s.Weight
		if ow, ok := e.overrides[s.Type]; ok {
			w = ow
		}
		ew := w * s.Confidence
		cat := s.Type.TypeCategory()
		sums[cat] += s.Value * ew
		weights[cat] += ew
	}

	out := make(map[signal.Category]float64, len(sums))
	for cat, sum := range sums {
		if weights[cat] > 0 {
			out[cat] = sum / weights[cat]
		}
	}
	return out
}

// recommend walks the ladder. Avoid wins over everything; low confidence
// blocks every trading recommendation.
func (e *Engine) recommend(score, confidence float64) Recommendation {
	th := e.thresholds
	switch {
	case score < th.Avoid:
		return RecAvoid
	case confidence < th.MinConfidence:
		return RecObserve
	case score >= th.StrongBuy:
		return RecStrongBuy
	case score >= th.Opportunity:
		return RecOpportunity
	case score >= th.Probe:
		return RecProbe
	default:
		return RecObserve
	}
}

// sizeMultiplier converts a verdict into a position size factor.
func (e *Engine) sizeMultiplier(rec Recommendation, score, risk, confidence float64) float64 {
	if !rec.IsTrading() {
		return 0
	}
	if rec == RecProbe {
		return probeMultiplier
	}

	base := 1.0
	if rec == RecStrongBuy {
		base = 1.5
	}
	confAdj := 0.7 + confidence*0.3
	riskAdj := 1.0 - risk*0.5
	scoreAdj := 0.8 + clamp01(score)*0.4

	return clamp(base*confAdj*riskAdj*scoreAdj, 0.1, 2.0)
}

// buildSummary renders a one-line human-readable verdict.
func buildSummary(r Result) string {
	riskCount, oppCount := 0, 0
	for _, s := range r.Signals {
		if s.IsRisk() {
			riskCount++
		} else if s.IsOpportunity() {
			oppCount++
		}
	}

	parts := []string{
		fmt.Sprintf("Score: %.2f -> %s", r.Score, r.Recommendation),
		fmt.Sprintf("%d signals (%d risk, %d opportunity)", len(r.Signals), riskCount, oppCount),
	}

	if top, ok := topBy(r.Signals, func(s signal.Signal) bool { return s.IsRisk() }); ok {
		parts = append(parts, fmt.Sprintf("Top risk: %s (%.2f)", top.Type, top.Value))
	}
	if top, ok := topBy(r.Signals, func(s signal.Signal) bool { return s.IsOpportunity() }); ok {
		parts = append(parts, fmt.Sprintf("Top opportunity: %s (%.2f)", top.Type, top.Value))
	}

	return strings.Join(parts, " | ")
}

// topBy returns the matching signal with the largest absolute contribution.
func topBy(signals []signal.Signal, match func(signal.Signal) bool) (signal.Signal, bool) {
	var matched []signal.Signal
	for _, s := range signals {
		if match(s) {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return signal.Signal{}, false
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return abs(matched[i].EffectiveContribution()) > abs(matched[j].EffectiveContribution())
	})
	return matched[0], true
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
