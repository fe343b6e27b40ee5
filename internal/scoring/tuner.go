package scoring

import (
	"sync"
	"time"

	"github.com/nexus-trading/vigil/internal/signal"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Weight Tuner -- learn signal weights from labeled trade outcomes
// ---------------------------------------------------------------------------
// Probe entries exist precisely to feed this: tiny positions whose outcome
// labels which signal types actually separated winners from rugs.

// TunerConfig configures outcome-driven weight learning.
type TunerConfig struct {
	Enabled      bool    `yaml:"enabled"`
	LearningRate float64 `yaml:"learning_rate"` // how fast weights move per recalc
	MaxDrift     float64 `yaml:"max_drift"`     // max relative distance from catalog weight (0.5 = +/-50%)
	WindowSize   int     `yaml:"window_size"`   // outcomes kept in the ring
	RecalcMins   int     `yaml:"recalc_interval_min"`
	MinSamples   int     `yaml:"min_samples_for_adjust"`
}

// DefaultTunerConfig returns conservative learning defaults.
func DefaultTunerConfig() TunerConfig {
	return TunerConfig{
		Enabled:      true,
		LearningRate: 0.05,
		MaxDrift:     0.5,
		WindowSize:   100,
		RecalcMins:   30,
		MinSamples:   10,
	}
}

// Outcome is one labeled trade result with the signals that drove entry.
type Outcome struct {
	Mint       string          `json:"mint"`
	Signals    []signal.Signal `json:"signals"`
	PnLPct     float64         `json:"pnl_pct"`
	IsWin      bool            `json:"is_win"`
	IsRug      bool            `json:"is_rug"`
	HoldTime   time.Duration   `json:"hold_time"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Tuner adjusts per-type weight overrides from recent outcomes. Weights
// drift toward types whose values separated wins from losses, bounded to
// MaxDrift around the catalog default.
type Tuner struct {
	config TunerConfig

	mu       sync.RWMutex
	outcomes []Outcome
	current  map[signal.Type]float64
	lastCalc time.Time
}

// NewTuner creates a tuner seeded with catalog weights.
func NewTuner(config TunerConfig) *Tuner {
	current := make(map[signal.Type]float64)
	for _, t := range signal.AllTypes() {
		current[t] = t.DefaultWeight()
	}
	return &Tuner{
		config:   config,
		current:  current,
		lastCalc: time.Now(),
	}
}

// RecordOutcome adds a labeled result to the learning window.
func (t *Tuner) RecordOutcome(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o.RecordedAt = time.Now()
	if len(t.outcomes) >= t.config.WindowSize {
		t.outcomes = t.outcomes[1:]
	}
	t.outcomes = append(t.outcomes, o)
}

// Weights returns a copy of the current per-type weights, suitable for
// Engine.SetWeights.
func (t *Tuner) Weights() map[signal.Type]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[signal.Type]float64, len(t.current))
	for ty, w := range t.current {
		out[ty] = w
	}
	return out
}

// Recalculate adjusts weights from the outcome window. Rate limited; call
// it from a periodic ticker.
func (t *Tuner) Recalculate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.config.Enabled {
		return
	}
	if len(t.outcomes) < t.config.MinSamples {
		return
	}
	if time.Since(t.lastCalc) < time.Duration(t.config.RecalcMins)*time.Minute {
		return
	}
	t.lastCalc = time.Now()

	adjusted := 0
	for _, ty := range signal.AllTypes() {
		corr := t.typeCorrelation(ty)
		if corr == 0 {
			continue
		}
		t.current[ty] = t.boundWeight(ty, t.current[ty]+corr*t.config.LearningRate)
		adjusted++
	}

	log.Info().
		Int("samples", len(t.outcomes)).
		Int("types_adjusted", adjusted).
		Msg("tuner: weights recalculated")
}

// typeCorrelation compares the type's average signal value in winning vs
// losing outcomes. Positive means high values predicted wins. Caller must
// hold t.mu.
func (t *Tuner) typeCorrelation(ty signal.Type) float64 {
	var winSum, lossSum float64
	var winCount, lossCount int

	for _, o := range t.outcomes {
		for _, s := range o.Signals {
			if s.Type != ty || s.Confidence == 0 {
				continue
			}
			if o.IsWin {
				winSum += s.Value
				winCount++
			} else {
				lossSum += s.Value
				lossCount++
				if o.IsRug {
					// Rugs count double: missing one hurts far more
					// than missing an ordinary loss.
					lossSum += s.Value
					lossCount++
				}
			}
		}
	}

	if winCount == 0 || lossCount == 0 {
		return 0
	}

	// Values are in [-1,1] so the difference is in [-2,2].
	diff := (winSum/float64(winCount) - lossSum/float64(lossCount)) / 2.0
	return clamp(diff, -1, 1)
}

// boundWeight keeps a weight within MaxDrift of the catalog default.
func (t *Tuner) boundWeight(ty signal.Type, w float64) float64 {
	base := ty.DefaultWeight()
	return clamp(w, base*(1-t.config.MaxDrift), base*(1+t.config.MaxDrift))
}

// Reset restores catalog weights and clears the window.
func (t *Tuner) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ty := range signal.AllTypes() {
		t.current[ty] = ty.DefaultWeight()
	}
	t.outcomes = nil
	log.Info().Msg("tuner: reset to catalog weights")
}

// TunerStats summarizes the learning state.
type TunerStats struct {
	SampleCount int       `json:"sample_count"`
	WinRate     float64   `json:"win_rate"`
	RugCount    int       `json:"rug_count"`
	LastRecalc  time.Time `json:"last_recalc"`
	Enabled     bool      `json:"enabled"`
}

func (t *Tuner) Stats() TunerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	wins, rugs := 0, 0
	for _, o := range t.outcomes {
		if o.IsWin {
			wins++
		}
		if o.IsRug {
			rugs++
		}
	}
	winRate := 0.0
	if len(t.outcomes) > 0 {
		winRate = float64(wins) / float64(len(t.outcomes))
	}

	return TunerStats{
		SampleCount: len(t.outcomes),
		WinRate:     winRate,
		RugCount:    rugs,
		LastRecalc:  t.lastCalc,
		Enabled:     t.config.Enabled,
	}
}
