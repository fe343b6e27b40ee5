package filter

import (
	"github.com/nexus-trading/vigil/internal/scoring"
	"github.com/nexus-trading/vigil/internal/signal"
)

// ---------------------------------------------------------------------------
// Filter configuration
// ---------------------------------------------------------------------------

// Config drives the adaptive filter: the hot-path latency envelope, the
// background provider pool, scoring weight overrides, recommendation
// thresholds, position reassessment, and the cheap pre-gate that runs
// before any scoring.
type Config struct {
	// Enabled turns adaptive scoring on. When false every token passes
	// through unscored (the pre-gate still applies).
	Enabled bool `yaml:"enabled"`

	// HotPath bounds the synchronous pre-buy scoring path.
	HotPath HotPathConfig `yaml:"hot_path"`

	// Background bounds the enriched full-scoring path.
	Background BackgroundConfig `yaml:"background"`

	// Weights overrides catalog signal weights, keyed by signal type name
	// (e.g. "known_deployer": 3.0). Unknown keys are dropped.
	Weights map[string]float64 `yaml:"weights"`

	// Thresholds are the recommendation cut lines handed to the engine.
	Thresholds scoring.Thresholds `yaml:"thresholds"`

	// Reassessment controls periodic rescoring of open positions.
	Reassessment ReassessmentConfig `yaml:"reassessment"`

	// PreGate is the regex/liquidity screen applied before scoring.
	PreGate PreGateConfig `yaml:"pre_gate"`
}

// HotPathConfig bounds per-provider latency on the pre-buy path.
type HotPathConfig struct {
	MaxLatencyMs int `yaml:"max_latency_ms"`
}

// BackgroundConfig sizes the full-scoring worker pool.
type BackgroundConfig struct {
	WorkerCount  int `yaml:"worker_count"`
	MaxLatencyMs int `yaml:"max_latency_ms"`
}

// ReassessmentConfig controls open-position rescoring and the hard exit
// triggers evaluated on every pass.
type ReassessmentConfig struct {
	Enabled      bool `yaml:"enabled"`
	IntervalSecs int  `yaml:"interval_secs"`

	// RescoreOnLargeTrade triggers an immediate reassessment when a trade
	// at or above LargeTradeThresholdSOL hits a held mint.
	RescoreOnLargeTrade    bool    `yaml:"rescore_on_large_trade"`
	LargeTradeThresholdSOL float64 `yaml:"large_trade_threshold_sol"`

	// ExitOnScoreBelow / ExitOnRiskAbove are hard exit triggers.
	ExitOnScoreBelow float64 `yaml:"exit_on_score_below"`
	ExitOnRiskAbove  float64 `yaml:"exit_on_risk_above"`
}

// PreGateConfig is the pattern/holdings/liquidity screen run before the
// scoring path sees a launch.
type PreGateConfig struct {
	Enabled bool `yaml:"enabled"`

	// MinLiquiditySOL rejects launches whose initial liquidity is below
	// this floor. Zero disables the check.
	MinLiquiditySOL float64 `yaml:"min_liquidity_sol"`

	// MaxDevHoldingsPct rejects launches where the creator holds more than
	// this percent of supply.
	MaxDevHoldingsPct float64 `yaml:"max_dev_holdings_pct"`

	// NamePatterns, when non-empty, requires name or symbol to match at
	// least one pattern.
	NamePatterns []string `yaml:"name_patterns"`

	// BlockedPatterns rejects any name or symbol matching a pattern.
	BlockedPatterns []string `yaml:"blocked_patterns"`
}

// DefaultConfig returns production defaults tuned for pump.fun sniping.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		HotPath: HotPathConfig{
			MaxLatencyMs: 50, // hard budget for the pre-buy decision
		},
		Background: BackgroundConfig{
			WorkerCount:  4,
			MaxLatencyMs: 2000,
		},
		Weights:    map[string]float64{},
		Thresholds: scoring.DefaultThresholds(),
		Reassessment: ReassessmentConfig{
			Enabled:                true,
			IntervalSecs:           30,
			RescoreOnLargeTrade:    false,
			LargeTradeThresholdSOL: 1.0,
			ExitOnScoreBelow:       -0.5,
			ExitOnRiskAbove:        0.8,
		},
		PreGate: PreGateConfig{
			Enabled:           true,
			MinLiquiditySOL:   0,
			MaxDevHoldingsPct: 20.0,
		},
	}
}

// SignalWeights converts the string-keyed weight overrides into typed
// engine weights. Keys that do not name a known signal type are skipped.
func (c Config) SignalWeights() map[signal.Type]float64 {
	if len(c.Weights) == 0 {
		return nil
	}
	out := make(map[signal.Type]float64, len(c.Weights))
	for name, w := range c.Weights {
		t, ok := signal.ParseType(name)
		if !ok {
			continue
		}
		out[t] = w
	}
	return out
}
