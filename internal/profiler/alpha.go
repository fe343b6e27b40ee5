package profiler

import "fmt"

// ---------------------------------------------------------------------------
// Alpha Score -- deterministic wallet quality classification
// ---------------------------------------------------------------------------

// Category buckets a wallet by trading quality.
type Category string

const (
	// CategoryTrueSignal marks an elite wallet worth following.
	CategoryTrueSignal Category = "TRUE_SIGNAL"
	// CategoryBundledTeam marks a wallet flagged as part of a coordinated
	// bundle (same-slot buys, identical amounts, common funding).
	CategoryBundledTeam Category = "BUNDLED_TEAM"
	// CategoryMevBot marks sub-second sandwich/front-run patterns.
	CategoryMevBot       Category = "MEV_BOT"
	CategoryProfitable   Category = "PROFITABLE"
	CategoryNeutral      Category = "NEUTRAL"
	CategoryUnprofitable Category = "UNPROFITABLE"
	CategoryUnknown      Category = "UNKNOWN"
)

// minTradesToClassify is the floor below which a wallet stays Unknown.
const minTradesToClassify = 5

// AlphaConfig tunes the score weights and elite gate.
type AlphaConfig struct {
	EliteMinWinRate      float64 `yaml:"elite_min_win_rate"`
	EliteMinRMultiple    float64 `yaml:"elite_min_r_multiple"`
	EliteMinTrades       int     `yaml:"elite_min_trades"`
	EliteMaxInactiveDays int     `yaml:"elite_max_inactive_days"`

	// Component weights, expected to sum to 1.0.
	WeightWinRate        float64 `yaml:"weight_win_rate"`
	WeightRMultiple      float64 `yaml:"weight_r_multiple"`
	WeightEarlyEntry     float64 `yaml:"weight_early_entry"`
	WeightHoldDiscipline float64 `yaml:"weight_hold_discipline"`
}

// DefaultAlphaConfig returns production defaults.
func DefaultAlphaConfig() AlphaConfig {
	return AlphaConfig{
		EliteMinWinRate:      0.65,
		EliteMinRMultiple:    2.0,
		EliteMinTrades:       30,
		EliteMaxInactiveDays: 14,
		WeightWinRate:        0.35,
		WeightRMultiple:      0.30,
		WeightEarlyEntry:     0.20,
		WeightHoldDiscipline: 0.15,
	}
}

// AlphaScore is the composite wallet quality score. Value is centered at 0:
// positive means the wallet makes money, negative means it bleeds.
type AlphaScore struct {
	Value    float64  `json:"value"` // [-1, 1]
	Category Category `json:"category"`

	// Component scores, each normalized to [0, 1].
	WinRateScore        float64 `json:"win_rate_score"`
	RMultipleScore      float64 `json:"r_multiple_score"`
	EarlyEntryScore     float64 `json:"early_entry_score"`
	HoldDisciplineScore float64 `json:"hold_discipline_score"`

	// Raw inputs kept for reasons/summaries.
	RawWinRate         float64 `json:"raw_win_rate"`
	RawRMultiple       float64 `json:"raw_r_multiple"`
	PreGraduationRatio float64 `json:"pre_graduation_ratio"`
	TotalTrades        int     `json:"total_trades"`

	Confidence float64 `json:"confidence"` // [0, 1], grows with samples and recency
}

// ComputeAlpha scores a wallet from its realized-trade metrics. Normalization
// bands: win rate 30%..85%, R-multiple 0.5x..4x, early entry 0..60%. A raw
// composite of 0.5 maps to alpha 0.
func ComputeAlpha(
	winRate, rMultiple, preGradRatio, partialSellRatio, optimalHoldRatio float64,
	totalTrades, daysSinceLastTrade int,
	cfg AlphaConfig,
) AlphaScore {
	winRateScore := normalize(winRate, 0.30, 0.85)
	rMultipleScore := normalize(rMultiple, 0.5, 4.0)
	earlyEntryScore := normalize(preGradRatio, 0.0, 0.6)
	holdDiscipline := clamp01(partialSellRatio*0.5 + optimalHoldRatio*0.5)

	raw := winRateScore*cfg.WeightWinRate +
		rMultipleScore*cfg.WeightRMultiple +
		earlyEntryScore*cfg.WeightEarlyEntry +
		holdDiscipline*cfg.WeightHoldDiscipline

	tradeConf := normalize(float64(totalTrades), 5.0, 100.0)
	recency := float64(cfg.EliteMaxInactiveDays - daysSinceLastTrade)
	if recency < 0 {
		recency = 0
	}
	recencyConf := normalize(recency, 0.0, float64(cfg.EliteMaxInactiveDays))

	return AlphaScore{
		Value:               (raw - 0.5) * 2.0,
		Category:            classify(winRate, rMultiple, totalTrades, daysSinceLastTrade, cfg),
		WinRateScore:        winRateScore,
		RMultipleScore:      rMultipleScore,
		EarlyEntryScore:     earlyEntryScore,
		HoldDisciplineScore: holdDiscipline,
		RawWinRate:          winRate,
		RawRMultiple:        rMultiple,
		PreGraduationRatio:  preGradRatio,
		TotalTrades:         totalTrades,
		Confidence:          clamp01(tradeConf*0.7 + recencyConf*0.3),
	}
}

func classify(winRate, rMultiple float64, totalTrades, daysSinceLastTrade int, cfg AlphaConfig) Category {
	if totalTrades < minTradesToClassify {
		return CategoryUnknown
	}

	elite := winRate >= cfg.EliteMinWinRate &&
		rMultiple >= cfg.EliteMinRMultiple &&
		totalTrades >= cfg.EliteMinTrades &&
		daysSinceLastTrade <= cfg.EliteMaxInactiveDays
	if elite {
		return CategoryTrueSignal
	}

	switch {
	case winRate >= 0.55 && rMultiple >= 1.0:
		return CategoryProfitable
	case winRate >= 0.45 && winRate <= 0.55:
		return CategoryNeutral
	default:
		return CategoryUnprofitable
	}
}

// IsElite reports a TrueSignal wallet worth copying.
func (a AlphaScore) IsElite() bool {
	return a.Category == CategoryTrueSignal
}

// IsAvoid reports categories that should push the score down.
func (a AlphaScore) IsAvoid() bool {
	switch a.Category {
	case CategoryBundledTeam, CategoryMevBot, CategoryUnprofitable:
		return true
	}
	return false
}

// Summary renders a one-line human-readable view.
func (a AlphaScore) Summary() string {
	return fmt.Sprintf("Alpha: %.2f (%s) - WR: %.0f%%, R: %.1fx, Trades: %d, Conf: %.0f%%",
		a.Value, a.Category, a.RawWinRate*100.0, a.RawRMultiple, a.TotalTrades, a.Confidence*100.0)
}

func normalize(value, min, max float64) float64 {
	if max <= min {
		return 0.5
	}
	return clamp01((value - min) / (max - min))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
