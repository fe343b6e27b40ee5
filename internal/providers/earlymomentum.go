package providers

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/vigil/internal/signal"
)

// ---------------------------------------------------------------------------
// Early Momentum Provider -- first-minutes trade flow for brand new tokens
// ---------------------------------------------------------------------------

// maxTradeHistory bounds the per-mint trade ring.
const maxTradeHistory = 100

// EarlyMomentumConfig controls the early momentum sub-signals.
type EarlyMomentumConfig struct {
	// Enabled turns the whole provider on or off.
	Enabled bool `yaml:"enabled"`
	// VolumeSpikeEnabled emits a signal when recent volume jumps off baseline.
	VolumeSpikeEnabled bool `yaml:"volume_spike_enabled"`
	// VolumeSpikeRatio is the recent/baseline multiple that counts as a spike.
	VolumeSpikeRatio float64 `yaml:"volume_spike_ratio"`
	// VolumeWindowSecs is the lookback window for recent volume.
	VolumeWindowSecs int `yaml:"volume_window_secs"`
	// AccumulationEnabled emits a signal on lopsided buy pressure.
	AccumulationEnabled bool `yaml:"accumulation_enabled"`
	// AccumulationBuyRatio is the combined buy/sell ratio that counts as accumulation.
	AccumulationBuyRatio float64 `yaml:"accumulation_buy_ratio"`
	// MinUniqueBuyers gates accumulation until enough distinct buyers show up.
	MinUniqueBuyers int `yaml:"min_unique_buyers"`
	// FirstTradesEnabled scores the quality of the opening trades.
	FirstTradesEnabled bool `yaml:"first_trades_enabled"`
	// FirstTradesCount is how many opening trades to inspect.
	FirstTradesCount int `yaml:"first_trades_count"`
	// WhaleBuyThresholdSOL is the buy size that counts as a whale.
	WhaleBuyThresholdSOL float64 `yaml:"whale_buy_threshold_sol"`
	// CreatorBuyingBack emits a signal when the creator buys their own token.
	CreatorBuyingBack bool `yaml:"creator_buying_back"`
	// MaxBondingCurvePct marks entries past this curve fill as late.
	MaxBondingCurvePct float64 `yaml:"max_bonding_curve_pct"`
	// EarlyEntryBonus is the base value awarded for early curve positions.
	EarlyEntryBonus float64 `yaml:"early_entry_bonus"`
}

// DefaultEarlyMomentumConfig returns production defaults.
func DefaultEarlyMomentumConfig() EarlyMomentumConfig {
	return EarlyMomentumConfig{
		Enabled:              true,
		VolumeSpikeEnabled:   true,
		VolumeSpikeRatio:     3.0,  // 3x baseline
		VolumeWindowSecs:     60,   // 1 minute lookback
		AccumulationEnabled:  true,
		AccumulationBuyRatio: 4.0,  // 4:1 buys over sells
		MinUniqueBuyers:      5,
		FirstTradesEnabled:   true,
		FirstTradesCount:     10,
		WhaleBuyThresholdSOL: 1.0,
		CreatorBuyingBack:    true,
		MaxBondingCurvePct:   30.0, // past 30% is late
		EarlyEntryBonus:      0.2,
	}
}

type tradeEntry struct {
	isBuy  bool
	sol    float64
	trader string
	at     time.Time
}

// mintActivity accumulates per-mint trade flow since launch.
type mintActivity struct {
	trades            []tradeEntry
	uniqueBuyers      map[string]struct{}
	uniqueSellers     map[string]struct{}
	buyVolume         float64
	sellVolume        float64
	firstTrade        time.Time
	whaleBuys         int
	creatorBoughtBack bool
}

func newMintActivity(at time.Time) *mintActivity {
	return &mintActivity{
		uniqueBuyers:  make(map[string]struct{}),
		uniqueSellers: make(map[string]struct{}),
		firstTrade:    at,
	}
}

// EarlyMomentumProvider scores tokens on the shape of their opening flow.
// It has no upstream dependency; the trade stream feeds it directly via
// RecordTrade, so every sub-signal reads from memory.
type EarlyMomentumProvider struct {
	config EarlyMomentumConfig

	mu        sync.RWMutex
	activity  map[string]*mintActivity
	baselines map[string]float64 // expected volume per window, by mint
}

// NewEarlyMomentum creates the provider.
func NewEarlyMomentum(cfg EarlyMomentumConfig) *EarlyMomentumProvider {
	return &EarlyMomentumProvider{
		config:    cfg,
		activity:  make(map[string]*mintActivity),
		baselines: make(map[string]float64),
	}
}

func (p *EarlyMomentumProvider) Name() string { return "early_momentum" }

func (p *EarlyMomentumProvider) Types() []signal.Type {
	return []signal.Type{
		signal.TypeVolumeSpike,
		signal.TypeAccumulationPattern,
		signal.TypeFirstTradesQuality,
		signal.TypeBondingCurvePosition,
		signal.TypeCreatorBuyback,
	}
}

func (p *EarlyMomentumProvider) Hot() bool { return true }

func (p *EarlyMomentumProvider) MaxLatency() time.Duration { return 5 * time.Millisecond }

// RecordTrade feeds one trade into the per-mint history.
func (p *EarlyMomentumProvider) RecordTrade(mint string, isBuy bool, solAmount float64, trader, creator string) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	act := p.activity[mint]
	if act == nil {
		act = newMintActivity(now)
		p.activity[mint] = act
	}

	if len(act.trades) >= maxTradeHistory {
		act.trades = act.trades[1:]
	}
	act.trades = append(act.trades, tradeEntry{isBuy: isBuy, sol: solAmount, trader: trader, at: now})

	if isBuy {
		act.uniqueBuyers[trader] = struct{}{}
		act.buyVolume += solAmount
		if solAmount >= p.config.WhaleBuyThresholdSOL {
			act.whaleBuys++
		}
		if creator != "" && trader == creator && !act.creatorBoughtBack {
			act.creatorBoughtBack = true
			log.Info().
				Str("mint", mint).
				Float64("sol", solAmount).
				Msg("providers: creator buyback detected")
		}
	} else {
		act.uniqueSellers[trader] = struct{}{}
		act.sellVolume += solAmount
	}
}

// SetBaselineVolume sets the expected per-window volume for a mint.
func (p *EarlyMomentumProvider) SetBaselineVolume(mint string, volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baselines[mint] = volume
}

func (p *EarlyMomentumProvider) TokenSignals(ctx context.Context, tc *signal.TokenContext) []signal.Signal {
	if !p.config.Enabled {
		return nil
	}
	start := time.Now()

	p.mu.RLock()
	defer p.mu.RUnlock()

	act := p.activity[tc.Mint]

	var out []signal.Signal
	if p.config.VolumeSpikeEnabled {
		out = append(out, p.checkVolumeSpike(tc.Mint, act))
	}
	if p.config.AccumulationEnabled {
		out = append(out, p.checkAccumulation(act))
	}
	if p.config.FirstTradesEnabled {
		out = append(out, p.checkFirstTrades(act))
	}
	out = append(out, p.checkBondingCurve(tc))
	if p.config.CreatorBuyingBack {
		out = append(out, p.checkCreatorBuyback(act))
	}

	ms := int(time.Since(start).Milliseconds())
	for i := range out {
		out[i].LatencyMs = ms
	}
	return out
}

func (p *EarlyMomentumProvider) checkVolumeSpike(mint string, act *mintActivity) signal.Signal {
	if act == nil {
		return signal.Neutral(signal.TypeVolumeSpike, "No trade history available")
	}

	cutoff := time.Now().Add(-time.Duration(p.config.VolumeWindowSecs) * time.Second)
	var recent float64
	for _, t := range act.trades {
		if t.at.After(cutoff) {
			recent += t.sol
		}
	}

	baseline, ok := p.baselines[mint]
	if !ok {
		// No baseline yet: assume the recent window is twice normal.
		baseline = recent / 2
	}
	if baseline <= 0 {
		return signal.Neutral(signal.TypeVolumeSpike, "Insufficient baseline data")
	}

	ratio := recent / baseline
	if ratio >= p.config.VolumeSpikeRatio {
		value := math.Min((ratio-1)/5, 1.0)
		return signal.New(signal.TypeVolumeSpike, value, 0.8,
			fmt.Sprintf("Volume spike: %.1fx baseline (%.2f vs %.2f SOL)", ratio, recent, baseline))
	}
	return signal.Neutral(signal.TypeVolumeSpike, fmt.Sprintf("Normal volume: %.1fx baseline", ratio))
}

func (p *EarlyMomentumProvider) checkAccumulation(act *mintActivity) signal.Signal {
	if act == nil {
		return signal.Neutral(signal.TypeAccumulationPattern, "No trade history available")
	}

	buyers := len(act.uniqueBuyers)
	sellers := len(act.uniqueSellers)
	if buyers < p.config.MinUniqueBuyers {
		return signal.Neutral(signal.TypeAccumulationPattern,
			fmt.Sprintf("Only %d unique buyers (need %d)", buyers, p.config.MinUniqueBuyers))
	}

	buyerRatio := float64(buyers) * 2
	if sellers > 0 {
		buyerRatio = float64(buyers) / float64(sellers)
	}
	volumeRatio := act.buyVolume * 2
	if act.sellVolume > 0 {
		volumeRatio = act.buyVolume / act.sellVolume
	}
	combined := (buyerRatio + volumeRatio) / 2

	switch {
	case combined >= p.config.AccumulationBuyRatio:
		value := math.Min((combined-1)/10, 1.0)
		return signal.New(signal.TypeAccumulationPattern, value, 0.85,
			fmt.Sprintf("Accumulation: %.1f buy/sell ratio, %d buyers vs %d sellers", combined, buyers, sellers))
	case combined < 1.0:
		return signal.New(signal.TypeAccumulationPattern, -0.3, 0.7,
			fmt.Sprintf("Distribution: %.1f buy/sell ratio (more selling)", combined))
	default:
		return signal.Neutral(signal.TypeAccumulationPattern,
			fmt.Sprintf("Neutral flow: %.1f buy/sell ratio", combined))
	}
}

func (p *EarlyMomentumProvider) checkFirstTrades(act *mintActivity) signal.Signal {
	if act == nil || len(act.trades) == 0 {
		return signal.Neutral(signal.TypeFirstTradesQuality, "No trades yet")
	}

	first := act.trades
	if len(first) > p.config.FirstTradesCount {
		first = first[:p.config.FirstTradesCount]
	}

	buys, whales := 0, 0
	for _, t := range first {
		if !t.isBuy {
			continue
		}
		buys++
		if t.sol >= p.config.WhaleBuyThresholdSOL {
			whales++
		}
	}
	buyRatio := float64(buys) / float64(len(first))

	switch {
	case whales >= 2 && buyRatio > 0.7:
		return signal.New(signal.TypeFirstTradesQuality, 0.8, 0.9,
			fmt.Sprintf("Strong launch: %d whale buys, %.0f%% buys in first %d trades", whales, buyRatio*100, len(first)))
	case buyRatio > 0.8:
		return signal.New(signal.TypeFirstTradesQuality, 0.5, 0.8,
			fmt.Sprintf("Good launch: %.0f%% buys in first trades", buyRatio*100))
	case buyRatio < 0.3:
		return signal.New(signal.TypeFirstTradesQuality, -0.5, 0.8,
			fmt.Sprintf("Weak launch: only %.0f%% buys (heavy selling)", buyRatio*100))
	default:
		return signal.Neutral(signal.TypeFirstTradesQuality,
			fmt.Sprintf("Normal launch: %.0f%% buys", buyRatio*100))
	}
}

func (p *EarlyMomentumProvider) checkBondingCurve(tc *signal.TokenContext) signal.Signal {
	pct := tc.BondingCurvePct
	if pct <= 0 {
		return signal.Neutral(signal.TypeBondingCurvePosition, "Bonding curve not available")
	}

	switch {
	case pct > p.config.MaxBondingCurvePct:
		return signal.New(signal.TypeBondingCurvePosition, -0.3, 0.9,
			fmt.Sprintf("Late entry: %.1f%% bonding curve (max: %.0f%%)", pct, p.config.MaxBondingCurvePct))
	case pct < 10:
		return signal.New(signal.TypeBondingCurvePosition, p.config.EarlyEntryBonus+0.3, 0.95,
			fmt.Sprintf("Very early entry: %.1f%% bonding curve", pct))
	case pct < 20:
		return signal.New(signal.TypeBondingCurvePosition, p.config.EarlyEntryBonus, 0.9,
			fmt.Sprintf("Early entry: %.1f%% bonding curve", pct))
	default:
		return signal.Neutral(signal.TypeBondingCurvePosition,
			fmt.Sprintf("Normal entry: %.1f%% bonding curve", pct))
	}
}

func (p *EarlyMomentumProvider) checkCreatorBuyback(act *mintActivity) signal.Signal {
	if act != nil && act.creatorBoughtBack {
		return signal.New(signal.TypeCreatorBuyback, 0.6, 0.85,
			"Creator buying back own token (confidence signal)")
	}
	return signal.Neutral(signal.TypeCreatorBuyback, "No creator buyback detected")
}

// CleanupOldEntries drops mints whose first trade is older than maxAge and
// returns how many were removed.
func (p *EarlyMomentumProvider) CleanupOldEntries(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for mint, act := range p.activity {
		if act.firstTrade.After(cutoff) {
			continue
		}
		delete(p.activity, mint)
		delete(p.baselines, mint)
		removed++
	}
	return removed
}

// Tracked returns how many mints currently have activity history.
func (p *EarlyMomentumProvider) Tracked() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.activity)
}
