package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/vigil/internal/profiler"
	"github.com/nexus-trading/vigil/internal/signal"
)

// ---------------------------------------------------------------------------
// Smart Money Provider -- creator alpha score from realized trade history
// ---------------------------------------------------------------------------

// profileFreshness is how recent a profile must be to count as cached.
const profileFreshness = 60 * time.Second

// SmartMoneyProvider turns the creator's wallet profile into signals. Profile
// computation may hit the trade API, so this provider is background only.
type SmartMoneyProvider struct {
	profiler *profiler.Profiler
}

// NewSmartMoney creates the provider.
func NewSmartMoney(p *profiler.Profiler) *SmartMoneyProvider {
	return &SmartMoneyProvider{profiler: p}
}

func (p *SmartMoneyProvider) Name() string { return "smart_money" }

func (p *SmartMoneyProvider) Types() []signal.Type {
	return []signal.Type{signal.TypeWalletPriorPerformance, signal.TypeDeployerPattern}
}

func (p *SmartMoneyProvider) Hot() bool { return false }

func (p *SmartMoneyProvider) MaxLatency() time.Duration { return 3 * time.Second }

func (p *SmartMoneyProvider) TokenSignals(ctx context.Context, tc *signal.TokenContext) []signal.Signal {
	start := time.Now()
	prof, err := p.profiler.GetOrCompute(ctx, tc.Creator)
	ms := int(time.Since(start).Milliseconds())

	if err != nil {
		log.Warn().
			Str("creator", shortAddr(tc.Creator)).
			Err(err).
			Msg("providers: wallet profile computation failed")
		reason := fmt.Sprintf("Profile unavailable: %v", err)
		return []signal.Signal{
			signal.Unavailable(signal.TypeWalletPriorPerformance, reason).WithLatency(ms),
			signal.Unavailable(signal.TypeDeployerPattern, reason).WithLatency(ms),
		}
	}

	alpha := prof.Alpha
	out := []signal.Signal{
		p.performanceSignal(alpha, ms, !prof.IsStale(profileFreshness)),
		p.deployerSignal(prof, ms),
	}

	log.Debug().
		Str("creator", shortAddr(tc.Creator)).
		Float64("alpha", alpha.Value).
		Str("category", string(alpha.Category)).
		Int("signals", len(out)).
		Int("latency_ms", ms).
		Msg("providers: smart money signals computed")
	return out
}

func (p *SmartMoneyProvider) performanceSignal(alpha profiler.AlphaScore, ms int, fresh bool) signal.Signal {
	var (
		value  float64
		conf   float64
		reason string
	)
	switch alpha.Category {
	case profiler.CategoryTrueSignal:
		value, conf = 0.8, alpha.Confidence
		reason = fmt.Sprintf("Elite creator: %.0f%% win rate, %.1fx R-mult, %d trades",
			alpha.RawWinRate*100, alpha.RawRMultiple, alpha.TotalTrades)
	case profiler.CategoryProfitable:
		value, conf = 0.3, alpha.Confidence
		reason = fmt.Sprintf("Profitable creator: %.0f%% win rate, %.1fx R-mult",
			alpha.RawWinRate*100, alpha.RawRMultiple)
	case profiler.CategoryNeutral:
		value, conf = 0.0, alpha.Confidence
		reason = fmt.Sprintf("Neutral creator: %.0f%% win rate", alpha.RawWinRate*100)
	case profiler.CategoryUnprofitable:
		value, conf = -0.5, alpha.Confidence
		reason = fmt.Sprintf("Unprofitable creator: %.0f%% win rate, %.1fx R-mult",
			alpha.RawWinRate*100, alpha.RawRMultiple)
	case profiler.CategoryBundledTeam:
		value, conf = -0.7, 0.8
		reason = "Creator appears to be part of bundled/team operation"
	case profiler.CategoryMevBot:
		value, conf = -0.8, 0.8
		reason = "Creator shows MEV bot patterns"
	default:
		value, conf = -0.1, 0.3
		reason = fmt.Sprintf("Unknown creator: only %d trades found", alpha.TotalTrades)
	}

	s := signal.New(signal.TypeWalletPriorPerformance, value, conf, reason).WithLatency(ms)
	if fresh {
		s = s.WithCached()
	}
	return s
}

func (p *SmartMoneyProvider) deployerSignal(prof *profiler.Profile, ms int) signal.Signal {
	var (
		value  float64
		reason string
	)
	switch {
	case prof.QuickFlipCount > 10:
		value = -0.6
		reason = fmt.Sprintf("Creator has %d quick flips - likely pump & dump pattern", prof.QuickFlipCount)
	case prof.PreGraduationRatio > 0.7:
		value = -0.4
		reason = fmt.Sprintf("Creator exits %.0f%% of trades pre-Raydium - early exit pattern",
			prof.PreGraduationRatio*100)
	case prof.AvgHoldSecs < 60 && prof.TotalTrades > 10:
		value = -0.3
		reason = fmt.Sprintf("Creator avg hold time %ds - very short term trader", prof.AvgHoldSecs)
	case prof.Alpha.IsElite():
		value = 0.5
		reason = "Creator has disciplined trading pattern"
	default:
		value = 0.0
		reason = "Normal deployer pattern"
	}
	return signal.New(signal.TypeDeployerPattern, value, prof.Alpha.Confidence, reason).WithLatency(ms)
}

func shortAddr(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:8]
}
