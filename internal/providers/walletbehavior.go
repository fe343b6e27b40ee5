package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-trading/vigil/internal/cache"
	"github.com/nexus-trading/vigil/internal/signal"
)

// ---------------------------------------------------------------------------
// Wallet Behavior Provider -- creator reputation from cached data
// ---------------------------------------------------------------------------

// WalletBehaviorProvider scores the creator against the known-actor lists
// and any cached wallet history. It registers twice: once on the hot path
// (cache reads only) and once in the background set, where enrichment has
// had a chance to warm the cache first.
type WalletBehaviorProvider struct {
	cache  *cache.Cache
	actors *cache.KnownActors
	hot    bool
}

// NewWalletBehavior creates the hot-path instance.
func NewWalletBehavior(c *cache.Cache, actors *cache.KnownActors) *WalletBehaviorProvider {
	return &WalletBehaviorProvider{cache: c, actors: actors, hot: true}
}

// NewWalletBehaviorBackground creates the background instance.
func NewWalletBehaviorBackground(c *cache.Cache, actors *cache.KnownActors) *WalletBehaviorProvider {
	return &WalletBehaviorProvider{cache: c, actors: actors, hot: false}
}

func (p *WalletBehaviorProvider) Name() string {
	if p.hot {
		return "wallet_behavior_hot"
	}
	return "wallet_behavior_background"
}

func (p *WalletBehaviorProvider) Types() []signal.Type {
	return []signal.Type{
		signal.TypeKnownDeployer,
		signal.TypeKnownSniper,
		signal.TypeWalletAge,
		signal.TypeWalletHistory,
		signal.TypeWalletPriorPerformance,
		signal.TypeDeployerPattern,
	}
}

func (p *WalletBehaviorProvider) Hot() bool { return p.hot }

func (p *WalletBehaviorProvider) MaxLatency() time.Duration {
	if p.hot {
		return 10 * time.Millisecond
	}
	return 2 * time.Second
}

func (p *WalletBehaviorProvider) TokenSignals(ctx context.Context, tc *signal.TokenContext) []signal.Signal {
	var out []signal.Signal
	out = append(out, p.knownActorSignals(tc.Creator)...)
	out = append(out, p.cachedHistorySignals(tc.Creator)...)
	return out
}

// knownActorSignals always emits a KnownDeployer verdict; sniper and trusted
// signals only fire on a match.
func (p *WalletBehaviorProvider) knownActorSignals(creator string) []signal.Signal {
	start := time.Now()
	var out []signal.Signal

	if p.actors.IsDeployer(creator) {
		out = append(out, signal.ExtremeRisk(signal.TypeKnownDeployer, "Creator is known rug deployer").WithCached())
	} else {
		out = append(out, signal.Neutral(signal.TypeKnownDeployer, "Creator not in deployer blacklist").WithCached())
	}

	if p.actors.IsSniper(creator) {
		out = append(out, signal.New(signal.TypeKnownSniper, -0.5, 0.9, "Creator is a known sniper wallet").WithCached())
	}

	if p.actors.IsTrusted(creator) {
		out = append(out, signal.New(signal.TypeWalletPriorPerformance, 0.7, 0.9, "Creator is a trusted wallet").WithCached())
	}

	ms := int(time.Since(start).Milliseconds())
	for i := range out {
		out[i].LatencyMs = ms
	}
	return out
}

func (p *WalletBehaviorProvider) cachedHistorySignals(creator string) []signal.Signal {
	start := time.Now()

	history, ok := p.cache.GetWalletHistory(creator)
	if !ok {
		ms := int(time.Since(start).Milliseconds())
		return []signal.Signal{
			signal.Unavailable(signal.TypeWalletAge, "Wallet age data not cached").WithLatency(ms),
			signal.Unavailable(signal.TypeWalletHistory, "Wallet history not cached").WithLatency(ms),
		}
	}

	var out []signal.Signal

	// Age penalties stay mild: on pump.fun nearly every wallet is new.
	ageDays := int(history.AgeDays(time.Now()))
	switch {
	case ageDays < 1:
		out = append(out, signal.New(signal.TypeWalletAge, -0.15, 0.4, fmt.Sprintf("Very new wallet: %d days old", ageDays)))
	case ageDays < 7:
		out = append(out, signal.New(signal.TypeWalletAge, -0.10, 0.4, fmt.Sprintf("New wallet: %d days old", ageDays)))
	case ageDays < 30:
		out = append(out, signal.New(signal.TypeWalletAge, 0.0, 0.5, fmt.Sprintf("Moderately new wallet: %d days old", ageDays)))
	case ageDays < 90:
		out = append(out, signal.New(signal.TypeWalletAge, 0.1, 0.6, fmt.Sprintf("Established wallet: %d days old", ageDays)))
	default:
		out = append(out, signal.New(signal.TypeWalletAge, 0.3, 0.8, fmt.Sprintf("Mature wallet: %d days old", ageDays)))
	}

	trades := history.TotalTrades
	switch {
	case trades < 5:
		out = append(out, signal.New(signal.TypeWalletHistory, -0.5, 0.8, fmt.Sprintf("Very low activity: %d transactions", trades)))
	case trades < 20:
		out = append(out, signal.New(signal.TypeWalletHistory, -0.2, 0.7, fmt.Sprintf("Low activity: %d transactions", trades)))
	case trades < 100:
		out = append(out, signal.Neutral(signal.TypeWalletHistory, fmt.Sprintf("Normal activity: %d transactions", trades)))
	default:
		out = append(out, signal.New(signal.TypeWalletHistory, 0.2, 0.6, fmt.Sprintf("High activity: %d transactions", trades)))
	}

	if history.DeployedRugCount > 0 {
		if history.DeployedRugCount >= 3 {
			out = append(out, signal.ExtremeRisk(signal.TypeDeployerPattern,
				fmt.Sprintf("Creator has %d prior rugs", history.DeployedRugCount)))
		} else {
			out = append(out, signal.New(signal.TypeDeployerPattern, -0.7, 0.85,
				fmt.Sprintf("Creator has %d prior rug(s)", history.DeployedRugCount)))
		}
	}

	if history.TokensTraded >= 5 {
		wr := history.WinRate
		switch {
		case wr > 0.7:
			out = append(out, signal.New(signal.TypeWalletPriorPerformance, 0.5, 0.7, fmt.Sprintf("High win rate: %.0f%%", wr*100)))
		case wr > 0.5:
			out = append(out, signal.New(signal.TypeWalletPriorPerformance, 0.2, 0.6, fmt.Sprintf("Good win rate: %.0f%%", wr*100)))
		case wr > 0.3:
			out = append(out, signal.Neutral(signal.TypeWalletPriorPerformance, fmt.Sprintf("Average win rate: %.0f%%", wr*100)))
		default:
			out = append(out, signal.New(signal.TypeWalletPriorPerformance, -0.3, 0.6, fmt.Sprintf("Low win rate: %.0f%%", wr*100)))
		}
	}

	ms := int(time.Since(start).Milliseconds())
	for i := range out {
		out[i].LatencyMs = ms
		out[i].Cached = true
	}
	return out
}
