package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/nexus-trading/vigil/internal/signal"
)

// ---------------------------------------------------------------------------
// Builtin signals -- zero-dependency checks that run on every evaluation
// ---------------------------------------------------------------------------

// suspiciousKeywords trip the quick name check without waiting for the
// full metadata provider.
var suspiciousKeywords = []string{"scam", "rug", "honeypot", "free", "airdrop", "1000x"}

// builtinSignals runs the checks that need nothing beyond the launch event
// and already-cached data. All signals share one latency stamp; signals
// derived from cached lookups are marked cached.
func (f *Filter) builtinSignals(tc *signal.TokenContext) []signal.Signal {
	start := time.Now()
	sigs := make([]signal.Signal, 0, 8)

	// Known-actor registry checks. A deployer verdict is always emitted so
	// the engine sees an explicit all-clear, not an absence.
	if f.actors.IsDeployer(tc.Creator) {
		sigs = append(sigs, signal.ExtremeRisk(signal.TypeKnownDeployer,
			"Known rug deployer").WithCached())
	} else {
		sigs = append(sigs, signal.Neutral(signal.TypeKnownDeployer,
			"Creator not in deployer blacklist").WithCached())
	}
	if f.actors.IsSniper(tc.Creator) {
		sigs = append(sigs, signal.New(signal.TypeKnownSniper, -0.5, 0.9,
			"Creator is a known sniper wallet").WithCached())
	}

	sigs = append(sigs, liquiditySignal(tc.MarketCapSOL))
	sigs = append(sigs, nameQualitySignal(tc.Name, tc.Symbol))

	if mi, ok := f.cache.GetMintInfo(tc.Mint); ok {
		var s signal.Signal
		switch {
		case mi.HasMintAuthority():
			s = signal.ExtremeRisk(signal.TypeMintAuthority,
				"FATAL: Mint authority active - creator can mint infinite tokens")
		case mi.HasFreezeAuthority():
			s = signal.New(signal.TypeFreezeAuthority, -0.7, 0.95,
				"WARNING: Freeze authority active - creator can freeze accounts")
		default:
			s = signal.New(signal.TypeMintAuthority, 0.3, 0.9,
				"All authorities renounced - safer token")
		}
		sigs = append(sigs, s.WithCached())
	}

	if h, ok := f.cache.GetWalletHistory(tc.Creator); ok {
		now := time.Now()
		if h.IsLikelyRugDeployer() {
			sigs = append(sigs, signal.ExtremeRisk(signal.TypeWalletHistory,
				fmt.Sprintf("Creator has deployed %d rugged tokens", h.DeployedRugCount)).WithCached())
		} else if h.IsLikelyDeployer() {
			sigs = append(sigs, signal.New(signal.TypeWalletHistory, -0.3, 0.7,
				fmt.Sprintf("Creator has deployed %d tokens previously", h.TokensDeployed)).WithCached())
		}

		age := h.AgeDays(now)
		if h.IsNewWallet(now) {
			sigs = append(sigs, signal.New(signal.TypeWalletAge, -0.1, 0.5,
				fmt.Sprintf("Creator wallet is new (%.1f days old)", age)).WithCached())
		} else if age > 90 {
			sigs = append(sigs, signal.New(signal.TypeWalletAge, 0.2, 0.6,
				fmt.Sprintf("Creator wallet is established (%.0f days old)", age)).WithCached())
		}

		if h.TotalTrades > 10 && h.WinRate > 0.6 {
			sigs = append(sigs, signal.New(signal.TypeWalletHistory, 0.2, 0.7,
				fmt.Sprintf("Creator has %.0f%% win rate over %d trades", h.WinRate*100, h.TotalTrades)).WithCached())
		}
	}

	if d, ok := f.cache.GetHolders(tc.Mint); ok {
		switch {
		case d.TopHolderPct > 0.50:
			sigs = append(sigs, signal.New(signal.TypeHolderConcentration, -0.6, 0.9,
				fmt.Sprintf("Highly concentrated: top holder has %.1f%%", d.TopHolderPct*100)).WithCached())
		case d.Top5Pct > 0.70:
			sigs = append(sigs, signal.New(signal.TypeHolderConcentration, -0.4, 0.8,
				fmt.Sprintf("Top 5 holders control %.1f%%", d.Top5Pct*100)).WithCached())
		case d.HolderCount > 10 && d.TopHolderPct < 0.20:
			sigs = append(sigs, signal.New(signal.TypeHolderConcentration, 0.3, 0.7,
				fmt.Sprintf("Good distribution: %d holders, top holder %.1f%%",
					d.HolderCount, d.TopHolderPct*100)).WithCached())
		}
	}

	ms := int(time.Since(start).Milliseconds())
	for i := range sigs {
		sigs[i].LatencyMs = ms
	}
	return sigs
}

// liquiditySignal grades the launch by SOL market cap. The band between
// 0.1 and 0.5 SOL is deliberately neutral; tiny seeds and normal seeds are
// both common there.
func liquiditySignal(marketCapSOL float64) signal.Signal {
	switch {
	case marketCapSOL < 0.1:
		return signal.New(signal.TypeLiquiditySeeding, -0.4, 0.8,
			fmt.Sprintf("Very low liquidity: %.4f SOL", marketCapSOL))
	case marketCapSOL > 10:
		return signal.New(signal.TypeLiquiditySeeding, 0.3, 0.6,
			fmt.Sprintf("High liquidity: %.2f SOL", marketCapSOL))
	case marketCapSOL >= 0.5:
		return signal.New(signal.TypeLiquiditySeeding, 0.2, 0.7,
			fmt.Sprintf("Normal liquidity: %.2f SOL", marketCapSOL))
	default:
		return signal.Neutral(signal.TypeLiquiditySeeding,
			fmt.Sprintf("Liquidity: %.4f SOL", marketCapSOL))
	}
}

// nameQualitySignal is the fast keyword screen. The metadata provider does
// the deeper regex pass; this one has to hold the hot-path budget.
func nameQualitySignal(name, symbol string) signal.Signal {
	lowerName := strings.ToLower(name)
	lowerSymbol := strings.ToLower(symbol)

	for _, kw := range suspiciousKeywords {
		if strings.Contains(lowerName, kw) || strings.Contains(lowerSymbol, kw) {
			return signal.New(signal.TypeNameQuality, -0.7, 0.9,
				fmt.Sprintf("Name contains suspicious keyword: %s", kw))
		}
	}
	if len(name) < 2 || len(symbol) < 2 {
		return signal.New(signal.TypeNameQuality, -0.3, 0.6, "Very short name/symbol")
	}
	if len(name) > 30 {
		return signal.New(signal.TypeNameQuality, -0.2, 0.5, "Unusually long name")
	}
	if name == strings.ToUpper(name) && len(name) > 4 {
		return signal.New(signal.TypeNameQuality, -0.1, 0.4, "All caps name")
	}
	return signal.Neutral(signal.TypeNameQuality, "Name appears normal")
}
