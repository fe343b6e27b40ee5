package filter

import (
	"fmt"
	"regexp"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Pre-gate -- cheap pattern and on-chain screens before scoring
// ---------------------------------------------------------------------------

// GateResult reports whether a launch clears the pre-gate.
type GateResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// PreGate screens launches by name pattern, creator holdings, and initial
// liquidity. It runs before any scoring and rejects outright rather than
// contributing signals.
type PreGate struct {
	config          PreGateConfig
	namePatterns    []*regexp.Regexp
	blockedPatterns []*regexp.Regexp

	checked atomic.Int64
	blocked atomic.Int64
}

// NewPreGate compiles the configured patterns. An invalid pattern is a
// configuration error, not a runtime condition.
func NewPreGate(config PreGateConfig) (*PreGate, error) {
	g := &PreGate{config: config}
	for _, p := range config.NamePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pre-gate: invalid name pattern %q: %w", p, err)
		}
		g.namePatterns = append(g.namePatterns, re)
	}
	for _, p := range config.BlockedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pre-gate: invalid blocked pattern %q: %w", p, err)
		}
		g.blockedPatterns = append(g.blockedPatterns, re)
	}
	return g, nil
}

// Check screens name and symbol. Blocked patterns take precedence over
// required patterns; either field matching a blocked pattern rejects.
func (g *PreGate) Check(name, symbol string) GateResult {
	if !g.config.Enabled {
		return GateResult{Allowed: true}
	}
	g.checked.Add(1)

	for _, re := range g.blockedPatterns {
		if re.MatchString(name) || re.MatchString(symbol) {
			g.blocked.Add(1)
			return GateResult{Reason: fmt.Sprintf("name matches blocked pattern: %s", re.String())}
		}
	}

	if len(g.namePatterns) > 0 {
		matched := false
		for _, re := range g.namePatterns {
			if re.MatchString(name) || re.MatchString(symbol) {
				matched = true
				break
			}
		}
		if !matched {
			g.blocked.Add(1)
			return GateResult{Reason: "name doesn't match required patterns"}
		}
	}

	return GateResult{Allowed: true}
}

// CheckDevHoldings rejects creators holding more than the configured share
// of supply. Percent units: 15.0 means 15%.
func (g *PreGate) CheckDevHoldings(pct float64) GateResult {
	if !g.config.Enabled {
		return GateResult{Allowed: true}
	}
	if pct > g.config.MaxDevHoldingsPct {
		g.blocked.Add(1)
		return GateResult{Reason: fmt.Sprintf("dev holdings %.1f%% exceed maximum %.1f%%",
			pct, g.config.MaxDevHoldingsPct)}
	}
	return GateResult{Allowed: true}
}

// CheckLiquidity rejects launches funded below the minimum. A zero minimum
// disables the check.
func (g *PreGate) CheckLiquidity(sol float64) GateResult {
	if !g.config.Enabled || g.config.MinLiquiditySOL <= 0 {
		return GateResult{Allowed: true}
	}
	if sol < g.config.MinLiquiditySOL {
		g.blocked.Add(1)
		return GateResult{Reason: fmt.Sprintf("liquidity %.4f SOL below minimum %.4f",
			sol, g.config.MinLiquiditySOL)}
	}
	return GateResult{Allowed: true}
}

// CheckOnChain runs the holdings and liquidity screens together.
func (g *PreGate) CheckOnChain(devHoldingsPct, liquiditySOL float64) GateResult {
	if r := g.CheckDevHoldings(devHoldingsPct); !r.Allowed {
		return r
	}
	return g.CheckLiquidity(liquiditySOL)
}

// Enabled reports whether the gate is active.
func (g *PreGate) Enabled() bool {
	return g.config.Enabled
}

// PreGateStats counts screens and rejections.
type PreGateStats struct {
	Checked int64 `json:"checked"`
	Blocked int64 `json:"blocked"`
}

func (g *PreGate) Stats() PreGateStats {
	return PreGateStats{
		Checked: g.checked.Load(),
		Blocked: g.blocked.Load(),
	}
}
