package signal

import (
	"context"
	"time"
)

// Default latency budgets per provider class.
const (
	DefaultHotLatency        = 50 * time.Millisecond
	DefaultBackgroundLatency = 2 * time.Second
)

// Provider produces signals about a token. Implementations must be safe for
// concurrent use; the filter fans out across providers on every score.
//
// A provider that exceeds its MaxLatency budget is cut off: the filter
// cancels its context and substitutes an Unavailable signal. Providers
// should therefore honor ctx and never block on unbounded I/O.
type Provider interface {
	// Name identifies the provider in logs and stats.
	Name() string

	// Types lists every signal type this provider can emit.
	Types() []Type

	// Hot reports whether the provider is part of the pre-buy hot path.
	// Hot providers must work from in-memory data only.
	Hot() bool

	// MaxLatency is the per-call budget the filter enforces.
	MaxLatency() time.Duration

	// TokenSignals scores a token at (or shortly after) launch.
	TokenSignals(ctx context.Context, tc *TokenContext) []Signal
}

// TradeScorer is implemented by providers that also react to individual
// trades on tracked tokens.
type TradeScorer interface {
	TradeSignals(ctx context.Context, tc *TradeContext) []Signal
}

// PositionScorer is implemented by providers that contribute to open
// position reassessment.
type PositionScorer interface {
	PositionSignals(ctx context.Context, pc *PositionContext) []Signal
}
