package profiler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexus-trading/vigil/internal/signal"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Wallet Profiler -- cached realized-P&L profiles per wallet
// ---------------------------------------------------------------------------

// TradeSource supplies a wallet's raw swap legs. The enrichment client
// satisfies this.
type TradeSource interface {
	WalletTrades(ctx context.Context, address string, limit int) ([]signal.TradeRecord, error)
}

// Config tunes the profiler.
type Config struct {
	CacheTTLSecs int         `yaml:"cache_ttl_secs"` // profile freshness window
	TxLimit      int         `yaml:"tx_limit"`       // swap legs fetched per wallet
	Alpha        AlphaConfig `yaml:"alpha"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTLSecs: 3600,
		TxLimit:      100,
		Alpha:        DefaultAlphaConfig(),
	}
}

// Profiler computes and caches wallet profiles. Profiles are recomputed
// wholesale on miss or expiry, never patched incrementally.
type Profiler struct {
	source TradeSource
	config Config

	mu        sync.RWMutex
	profiles  map[string]*Profile
	overrides map[string]Category // bundle/MEV flags from external detectors

	computes  atomic.Int64
	cacheHits atomic.Int64
}

// New creates a profiler backed by the given trade source.
func New(source TradeSource, config Config) *Profiler {
	return &Profiler{
		source:    source,
		config:    config,
		profiles:  make(map[string]*Profile),
		overrides: make(map[string]Category),
	}
}

// Cached returns a fresh cached profile, if any.
func (p *Profiler) Cached(address string) (*Profile, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prof, ok := p.profiles[address]
	if !ok || prof.IsStale(p.ttl()) {
		return nil, false
	}
	return prof, true
}

// GetOrCompute returns the cached profile or computes a fresh one.
func (p *Profiler) GetOrCompute(ctx context.Context, address string) (*Profile, error) {
	if prof, ok := p.Cached(address); ok {
		p.cacheHits.Add(1)
		return prof, nil
	}
	return p.Compute(ctx, address)
}

// Compute fetches the wallet's swap legs, rebuilds the profile, and caches
// it. Category overrides set by detectors survive recomputation.
func (p *Profiler) Compute(ctx context.Context, address string) (*Profile, error) {
	trades, err := p.source.WalletTrades(ctx, address, p.config.TxLimit)
	if err != nil {
		return nil, fmt.Errorf("profiler: fetch trades for %s: %w", address, err)
	}

	prof := ProfileFromTrades(address, trades, p.config.Alpha)
	p.computes.Add(1)

	p.mu.Lock()
	if ov, ok := p.overrides[address]; ok {
		prof.Alpha.Category = ov
	}
	p.profiles[address] = prof
	p.mu.Unlock()

	log.Debug().
		Str("wallet", shortAddr(address)).
		Int("trades", prof.TotalTrades).
		Float64("win_rate", prof.WinRate).
		Float64("alpha", prof.Alpha.Value).
		Str("category", string(prof.Alpha.Category)).
		Msg("profiler: computed wallet profile")
	return prof, nil
}

// MarkBundled pins the wallet's category to BundledTeam. Set by the bundle
// detector; sticks across recomputes until Invalidate.
func (p *Profiler) MarkBundled(address string) {
	p.markCategory(address, CategoryBundledTeam)
}

// MarkMevBot pins the wallet's category to MevBot.
func (p *Profiler) MarkMevBot(address string) {
	p.markCategory(address, CategoryMevBot)
}

func (p *Profiler) markCategory(address string, cat Category) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[address] = cat
	if prof, ok := p.profiles[address]; ok {
		prof.Alpha.Category = cat
	}
	log.Info().
		Str("wallet", shortAddr(address)).
		Str("category", string(cat)).
		Msg("profiler: category override set")
}

// Invalidate drops the cached profile and any category override.
func (p *Profiler) Invalidate(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.profiles, address)
	delete(p.overrides, address)
}

// Clear drops every cached profile (overrides survive).
func (p *Profiler) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles = make(map[string]*Profile)
}

// Size returns the number of cached profiles.
func (p *Profiler) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.profiles)
}

// ProfilerStats is a counters snapshot.
type ProfilerStats struct {
	Cached    int   `json:"cached"`
	Overrides int   `json:"overrides"`
	Computes  int64 `json:"computes"`
	CacheHits int64 `json:"cache_hits"`
}

func (p *Profiler) Stats() ProfilerStats {
	p.mu.RLock()
	cached, overrides := len(p.profiles), len(p.overrides)
	p.mu.RUnlock()
	return ProfilerStats{
		Cached:    cached,
		Overrides: overrides,
		Computes:  p.computes.Load(),
		CacheHits: p.cacheHits.Load(),
	}
}

func (p *Profiler) ttl() time.Duration {
	return time.Duration(p.config.CacheTTLSecs) * time.Second
}

func shortAddr(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:8]
}
