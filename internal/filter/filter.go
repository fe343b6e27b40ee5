package filter

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/vigil/internal/cache"
	"github.com/nexus-trading/vigil/internal/enrich"
	"github.com/nexus-trading/vigil/internal/scoring"
	"github.com/nexus-trading/vigil/internal/signal"
)

// ---------------------------------------------------------------------------
// Adaptive Filter -- two-lane scoring with degraded-mode fallbacks
// ---------------------------------------------------------------------------

const (
	// cacheWarmEntries is the cache population at which cold mode ends.
	cacheWarmEntries = 10

	// latencySampleSize bounds the hot-path latency ring.
	latencySampleSize = 512
)

// degradedState tracks impaired subsystems. Scoring never halts when
// inputs go missing; it continues with compounded confidence penalties.
type degradedState struct {
	backgroundUnavailable bool
	cacheCold             bool
	actorsFailed          bool
	reason                string
}

func (d degradedState) active() bool {
	return d.backgroundUnavailable || d.cacheCold || d.actorsFailed
}

// confidencePenalty compounds one factor per impaired subsystem.
func (d degradedState) confidencePenalty() float64 {
	penalty := 1.0
	if d.backgroundUnavailable {
		penalty *= 0.70
	}
	if d.cacheCold {
		penalty *= 0.80
	}
	if d.actorsFailed {
		penalty *= 0.90
	}
	return penalty
}

// Filter is the scoring front door. ScoreFast serves the pre-buy hot path
// under a hard latency budget; ScoreFull adds background providers for
// reassessment and post-entry monitoring.
type Filter struct {
	config Config
	engine *scoring.Engine
	cache  *cache.Cache
	actors *cache.KnownActors

	mu         sync.RWMutex
	hot        []signal.Provider
	background []signal.Provider
	enrichment *enrich.Service
	degraded   degradedState

	fastScores    atomic.Int64
	fullScores    atomic.Int64
	failedClosed  atomic.Int64
	timeouts      atomic.Int64
	reassessments atomic.Int64
	exitCalls     atomic.Int64

	latMu   sync.Mutex
	latRing []float64
	latIdx  int
}

// New builds the filter around a fresh scoring engine. The filter starts
// in cold-cache degraded mode; known-actor coverage is degraded when the
// registries are empty and the deployer file is missing.
func New(config Config, c *cache.Cache, actors *cache.KnownActors) *Filter {
	engine := scoring.NewEngine(config.Thresholds)
	if w := config.SignalWeights(); len(w) > 0 {
		engine.SetWeights(w)
	}

	f := &Filter{
		config:  config,
		engine:  engine,
		cache:   c,
		actors:  actors,
		latRing: make([]float64, 0, latencySampleSize),
		degraded: degradedState{
			cacheCold: true,
			reason:    "cache cold",
		},
	}

	if actors.Empty() {
		if _, err := os.Stat(actors.Config().DeployersFile); err != nil {
			f.degraded.actorsFailed = true
			f.degraded.reason = "known actors files not found"
		}
	}

	if f.degraded.active() {
		log.Warn().
			Bool("cache_cold", f.degraded.cacheCold).
			Bool("actors_failed", f.degraded.actorsFailed).
			Msg("filter: starting in degraded mode")
	}
	return f
}

// RegisterProvider routes a provider to the hot or background lane.
func (f *Filter) RegisterProvider(p signal.Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Hot() {
		f.hot = append(f.hot, p)
		log.Debug().Str("provider", p.Name()).Msg("filter: hot-path provider registered")
	} else {
		f.background = append(f.background, p)
		log.Debug().Str("provider", p.Name()).Msg("filter: background provider registered")
	}
}

// SetEnrichment attaches the enrichment service. Unseen mints then get a
// synchronous enrich attempt before fast scoring.
func (f *Filter) SetEnrichment(svc *enrich.Service) {
	f.mu.Lock()
	f.enrichment = svc
	f.mu.Unlock()
	log.Info().Msg("filter: enrichment service attached")
}

// ScoreFast scores a launch on the hot path: builtin checks plus hot
// providers, each under its own latency budget. A provider that misses
// its budget contributes an unavailable signal instead of blocking.
func (f *Filter) ScoreFast(ctx context.Context, tc *signal.TokenContext) scoring.Result {
	start := time.Now()
	f.fastScores.Add(1)

	if tc.Mint == "" {
		f.failedClosed.Add(1)
		return scoring.FailClosed("Empty mint address")
	}

	f.maybeEnrich(ctx, tc)

	signals := f.builtinSignals(tc)

	f.mu.RLock()
	hot := append([]signal.Provider(nil), f.hot...)
	f.mu.RUnlock()

	for _, p := range hot {
		sigs, ok := f.collect(ctx, p, tc)
		if !ok {
			f.timeouts.Add(1)
			log.Warn().
				Str("provider", p.Name()).
				Int64("budget_ms", p.MaxLatency().Milliseconds()).
				Msg("filter: hot provider timed out")
			signals = append(signals, signal.Unavailable(signal.TypeWalletHistory,
				fmt.Sprintf("Provider %s timed out", p.Name())))
			continue
		}
		signals = append(signals, sigs...)
	}

	result := f.engine.Score(signals)
	f.applyDegraded(&result)

	elapsed := time.Since(start)
	f.recordLatency(elapsed)

	log.Debug().
		Str("mint", tc.Mint).
		Float64("score", result.Score).
		Str("recommendation", string(result.Recommendation)).
		Int64("latency_ms", elapsed.Milliseconds()).
		Int("signals", len(result.Signals)).
		Msg("filter: fast scoring complete")
	return result
}

// ScoreFull scores with builtin checks plus every registered provider.
// Timeouts here are logged and skipped; no placeholder signal is added.
func (f *Filter) ScoreFull(ctx context.Context, tc *signal.TokenContext) scoring.Result {
	start := time.Now()
	f.fullScores.Add(1)

	if tc.Mint == "" {
		f.failedClosed.Add(1)
		return scoring.FailClosed("Empty mint address")
	}

	f.maybeEnrich(ctx, tc)

	signals := f.builtinSignals(tc)

	f.mu.RLock()
	providers := make([]signal.Provider, 0, len(f.hot)+len(f.background))
	providers = append(providers, f.hot...)
	providers = append(providers, f.background...)
	f.mu.RUnlock()

	for _, p := range providers {
		sigs, ok := f.collect(ctx, p, tc)
		if !ok {
			f.timeouts.Add(1)
			log.Warn().Str("provider", p.Name()).Msg("filter: provider timed out during full scoring")
			continue
		}
		signals = append(signals, sigs...)
	}

	result := f.engine.Score(signals)
	f.applyDegraded(&result)

	log.Debug().
		Str("mint", tc.Mint).
		Float64("score", result.Score).
		Str("recommendation", string(result.Recommendation)).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Int("signals", len(result.Signals)).
		Msg("filter: full scoring complete")
	return result
}

// collect runs one provider under its own latency budget.
func (f *Filter) collect(ctx context.Context, p signal.Provider, tc *signal.TokenContext) ([]signal.Signal, bool) {
	cctx, cancel := context.WithTimeout(ctx, p.MaxLatency())
	defer cancel()

	done := make(chan []signal.Signal, 1)
	go func() { done <- p.TokenSignals(cctx, tc) }()

	select {
	case sigs := <-done:
		return sigs, true
	case <-cctx.Done():
		return nil, false
	}
}

// maybeEnrich runs synchronous enrichment for unseen mints and exits cold
// mode once the cache holds enough entries to score against.
func (f *Filter) maybeEnrich(ctx context.Context, tc *signal.TokenContext) {
	f.mu.RLock()
	svc := f.enrichment
	cold := f.degraded.cacheCold
	f.mu.RUnlock()

	if svc == nil || f.cache.HasTokenData(tc.Mint) {
		return
	}
	if !svc.EnrichToken(ctx, tc) {
		return
	}
	if cold && f.cache.TotalCached() > cacheWarmEntries {
		f.MarkCacheWarm()
	}
}

// applyDegraded compounds confidence penalties for impaired subsystems and
// downgrades recommendations that no longer clear the confidence floor.
func (f *Filter) applyDegraded(result *scoring.Result) {
	f.mu.RLock()
	d := f.degraded
	f.mu.RUnlock()
	if !d.active() {
		return
	}

	penalty := d.confidencePenalty()
	result.Confidence *= penalty

	// Without actor registries a clean blacklist verdict means nothing,
	// so every token carries a small extra risk offset.
	if d.actorsFailed {
		result.Score -= 0.02
		if result.Score < -1 {
			result.Score = -1
		}
	}

	if result.Confidence < f.engine.Thresholds().MinConfidence {
		switch result.Recommendation {
		case scoring.RecStrongBuy:
			result.Recommendation = scoring.RecOpportunity
			result.SizeMultiplier = 1.0
		case scoring.RecOpportunity, scoring.RecProbe:
			result.Recommendation = scoring.RecObserve
			result.SizeMultiplier = 0
		}
	}

	result.Summary = fmt.Sprintf("%s [DEGRADED MODE: conf penalty %.0f%%]",
		result.Summary, (1-penalty)*100)
}

// ---------------------------------------------------------------------------
// Position reassessment
// ---------------------------------------------------------------------------

// ReassessAction is the verdict on an open position.
type ReassessAction string

const (
	ReassessHold ReassessAction = "HOLD"
	ReassessExit ReassessAction = "EXIT"
)

// Reassessment is the outcome of rescoring an open position.
type Reassessment struct {
	Mint          string         `json:"mint"`
	PreviousScore float64        `json:"previous_score"`
	CurrentScore  float64        `json:"current_score"`
	ScoreDelta    float64        `json:"score_delta"`
	CurrentRisk   float64        `json:"current_risk"`
	Action        ReassessAction `json:"action"`
	Reason        string         `json:"reason"`
}

// Reassess rescores an open position with the full provider set, folding
// in position-aware signals from providers that emit them. Exit is
// recommended when the score falls below the exit floor or risk rises
// above the exit ceiling.
func (f *Filter) Reassess(ctx context.Context, pc *signal.PositionContext, previousScore float64) Reassessment {
	rc := f.config.Reassessment
	if !rc.Enabled {
		return Reassessment{
			Mint:          pc.Mint,
			PreviousScore: previousScore,
			CurrentScore:  previousScore,
			Action:        ReassessHold,
			Reason:        "reassessment disabled",
		}
	}
	f.reassessments.Add(1)

	var result scoring.Result
	if pc.Token == nil {
		f.failedClosed.Add(1)
		result = scoring.FailClosed("Position missing token context")
	} else {
		result = f.ScoreFull(ctx, pc.Token)
		if extra := f.positionSignals(ctx, pc); len(extra) > 0 {
			result = f.engine.Score(append(result.Signals, extra...))
			f.applyDegraded(&result)
		}
	}

	action := ReassessHold
	reason := "position healthy"
	switch {
	case result.Score < rc.ExitOnScoreBelow:
		action = ReassessExit
		reason = fmt.Sprintf("score %.2f below exit floor %.2f", result.Score, rc.ExitOnScoreBelow)
	case result.RiskScore > rc.ExitOnRiskAbove:
		action = ReassessExit
		reason = fmt.Sprintf("risk %.2f above exit ceiling %.2f", result.RiskScore, rc.ExitOnRiskAbove)
	}

	if action == ReassessExit {
		f.exitCalls.Add(1)
		log.Warn().
			Str("mint", pc.Mint).
			Float64("score", result.Score).
			Float64("risk", result.RiskScore).
			Str("reason", reason).
			Msg("filter: reassessment recommends exit")
	}

	return Reassessment{
		Mint:          pc.Mint,
		PreviousScore: previousScore,
		CurrentScore:  result.Score,
		ScoreDelta:    result.Score - previousScore,
		CurrentRisk:   result.RiskScore,
		Action:        action,
		Reason:        reason,
	}
}

// positionSignals collects signals from providers that understand open
// positions.
func (f *Filter) positionSignals(ctx context.Context, pc *signal.PositionContext) []signal.Signal {
	f.mu.RLock()
	providers := make([]signal.Provider, 0, len(f.hot)+len(f.background))
	providers = append(providers, f.hot...)
	providers = append(providers, f.background...)
	f.mu.RUnlock()

	var out []signal.Signal
	for _, p := range providers {
		ps, ok := p.(signal.PositionScorer)
		if !ok {
			continue
		}
		out = append(out, ps.PositionSignals(ctx, pc)...)
	}
	return out
}

// ShouldRescoreOnTrade reports whether a trade of the given size on a held
// mint warrants an immediate reassessment.
func (f *Filter) ShouldRescoreOnTrade(amountSOL float64) bool {
	rc := f.config.Reassessment
	return rc.Enabled && rc.RescoreOnLargeTrade && amountSOL >= rc.LargeTradeThresholdSOL
}

// ---------------------------------------------------------------------------
// Degraded-mode controls and stats
// ---------------------------------------------------------------------------

// MarkCacheWarm clears cold-cache degradation.
func (f *Filter) MarkCacheWarm() {
	f.mu.Lock()
	changed := f.degraded.cacheCold
	f.degraded.cacheCold = false
	f.mu.Unlock()
	if changed {
		log.Info().Int("cached", f.cache.TotalCached()).Msg("filter: cache warmed up, exiting cold mode")
	}
}

// MarkBackgroundUnavailable flags the background/enrichment lane as down.
func (f *Filter) MarkBackgroundUnavailable(reason string) {
	f.mu.Lock()
	f.degraded.backgroundUnavailable = true
	f.degraded.reason = reason
	f.mu.Unlock()
	log.Warn().Str("reason", reason).Msg("filter: background lane unavailable")
}

// MarkBackgroundAvailable clears background degradation.
func (f *Filter) MarkBackgroundAvailable() {
	f.mu.Lock()
	f.degraded.backgroundUnavailable = false
	f.mu.Unlock()
	log.Info().Msg("filter: background lane recovered")
}

// IsDegraded reports whether any subsystem is impaired.
func (f *Filter) IsDegraded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.degraded.active()
}

// Engine exposes the scoring engine for weight retuning.
func (f *Filter) Engine() *scoring.Engine { return f.engine }

// Cache exposes the shared enrichment cache.
func (f *Filter) Cache() *cache.Cache { return f.cache }

// Config returns the filter configuration.
func (f *Filter) Config() Config { return f.config }

func (f *Filter) recordLatency(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	f.latMu.Lock()
	if len(f.latRing) < latencySampleSize {
		f.latRing = append(f.latRing, ms)
	} else {
		f.latRing[f.latIdx] = ms
		f.latIdx = (f.latIdx + 1) % latencySampleSize
	}
	f.latMu.Unlock()
}

// latencySnapshot returns mean and p99 over the retained samples.
func (f *Filter) latencySnapshot() (mean, p99 float64) {
	f.latMu.Lock()
	samples := append([]float64(nil), f.latRing...)
	f.latMu.Unlock()

	if len(samples) == 0 {
		return 0, 0
	}
	sort.Float64s(samples)
	var sum float64
	for _, v := range samples {
		sum += v
	}
	idx := int(math.Ceil(0.99*float64(len(samples)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sum / float64(len(samples)), samples[idx]
}

// Stats is a point-in-time filter snapshot.
type Stats struct {
	FastScores          int64   `json:"fast_scores"`
	FullScores          int64   `json:"full_scores"`
	FailClosed          int64   `json:"fail_closed"`
	ProviderTimeouts    int64   `json:"provider_timeouts"`
	Reassessments       int64   `json:"reassessments"`
	ExitRecommendations int64   `json:"exit_recommendations"`
	HotProviders        int     `json:"hot_providers"`
	BackgroundProviders int     `json:"background_providers"`
	Degraded            bool    `json:"degraded"`
	DegradedReason      string  `json:"degraded_reason,omitempty"`
	CacheCold           bool    `json:"cache_cold"`
	ActorsFailed        bool    `json:"actors_failed"`
	BackgroundDown      bool    `json:"background_down"`
	HotLatencyMeanMs    float64 `json:"hot_latency_mean_ms"`
	HotLatencyP99Ms     float64 `json:"hot_latency_p99_ms"`
}

func (f *Filter) Stats() Stats {
	mean, p99 := f.latencySnapshot()
	f.mu.RLock()
	defer f.mu.RUnlock()
	reason := f.degraded.reason
	if !f.degraded.active() {
		reason = ""
	}
	return Stats{
		FastScores:          f.fastScores.Load(),
		FullScores:          f.fullScores.Load(),
		FailClosed:          f.failedClosed.Load(),
		ProviderTimeouts:    f.timeouts.Load(),
		Reassessments:       f.reassessments.Load(),
		ExitRecommendations: f.exitCalls.Load(),
		HotProviders:        len(f.hot),
		BackgroundProviders: len(f.background),
		Degraded:            f.degraded.active(),
		DegradedReason:      reason,
		CacheCold:           f.degraded.cacheCold,
		ActorsFailed:        f.degraded.actorsFailed,
		BackgroundDown:      f.degraded.backgroundUnavailable,
		HotLatencyMeanMs:    mean,
		HotLatencyP99Ms:     p99,
	}
}
