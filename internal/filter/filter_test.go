package filter

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/vigil/internal/cache"
	"github.com/nexus-trading/vigil/internal/enrich"
	"github.com/nexus-trading/vigil/internal/scoring"
	"github.com/nexus-trading/vigil/internal/signal"
)

// testActors returns a non-empty registry so the filter does not start in
// actors-failed mode.
func testActors() *cache.KnownActors {
	actors := cache.NewKnownActors(cache.ActorsConfig{})
	actors.AddDeployer("blacklisted-deployer")
	return actors
}

// newHealthyFilter returns a filter with warm cache and loaded actors, so
// tests exercise scoring without degraded-mode penalties.
func newHealthyFilter() *Filter {
	f := New(DefaultConfig(), cache.New(cache.DefaultConfig()), testActors())
	f.MarkCacheWarm()
	return f
}

func launch(mint, creator string, marketCapSOL float64) *signal.TokenContext {
	return &signal.TokenContext{
		Mint:         mint,
		Name:         "Solid Token",
		Symbol:       "SLD",
		Creator:      creator,
		MarketCapSOL: marketCapSOL,
		LaunchTime:   time.Now(),
	}
}

func findSignal(t *testing.T, sigs []signal.Signal, st signal.Type) signal.Signal {
	t.Helper()
	for _, s := range sigs {
		if s.Type == st {
			return s
		}
	}
	t.Fatalf("no %s signal emitted", st)
	return signal.Signal{}
}

func signalsOfType(sigs []signal.Signal, st signal.Type) []signal.Signal {
	var out []signal.Signal
	for _, s := range sigs {
		if s.Type == st {
			out = append(out, s)
		}
	}
	return out
}

// stubProvider emits fixed signals, optionally after a delay to trip the
// latency budget.
type stubProvider struct {
	name    string
	hot     bool
	budget  time.Duration
	delay   time.Duration
	signals []signal.Signal
}

func (s *stubProvider) Name() string         { return s.name }
func (s *stubProvider) Types() []signal.Type { return []signal.Type{signal.TypeVolumeSpike} }
func (s *stubProvider) Hot() bool            { return s.hot }

func (s *stubProvider) MaxLatency() time.Duration {
	if s.budget > 0 {
		return s.budget
	}
	return 50 * time.Millisecond
}

func (s *stubProvider) TokenSignals(ctx context.Context, tc *signal.TokenContext) []signal.Signal {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.signals
}

// positionalStub also emits position-aware signals.
type positionalStub struct {
	stubProvider
	positional []signal.Signal
}

func (s *positionalStub) PositionSignals(ctx context.Context, pc *signal.PositionContext) []signal.Signal {
	return s.positional
}

func bullishStub(hot bool) *stubProvider {
	return &stubProvider{
		name: "bullish",
		hot:  hot,
		signals: []signal.Signal{
			signal.New(signal.TypeVolumeSpike, 0.9, 1.0, "Volume spike: 6.0x baseline"),
			signal.New(signal.TypeAccumulationPattern, 0.9, 1.0, "Accumulation: 8.0 buy/sell ratio"),
			signal.New(signal.TypeCreatorBuyback, 0.8, 0.9, "Creator buying back own token"),
			signal.New(signal.TypeFirstTradesQuality, 0.8, 0.9, "Strong launch"),
		},
	}
}

func TestFilter_ScoreFastEmptyMintFailsClosed(t *testing.T) {
	f := newHealthyFilter()

	result := f.ScoreFast(context.Background(), &signal.TokenContext{})

	assert.Equal(t, -1.0, result.Score)
	assert.Equal(t, 1.0, result.RiskScore)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, scoring.RecAvoid, result.Recommendation)
	assert.Zero(t, result.SizeMultiplier)
	assert.Contains(t, result.Summary, "FAIL-CLOSED: Empty mint address")

	st := f.Stats()
	assert.Equal(t, int64(1), st.FastScores)
	assert.Equal(t, int64(1), st.FailClosed)
}

func TestFilter_ScoreFastStrongBuy(t *testing.T) {
	f := newHealthyFilter()
	f.RegisterProvider(bullishStub(true))

	result := f.ScoreFast(context.Background(), launch("mint-sb", "good-dev", 2.0))

	assert.Equal(t, scoring.RecStrongBuy, result.Recommendation)
	assert.GreaterOrEqual(t, result.Score, 0.40)
	assert.Greater(t, result.SizeMultiplier, 1.0)
	assert.True(t, result.Recommendation.IsTrading())
	assert.Contains(t, result.Summary, "STRONG_BUY")
}

func TestFilter_ScoreFastBlacklistedScamAvoid(t *testing.T) {
	f := newHealthyFilter()

	tc := launch("mint-bad", "blacklisted-deployer", 0.05)
	tc.Name = "FREE 1000x Gem"
	tc.Symbol = "FREE"

	result := f.ScoreFast(context.Background(), tc)

	assert.Equal(t, scoring.RecAvoid, result.Recommendation)
	assert.InDelta(t, -0.7915, result.Score, 0.001)
	assert.InDelta(t, 1.0, result.RiskScore, 1e-9)
	assert.Zero(t, result.SizeMultiplier)

	deployer := findSignal(t, result.Signals, signal.TypeKnownDeployer)
	assert.Equal(t, -1.0, deployer.Value)
}

func TestFilter_ColdCachePenalty(t *testing.T) {
	f := New(DefaultConfig(), cache.New(cache.DefaultConfig()), testActors())

	result := f.ScoreFast(context.Background(), launch("mint-c", "dev", 2.0))
	assert.InDelta(t, 0.9*0.8, result.Confidence, 1e-9)
	assert.Contains(t, result.Summary, "[DEGRADED MODE: conf penalty 20%]")

	st := f.Stats()
	assert.True(t, st.Degraded)
	assert.True(t, st.CacheCold)
	assert.False(t, st.ActorsFailed)

	f.MarkCacheWarm()
	result = f.ScoreFast(context.Background(), launch("mint-c", "dev", 2.0))
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	assert.NotContains(t, result.Summary, "DEGRADED")
	assert.False(t, f.Stats().Degraded)
}

func TestFilter_ActorsFailedOffset(t *testing.T) {
	missing := cache.NewKnownActors(cache.ActorsConfig{
		DeployersFile: filepath.Join(t.TempDir(), "absent.txt"),
	})
	fa := New(DefaultConfig(), cache.New(cache.DefaultConfig()), missing)
	fa.MarkCacheWarm()

	fb := newHealthyFilter()

	ra := fa.ScoreFast(context.Background(), launch("mint-x", "dev", 2.0))
	rb := fb.ScoreFast(context.Background(), launch("mint-x", "dev", 2.0))

	assert.InDelta(t, rb.Score-0.02, ra.Score, 1e-9)
	assert.InDelta(t, rb.Confidence*0.9, ra.Confidence, 1e-9)

	st := fa.Stats()
	assert.True(t, st.Degraded)
	assert.True(t, st.ActorsFailed)
	assert.False(t, st.CacheCold)
	assert.Equal(t, "known actors files not found", st.DegradedReason)
}

func TestFilter_FullDegradedDowngrade(t *testing.T) {
	actors := cache.NewKnownActors(cache.ActorsConfig{
		DeployersFile: filepath.Join(t.TempDir(), "absent.txt"),
	})
	f := New(DefaultConfig(), cache.New(cache.DefaultConfig()), actors)
	f.MarkBackgroundUnavailable("enrichment api down")

	// Twelve weak reads: confident enough raw to rate OPPORTUNITY, but the
	// compounded penalty pushes confidence under the floor.
	weak := make([]signal.Signal, 0, 12)
	for i := 0; i < 12; i++ {
		weak = append(weak, signal.New(signal.TypeVolumeSpike, 0.5, 0.1, "weak read"))
	}
	f.RegisterProvider(&stubProvider{name: "weak", hot: true, signals: weak})

	result := f.ScoreFast(context.Background(), launch("mint-d", "dev", 2.0))

	assert.Equal(t, scoring.RecObserve, result.Recommendation)
	assert.Zero(t, result.SizeMultiplier)
	assert.InDelta(t, 0.1658, result.Score, 0.001)
	assert.Contains(t, result.Summary, "DEGRADED MODE: conf penalty 50%")

	st := f.Stats()
	assert.True(t, st.Degraded)
	assert.True(t, st.CacheCold)
	assert.True(t, st.ActorsFailed)
	assert.True(t, st.BackgroundDown)
	assert.Equal(t, "enrichment api down", st.DegradedReason)
}

func TestFilter_HotProviderTimeout(t *testing.T) {
	f := newHealthyFilter()
	f.RegisterProvider(&stubProvider{
		name:    "slow",
		hot:     true,
		budget:  25 * time.Millisecond,
		delay:   150 * time.Millisecond,
		signals: bullishStub(true).signals,
	})

	result := f.ScoreFast(context.Background(), launch("mint-t", "dev", 2.0))

	// Builtins plus one unavailable placeholder; the bullish signals never
	// made it in.
	assert.Len(t, result.Signals, 4)
	ua := findSignal(t, result.Signals, signal.TypeWalletHistory)
	assert.Zero(t, ua.Confidence)
	assert.Equal(t, "Provider slow timed out", ua.Reason)

	assert.Equal(t, int64(1), f.Stats().ProviderTimeouts)
}

func TestFilter_FullScoringTimeoutSkips(t *testing.T) {
	f := newHealthyFilter()
	f.RegisterProvider(&stubProvider{
		name:   "slow-bg",
		hot:    false,
		budget: 25 * time.Millisecond,
		delay:  150 * time.Millisecond,
	})

	result := f.ScoreFull(context.Background(), launch("mint-t2", "dev", 2.0))

	assert.Len(t, result.Signals, 3)
	assert.Empty(t, signalsOfType(result.Signals, signal.TypeWalletHistory))
	assert.Equal(t, int64(1), f.Stats().ProviderTimeouts)
}

func TestFilter_ScoreFullIncludesBackgroundLane(t *testing.T) {
	f := newHealthyFilter()
	f.RegisterProvider(bullishStub(false))

	fast := f.ScoreFast(context.Background(), launch("mint-l", "dev", 2.0))
	full := f.ScoreFull(context.Background(), launch("mint-l", "dev", 2.0))

	assert.Len(t, fast.Signals, 3)
	assert.Len(t, full.Signals, 7)
	assert.Greater(t, full.Score, fast.Score)

	st := f.Stats()
	assert.Equal(t, int64(1), st.FastScores)
	assert.Equal(t, int64(1), st.FullScores)
}

func TestFilter_EnrichmentWarmsCache(t *testing.T) {
	c := cache.New(cache.DefaultConfig())
	f := New(DefaultConfig(), c, testActors())

	stub := enrich.NewStubClient()
	now := time.Now()
	mints := []string{"warm-1", "warm-2", "warm-3", "warm-4"}
	for i, mint := range mints {
		creator := "creator-" + mint
		stub.SetMintInfo(&signal.MintInfo{Mint: mint, FetchedAt: now})
		stub.SetWalletHistory(&signal.WalletHistory{
			Address:   creator,
			FirstSeen: now.Add(-time.Duration(100+i) * 24 * time.Hour),
			FetchedAt: now,
		})
		stub.SetHolders(&signal.TokenDistribution{
			Mint: mint, HolderCount: 30, TopHolderPct: 0.10, Top5Pct: 0.30, FetchedAt: now,
		})
	}
	f.SetEnrichment(enrich.NewService(enrich.DefaultServiceConfig(), stub, c))

	first := f.ScoreFast(context.Background(), launch(mints[0], "creator-"+mints[0], 2.0))
	assert.Contains(t, first.Summary, "DEGRADED")

	for _, mint := range mints[1:3] {
		f.ScoreFast(context.Background(), launch(mint, "creator-"+mint, 2.0))
	}
	require.True(t, f.Stats().CacheCold, "9 cached entries should not warm the cache yet")

	last := f.ScoreFast(context.Background(), launch(mints[3], "creator-"+mints[3], 2.0))
	assert.NotContains(t, last.Summary, "DEGRADED")

	st := f.Stats()
	assert.False(t, st.CacheCold)
	assert.False(t, st.Degraded)
	assert.True(t, c.HasTokenData(mints[0]))
}

func TestFilter_ReassessHealthyPositionHolds(t *testing.T) {
	f := newHealthyFilter()
	f.RegisterProvider(bullishStub(false))

	pc := &signal.PositionContext{
		Mint:         "mint-pos",
		EntryPrice:   1.0e-8,
		CurrentPrice: 1.2e-8,
		PositionSOL:  0.5,
		EntryTime:    time.Now().Add(-2 * time.Minute),
		Token:        launch("mint-pos", "good-dev", 2.0),
	}

	r := f.Reassess(context.Background(), pc, 0.30)

	assert.Equal(t, ReassessHold, r.Action)
	assert.Equal(t, "position healthy", r.Reason)
	assert.Equal(t, "mint-pos", r.Mint)
	assert.Equal(t, 0.30, r.PreviousScore)
	assert.InDelta(t, r.CurrentScore-0.30, r.ScoreDelta, 1e-9)

	st := f.Stats()
	assert.Equal(t, int64(1), st.Reassessments)
	assert.Zero(t, st.ExitRecommendations)
}

func TestFilter_ReassessExitOnScoreFloor(t *testing.T) {
	f := newHealthyFilter()

	// Creator lands on the blacklist after entry.
	f.actors.AddDeployer("turncoat-dev")

	pc := &signal.PositionContext{
		Mint:        "mint-exit",
		EntryPrice:  1.0e-8,
		PositionSOL: 0.5,
		EntryTime:   time.Now().Add(-5 * time.Minute),
		Token:       launch("mint-exit", "turncoat-dev", 2.0),
	}

	r := f.Reassess(context.Background(), pc, 0.35)

	assert.Equal(t, ReassessExit, r.Action)
	assert.Contains(t, r.Reason, "below exit floor")
	assert.Less(t, r.CurrentScore, -0.5)
	assert.InDelta(t, 1.0, r.CurrentRisk, 1e-9)
	assert.Less(t, r.ScoreDelta, 0.0)

	st := f.Stats()
	assert.Equal(t, int64(1), st.Reassessments)
	assert.Equal(t, int64(1), st.ExitRecommendations)
}

func TestFilter_ReassessExitOnRiskCeiling(t *testing.T) {
	f := newHealthyFilter()
	f.actors.AddDeployer("turncoat-dev")
	f.RegisterProvider(bullishStub(false))

	pc := &signal.PositionContext{
		Mint:      "mint-risk",
		EntryTime: time.Now().Add(-5 * time.Minute),
		Token:     launch("mint-risk", "turncoat-dev", 2.0),
	}

	// Momentum keeps the blended score above the floor, but the deployer
	// hit alone maxes out the risk axis.
	r := f.Reassess(context.Background(), pc, 0.40)

	assert.Equal(t, ReassessExit, r.Action)
	assert.Contains(t, r.Reason, "above exit ceiling")
	assert.Greater(t, r.CurrentScore, -0.5)
	assert.InDelta(t, 1.0, r.CurrentRisk, 1e-9)
}

func TestFilter_ReassessFoldsPositionSignals(t *testing.T) {
	pc := &signal.PositionContext{
		Mint:      "mint-fold",
		EntryTime: time.Now().Add(-3 * time.Minute),
		Token:     launch("mint-fold", "dev", 2.0),
	}

	bare := newHealthyFilter()
	assert.Equal(t, ReassessHold, bare.Reassess(context.Background(), pc, 0.1).Action)

	f := newHealthyFilter()
	f.RegisterProvider(&positionalStub{
		stubProvider: stubProvider{name: "position-watch", hot: false},
		positional: []signal.Signal{
			signal.New(signal.TypeEarlySellPressure, -0.9, 1.0, "Observed buyers dumping"),
			signal.New(signal.TypeWashTrading, -0.8, 0.9, "Circular flow after entry"),
		},
	})

	r := f.Reassess(context.Background(), pc, 0.1)
	assert.Equal(t, ReassessExit, r.Action)
	assert.Contains(t, r.Reason, "above exit ceiling")
}

func TestFilter_ReassessDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reassessment.Enabled = false
	f := New(cfg, cache.New(cache.DefaultConfig()), testActors())
	f.MarkCacheWarm()

	pc := &signal.PositionContext{Mint: "mint-off", Token: launch("mint-off", "dev", 2.0)}
	r := f.Reassess(context.Background(), pc, 0.25)

	assert.Equal(t, ReassessHold, r.Action)
	assert.Equal(t, "reassessment disabled", r.Reason)
	assert.Equal(t, 0.25, r.CurrentScore)
	assert.Zero(t, f.Stats().Reassessments)
}

func TestFilter_ShouldRescoreOnTrade(t *testing.T) {
	f := newHealthyFilter()
	assert.False(t, f.ShouldRescoreOnTrade(5.0), "disabled by default")

	cfg := DefaultConfig()
	cfg.Reassessment.RescoreOnLargeTrade = true
	f = New(cfg, cache.New(cache.DefaultConfig()), testActors())
	assert.True(t, f.ShouldRescoreOnTrade(1.0))
	assert.True(t, f.ShouldRescoreOnTrade(3.5))
	assert.False(t, f.ShouldRescoreOnTrade(0.99))
}

func TestFilter_WeightOverridesApplied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{
		"volume_spike": 5.0,
		"not_a_type":   9.9,
	}
	f := New(cfg, cache.New(cache.DefaultConfig()), testActors())

	w := f.Engine().Weights()
	assert.Equal(t, 5.0, w[signal.TypeVolumeSpike])
	_, ok := w[signal.Type("not_a_type")]
	assert.False(t, ok, "unknown weight keys must be dropped")
}

func TestFilter_StatsTracksLatencyAndLanes(t *testing.T) {
	f := newHealthyFilter()
	f.RegisterProvider(bullishStub(true))
	f.RegisterProvider(bullishStub(false))

	for i := 0; i < 5; i++ {
		f.ScoreFast(context.Background(), launch("mint-s", "dev", 2.0))
	}
	f.ScoreFull(context.Background(), launch("mint-s", "dev", 2.0))

	st := f.Stats()
	assert.Equal(t, int64(5), st.FastScores)
	assert.Equal(t, int64(1), st.FullScores)
	assert.Equal(t, 1, st.HotProviders)
	assert.Equal(t, 1, st.BackgroundProviders)
	assert.Greater(t, st.HotLatencyMeanMs, 0.0)
	assert.GreaterOrEqual(t, st.HotLatencyP99Ms, st.HotLatencyMeanMs)
}
