// Command vigil scores pump.fun token launches in real time and guards the
// positions opened on its recommendations. It consumes launch and trade
// events from the bus, runs the adaptive filter over every launch, validates
// momentum on observed tokens, and publishes scoring decisions and exit
// alerts. Health, stats, metrics and operator controls are served over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nexus-trading/vigil/internal/bundle"
	"github.com/nexus-trading/vigil/internal/bus"
	"github.com/nexus-trading/vigil/internal/cache"
	"github.com/nexus-trading/vigil/internal/config"
	"github.com/nexus-trading/vigil/internal/enrich"
	"github.com/nexus-trading/vigil/internal/filter"
	"github.com/nexus-trading/vigil/internal/guard"
	"github.com/nexus-trading/vigil/internal/journal"
	"github.com/nexus-trading/vigil/internal/momentum"
	"github.com/nexus-trading/vigil/internal/observability"
	"github.com/nexus-trading/vigil/internal/profiler"
	"github.com/nexus-trading/vigil/internal/providers"
	"github.com/nexus-trading/vigil/internal/scoring"
	sig "github.com/nexus-trading/vigil/internal/signal"
)

// controlState carries the operator toggles shared between the HTTP control
// endpoints and the event handlers.
type controlState struct {
	paused atomic.Bool
}

// tokenState follows one mint through its vigil lifecycle: scored at launch,
// optionally observed for momentum, then guarded once a position opens.
// Position sizing and fills live downstream; vigil keeps just enough state
// to drive reassessment, the kill switch, and tuner outcomes.
type tokenState struct {
	tc           *sig.TokenContext
	signals      []sig.Signal
	entered      bool
	holdersArmed bool
	entryTime    time.Time
	entryPrice   float64
	lastPrice    float64
	lastScore    float64
}

// positionView is the JSON shape served on /positions.
type positionView struct {
	Mint         string    `json:"mint"`
	Symbol       string    `json:"symbol"`
	Entered      bool      `json:"entered"`
	HoldersArmed bool      `json:"holders_armed"`
	EntryPrice   float64   `json:"entry_price"`
	LastPrice    float64   `json:"last_price"`
	LastScore    float64   `json:"last_score"`
	EntryTime    time.Time `json:"entry_time"`
}

type positionBook struct {
	mu      sync.Mutex
	tracked map[string]*tokenState
}

func newPositionBook() *positionBook {
	return &positionBook{tracked: make(map[string]*tokenState)}
}

func (b *positionBook) track(mint string, st *tokenState) {
	b.mu.Lock()
	b.tracked[mint] = st
	b.mu.Unlock()
}

// tokenContext returns the launch context captured for a mint. The context
// is never mutated after the launch handler builds it.
func (b *positionBook) tokenContext(mint string) (*sig.TokenContext, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.tracked[mint]
	if !ok {
		return nil, false
	}
	return st.tc, true
}

func (b *positionBook) view(mint string) (positionView, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.tracked[mint]
	if !ok {
		return positionView{}, false
	}
	return viewOf(mint, st), true
}

func viewOf(mint string, st *tokenState) positionView {
	return positionView{
		Mint:         mint,
		Symbol:       st.tc.Symbol,
		Entered:      st.entered,
		HoldersArmed: st.holdersArmed,
		EntryPrice:   st.entryPrice,
		LastPrice:    st.lastPrice,
		LastScore:    st.lastScore,
		EntryTime:    st.entryTime,
	}
}

func (b *positionBook) snapshot() []positionView {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]positionView, 0, len(b.tracked))
	for mint, st := range b.tracked {
		out = append(out, viewOf(mint, st))
	}
	return out
}

func (b *positionBook) markEntered(mint string, price float64, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.tracked[mint]; ok {
		st.entered = true
		st.entryPrice = price
		st.lastPrice = price
		st.entryTime = at
	}
}

// tick records the latest trade price. Launch-time entries have no price
// until the first trade lands, so the entry price backfills here.
func (b *positionBook) tick(mint string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.tracked[mint]; ok {
		st.lastPrice = price
		if st.entered && st.entryPrice == 0 {
			st.entryPrice = price
		}
	}
}

func (b *positionBook) setScore(mint string, score float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.tracked[mint]; ok {
		st.lastScore = score
	}
}

func (b *positionBook) needsHolders(mint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.tracked[mint]
	return ok && st.entered && !st.holdersArmed
}

func (b *positionBook) markHoldersArmed(mint string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.tracked[mint]; ok {
		st.holdersArmed = true
	}
}

// remove drops a mint and returns its final state for outcome recording.
func (b *positionBook) remove(mint string) (*tokenState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.tracked[mint]
	if ok {
		delete(b.tracked, mint)
	}
	return st, ok
}

func (b *positionBook) enteredMints() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for mint, st := range b.tracked {
		if st.entered {
			out = append(out, mint)
		}
	}
	return out
}

func (b *positionBook) enteredCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, st := range b.tracked {
		if st.entered {
			n++
		}
	}
	return n
}

func main() {
	configPath := flag.String("config", "config/vigil.yaml", "path to config file")
	stubMode := flag.Bool("stub", false, "use the stub enrichment client (no RPC access needed)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.General)

	log.Info().Msg("============================================")
	log.Info().Msg("   VIGIL -- pump.fun launch scoring")
	log.Info().Msg("   adaptive risk filter + exit triggers")
	log.Info().Msg("============================================")

	log.Info().
		Str("instance", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Str("venue", cfg.General.Venue).
		Strs("brokers", cfg.Kafka.Brokers).
		Bool("stub_enrichment", *stubMode).
		Bool("clickhouse", cfg.ClickHouse.Enabled).
		Int("score_budget_ms", cfg.Filter.HotPath.MaxLatencyMs).
		Msg("Configuration loaded")

	// --- Metrics ---

	metrics := observability.VigilMetrics()
	mLaunches := metrics.GetCounter("vigil_launches_total")
	mTrades := metrics.GetCounter("vigil_trades_total")
	mDecisions := metrics.GetCounter("vigil_decisions_total")
	mPreGate := metrics.GetCounter("vigil_pregate_blocks_total")
	mAlerts := metrics.GetCounter("vigil_exit_alerts_total")
	mEnrich := metrics.GetCounter("vigil_enrich_requests_total")
	mReady := metrics.GetCounter("vigil_momentum_ready_total")
	mBundles := metrics.GetCounter("vigil_bundles_detected_total")
	gWatched := metrics.GetGauge("vigil_watched_tokens")
	gGuarded := metrics.GetGauge("vigil_guarded_positions")
	gCacheEntries := metrics.GetGauge("vigil_cache_entries")
	gDegraded := metrics.GetGauge("vigil_degraded_mode")
	hFast := metrics.GetHistogram("vigil_score_fast_latency_ms")
	hFull := metrics.GetHistogram("vigil_score_full_latency_ms")

	// --- Shared caches and registries ---

	c := cache.New(cfg.Cache)
	log.Info().Msg("Enrichment cache initialized")

	actors := cache.NewKnownActors(cfg.Actors)
	if err := actors.Load(); err != nil {
		log.Warn().Err(err).Msg("Known-actor registry incomplete; scoring degrades until it loads")
	}
	actorStats := actors.Stats()
	log.Info().
		Int("deployers", actorStats.Deployers).
		Int("snipers", actorStats.Snipers).
		Int("trusted", actorStats.Trusted).
		Msg("Known actors loaded")

	// --- Enrichment ---

	var enrichClient enrich.Client
	if *stubMode {
		enrichClient = enrich.NewStubClient()
		log.Info().Msg("Enrichment client: stub (synthetic chain data)")
	} else {
		enrichClient = enrich.NewHTTPClient(cfg.Enrich.Client)
		log.Info().Str("rpc", cfg.Enrich.Client.RPCURL).Msg("Enrichment client: http")
	}

	enrichSvc := enrich.NewService(cfg.Enrich.Service, enrichClient, c)
	log.Info().
		Int("workers", cfg.Enrich.Service.Workers).
		Int("queue", cfg.Enrich.Service.QueueSize).
		Msg("Enrichment service initialized")

	// --- Detection and guarding ---

	prof := profiler.New(enrichClient, cfg.Profiler)
	clusterer := bundle.NewClusterer(cfg.Bundle.Cluster, enrichClient)
	detector := bundle.NewDetector(cfg.Bundle.Detector, clusterer, prof)
	log.Info().
		Bool("enabled", cfg.Bundle.Detector.Enabled).
		Msg("Bundle detector initialized")

	ks := guard.NewKillSwitch(cfg.Guard.KillSwitch, cfg.Guard.Holders, detector)
	log.Info().
		Bool("exit_on_deployer_sell", cfg.Guard.KillSwitch.ExitOnDeployerSell).
		Bool("auto_exit", cfg.Guard.KillSwitch.AutoExit).
		Int("holders_to_watch", cfg.Guard.Holders.HoldersToWatch).
		Msg("Kill switch initialized")

	validator := momentum.NewValidator(cfg.Momentum)
	log.Info().
		Int("min_observation_secs", cfg.Momentum.MinObservationSecs).
		Int("max_observation_secs", cfg.Momentum.MaxObservationSecs).
		Msg("Momentum validator initialized")

	// --- Scoring ---

	earlyMomentum := providers.NewEarlyMomentum(cfg.EarlyMomentum)

	f := filter.New(cfg.Filter, c, actors)
	f.SetEnrichment(enrichSvc)
	f.RegisterProvider(providers.NewMetadata())
	f.RegisterProvider(providers.NewWalletBehavior(c, actors))
	f.RegisterProvider(providers.NewWalletBehaviorBackground(c, actors))
	f.RegisterProvider(providers.NewSmartMoney(prof))
	f.RegisterProvider(earlyMomentum)
	log.Info().
		Bool("enabled", cfg.Filter.Enabled).
		Int("hot_budget_ms", cfg.Filter.HotPath.MaxLatencyMs).
		Msg("Adaptive filter initialized")

	preGate, err := filter.NewPreGate(cfg.Filter.PreGate)
	if err != nil {
		log.Fatal().Err(err).Msg("Pre-gate pattern compile failed")
	}

	tuner := scoring.NewTuner(cfg.Tuner)
	log.Info().
		Bool("enabled", cfg.Tuner.Enabled).
		Float64("learning_rate", cfg.Tuner.LearningRate).
		Msg("Weight tuner initialized")

	// --- Decision journal (optional) ---

	var jclient *journal.Client
	var jw *journal.Writer
	if cfg.ClickHouse.Enabled {
		jclient, err = journal.NewClient(cfg.ClickHouse.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("ClickHouse unavailable; running without decision journal")
			jclient = nil
		} else {
			jw = journal.NewWriter(jclient, cfg.ClickHouse.Database, cfg.ClickHouse.BatchSize,
				time.Duration(cfg.ClickHouse.FlushIntervalSecs)*time.Second)
			log.Info().
				Str("database", cfg.ClickHouse.Database).
				Int("batch_size", cfg.ClickHouse.BatchSize).
				Msg("Decision journal initialized")
		}
	}

	// --- Bus ---

	producer, err := bus.NewProducer(cfg.Kafka.Brokers,
		bus.WithInstanceID(cfg.General.InstanceID),
		bus.WithSchemaVersion(cfg.Kafka.SchemaVersion))
	if err != nil {
		log.Fatal().Err(err).Msg("Kafka producer init failed")
	}

	launchTopic := bus.Topics.Launches(cfg.General.Venue)
	tradeTopic := bus.Topics.Trades(cfg.General.Venue)

	consumer, err := bus.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{launchTopic, tradeTopic})
	if err != nil {
		log.Fatal().Err(err).Msg("Kafka consumer init failed")
	}
	log.Info().
		Str("launches", launchTopic).
		Str("trades", tradeTopic).
		Str("group", cfg.Kafka.GroupID).
		Msg("Bus consumer initialized")

	ctrl := &controlState{}
	book := newPositionBook()
	startTime := time.Now()

	// --- Pipeline closures ---

	// publishExit sends an exit alert downstream and journals it.
	publishExit := func(ctx context.Context, cause bus.BaseEvent, ea bus.ExitAlert) {
		ea.BaseEvent = bus.NewBaseEvent(cfg.General.InstanceID, cfg.Kafka.SchemaVersion)
		ea.CausationID = cause.EventID
		if cause.TraceID != "" {
			ea.TraceID = cause.TraceID
		}
		if err := producer.PublishJSON(ctx, bus.Topics.ExitAlerts(), ea.Mint, ea); err != nil {
			log.Error().Err(err).Str("mint", ea.Mint).Msg("Exit alert publish failed")
		}
		mAlerts.Inc()
		if jw != nil {
			if err := jw.WriteExitAlert(ctx, journal.ExitAlertToRow(ea)); err != nil {
				log.Warn().Err(err).Msg("Exit alert journal write failed")
			}
		}
		log.Warn().
			Str("mint", ea.Mint).
			Str("trigger", ea.Trigger).
			Str("urgency", ea.Urgency).
			Bool("auto_exit", ea.AutoExit).
			Str("reason", ea.Reason).
			Msg("[EXIT] alert published")
	}

	exitFromGuard := func(a *guard.Alert) bus.ExitAlert {
		return bus.ExitAlert{
			Mint:         a.Mint,
			Trigger:      string(a.Trigger),
			Urgency:      string(a.Urgency),
			Reason:       a.Reason,
			AutoExit:     a.AutoExit,
			Wallet:       a.Wallet,
			Rank:         a.Rank,
			PctSold:      a.PctSold,
			TokensSold:   a.TokensSold,
			SellersCount: a.SellersCount,
			TotalSellSOL: decimal.NewFromFloat(a.TotalSellSOL),
		}
	}

	// recordDecision publishes a scoring verdict and journals it.
	recordDecision := func(ctx context.Context, cause bus.BaseEvent, tc *sig.TokenContext, res scoring.Result, elapsedMs float64) {
		d := bus.Decision{
			BaseEvent:        bus.NewBaseEvent(cfg.General.InstanceID, cfg.Kafka.SchemaVersion),
			Mint:             tc.Mint,
			Symbol:           tc.Symbol,
			Score:            res.Score,
			Confidence:       res.Confidence,
			RiskScore:        res.RiskScore,
			OpportunityScore: res.OpportunityScore,
			Recommendation:   string(res.Recommendation),
			SizeMultiplier:   res.SizeMultiplier,
			Reason:           res.Summary,
			Degraded:         f.IsDegraded(),
			SignalCount:      len(res.Signals),
			ElapsedMs:        elapsedMs,
		}
		d.CausationID = cause.EventID
		if cause.TraceID != "" {
			d.TraceID = cause.TraceID
		}
		if err := producer.PublishJSON(ctx, bus.Topics.Decisions(), d.Mint, d); err != nil {
			log.Error().Err(err).Str("mint", d.Mint).Msg("Decision publish failed")
		}
		mDecisions.Inc()
		if jw != nil {
			if err := jw.WriteDecision(ctx, journal.DecisionToRow(d)); err != nil {
				log.Warn().Err(err).Msg("Decision journal write failed")
			}
		}
	}

	// closePosition tears down all per-mint watches and feeds the tuner.
	closePosition := func(mint string, trigger string) {
		st, ok := book.remove(mint)
		ks.UnwatchPosition(mint)
		validator.Remove(mint)
		detector.Untrack(mint)
		if ok && st.entered {
			pnl := 0.0
			if st.entryPrice > 0 && st.lastPrice > 0 {
				pnl = (st.lastPrice - st.entryPrice) / st.entryPrice * 100
			}
			isRug := trigger == string(guard.TriggerDeployerSell) || trigger == string(guard.TriggerBundleSell)
			tuner.RecordOutcome(scoring.Outcome{
				Mint:     mint,
				Signals:  st.signals,
				PnLPct:   pnl,
				IsWin:    pnl > 0,
				IsRug:    isRug,
				HoldTime: time.Since(st.entryTime),
			})
			log.Info().
				Str("mint", mint).
				Str("trigger", trigger).
				Float64("pnl_pct", pnl).
				Bool("rug", isRug).
				Msg("Position closed")
		}
		gWatched.Set(float64(validator.WatchedCount()))
		gGuarded.Set(float64(book.enteredCount()))
	}

	// armHolders attaches the cached holder distribution to the kill switch
	// once enrichment has delivered it. Holder percentages arrive as supply
	// fractions and the watcher wants percent.
	armHolders := func(mint string) {
		if !book.needsHolders(mint) {
			return
		}
		dist, ok := c.GetHolders(mint)
		if !ok || len(dist.Holders) == 0 {
			return
		}
		tc, ok := book.tokenContext(mint)
		if !ok {
			return
		}
		holdings := make([]guard.Holding, 0, len(dist.Holders))
		for _, h := range dist.Holders {
			holdings = append(holdings, guard.Holding{
				Address: h.Address,
				Amount:  uint64(h.Balance),
				Pct:     h.Pct * 100,
			})
		}
		ks.WatchPosition(mint, tc.Creator, holdings)
		book.markHoldersArmed(mint)
		log.Info().
			Str("mint", mint).
			Int("holders", len(holdings)).
			Msg("Holder watch armed from enrichment")
	}

	// reassessPosition rescores one open position and exits on a hard
	// trigger.
	reassessPosition := func(ctx context.Context, mint string, cause bus.BaseEvent) {
		view, ok := book.view(mint)
		if !ok || !view.Entered {
			return
		}
		tc, ok := book.tokenContext(mint)
		if !ok {
			return
		}
		pc := &sig.PositionContext{
			Mint:         mint,
			EntryPrice:   view.EntryPrice,
			CurrentPrice: view.LastPrice,
			EntryTime:    view.EntryTime,
			Token:        tc,
		}
		ra := f.Reassess(ctx, pc, view.LastScore)
		book.setScore(mint, ra.CurrentScore)
		if ra.Action == filter.ReassessExit {
			publishExit(ctx, cause, bus.ExitAlert{
				Mint:     mint,
				Trigger:  "REASSESSMENT",
				Urgency:  string(guard.ExitHigh),
				Reason:   ra.Reason,
				AutoExit: cfg.Guard.KillSwitch.AutoExit,
			})
			closePosition(mint, "REASSESSMENT")
		}
	}

	// --- Event handlers ---

	handleLaunch := func(ctx context.Context, ev bus.TokenLaunch) {
		mLaunches.Inc()
		if ctrl.paused.Load() {
			return
		}

		if gate := preGate.Check(ev.Name, ev.Symbol); !gate.Allowed {
			mPreGate.Inc()
			log.Debug().Str("mint", ev.Mint).Str("reason", gate.Reason).Msg("Launch blocked by pre-gate")
			return
		}
		liqSOL := ev.LiquiditySOL.InexactFloat64()
		if gate := preGate.CheckOnChain(ev.DevHoldingsPct, liqSOL); !gate.Allowed {
			mPreGate.Inc()
			log.Debug().Str("mint", ev.Mint).Str("reason", gate.Reason).Msg("Launch blocked by pre-gate")
			return
		}

		tc := &sig.TokenContext{
			Mint:          ev.Mint,
			Name:          ev.Name,
			Symbol:        ev.Symbol,
			URI:           ev.URI,
			Creator:       ev.Creator,
			BondingCurve:  ev.BondingCurve,
			InitialBuySOL: ev.InitialBuySOL.InexactFloat64(),
			MarketCapSOL:  liqSOL,
			LaunchTime:    ev.LaunchedAt,
		}

		start := time.Now()
		res := f.ScoreFast(ctx, tc)
		elapsed := float64(time.Since(start).Microseconds()) / 1000.0
		hFast.Observe(elapsed)

		recordDecision(ctx, ev.BaseEvent, tc, res, elapsed)
		log.Info().
			Str("mint", ev.Mint).
			Str("symbol", ev.Symbol).
			Str("recommendation", string(res.Recommendation)).
			Float64("score", res.Score).
			Float64("confidence", res.Confidence).
			Float64("size_mult", res.SizeMultiplier).
			Float64("elapsed_ms", elapsed).
			Msg("[DECISION] launch scored")

		// Deep enrichment priority follows the verdict.
		switch res.Recommendation {
		case scoring.RecStrongBuy, scoring.RecOpportunity:
			enrichSvc.Handle().Request(ev.Mint, ev.Creator, enrich.PriorityHigh)
		case scoring.RecProbe:
			enrichSvc.Handle().Request(ev.Mint, ev.Creator, enrich.PriorityNormal)
		case scoring.RecObserve:
			enrichSvc.Handle().Request(ev.Mint, ev.Creator, enrich.PriorityLow)
		}

		st := &tokenState{tc: tc, signals: res.Signals, lastScore: res.Score}

		switch {
		case res.Recommendation.IsTrading():
			// The holder list is armed later, once enrichment lands a
			// distribution.
			st.entered = true
			st.entryTime = ev.LaunchedAt
			book.track(ev.Mint, st)
			ks.WatchPosition(ev.Mint, ev.Creator, nil)
			if ev.InitialBuySOL.IsPositive() {
				detector.RecordBuy(ev.Mint, ev.Creator, ev.Slot, ev.InitialBuySOL.InexactFloat64(), ev.LaunchedAt)
			}
			gGuarded.Set(float64(book.enteredCount()))
		case res.Recommendation == scoring.RecObserve:
			book.track(ev.Mint, st)
			validator.Watch(ev.Mint, ev.Symbol, ev.Name, ev.BondingCurve, ev.LaunchedAt)
			gWatched.Set(float64(validator.WatchedCount()))
		}
	}

	handleTrade := func(ctx context.Context, ev bus.TokenTrade) {
		mTrades.Inc()

		isBuy := ev.Side == bus.SideBuy
		sol := ev.SOLAmount.InexactFloat64()
		price := 0.0
		if ev.TokenAmount > 0 {
			price = sol / float64(ev.TokenAmount)
		}

		tc, tracked := book.tokenContext(ev.Mint)
		creator := ""
		if tracked {
			creator = tc.Creator
		}
		earlyMomentum.RecordTrade(ev.Mint, isBuy, sol, ev.Trader, creator)
		if !tracked {
			return
		}
		if price > 0 {
			book.tick(ev.Mint, price)
		}

		// Observation phase: feed the validator and evaluate the gates.
		if validator.IsWatching(ev.Mint) {
			validator.RecordTrade(ev.Mint, isBuy, sol, float64(ev.TokenAmount), ev.Trader, ev.TradedAt)
			if dist, ok := c.GetHolders(ev.Mint); ok {
				validator.SetHolderConcentration(ev.Mint, dist.TopHolderPct)
			}
			if isBuy {
				detector.RecordBuy(ev.Mint, ev.Trader, ev.Slot, sol, ev.TradedAt)
			}

			switch res := validator.Evaluate(ev.Mint, ev.TradedAt); res.State {
			case momentum.StateReady:
				mReady.Inc()
				validator.Remove(ev.Mint)
				gWatched.Set(float64(validator.WatchedCount()))
				if ctrl.paused.Load() {
					book.remove(ev.Mint)
					return
				}
				// Flag bundles before rescoring so the profiler's bundled
				// marks reach the smart-money provider.
				if _, flagged := detector.Bundle(ev.Mint); !flagged {
					if grp := detector.Analyze(ctx, ev.Mint); grp != nil {
						mBundles.Inc()
						log.Warn().
							Str("mint", ev.Mint).
							Int("wallets", len(grp.Wallets)).
							Str("pattern", string(grp.Reason.Kind)).
							Msg("[BUNDLE] coordinated buying detected")
					}
				}
				start := time.Now()
				full := f.ScoreFull(ctx, tc)
				elapsed := float64(time.Since(start).Microseconds()) / 1000.0
				hFull.Observe(elapsed)
				recordDecision(ctx, ev.BaseEvent, tc, full, elapsed)
				log.Info().
					Str("mint", ev.Mint).
					Str("recommendation", string(full.Recommendation)).
					Float64("score", full.Score).
					Msg("[DECISION] momentum confirmed, rescored")
				if full.Recommendation.IsTrading() {
					book.markEntered(ev.Mint, price, ev.TradedAt)
					book.setScore(ev.Mint, full.Score)
					ks.WatchPosition(ev.Mint, tc.Creator, nil)
					gGuarded.Set(float64(book.enteredCount()))
				} else {
					book.remove(ev.Mint)
					detector.Untrack(ev.Mint)
				}
			case momentum.StateExpired:
				validator.Remove(ev.Mint)
				book.remove(ev.Mint)
				detector.Untrack(ev.Mint)
				gWatched.Set(float64(validator.WatchedCount()))
			}
			return
		}

		entered, _ := book.view(ev.Mint)
		if !entered.Entered {
			return
		}

		if isBuy {
			detector.RecordBuy(ev.Mint, ev.Trader, ev.Slot, sol, ev.TradedAt)
			if _, flagged := detector.Bundle(ev.Mint); !flagged {
				if grp := detector.Analyze(ctx, ev.Mint); grp != nil {
					mBundles.Inc()
					log.Warn().
						Str("mint", ev.Mint).
						Int("wallets", len(grp.Wallets)).
						Str("pattern", string(grp.Reason.Kind)).
						Float64("total_buy_sol", grp.TotalBuySOL).
						Msg("[BUNDLE] coordinated buying detected")
				}
			}
			if f.ShouldRescoreOnTrade(sol) {
				reassessPosition(ctx, ev.Mint, ev.BaseEvent)
			}
			return
		}

		// Sell on a guarded position: the kill switch sees every sell, then
		// accumulated holder selling is re-checked.
		dec := ks.Evaluate(guard.SellEvent{
			Mint:        ev.Mint,
			Trader:      ev.Trader,
			TokenAmount: ev.TokenAmount,
			SOLAmount:   sol,
			At:          ev.TradedAt,
		})
		if dec.Action != guard.ActionExit {
			dec = ks.ShouldExit(ev.Mint)
		}
		if dec.Action == guard.ActionExit && dec.Alert != nil {
			publishExit(ctx, ev.BaseEvent, exitFromGuard(dec.Alert))
			closePosition(ev.Mint, string(dec.Alert.Trigger))
			return
		}
		if f.ShouldRescoreOnTrade(sol) {
			reassessPosition(ctx, ev.Mint, ev.BaseEvent)
		}
	}

	handler := func(ctx context.Context, msg bus.Message) error {
		switch msg.Topic {
		case launchTopic:
			var ev bus.TokenLaunch
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				log.Warn().Err(err).Str("topic", msg.Topic).Msg("Malformed launch event dropped")
				return nil
			}
			handleLaunch(ctx, ev)
		case tradeTopic:
			var ev bus.TokenTrade
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				log.Warn().Err(err).Str("topic", msg.Topic).Msg("Malformed trade event dropped")
				return nil
			}
			handleTrade(ctx, ev)
		}
		return nil
	}

	// --- Run ---

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Info().Str("signal", s.String()).Msg("Shutdown signal received")
		cancel()
	}()

	enrichSvc.Start(ctx)
	if jw != nil {
		jw.Start(ctx)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Consume(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Consumer stopped")
			cancel()
		}
	}()

	// Health monitoring.
	hm := observability.NewHealthMonitor(time.Duration(cfg.HTTP.HealthCheckSecs) * time.Second)
	if jclient != nil {
		hm.Register("clickhouse", observability.ErrCheck(jclient.Ping))
	}
	hm.Register("scoring", func(ctx context.Context) observability.ComponentHealth {
		if f.IsDegraded() {
			fs := f.Stats()
			return observability.ComponentHealth{
				Status:  observability.StatusDegraded,
				Message: fs.DegradedReason,
			}
		}
		return observability.ComponentHealth{Status: observability.StatusHealthy}
	})
	hm.Register("enrichment", func(ctx context.Context) observability.ComponentHealth {
		es := enrichSvc.Stats()
		if cfg.Enrich.Service.QueueSize > 0 && es.QueueDepth >= cfg.Enrich.Service.QueueSize*8/10 {
			return observability.ComponentHealth{
				Status:  observability.StatusDegraded,
				Message: fmt.Sprintf("queue depth %d near capacity %d", es.QueueDepth, cfg.Enrich.Service.QueueSize),
			}
		}
		return observability.ComponentHealth{Status: observability.StatusHealthy}
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		hm.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-hm.Alerts():
				evt := log.Info()
				switch a.Level {
				case "critical":
					evt = log.Error()
				case "warn":
					evt = log.Warn()
				}
				evt.Str("component", a.Component).Msg("[HEALTH] " + a.Message)
			}
		}
	}()

	// Periodic reassessment of open positions.
	if cfg.Filter.Reassessment.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(time.Duration(cfg.Filter.Reassessment.IntervalSecs) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					for _, mint := range book.enteredMints() {
						armHolders(mint)
						reassessPosition(ctx, mint, bus.BaseEvent{})
					}
				}
			}
		}()
	}

	// Weight retuning from recorded outcomes.
	if cfg.Tuner.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(time.Duration(cfg.Tuner.RecalcMins) * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					tuner.Recalculate()
					f.Engine().SetWeights(tuner.Weights())
				}
			}
		}()
	}

	// Known-actor registry refresh.
	if cfg.Actors.RefreshSecs > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(time.Duration(cfg.Actors.RefreshSecs) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := actors.Load(); err != nil {
						log.Warn().Err(err).Msg("Known-actor refresh failed")
					}
				}
			}
		}()
	}

	// Expired-watch cleanup and early-momentum pruning.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expired := validator.CleanupExpired(time.Now())
				for _, mint := range expired {
					book.remove(mint)
					detector.Untrack(mint)
				}
				if len(expired) > 0 {
					gWatched.Set(float64(validator.WatchedCount()))
					log.Debug().Int("expired", len(expired)).Msg("Expired momentum watches removed")
				}
				earlyMomentum.CleanupOldEntries(10 * time.Minute)
			}
		}
	}()

	// Periodic stats and derived gauges.
	wg.Add(1)
	go func() {
		defer wg.Done()
		var lastEnrich int64
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				es := enrichSvc.Stats()
				handled := es.TokensEnriched + es.WalletsEnriched + es.FetchErrors + es.Dropped
				if handled > lastEnrich {
					mEnrich.Add(float64(handled - lastEnrich))
					lastEnrich = handled
				}
				if es.TokensEnriched > 0 {
					f.MarkCacheWarm()
				}
				gCacheEntries.Set(float64(c.TotalCached()))
				if f.IsDegraded() {
					gDegraded.Set(1)
				} else {
					gDegraded.Set(0)
				}

				fs := f.Stats()
				ms := validator.Stats()
				log.Info().
					Int64("launches", int64(mLaunches.Value())).
					Int64("trades", int64(mTrades.Value())).
					Int64("fast_scores", fs.FastScores).
					Int64("full_scores", fs.FullScores).
					Int64("exit_alerts", int64(mAlerts.Value())).
					Int("watching", ms.Watching).
					Int("guarded", book.enteredCount()).
					Int("cached", c.TotalCached()).
					Bool("degraded", fs.Degraded).
					Msg("[STATS]")
			}
		}
	}()

	// --- HTTP: health, stats, metrics, operator control ---

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.NewPrometheusExporter(metrics))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		sys := hm.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if sys.Status == observability.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(sys)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := map[string]interface{}{
			"uptime_secs": time.Since(startTime).Seconds(),
			"paused":      ctrl.paused.Load(),
			"filter":      f.Stats(),
			"cache":       c.Stats(),
			"actors":      actors.Stats(),
			"enrichment":  enrichSvc.Stats(),
			"momentum":    validator.Stats(),
			"bundles":     detector.Stats(),
			"clusters":    clusterer.Stats(),
			"killswitch":  ks.Stats(),
			"profiler":    prof.Stats(),
			"tuner":       tuner.Stats(),
		}
		if jw != nil {
			flushes, errs, pendingDecisions, pendingAlerts := jw.Stats()
			stats["journal"] = map[string]interface{}{
				"flushes":           flushes,
				"errors":            errs,
				"pending_decisions": pendingDecisions,
				"pending_alerts":    pendingAlerts,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})
	mux.HandleFunc("/positions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(book.snapshot())
	})
	mux.HandleFunc("/control/pause", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		ctrl.paused.Store(true)
		log.Warn().Msg("[CONTROL] Scoring paused; open positions stay guarded")
		w.Write([]byte("paused\n"))
	})
	mux.HandleFunc("/control/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		ctrl.paused.Store(false)
		log.Info().Msg("[CONTROL] Scoring resumed")
		w.Write([]byte("resumed\n"))
	})
	mux.HandleFunc("/control/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"paused":      ctrl.paused.Load(),
			"uptime_secs": time.Since(startTime).Seconds(),
			"guarded":     book.enteredCount(),
			"watching":    validator.WatchedCount(),
		})
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("Control endpoint listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		server.Shutdown(shutCtx)
	}()

	log.Info().Msg("vigil running")
	<-ctx.Done()

	// --- Shutdown ---

	log.Info().Msg("Shutting down...")
	consumer.Close()
	hm.Stop()
	enrichSvc.Wait()
	if jw != nil {
		if err := jw.Close(); err != nil {
			log.Warn().Err(err).Msg("Journal close failed")
		}
	}
	if jclient != nil {
		jclient.Close()
	}
	if producer.Flush(5*time.Second) != 0 {
		log.Warn().Msg("Producer flush incomplete; some events may be lost")
	}
	producer.Close()
	wg.Wait()

	log.Info().
		Int64("launches", int64(mLaunches.Value())).
		Int64("trades", int64(mTrades.Value())).
		Int64("decisions", int64(mDecisions.Value())).
		Int64("pregate_blocks", int64(mPreGate.Value())).
		Int64("exit_alerts", int64(mAlerts.Value())).
		Int64("momentum_ready", int64(mReady.Value())).
		Int64("bundles", int64(mBundles.Value())).
		Dur("uptime", time.Since(startTime)).
		Msg("Final stats")
	log.Info().Msg("vigil stopped")
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro

	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if general.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	log.Logger = logger.With().Timestamp().
		Str("service", "vigil").
		Str("instance", general.InstanceID).
		Logger()
}
