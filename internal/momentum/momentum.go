// Package momentum holds new launches in observation and gates entry on
// proven demand. Every launch that survives the pre-trade filter is watched
// for a configurable window; only tokens whose live trade flow clears every
// momentum threshold become entry candidates, and tokens that never clear
// them expire out of the watchlist.
package momentum

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config controls the observation window and the entry thresholds.
type Config struct {
	// MinObservationSecs is how long a token must be watched before it
	// can be declared ready.
	MinObservationSecs int `yaml:"min_observation_secs"`

	// MaxObservationSecs expires tokens that never build momentum.
	MaxObservationSecs int `yaml:"max_observation_secs"`

	// MinTradeCount is the minimum number of trades in the window.
	MinTradeCount int `yaml:"min_trade_count"`

	// MinVolumeSOL is the minimum total traded volume in SOL.
	MinVolumeSOL float64 `yaml:"min_volume_sol"`

	// MinPriceChangePct requires positive price movement, in percent.
	MinPriceChangePct float64 `yaml:"min_price_change_pct"`

	// MinUniqueTraders guards against one wallet painting the tape.
	MinUniqueTraders int `yaml:"min_unique_traders"`

	// MinBuyRatio is the minimum volume-weighted buy share.
	MinBuyRatio float64 `yaml:"min_buy_ratio"`

	// MinVolatility is the minimum coefficient of variation of prices.
	// A perfectly flat tape is a bot painting, not a market.
	MinVolatility float64 `yaml:"min_volatility"`

	// MaxHolderConcentration caps the top holder's share of supply.
	MaxHolderConcentration float64 `yaml:"max_holder_concentration"`

	// MinSurvivalRatio is the minimum last/high price ratio. Tokens that
	// spiked and round-tripped are already being exited.
	MinSurvivalRatio float64 `yaml:"min_survival_ratio"`

	// SecondWaveWindowPct is the trailing share of the observation used
	// for the second-wave check.
	SecondWaveWindowPct float64 `yaml:"second_wave_window_pct"`

	// MinSecondWaveRatio is the minimum buy share inside the trailing
	// window. Demand must still be arriving at decision time.
	MinSecondWaveRatio float64 `yaml:"min_second_wave_ratio"`
}

// DefaultConfig returns observation settings tuned for pump.fun launches.
func DefaultConfig() Config {
	return Config{
		MinObservationSecs:     60,   // one minute before any entry
		MaxObservationSecs:     180,  // give up after three minutes
		MinTradeCount:          10,   // real launches trade immediately
		MinVolumeSOL:           2.0,  // SOL
		MinPriceChangePct:      5.0,  // percent, positive only
		MinUniqueTraders:       5,    // distinct wallets
		MinBuyRatio:            0.55, // volume-weighted
		MinVolatility:          0.01, // coefficient of variation
		MaxHolderConcentration: 0.50, // top holder share
		MinSurvivalRatio:       0.70, // last price vs window high
		SecondWaveWindowPct:    0.30, // trailing share of the window
		MinSecondWaveRatio:     0.40, // buy share inside that window
	}
}

// ---------------------------------------------------------------------------
// Watch state
// ---------------------------------------------------------------------------

// State is the observation outcome for one token.
type State string

const (
	StateNotWatched State = "NOT_WATCHED"
	StateObserving  State = "OBSERVING"
	StateReady      State = "READY"
	StateExpired    State = "EXPIRED"
)

// Result is one evaluation of a watched token.
type Result struct {
	State   State   `json:"state"`
	Metrics Metrics `json:"metrics"`
	Gates   Gates   `json:"gates"`

	// Reason lists the blocking gates while observing.
	Reason string `json:"reason,omitempty"`
}

// WatchInfo is the launch identity captured at watch time.
type WatchInfo struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	BondingCurve string `json:"bonding_curve"`
}

// WatchStatus pairs a watched mint with its current evaluation.
type WatchStatus struct {
	Mint   string `json:"mint"`
	Symbol string `json:"symbol"`
	Result Result `json:"result"`
}

type trade struct {
	at          time.Time
	isBuy       bool
	solAmount   float64
	tokenAmount float64
	price       float64
	trader      string
}

type watched struct {
	mint         string
	symbol       string
	name         string
	bondingCurve string
	started      time.Time

	trades  []trade
	traders map[string]struct{}

	holderConcentration float64
	holderDataFetched   bool

	// readySeen and expiredSeen keep the totals one-per-token even
	// though Evaluate runs repeatedly.
	readySeen   bool
	expiredSeen bool
}

// ---------------------------------------------------------------------------
// Validator
// ---------------------------------------------------------------------------

// Validator tracks tokens in their observation window and answers whether
// each one has shown enough momentum to enter.
type Validator struct {
	config Config

	mu        sync.RWMutex
	watchlist map[string]*watched

	watchedTotal atomic.Int64
	readyTotal   atomic.Int64
	expiredTotal atomic.Int64
}

// NewValidator creates an empty watchlist with the given thresholds.
func NewValidator(config Config) *Validator {
	return &Validator{
		config:    config,
		watchlist: make(map[string]*watched),
	}
}

// Watch starts observing a launch. Watching an already-watched mint is a
// no-op so replayed launch events cannot reset a window.
func (v *Validator) Watch(mint, symbol, name, bondingCurve string, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.watchlist[mint]; ok {
		log.Debug().Str("mint", mint).Msg("momentum: already watching")
		return
	}

	v.watchlist[mint] = &watched{
		mint:         mint,
		symbol:       symbol,
		name:         name,
		bondingCurve: bondingCurve,
		started:      at,
		traders:      make(map[string]struct{}),
	}
	v.watchedTotal.Add(1)

	log.Info().
		Str("symbol", symbol).
		Str("mint", mint).
		Int("observe_secs", v.config.MinObservationSecs).
		Msg("momentum: watching token before entry")
}

// RecordTrade appends one trade to a watched token. Trades for unwatched
// mints are dropped; the watcher only ever sees its own candidates.
func (v *Validator) RecordTrade(mint string, isBuy bool, solAmount, tokenAmount float64, trader string, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	w, ok := v.watchlist[mint]
	if !ok {
		return
	}

	price := 0.0
	if tokenAmount > 0 {
		price = solAmount / tokenAmount
	}

	w.traders[trader] = struct{}{}
	w.trades = append(w.trades, trade{
		at:          at,
		isBuy:       isBuy,
		solAmount:   solAmount,
		tokenAmount: tokenAmount,
		price:       price,
		trader:      trader,
	})

	side := "SELL"
	if isBuy {
		side = "BUY"
	}
	log.Debug().
		Str("symbol", w.symbol).
		Str("side", side).
		Float64("sol", solAmount).
		Int("trades", len(w.trades)).
		Msg("momentum: trade recorded")
}

// SetHolderConcentration attaches the top-holder share fetched off the hot
// path. The concentration gate stays closed until this arrives.
func (v *Validator) SetHolderConcentration(mint string, topHolderPct float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if w, ok := v.watchlist[mint]; ok {
		w.holderConcentration = topHolderPct
		w.holderDataFetched = true
	}
}

// Evaluate measures a token at the given instant. Readiness is not sticky:
// the second-wave window trails the current moment, so a token that was
// ready can fall back to observing if demand dries up before entry.
func (v *Validator) Evaluate(mint string, now time.Time) Result {
	v.mu.Lock()
	defer v.mu.Unlock()

	w, ok := v.watchlist[mint]
	if !ok {
		return Result{State: StateNotWatched}
	}

	m := w.metrics(now, v.config)
	gates := evaluateGates(m, v.config)

	if now.Sub(w.started) > time.Duration(v.config.MaxObservationSecs)*time.Second {
		if !w.expiredSeen {
			w.expiredSeen = true
			v.expiredTotal.Add(1)
		}
		return Result{State: StateExpired, Metrics: m, Gates: gates}
	}

	if gates.AllPass() {
		if !w.readySeen {
			w.readySeen = true
			v.readyTotal.Add(1)
			log.Info().
				Str("symbol", w.symbol).
				Str("mint", mint).
				Int("trades", m.TradeCount).
				Float64("volume_sol", m.TotalVolumeSOL).
				Float64("price_change_pct", m.PriceChangePct).
				Msg("momentum: token ready for entry")
		}
		return Result{State: StateReady, Metrics: m, Gates: gates}
	}

	return Result{
		State:   StateObserving,
		Metrics: m,
		Gates:   gates,
		Reason:  waitingReason(m, gates, v.config),
	}
}

// Remove drops a token from the watchlist, ready or not.
func (v *Validator) Remove(mint string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.watchlist, mint)
}

// CleanupExpired removes every token past its maximum observation and
// returns their mints so callers can release any per-token state.
func (v *Validator) CleanupExpired(now time.Time) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	maxObs := time.Duration(v.config.MaxObservationSecs) * time.Second
	var expired []string
	for mint, w := range v.watchlist {
		if now.Sub(w.started) <= maxObs {
			continue
		}
		m := w.metrics(now, v.config)
		log.Warn().
			Str("symbol", w.symbol).
			Int("trades", m.TradeCount).
			Float64("volume_sol", m.TotalVolumeSOL).
			Float64("price_change_pct", m.PriceChangePct).
			Msg("momentum: token expired without momentum")
		if !w.expiredSeen {
			v.expiredTotal.Add(1)
		}
		expired = append(expired, mint)
		delete(v.watchlist, mint)
	}
	return expired
}

// IsWatching reports whether the mint is currently under observation.
func (v *Validator) IsWatching(mint string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.watchlist[mint]
	return ok
}

// WatchedCount returns the current watchlist size.
func (v *Validator) WatchedCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.watchlist)
}

// Info returns the launch identity captured when the watch began.
func (v *Validator) Info(mint string) (WatchInfo, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	w, ok := v.watchlist[mint]
	if !ok {
		return WatchInfo{}, false
	}
	return WatchInfo{Symbol: w.symbol, Name: w.name, BondingCurve: w.bondingCurve}, true
}

// Snapshot evaluates every watched token at the given instant.
func (v *Validator) Snapshot(now time.Time) []WatchStatus {
	v.mu.RLock()
	mints := make([]string, 0, len(v.watchlist))
	symbols := make(map[string]string, len(v.watchlist))
	for mint, w := range v.watchlist {
		mints = append(mints, mint)
		symbols[mint] = w.symbol
	}
	v.mu.RUnlock()

	statuses := make([]WatchStatus, 0, len(mints))
	for _, mint := range mints {
		statuses = append(statuses, WatchStatus{
			Mint:   mint,
			Symbol: symbols[mint],
			Result: v.Evaluate(mint, now),
		})
	}
	return statuses
}

// Stats is a snapshot of watchlist activity.
type Stats struct {
	Watching     int   `json:"watching"`
	WatchedTotal int64 `json:"watched_total"`
	ReadyTotal   int64 `json:"ready_total"`
	ExpiredTotal int64 `json:"expired_total"`
}

// Stats returns current counters.
func (v *Validator) Stats() Stats {
	v.mu.RLock()
	watching := len(v.watchlist)
	v.mu.RUnlock()

	return Stats{
		Watching:     watching,
		WatchedTotal: v.watchedTotal.Load(),
		ReadyTotal:   v.readyTotal.Load(),
		ExpiredTotal: v.expiredTotal.Load(),
	}
}
