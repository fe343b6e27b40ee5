// Package guard watches open positions for the sell patterns that kill
// them: the deployer dumping, a top holder unloading, or a flagged bundle
// exiting together. It exists to get out FIRST -- every trigger here is an
// exit signal, not a scoring input.
package guard

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// HolderWatcher -- track top holders of entered positions
// ---------------------------------------------------------------------------

// HolderConfig controls which holders are watched and when their selling
// forces an exit. Percentages are percent units (50.0 = half the supply).
type HolderConfig struct {
	// HoldersToWatch caps how many top holders are tracked per token.
	HoldersToWatch int `yaml:"holders_to_watch"`

	// MinHoldingPct is the smallest stake worth watching.
	MinHoldingPct float64 `yaml:"min_holding_pct"`

	// ExitThresholdPct forces an exit once a watched holder has sold
	// this share of their original stake.
	ExitThresholdPct float64 `yaml:"exit_threshold_pct"`

	// ExitOnAnySell forces an exit on the first sell by any watched
	// holder, regardless of size.
	ExitOnAnySell bool `yaml:"exit_on_any_sell"`
}

// DefaultHolderConfig returns watcher defaults.
func DefaultHolderConfig() HolderConfig {
	return HolderConfig{
		HoldersToWatch:   10,
		MinHoldingPct:    2.0,
		ExitThresholdPct: 10.0,
		ExitOnAnySell:    true,
	}
}

// Urgency grades a holder sell alert.
type Urgency string

const (
	// UrgencyCritical is the top holder selling.
	UrgencyCritical Urgency = "CRITICAL"
	// UrgencyHigh is a top-3 or >10% holder selling.
	UrgencyHigh Urgency = "HIGH"
	// UrgencyMedium is any other watched holder selling.
	UrgencyMedium Urgency = "MEDIUM"
)

// Holding is one row of a holder snapshot taken at entry, rank-ordered by
// stake (largest first).
type Holding struct {
	Address string  `json:"address"`
	Amount  uint64  `json:"amount"`
	Pct     float64 `json:"pct"`
}

// HolderSellAlert reports a watched holder selling.
type HolderSellAlert struct {
	ID       string `json:"id"`
	Mint     string `json:"mint"`
	Holder   string `json:"holder"`
	Rank     int    `json:"rank"` // 1 = top holder
	FirstSell bool  `json:"first_sell"`

	OriginalPct   float64 `json:"original_pct"`
	AmountSold    uint64  `json:"amount_sold"`
	PctOfHolding  float64 `json:"pct_of_holding"`  // this sell vs remaining balance
	CumulativePct float64 `json:"cumulative_pct"` // all sells vs original stake

	Level Urgency   `json:"level"`
	At    time.Time `json:"at"`
}

type holderSell struct {
	at           time.Time
	amount       uint64
	pctOfHolding float64
	solReceived  float64
}

type watchedHolder struct {
	address        string
	mint           string
	originalAmount uint64
	originalPct    float64
	currentAmount  uint64
	watchStarted   time.Time
	sells          []holderSell
}

func (h *watchedHolder) totalSold() uint64 {
	var total uint64
	for _, s := range h.sells {
		total += s.amount
	}
	return total
}

func (h *watchedHolder) cumulativePct() float64 {
	if h.originalAmount == 0 {
		return 100.0
	}
	return float64(h.totalSold()) / float64(h.originalAmount) * 100.0
}

// DumpRecord is one completed dump by a holder.
type DumpRecord struct {
	Mint         string    `json:"mint"`
	At           time.Time `json:"at"`
	TimeHeldSecs float64   `json:"time_held_secs"`
	PctSold      float64   `json:"pct_sold"`
	NumSells     int       `json:"num_sells"`
}

// DumpPattern is a wallet's selling history across positions we held.
type DumpPattern struct {
	Address           string       `json:"address"`
	Dumps             []DumpRecord `json:"dumps"`
	AvgTimeToDumpSecs float64      `json:"avg_time_to_dump_secs"`
	SellsInChunks     bool         `json:"sells_in_chunks"`
}

// HolderWatcher tracks the top holders of every open position and alerts
// the moment one of them sells.
type HolderWatcher struct {
	config HolderConfig

	mu        sync.RWMutex
	watched   map[string][]*watchedHolder // mint -> rank-ordered holders
	addresses map[string]int              // address -> watch refcount
	patterns  map[string]*DumpPattern
	alerts    []HolderSellAlert
}

// NewHolderWatcher creates an empty watcher.
func NewHolderWatcher(config HolderConfig) *HolderWatcher {
	return &HolderWatcher{
		config:    config,
		watched:   make(map[string][]*watchedHolder),
		addresses: make(map[string]int),
		patterns:  make(map[string]*DumpPattern),
	}
}

// Watch starts tracking the snapshot's top holders for a position we just
// entered. Holders below the minimum stake are ignored; rank follows the
// snapshot order.
func (w *HolderWatcher) Watch(mint string, holders []Holding) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.watched[mint]; ok {
		w.releaseLocked(mint, false)
	}

	now := time.Now()
	var tracked []*watchedHolder
	for _, h := range holders {
		if len(tracked) >= w.config.HoldersToWatch {
			break
		}
		if h.Pct < w.config.MinHoldingPct {
			continue
		}
		log.Debug().
			Str("mint", mint).
			Str("holder", h.Address).
			Float64("pct", h.Pct).
			Msg("guard: watching holder")

		w.addresses[h.Address]++
		tracked = append(tracked, &watchedHolder{
			address:        h.Address,
			mint:           mint,
			originalAmount: h.Amount,
			originalPct:    h.Pct,
			currentAmount:  h.Amount,
			watchStarted:   now,
		})
	}

	if len(tracked) == 0 {
		return
	}
	w.watched[mint] = tracked
	log.Info().
		Str("mint", mint).
		Int("count", len(tracked)).
		Msg("guard: watching top holders")
}

// Unwatch stops tracking a position's holders and folds their selling into
// the per-wallet dump patterns.
func (w *HolderWatcher) Unwatch(mint string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.watched[mint]; !ok {
		return
	}
	w.releaseLocked(mint, true)
	log.Info().Str("mint", mint).Msg("guard: stopped watching holders")
}

// releaseLocked drops a mint's holders, optionally recording patterns.
// Caller holds the write lock.
func (w *HolderWatcher) releaseLocked(mint string, recordPatterns bool) {
	holders := w.watched[mint]
	delete(w.watched, mint)

	for _, h := range holders {
		if w.addresses[h.address] <= 1 {
			delete(w.addresses, h.address)
		} else {
			w.addresses[h.address]--
		}
		if recordPatterns && len(h.sells) > 0 {
			w.recordDumpLocked(h)
		}
	}
}

// recordDumpLocked appends a holder's completed dump to their pattern.
// Caller holds the write lock.
func (w *HolderWatcher) recordDumpLocked(h *watchedHolder) {
	p, ok := w.patterns[h.address]
	if !ok {
		p = &DumpPattern{Address: h.address}
		w.patterns[h.address] = p
	}

	timeHeld := h.sells[0].at.Sub(h.watchStarted).Seconds()
	if timeHeld < 0 {
		timeHeld = 0
	}
	p.Dumps = append(p.Dumps, DumpRecord{
		Mint:         h.mint,
		At:           time.Now(),
		TimeHeldSecs: timeHeld,
		PctSold:      h.cumulativePct(),
		NumSells:     len(h.sells),
	})

	var sum float64
	p.SellsInChunks = false
	for _, d := range p.Dumps {
		sum += d.TimeHeldSecs
		if d.NumSells > 1 {
			p.SellsInChunks = true
		}
	}
	p.AvgTimeToDumpSecs = sum / float64(len(p.Dumps))

	log.Debug().
		Str("holder", h.address).
		Int("tokens_dumped", len(p.Dumps)).
		Float64("avg_time_secs", p.AvgTimeToDumpSecs).
		Msg("guard: holder pattern updated")
}

// IsWatched reports whether an address belongs to any watched position.
func (w *HolderWatcher) IsWatched(address string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.addresses[address] > 0
}

// WatchedAddresses returns every address currently under watch.
func (w *HolderWatcher) WatchedAddresses() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]string, 0, len(w.addresses))
	for addr := range w.addresses {
		out = append(out, addr)
	}
	return out
}

// RecordSell processes a sell by a potentially watched holder. The sell
// percentage is measured against the holder's remaining balance, the
// cumulative percentage against their original stake. Returns nil when the
// trader is not a watched holder of this mint.
func (w *HolderWatcher) RecordSell(mint, trader string, tokenAmount uint64, solAmount float64, at time.Time) *HolderSellAlert {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.addresses[trader] == 0 {
		return nil
	}
	holders, ok := w.watched[mint]
	if !ok {
		return nil
	}

	rank := -1
	var holder *watchedHolder
	for i, h := range holders {
		if h.address == trader {
			rank = i
			holder = h
			break
		}
	}
	if holder == nil {
		return nil
	}

	pctSold := 100.0
	if holder.currentAmount > 0 {
		pctSold = float64(tokenAmount) / float64(holder.currentAmount) * 100.0
	}

	holder.sells = append(holder.sells, holderSell{
		at:           at,
		amount:       tokenAmount,
		pctOfHolding: pctSold,
		solReceived:  solAmount,
	})
	if tokenAmount >= holder.currentAmount {
		holder.currentAmount = 0
	} else {
		holder.currentAmount -= tokenAmount
	}

	level := UrgencyMedium
	switch {
	case rank == 0:
		level = UrgencyCritical
	case rank < 3 || holder.originalPct > 10.0:
		level = UrgencyHigh
	}

	alert := HolderSellAlert{
		ID:            uuid.NewString(),
		Mint:          mint,
		Holder:        trader,
		Rank:          rank + 1,
		FirstSell:     len(holder.sells) == 1,
		OriginalPct:   holder.originalPct,
		AmountSold:    tokenAmount,
		PctOfHolding:  pctSold,
		CumulativePct: holder.cumulativePct(),
		Level:         level,
		At:            at,
	}

	switch level {
	case UrgencyCritical:
		log.Warn().
			Str("mint", mint).
			Str("holder", trader).
			Float64("pct_sold", pctSold).
			Float64("cumulative_pct", alert.CumulativePct).
			Msg("guard: TOP HOLDER SELLING")
	case UrgencyHigh:
		log.Warn().
			Str("mint", mint).
			Str("holder", trader).
			Int("rank", rank+1).
			Float64("pct_sold", pctSold).
			Msg("guard: major holder selling")
	default:
		log.Info().
			Str("mint", mint).
			Str("holder", trader).
			Float64("pct_sold", pctSold).
			Msg("guard: holder selling")
	}

	w.alerts = append(w.alerts, alert)
	return &alert
}

// ShouldExit reports whether accumulated holder selling warrants an exit:
// any sell at all when ExitOnAnySell is set, otherwise a holder crossing
// the cumulative exit threshold.
func (w *HolderWatcher) ShouldExit(mint string) *HolderSellAlert {
	w.mu.RLock()
	defer w.mu.RUnlock()

	holders, ok := w.watched[mint]
	if !ok {
		return nil
	}

	for i, h := range holders {
		if len(h.sells) == 0 {
			continue
		}
		cumulative := h.cumulativePct()
		lastAt := h.sells[len(h.sells)-1].at

		if w.config.ExitOnAnySell {
			level := UrgencyHigh
			if i == 0 {
				level = UrgencyCritical
			}
			return &HolderSellAlert{
				ID:            uuid.NewString(),
				Mint:          mint,
				Holder:        h.address,
				Rank:          i + 1,
				OriginalPct:   h.originalPct,
				AmountSold:    h.totalSold(),
				PctOfHolding:  cumulative,
				CumulativePct: cumulative,
				Level:         level,
				At:            lastAt,
			}
		}

		if cumulative >= w.config.ExitThresholdPct {
			return &HolderSellAlert{
				ID:            uuid.NewString(),
				Mint:          mint,
				Holder:        h.address,
				Rank:          i + 1,
				OriginalPct:   h.originalPct,
				AmountSold:    h.totalSold(),
				PctOfHolding:  cumulative,
				CumulativePct: cumulative,
				Level:         UrgencyHigh,
				At:            lastAt,
			}
		}
	}
	return nil
}

// TakeAlerts drains pending alerts for publishing.
func (w *HolderWatcher) TakeAlerts() []HolderSellAlert {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := w.alerts
	w.alerts = nil
	return out
}

// Pattern returns a wallet's dump history, if any.
func (w *HolderWatcher) Pattern(address string) (DumpPattern, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	p, ok := w.patterns[address]
	if !ok {
		return DumpPattern{}, false
	}
	cp := *p
	cp.Dumps = append([]DumpRecord(nil), p.Dumps...)
	return cp, true
}

// IsKnownDumper reports whether a wallet has dumped at least two positions
// on us, returning the dump count and average time-to-dump.
func (w *HolderWatcher) IsKnownDumper(address string) (int, float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	p, ok := w.patterns[address]
	if !ok || len(p.Dumps) < 2 {
		return 0, 0, false
	}
	return len(p.Dumps), p.AvgTimeToDumpSecs, true
}

// HolderStats is a snapshot of watcher state.
type HolderStats struct {
	TokensWatched  int `json:"tokens_watched"`
	HoldersWatched int `json:"holders_watched"`
	KnownPatterns  int `json:"known_patterns"`
	KnownDumpers   int `json:"known_dumpers"`
}

// Stats returns current counts.
func (w *HolderWatcher) Stats() HolderStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	dumpers := 0
	for _, p := range w.patterns {
		if len(p.Dumps) >= 2 {
			dumpers++
		}
	}
	return HolderStats{
		TokensWatched:  len(w.watched),
		HoldersWatched: len(w.addresses),
		KnownPatterns:  len(w.patterns),
		KnownDumpers:   dumpers,
	}
}
