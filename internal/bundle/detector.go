// Package bundle detects coordinated wallet activity around token launches.
// Team and insider wallets are typically funded together, buy in the same
// slot or with identical sizes, and dump together; flagging the cohort at
// entry lets the kill switch fire on their first coordinated sell.
package bundle

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Detector -- launch-window coordination patterns
// ---------------------------------------------------------------------------

// Config controls bundled wallet detection.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// SameSlotThreshold is the minimum buys sharing one slot.
	SameSlotThreshold int `yaml:"same_slot_threshold"`

	// AmountVariance is the relative tolerance for "identical" buys.
	AmountVariance float64 `yaml:"amount_variance"`

	// CommonFundingThreshold is the minimum buyers sharing one source.
	CommonFundingThreshold int `yaml:"common_funding_threshold"`

	// EarlyBuyLimit caps how many launch-window buys are kept per mint.
	EarlyBuyLimit int `yaml:"early_buy_limit"`

	// SellTogetherCount flagged wallets selling inside SellWindowSecs
	// raises a coordinated-sell alert.
	SellTogetherCount int `yaml:"sell_together_count"`
	SellWindowSecs    int `yaml:"sell_window_secs"`
}

// DefaultConfig returns detection defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		SameSlotThreshold:      3,
		AmountVariance:         0.01, // 1%
		CommonFundingThreshold: 2,
		EarlyBuyLimit:          30,
		SellTogetherCount:      2,
		SellWindowSecs:         30,
	}
}

// EarlyBuy is one launch-window buy. Slot 0 means the slot was unknown.
type EarlyBuy struct {
	Wallet    string    `json:"wallet"`
	AmountSOL float64   `json:"amount_sol"`
	Slot      uint64    `json:"slot"`
	At        time.Time `json:"at"`
}

// ReasonKind names a detection pattern.
type ReasonKind string

const (
	ReasonSameSlotBuys     ReasonKind = "same_slot_buys"
	ReasonIdenticalAmounts ReasonKind = "identical_amounts"
	ReasonCommonFunding    ReasonKind = "common_funding"
	ReasonMultiple         ReasonKind = "multiple"
)

// Reason explains why a cohort was flagged. Exactly the fields relevant
// to the kind are set; Multiple nests the individual patterns in Parts.
type Reason struct {
	Kind      ReasonKind `json:"kind"`
	Slot      uint64     `json:"slot,omitempty"`
	Count     int        `json:"count,omitempty"`
	AmountSOL float64    `json:"amount_sol,omitempty"`
	Variance  float64    `json:"variance,omitempty"`
	Source    string     `json:"source,omitempty"`
	Parts     []Reason   `json:"parts,omitempty"`
}

// Group is a flagged launch cohort for one mint.
type Group struct {
	Mint        string    `json:"mint"`
	Wallets     []string  `json:"wallets"`
	Reason      Reason    `json:"reason"`
	TotalBuySOL float64   `json:"total_buy_sol"`
	DetectedAt  time.Time `json:"detected_at"`

	recentSells []groupSell
}

type groupSell struct {
	wallet    string
	amountSOL float64
	at        time.Time
}

// SellAlert fires when enough flagged wallets sell inside the window.
type SellAlert struct {
	Mint           string  `json:"mint"`
	WalletsSelling int     `json:"wallets_selling"`
	TotalSellSOL   float64 `json:"total_sell_sol"`
	WindowSecs     int     `json:"window_secs"`
}

// Marker pins a wallet's profile category once it is flagged as part of
// a bundle.
type Marker interface {
	MarkBundled(address string)
}

// Detector accumulates launch-window buys per mint and flags coordinated
// cohorts. Funding relationships go through the clusterer so findings are
// shared with everything else reading it.
type Detector struct {
	config    Config
	clusterer *Clusterer // nil skips the funding check
	marker    Marker     // nil skips profile pinning

	mu      sync.RWMutex
	buys    map[string][]EarlyBuy
	bundles map[string]*Group

	analyzed   atomic.Int64
	detected   atomic.Int64
	sellAlerts atomic.Int64
}

// NewDetector creates a detector. clusterer and marker are optional.
func NewDetector(config Config, clusterer *Clusterer, marker Marker) *Detector {
	return &Detector{
		config:    config,
		clusterer: clusterer,
		marker:    marker,
		buys:      make(map[string][]EarlyBuy),
		bundles:   make(map[string]*Group),
	}
}

// RecordBuy keeps one launch-window buy. Buys past the per-mint limit are
// dropped; coordination shows up in the first handful or not at all.
func (d *Detector) RecordBuy(mint, wallet string, slot uint64, amountSOL float64, at time.Time) {
	if !d.config.Enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.buys[mint]) >= d.config.EarlyBuyLimit {
		return
	}
	d.buys[mint] = append(d.buys[mint], EarlyBuy{
		Wallet:    wallet,
		AmountSOL: amountSOL,
		Slot:      slot,
		At:        at,
	})
}

// Analyze runs every pattern check over the mint's recorded buys. When any
// pattern fires the whole cohort is flagged: coordination by a few taints
// the entire launch window. Returns nil when nothing fires.
func (d *Detector) Analyze(ctx context.Context, mint string) *Group {
	if !d.config.Enabled {
		return nil
	}

	d.mu.RLock()
	buys := append([]EarlyBuy(nil), d.buys[mint]...)
	d.mu.RUnlock()

	if len(buys) < 2 {
		return nil
	}
	d.analyzed.Add(1)

	var reasons []Reason
	if r, ok := d.checkSameSlot(buys); ok {
		reasons = append(reasons, r)
	}
	if r, ok := d.checkIdenticalAmounts(buys); ok {
		reasons = append(reasons, r)
	}
	if d.clusterer != nil {
		if r, ok := d.checkCommonFunding(ctx, buys); ok {
			reasons = append(reasons, r)
		}
	}
	if len(reasons) == 0 {
		return nil
	}

	reason := reasons[0]
	if len(reasons) > 1 {
		reason = Reason{Kind: ReasonMultiple, Parts: reasons}
	}

	seen := make(map[string]struct{}, len(buys))
	var wallets []string
	var totalSOL float64
	for _, b := range buys {
		totalSOL += b.AmountSOL
		if _, ok := seen[b.Wallet]; ok {
			continue
		}
		seen[b.Wallet] = struct{}{}
		wallets = append(wallets, b.Wallet)
	}

	group := &Group{
		Mint:        mint,
		Wallets:     wallets,
		Reason:      reason,
		TotalBuySOL: totalSOL,
		DetectedAt:  time.Now(),
	}

	d.mu.Lock()
	d.bundles[mint] = group
	d.mu.Unlock()
	d.detected.Add(1)

	if d.marker != nil {
		for _, w := range wallets {
			d.marker.MarkBundled(w)
		}
	}

	log.Info().
		Str("mint", mint).
		Int("wallets", len(wallets)).
		Str("reason", string(reason.Kind)).
		Msg("bundle: coordinated wallets detected")

	return group.snapshot()
}

// checkSameSlot looks for a slot shared by enough buys.
func (d *Detector) checkSameSlot(buys []EarlyBuy) (Reason, bool) {
	bySlot := make(map[uint64]int)
	for _, b := range buys {
		if b.Slot == 0 {
			continue
		}
		bySlot[b.Slot]++
	}
	for slot, count := range bySlot {
		if count >= d.config.SameSlotThreshold {
			log.Debug().
				Uint64("slot", slot).
				Int("count", count).
				Msg("bundle: same-slot buys")
			return Reason{Kind: ReasonSameSlotBuys, Slot: slot, Count: count}, true
		}
	}
	return Reason{}, false
}

// checkIdenticalAmounts greedily groups buys within the variance tolerance
// of each group's first member, then confirms the group against its mean.
func (d *Detector) checkIdenticalAmounts(buys []EarlyBuy) (Reason, bool) {
	var groups [][]EarlyBuy
	for _, b := range buys {
		placed := false
		for i := range groups {
			first := groups[i][0]
			if first.AmountSOL <= 0 {
				continue
			}
			variance := math.Abs(b.AmountSOL-first.AmountSOL) / first.AmountSOL
			if variance <= d.config.AmountVariance {
				groups[i] = append(groups[i], b)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []EarlyBuy{b})
		}
	}

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		var sum float64
		for _, b := range group {
			sum += b.AmountSOL
		}
		mean := sum / float64(len(group))
		if mean <= 0 {
			continue
		}
		maxVariance := 0.0
		for _, b := range group {
			if v := math.Abs(b.AmountSOL-mean) / mean; v > maxVariance {
				maxVariance = v
			}
		}
		if maxVariance <= d.config.AmountVariance {
			log.Debug().
				Float64("amount_sol", mean).
				Int("count", len(group)).
				Float64("variance", maxVariance).
				Msg("bundle: identical-amount buys")
			return Reason{
				Kind:      ReasonIdenticalAmounts,
				AmountSOL: mean,
				Count:     len(group),
				Variance:  maxVariance,
			}, true
		}
	}
	return Reason{}, false
}

// checkCommonFunding asks the clusterer for each buyer's funding cluster
// and flags a source backing enough of the cohort.
func (d *Detector) checkCommonFunding(ctx context.Context, buys []EarlyBuy) (Reason, bool) {
	byCluster := make(map[string]int)
	seen := make(map[string]struct{}, len(buys))
	for _, b := range buys {
		if _, ok := seen[b.Wallet]; ok {
			continue
		}
		seen[b.Wallet] = struct{}{}
		if c := d.clusterer.FindCluster(ctx, b.Wallet); c != nil {
			byCluster[c.ID]++
		}
	}
	for source, count := range byCluster {
		if count >= d.config.CommonFundingThreshold {
			log.Debug().
				Str("source", source).
				Int("wallets", count).
				Msg("bundle: common funding source")
			return Reason{Kind: ReasonCommonFunding, Source: source, Count: count}, true
		}
	}
	return Reason{}, false
}

// IsBundled reports whether the wallet is part of the mint's flagged cohort.
func (d *Detector) IsBundled(mint, wallet string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	group, ok := d.bundles[mint]
	if !ok {
		return false
	}
	for _, w := range group.Wallets {
		if w == wallet {
			return true
		}
	}
	return false
}

// Bundle returns the flagged cohort for a mint, if any.
func (d *Detector) Bundle(mint string) (*Group, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	group, ok := d.bundles[mint]
	if !ok {
		return nil, false
	}
	return group.snapshot(), true
}

// RecordSell notes a sell by a flagged wallet and reports whether enough
// of the cohort has sold inside the sliding window. Sells by unflagged
// wallets are ignored.
func (d *Detector) RecordSell(mint, wallet string, amountSOL float64, at time.Time) *SellAlert {
	if !d.config.Enabled {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	group, ok := d.bundles[mint]
	if !ok {
		return nil
	}
	flagged := false
	for _, w := range group.Wallets {
		if w == wallet {
			flagged = true
			break
		}
	}
	if !flagged {
		return nil
	}

	group.recentSells = append(group.recentSells, groupSell{wallet: wallet, amountSOL: amountSOL, at: at})

	cutoff := at.Add(-time.Duration(d.config.SellWindowSecs) * time.Second)
	kept := group.recentSells[:0]
	for _, s := range group.recentSells {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	group.recentSells = kept

	sellers := make(map[string]struct{}, len(group.recentSells))
	var totalSOL float64
	for _, s := range group.recentSells {
		sellers[s.wallet] = struct{}{}
		totalSOL += s.amountSOL
	}

	log.Debug().
		Str("mint", mint).
		Str("wallet", wallet).
		Int("sellers", len(sellers)).
		Msg("bundle: flagged wallet sell recorded")

	if len(sellers) < d.config.SellTogetherCount {
		return nil
	}

	d.sellAlerts.Add(1)
	log.Warn().
		Str("mint", mint).
		Int("sellers", len(sellers)).
		Float64("total_sol", totalSOL).
		Msg("bundle: flagged wallets selling together")

	return &SellAlert{
		Mint:           mint,
		WalletsSelling: len(sellers),
		TotalSellSOL:   totalSOL,
		WindowSecs:     d.config.SellWindowSecs,
	}
}

// Untrack drops all state for a mint.
func (d *Detector) Untrack(mint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buys, mint)
	delete(d.bundles, mint)
}

// Clear drops everything.
func (d *Detector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buys = make(map[string][]EarlyBuy)
	d.bundles = make(map[string]*Group)
}

// Stats is a snapshot of detector activity.
type Stats struct {
	TrackedMints  int   `json:"tracked_mints"`
	ActiveBundles int   `json:"active_bundles"`
	Analyzed      int64 `json:"analyzed"`
	Detected      int64 `json:"detected"`
	SellAlerts    int64 `json:"sell_alerts"`
}

// Stats returns current counters.
func (d *Detector) Stats() Stats {
	d.mu.RLock()
	tracked := len(d.buys)
	active := len(d.bundles)
	d.mu.RUnlock()

	return Stats{
		TrackedMints:  tracked,
		ActiveBundles: active,
		Analyzed:      d.analyzed.Load(),
		Detected:      d.detected.Load(),
		SellAlerts:    d.sellAlerts.Load(),
	}
}

// snapshot copies the group without its private sell log.
func (g *Group) snapshot() *Group {
	return &Group{
		Mint:        g.Mint,
		Wallets:     append([]string(nil), g.Wallets...),
		Reason:      g.Reason,
		TotalBuySOL: g.TotalBuySOL,
		DetectedAt:  g.DetectedAt,
	}
}
