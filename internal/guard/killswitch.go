package guard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/vigil/internal/bundle"
)

// ---------------------------------------------------------------------------
// KillSwitch -- instant exit triggers for open positions
// ---------------------------------------------------------------------------

// KillSwitchConfig controls which sell patterns force an immediate exit.
// The bundled-sell count and window live in the bundle detector config,
// which owns the flagged cohorts being watched.
type KillSwitchConfig struct {
	// Enabled turns the kill switch on. Disabled, every sell passes.
	Enabled bool `yaml:"enabled"`

	// ExitOnDeployerSell exits the moment the token creator sells any
	// amount.
	ExitOnDeployerSell bool `yaml:"exit_on_deployer_sell"`

	// ExitOnTopHolderSell exits when the largest watched holder sells.
	ExitOnTopHolderSell bool `yaml:"exit_on_top_holder_sell"`

	// AutoExit marks triggered alerts for unattended execution.
	AutoExit bool `yaml:"auto_exit"`
}

// DefaultKillSwitchConfig returns kill switch defaults. Everything is on:
// positions in fresh pump.fun tokens do not survive a hesitant exit.
func DefaultKillSwitchConfig() KillSwitchConfig {
	return KillSwitchConfig{
		Enabled:             true,
		ExitOnDeployerSell:  true,
		ExitOnTopHolderSell: true,
		AutoExit:            true,
	}
}

// Trigger identifies which pattern fired the kill switch.
type Trigger string

const (
	TriggerDeployerSell  Trigger = "DEPLOYER_SELL"
	TriggerTopHolderSell Trigger = "TOP_HOLDER_SELL"
	TriggerBundleSell    Trigger = "BUNDLE_SELL"
)

// ExitUrgency grades how fast the exit must happen.
type ExitUrgency string

const (
	// ExitImmediate means exit in the same slot if possible.
	ExitImmediate ExitUrgency = "IMMEDIATE"
	// ExitHigh means exit within the next second or two.
	ExitHigh ExitUrgency = "HIGH"
	// ExitMedium means exit at the next reasonable price.
	ExitMedium ExitUrgency = "MEDIUM"
)

// Alert is a fired kill switch trigger.
type Alert struct {
	ID       string      `json:"id"`
	Trigger  Trigger     `json:"trigger"`
	Mint     string      `json:"mint"`
	Urgency  ExitUrgency `json:"urgency"`
	Reason   string      `json:"reason"`
	AutoExit bool        `json:"auto_exit"`
	At       time.Time   `json:"at"`

	// Trigger detail. Wallet is the deployer or holder; SellersCount and
	// TotalSellSOL are set for bundle triggers only.
	Wallet       string  `json:"wallet,omitempty"`
	Rank         int     `json:"rank,omitempty"`
	PctSold      float64 `json:"pct_sold,omitempty"`
	TokensSold   uint64  `json:"tokens_sold,omitempty"`
	SellersCount int     `json:"sellers_count,omitempty"`
	TotalSellSOL float64 `json:"total_sell_sol,omitempty"`
}

// Action is the kill switch verdict on a sell.
type Action string

const (
	ActionContinue Action = "CONTINUE"
	ActionExit     Action = "EXIT"
)

// Decision pairs the verdict with the alert that caused it.
type Decision struct {
	Action Action `json:"action"`
	Alert  *Alert `json:"alert,omitempty"`
}

func continueDecision() Decision {
	return Decision{Action: ActionContinue}
}

// SellEvent is a decoded sell observed on a mint we hold.
type SellEvent struct {
	Mint        string
	Trader      string
	TokenAmount uint64
	SOLAmount   float64
	At          time.Time
}

// ---------------------------------------------------------------------------
// DeployerTracker -- remember who created each token
// ---------------------------------------------------------------------------

// DeployerTracker maps mints to the wallet that deployed them.
type DeployerTracker struct {
	mu        sync.RWMutex
	deployers map[string]string
}

// NewDeployerTracker creates an empty tracker.
func NewDeployerTracker() *DeployerTracker {
	return &DeployerTracker{deployers: make(map[string]string)}
}

// Track records a mint's deployer.
func (t *DeployerTracker) Track(mint, creator string) {
	t.mu.Lock()
	t.deployers[mint] = creator
	t.mu.Unlock()

	log.Info().
		Str("mint", mint).
		Str("deployer", creator).
		Msg("guard: tracking deployer")
}

// Untrack forgets a mint.
func (t *DeployerTracker) Untrack(mint string) {
	t.mu.Lock()
	delete(t.deployers, mint)
	t.mu.Unlock()
}

// IsDeployer reports whether the wallet deployed the mint.
func (t *DeployerTracker) IsDeployer(mint, wallet string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.deployers[mint] == wallet
}

// Deployer returns the mint's deployer, if tracked.
func (t *DeployerTracker) Deployer(mint string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.deployers[mint]
	return d, ok
}

// Count returns how many mints are tracked.
func (t *DeployerTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.deployers)
}

// ---------------------------------------------------------------------------
// KillSwitch
// ---------------------------------------------------------------------------

// KillSwitch evaluates every sell against the patterns that demand an
// instant exit: deployer selling, top holder selling, flagged bundle
// selling together. Triggers are checked in that order and the first hit
// wins.
type KillSwitch struct {
	config    KillSwitchConfig
	deployers *DeployerTracker
	holders   *HolderWatcher
	bundles   *bundle.Detector // nil skips the bundled-sell check

	evaluated     atomic.Int64
	deployerExits atomic.Int64
	holderExits   atomic.Int64
	bundleExits   atomic.Int64
}

// NewKillSwitch creates a kill switch with its own deployer tracker and
// holder watcher. The bundle detector is shared with entry-side detection
// and may be nil.
func NewKillSwitch(config KillSwitchConfig, holderConfig HolderConfig, bundles *bundle.Detector) *KillSwitch {
	return &KillSwitch{
		config:    config,
		deployers: NewDeployerTracker(),
		holders:   NewHolderWatcher(holderConfig),
		bundles:   bundles,
	}
}

// WatchPosition arms the kill switch for a position we just entered.
func (k *KillSwitch) WatchPosition(mint, creator string, holders []Holding) {
	k.deployers.Track(mint, creator)
	k.holders.Watch(mint, holders)
}

// UnwatchPosition disarms a closed position.
func (k *KillSwitch) UnwatchPosition(mint string) {
	k.deployers.Untrack(mint)
	k.holders.Unwatch(mint)
}

// Evaluate checks a sell against every trigger. Holder selling is recorded
// even when a lower-priority trigger ends up deciding, so cumulative
// thresholds stay accurate.
func (k *KillSwitch) Evaluate(ev SellEvent) Decision {
	if !k.config.Enabled {
		return continueDecision()
	}
	k.evaluated.Add(1)

	if k.config.ExitOnDeployerSell && k.deployers.IsDeployer(ev.Mint, ev.Trader) {
		k.deployerExits.Add(1)
		alert := &Alert{
			ID:         uuid.NewString(),
			Trigger:    TriggerDeployerSell,
			Mint:       ev.Mint,
			Urgency:    ExitImmediate,
			Reason:     fmt.Sprintf("Deployer %s sold %d tokens", ev.Trader, ev.TokenAmount),
			AutoExit:   k.config.AutoExit,
			At:         ev.At,
			Wallet:     ev.Trader,
			TokensSold: ev.TokenAmount,
		}
		log.Warn().
			Str("mint", ev.Mint).
			Str("deployer", ev.Trader).
			Uint64("tokens", ev.TokenAmount).
			Msg("guard: KILL-SWITCH deployer selling")
		return Decision{Action: ActionExit, Alert: alert}
	}

	if k.config.ExitOnTopHolderSell {
		if ha := k.holders.RecordSell(ev.Mint, ev.Trader, ev.TokenAmount, ev.SOLAmount, ev.At); ha != nil && ha.Level == UrgencyCritical {
			k.holderExits.Add(1)
			alert := &Alert{
				ID:       uuid.NewString(),
				Trigger:  TriggerTopHolderSell,
				Mint:     ev.Mint,
				Urgency:  ExitImmediate,
				Reason:   fmt.Sprintf("Top holder #%d (%s) sold %.1f%% of position", ha.Rank, ha.Holder, ha.PctOfHolding),
				AutoExit: k.config.AutoExit,
				At:       ev.At,
				Wallet:   ha.Holder,
				Rank:     ha.Rank,
				PctSold:  ha.PctOfHolding,
			}
			log.Warn().
				Str("mint", ev.Mint).
				Str("holder", ha.Holder).
				Float64("pct_sold", ha.PctOfHolding).
				Msg("guard: KILL-SWITCH top holder selling")
			return Decision{Action: ActionExit, Alert: alert}
		}
	}

	if k.bundles != nil {
		if sa := k.bundles.RecordSell(ev.Mint, ev.Trader, ev.SOLAmount, ev.At); sa != nil {
			k.bundleExits.Add(1)
			alert := &Alert{
				ID:           uuid.NewString(),
				Trigger:      TriggerBundleSell,
				Mint:         ev.Mint,
				Urgency:      ExitHigh,
				Reason:       fmt.Sprintf("%d bundled wallets sold together within %ds", sa.WalletsSelling, sa.WindowSecs),
				AutoExit:     k.config.AutoExit,
				At:           ev.At,
				Wallet:       ev.Trader,
				SellersCount: sa.WalletsSelling,
				TotalSellSOL: sa.TotalSellSOL,
			}
			log.Warn().
				Str("mint", ev.Mint).
				Int("sellers", sa.WalletsSelling).
				Float64("total_sol", sa.TotalSellSOL).
				Msg("guard: KILL-SWITCH bundle selling together")
			return Decision{Action: ActionExit, Alert: alert}
		}
	}

	return continueDecision()
}

// ShouldExit re-checks accumulated holder selling for a position,
// independent of any single sell event.
func (k *KillSwitch) ShouldExit(mint string) Decision {
	if !k.config.Enabled {
		return continueDecision()
	}

	ha := k.holders.ShouldExit(mint)
	if ha == nil {
		return continueDecision()
	}

	urgency := ExitMedium
	switch ha.Level {
	case UrgencyCritical:
		urgency = ExitImmediate
	case UrgencyHigh:
		urgency = ExitHigh
	}

	k.holderExits.Add(1)
	return Decision{
		Action: ActionExit,
		Alert: &Alert{
			ID:       uuid.NewString(),
			Trigger:  TriggerTopHolderSell,
			Mint:     mint,
			Urgency:  urgency,
			Reason:   fmt.Sprintf("Holder #%d sold %.1f%% total - exit triggered", ha.Rank, ha.CumulativePct),
			AutoExit: k.config.AutoExit,
			At:       ha.At,
			Wallet:   ha.Holder,
			Rank:     ha.Rank,
			PctSold:  ha.CumulativePct,
		},
	}
}

// Holders exposes the holder watcher for alert draining and stats.
func (k *KillSwitch) Holders() *HolderWatcher {
	return k.holders
}

// Deployers exposes the deployer tracker.
func (k *KillSwitch) Deployers() *DeployerTracker {
	return k.deployers
}

// KillSwitchStats counts evaluations and exits by trigger.
type KillSwitchStats struct {
	Evaluated     int64 `json:"evaluated"`
	DeployerExits int64 `json:"deployer_exits"`
	HolderExits   int64 `json:"holder_exits"`
	BundleExits   int64 `json:"bundle_exits"`
}

// Stats returns trigger counters.
func (k *KillSwitch) Stats() KillSwitchStats {
	return KillSwitchStats{
		Evaluated:     k.evaluated.Load(),
		DeployerExits: k.deployerExits.Load(),
		HolderExits:   k.holderExits.Load(),
		BundleExits:   k.bundleExits.Load(),
	}
}
