package cache

import (
	"sync"
	"time"

	"github.com/nexus-trading/vigil/internal/signal"
)

// ---------------------------------------------------------------------------
// Trade Flow Buffer -- recent trades per mint for order-flow signals
// ---------------------------------------------------------------------------

// TradeFlow keeps a bounded ring of recent trades per mint. Background
// providers read it to judge order flow without any RPC.
type TradeFlow struct {
	mu      sync.RWMutex
	perMint map[string][]signal.TradeRecord
	size    int
}

// NewTradeFlow creates a buffer holding up to size trades per mint.
func NewTradeFlow(size int) *TradeFlow {
	if size < 1 {
		size = 1
	}
	return &TradeFlow{
		perMint: make(map[string][]signal.TradeRecord),
		size:    size,
	}
}

// Record appends a trade, dropping the oldest once the ring is full.
func (t *TradeFlow) Record(tr signal.TradeRecord) {
	if tr.Mint == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	buf := t.perMint[tr.Mint]
	if len(buf) >= t.size {
		buf = buf[1:]
	}
	t.perMint[tr.Mint] = append(buf, tr)
}

// Recent returns trades for the mint within the window, oldest first.
func (t *TradeFlow) Recent(mint string, window time.Duration) []signal.TradeRecord {
	cutoff := time.Now().Add(-window)
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []signal.TradeRecord
	for _, tr := range t.perMint[mint] {
		if tr.Timestamp.After(cutoff) {
			out = append(out, tr)
		}
	}
	return out
}

// Snapshot aggregates the mint's trades in the window into an order-flow
// view. Returns nil when no trades are in the window.
func (t *TradeFlow) Snapshot(mint string, window time.Duration) *signal.OrderFlowSnapshot {
	trades := t.Recent(mint, window)
	if len(trades) == 0 {
		return nil
	}

	of := &signal.OrderFlowSnapshot{
		Mint:       mint,
		WindowSecs: int(window.Seconds()),
		AsOf:       time.Now(),
	}
	buyers := make(map[string]struct{})
	sellers := make(map[string]struct{})
	for _, tr := range trades {
		if tr.IsBuy {
			of.BuyCount++
			of.BuyVolumeSOL += tr.AmountSOL
			buyers[tr.Trader] = struct{}{}
		} else {
			of.SellCount++
			of.SellVolumeSOL += tr.AmountSOL
			sellers[tr.Trader] = struct{}{}
		}
	}
	of.UniqueBuyers = len(buyers)
	of.UniqueSellers = len(sellers)
	return of
}

// Drop removes a mint's buffer (token graduated or abandoned).
func (t *TradeFlow) Drop(mint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.perMint, mint)
}

// Prune removes mints whose newest trade is older than maxAge and returns
// how many were dropped.
func (t *TradeFlow) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := 0
	for mint, buf := range t.perMint {
		if len(buf) == 0 || buf[len(buf)-1].Timestamp.Before(cutoff) {
			delete(t.perMint, mint)
			dropped++
		}
	}
	return dropped
}

// Tracked returns the number of mints currently buffered.
func (t *TradeFlow) Tracked() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.perMint)
}
