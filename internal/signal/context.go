package signal

import "time"

// ---------------------------------------------------------------------------
// Scoring contexts -- everything a provider may look at
// ---------------------------------------------------------------------------

// TokenContext carries what is known about a token at scoring time. The
// launch-event fields are always populated; the enrichment attachments are
// nil until background fetches (or the cache) fill them in.
type TokenContext struct {
	Mint            string    `json:"mint"`
	Name            string    `json:"name"`
	Symbol          string    `json:"symbol"`
	URI             string    `json:"uri"`
	Creator         string    `json:"creator"`
	BondingCurve    string    `json:"bonding_curve"`
	InitialBuySOL   float64   `json:"initial_buy_sol"`
	VirtualTokens   float64   `json:"virtual_tokens"`
	VirtualSOL      float64   `json:"virtual_sol"`
	MarketCapSOL    float64   `json:"market_cap_sol"`
	BondingCurvePct float64   `json:"bonding_curve_pct"` // % of curve filled, 0 when unknown
	LaunchTime      time.Time `json:"launch_time"`

	// Enrichment attachments (nil = not fetched).
	CreatorHistory *WalletHistory     `json:"creator_history,omitempty"`
	Distribution   *TokenDistribution `json:"distribution,omitempty"`
	MintState      *MintInfo          `json:"mint_info,omitempty"`
	RecentTrades   []TradeRecord      `json:"recent_trades,omitempty"`
	OrderFlow      *OrderFlowSnapshot `json:"order_flow,omitempty"`
}

// EstimatedPrice derives the spot price from virtual reserves.
func (c *TokenContext) EstimatedPrice() float64 {
	if c.VirtualTokens <= 0 {
		return 0
	}
	return c.VirtualSOL / c.VirtualTokens
}

// Age returns time elapsed since launch.
func (c *TokenContext) Age(now time.Time) time.Duration {
	if c.LaunchTime.IsZero() {
		return 0
	}
	return now.Sub(c.LaunchTime)
}

// TradeContext describes a single observed trade on a tracked token.
type TradeContext struct {
	Mint         string        `json:"mint"`
	Trader       string        `json:"trader"`
	IsBuy        bool          `json:"is_buy"`
	AmountSOL    float64       `json:"amount_sol"`
	AmountTokens float64       `json:"amount_tokens"`
	Slot         uint64        `json:"slot"`
	Timestamp    time.Time     `json:"ts"`
	Token        *TokenContext `json:"-"`
}

// PositionContext describes an open position under reassessment.
type PositionContext struct {
	Mint         string        `json:"mint"`
	EntryPrice   float64       `json:"entry_price"`
	CurrentPrice float64       `json:"current_price"`
	PositionSOL  float64       `json:"position_sol"`
	EntryTime    time.Time     `json:"entry_time"`
	Token        *TokenContext `json:"-"`
}

// PnLPct is the unrealized percentage gain/loss of the position.
func (p *PositionContext) PnLPct() float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100.0
}

// ---------------------------------------------------------------------------
// Enrichment records
// ---------------------------------------------------------------------------

// WalletHistory summarizes a wallet's on-chain past. Produced by the
// enrichment layer, cached aggressively: one fetch covers every token the
// wallet ever touches within the TTL.
type WalletHistory struct {
	Address             string    `json:"address"`
	FirstSeen           time.Time `json:"first_seen"`
	TotalTransactions   int       `json:"total_transactions"`
	PumpfunTransactions int       `json:"pumpfun_transactions"`
	TokensDeployed      int       `json:"tokens_deployed"`
	TokensTraded        int       `json:"tokens_traded"`
	TotalTrades         int       `json:"total_trades"`
	WinRate             float64   `json:"win_rate"` // [0,1] over closed round trips
	AvgHoldSecs         float64   `json:"avg_hold_secs"`
	AvgPositionSOL      float64   `json:"avg_position_sol"`
	AvgTimeToBuySecs    float64   `json:"avg_time_to_buy_secs"` // launch -> first buy
	SellsWithin10Min    int       `json:"sells_within_10_min"`
	AvgProfitOnWin      float64   `json:"avg_profit_on_win"`
	AvgLossOnLoss       float64   `json:"avg_loss_on_loss"`
	DeployedRugCount    int       `json:"deployed_rug_count"`
	AssociatedWallets   []string  `json:"associated_wallets,omitempty"`
	ClusterID           string    `json:"cluster_id,omitempty"`
	FetchedAt           time.Time `json:"fetched_at"`
}

// AgeDays returns the wallet age in days at the given instant.
func (w *WalletHistory) AgeDays(now time.Time) float64 {
	if w.FirstSeen.IsZero() {
		return 0
	}
	return now.Sub(w.FirstSeen).Hours() / 24.0
}

// IsNewWallet reports whether the wallet is younger than 7 days.
func (w *WalletHistory) IsNewWallet(now time.Time) bool {
	return w.AgeDays(now) < 7
}

// IsLikelySniper flags heavy pump.fun activity with fast exits.
func (w *WalletHistory) IsLikelySniper() bool {
	return w.PumpfunTransactions > 50 && w.SellsWithin10Min > 10
}

// IsLikelyDeployer reports whether the wallet has deployed tokens before.
func (w *WalletHistory) IsLikelyDeployer() bool {
	return w.TokensDeployed > 0
}

// IsLikelyRugDeployer reports a history of deployments that rugged.
func (w *WalletHistory) IsLikelyRugDeployer() bool {
	return w.DeployedRugCount > 0
}

// TokenHolder is one entry in a token's holder list.
type TokenHolder struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"` // token units
	Pct     float64 `json:"pct"`     // fraction of supply [0,1]
}

// TokenDistribution describes how a token's supply is spread out.
// Percentages are fractions of total supply in [0,1].
type TokenDistribution struct {
	Mint            string        `json:"mint"`
	HolderCount     int           `json:"holder_count"`
	TopHolderPct    float64       `json:"top_holder_pct"`
	Top5Pct         float64       `json:"top5_pct"`
	Top10Pct        float64       `json:"top10_pct"`
	GiniCoefficient float64       `json:"gini"`
	Holders         []TokenHolder `json:"holders,omitempty"`
	FetchedAt       time.Time     `json:"fetched_at"`
}

// IsConcentrated reports whether supply sits in dangerously few hands.
func (d *TokenDistribution) IsConcentrated() bool {
	return d.TopHolderPct > 0.50 || d.Top5Pct > 0.70 || d.GiniCoefficient > 0.8
}

// MintInfo is the on-chain mint account state. Empty authority strings mean
// the authority has been revoked.
type MintInfo struct {
	Mint            string    `json:"mint"`
	MintAuthority   string    `json:"mint_authority,omitempty"`
	FreezeAuthority string    `json:"freeze_authority,omitempty"`
	Supply          float64   `json:"supply"`
	Decimals        int       `json:"decimals"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// HasMintAuthority reports whether new supply can still be minted.
func (m *MintInfo) HasMintAuthority() bool { return m.MintAuthority != "" }

// HasFreezeAuthority reports whether accounts can still be frozen.
func (m *MintInfo) HasFreezeAuthority() bool { return m.FreezeAuthority != "" }

// IsFullyRenounced reports whether both authorities are revoked.
func (m *MintInfo) IsFullyRenounced() bool {
	return m.MintAuthority == "" && m.FreezeAuthority == ""
}

// TradeRecord is a single historical trade, as stored in trade buffers.
type TradeRecord struct {
	Mint         string    `json:"mint"`
	Trader       string    `json:"trader"`
	IsBuy        bool      `json:"is_buy"`
	AmountSOL    float64   `json:"amount_sol"`
	AmountTokens float64   `json:"amount_tokens"`
	Slot         uint64    `json:"slot"`
	Timestamp    time.Time `json:"ts"`
}

// Price returns the effective SOL-per-token price of the trade.
func (t *TradeRecord) Price() float64 {
	if t.AmountTokens <= 0 {
		return 0
	}
	return t.AmountSOL / t.AmountTokens
}

// OrderFlowSnapshot aggregates recent order flow on a token.
type OrderFlowSnapshot struct {
	Mint          string    `json:"mint"`
	WindowSecs    int       `json:"window_secs"`
	BuyCount      int       `json:"buy_count"`
	SellCount     int       `json:"sell_count"`
	UniqueBuyers  int       `json:"unique_buyers"`
	UniqueSellers int       `json:"unique_sellers"`
	BuyVolumeSOL  float64   `json:"buy_volume_sol"`
	SellVolumeSOL float64   `json:"sell_volume_sol"`
	AsOf          time.Time `json:"as_of"`
}

// NetFlowSOL is buy volume minus sell volume.
func (o *OrderFlowSnapshot) NetFlowSOL() float64 {
	return o.BuyVolumeSOL - o.SellVolumeSOL
}

// BuyRatio is the buy share of total volume (0.5 when no volume).
func (o *OrderFlowSnapshot) BuyRatio() float64 {
	total := o.BuyVolumeSOL + o.SellVolumeSOL
	if total <= 0 {
		return 0.5
	}
	return o.BuyVolumeSOL / total
}
