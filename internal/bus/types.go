// Package bus connects vigil to the platform's Kafka/RedPanda bus. Launch
// and trade events arrive on chain.* topics; scoring decisions and exit
// alerts leave on score.* and guard.* topics.
package bus

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BaseEvent contains fields common to all events.
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"ts"`
	SchemaVersion string    `json:"schema_version"`
	Producer      string    `json:"producer"`
	TraceID       string    `json:"trace_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"`
}

// NewBaseEvent creates a new BaseEvent with generated IDs.
func NewBaseEvent(producer, schemaVersion string) BaseEvent {
	return BaseEvent{
		EventID:       uuid.New().String(),
		Timestamp:     time.Now(),
		SchemaVersion: schemaVersion,
		Producer:      producer,
		TraceID:       uuid.New().String()[:16],
	}
}

// Trade sides as they appear on the wire.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// --- Inbound chain events ---

// TokenLaunch is a new pump.fun token creation event.
type TokenLaunch struct {
	BaseEvent
	Mint             string          `json:"mint"`
	Symbol           string          `json:"symbol"`
	Name             string          `json:"name"`
	URI              string          `json:"uri"`
	Creator          string          `json:"creator"`
	BondingCurve     string          `json:"bonding_curve"`
	InitialBuySOL    decimal.Decimal `json:"initial_buy_sol"`
	InitialBuyTokens uint64          `json:"initial_buy_tokens"`
	DevHoldingsPct   float64         `json:"dev_holdings_pct"`
	LiquiditySOL     decimal.Decimal `json:"liquidity_sol"`
	Slot             uint64          `json:"slot"`
	LaunchedAt       time.Time       `json:"launched_at"`
}

// TokenTrade is a single swap against a token's bonding curve.
type TokenTrade struct {
	BaseEvent
	Mint            string          `json:"mint"`
	Trader          string          `json:"trader"`
	Side            string          `json:"side"` // buy|sell
	SOLAmount       decimal.Decimal `json:"sol_amount"`
	TokenAmount     uint64          `json:"token_amount"`
	BondingCurvePct float64         `json:"bonding_curve_pct"`
	Slot            uint64          `json:"slot"`
	Signature       string          `json:"signature"`
	TradedAt        time.Time       `json:"traded_at"`
}

// --- Outbound vigil events ---

// Decision is a published scoring verdict for a token.
type Decision struct {
	BaseEvent
	Mint             string  `json:"mint"`
	Symbol           string  `json:"symbol"`
	Score            float64 `json:"score"`
	Confidence       float64 `json:"confidence"`
	RiskScore        float64 `json:"risk_score"`
	OpportunityScore float64 `json:"opportunity_score"`
	Recommendation   string  `json:"recommendation"`
	SizeMultiplier   float64 `json:"size_multiplier"`
	Reason           string  `json:"reason"`
	Degraded         bool    `json:"degraded"`
	SignalCount      int     `json:"signal_count"`
	ElapsedMs        float64 `json:"elapsed_ms"`
}

// ExitAlert is a published kill-switch or holder-watch trigger. The
// position-exit layer treats AutoExit alerts as orders.
type ExitAlert struct {
	BaseEvent
	Mint         string          `json:"mint"`
	Trigger      string          `json:"trigger"`
	Urgency      string          `json:"urgency"`
	Reason       string          `json:"reason"`
	AutoExit     bool            `json:"auto_exit"`
	Wallet       string          `json:"wallet,omitempty"`
	Rank         int             `json:"rank,omitempty"`
	PctSold      float64         `json:"pct_sold,omitempty"`
	TokensSold   uint64          `json:"tokens_sold,omitempty"`
	SellersCount int             `json:"sellers_count,omitempty"`
	TotalSellSOL decimal.Decimal `json:"total_sell_sol"`
}
