package profiler

import (
	"sort"
	"time"

	"github.com/nexus-trading/vigil/internal/signal"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Realized P&L -- FIFO matching of a wallet's swap history
// ---------------------------------------------------------------------------

const (
	quickFlipHoldSecs     = 300 // under 5 min counts as a flip
	preGraduationHoldSecs = 600 // under 10 min proxies for a pre-graduation exit
	optimalHoldMinSecs    = 30
	optimalHoldMaxSecs    = 120
)

// CompletedTrade is one sell matched to its oldest unmatched prior buy on
// the same token.
type CompletedTrade struct {
	Mint      string          `json:"mint"`
	BuyTime   time.Time       `json:"buy_time"`
	SellTime  time.Time       `json:"sell_time"`
	BuySOL    decimal.Decimal `json:"buy_sol"`
	SellSOL   decimal.Decimal `json:"sell_sol"`
	ProfitSOL decimal.Decimal `json:"profit_sol"`
	ProfitPct float64         `json:"profit_pct"`
	HoldSecs  int64           `json:"hold_secs"`
	RMultiple float64         `json:"r_multiple"` // profit / capital risked
}

// Profile aggregates a wallet's realized performance.
type Profile struct {
	Address   string    `json:"address"`
	FetchedAt time.Time `json:"fetched_at"`

	TotalRealizedProfitSOL decimal.Decimal  `json:"total_realized_profit_sol"`
	TotalVolumeSOL         decimal.Decimal  `json:"total_volume_sol"`
	CompletedTrades        []CompletedTrade `json:"completed_trades,omitempty"`
	OpenPositions          int              `json:"open_positions"` // buys with no matching sell

	WinCount       int             `json:"win_count"`
	LossCount      int             `json:"loss_count"`
	TotalTrades    int             `json:"total_trades"`
	WinRate        float64         `json:"win_rate"`
	AvgWinSOL      decimal.Decimal `json:"avg_win_sol"`
	AvgLossSOL     decimal.Decimal `json:"avg_loss_sol"`
	AvgRMultiple   float64         `json:"avg_r_multiple"`
	LargestWinSOL  decimal.Decimal `json:"largest_win_sol"`
	LargestLossSOL decimal.Decimal `json:"largest_loss_sol"`

	AvgHoldSecs         int64     `json:"avg_hold_secs"`
	PreGraduationTrades int       `json:"pre_graduation_trades"`
	PreGraduationRatio  float64   `json:"pre_graduation_ratio"`
	QuickFlipCount      int       `json:"quick_flip_count"`
	LastTradeTime       time.Time `json:"last_trade_time,omitempty"`

	Alpha AlphaScore `json:"alpha"`
}

// IsStale reports whether the profile is older than ttl.
func (p *Profile) IsStale(ttl time.Duration) bool {
	return time.Since(p.FetchedAt) > ttl
}

// DaysSinceLastTrade returns whole days since the wallet's last trade,
// defaulting to a year for wallets with no visible activity.
func (p *Profile) DaysSinceLastTrade(now time.Time) int {
	if p.LastTradeTime.IsZero() {
		return 365
	}
	days := int(now.Sub(p.LastTradeTime).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// IsElite reports a TrueSignal wallet.
func (p *Profile) IsElite() bool { return p.Alpha.IsElite() }

// ShouldAvoid reports categories that penalize the token score.
func (p *Profile) ShouldAvoid() bool { return p.Alpha.IsAvoid() }

// ProfileFromTrades builds a full profile from raw swap legs. Pure: callers
// own fetching and caching.
func ProfileFromTrades(address string, trades []signal.TradeRecord, cfg AlphaConfig) *Profile {
	completed, open := matchTradesFIFO(trades)
	return buildProfile(address, completed, open, trades, cfg)
}

// matchTradesFIFO pairs each sell with the oldest unmatched prior buy of the
// same token, one-to-one. Returns the completed trades plus the count of
// buys left unmatched (still-open positions).
func matchTradesFIFO(trades []signal.TradeRecord) ([]CompletedTrade, int) {
	byMint := make(map[string][]signal.TradeRecord)
	for _, t := range trades {
		if t.Mint == "" {
			continue
		}
		byMint[t.Mint] = append(byMint[t.Mint], t)
	}

	var completed []CompletedTrade
	open := 0
	for mint, legs := range byMint {
		var buys, sells []signal.TradeRecord
		for _, t := range legs {
			if t.IsBuy {
				buys = append(buys, t)
			} else {
				sells = append(sells, t)
			}
		}
		sort.Slice(buys, func(i, j int) bool { return buys[i].Timestamp.Before(buys[j].Timestamp) })
		sort.Slice(sells, func(i, j int) bool { return sells[i].Timestamp.Before(sells[j].Timestamp) })

		buyIdx := 0
		for _, sell := range sells {
			if buyIdx >= len(buys) {
				break
			}
			buy := buys[buyIdx]
			buyIdx++

			buySOL := decimal.NewFromFloat(buy.AmountSOL)
			sellSOL := decimal.NewFromFloat(sell.AmountSOL)
			profit := sellSOL.Sub(buySOL)

			profitPct, rMultiple := 0.0, 0.0
			if buy.AmountSOL > 0 {
				r := profit.InexactFloat64() / buy.AmountSOL
				rMultiple = r
				profitPct = r * 100.0
			}

			completed = append(completed, CompletedTrade{
				Mint:      mint,
				BuyTime:   buy.Timestamp,
				SellTime:  sell.Timestamp,
				BuySOL:    buySOL,
				SellSOL:   sellSOL,
				ProfitSOL: profit,
				ProfitPct: profitPct,
				HoldSecs:  int64(sell.Timestamp.Sub(buy.Timestamp).Seconds()),
				RMultiple: rMultiple,
			})
		}
		open += len(buys) - buyIdx
	}
	return completed, open
}

func buildProfile(address string, completed []CompletedTrade, open int, all []signal.TradeRecord, cfg AlphaConfig) *Profile {
	p := &Profile{
		Address:       address,
		FetchedAt:     time.Now(),
		OpenPositions: open,
	}

	for _, t := range all {
		if t.Timestamp.After(p.LastTradeTime) {
			p.LastTradeTime = t.Timestamp
		}
	}

	total := len(completed)
	if total == 0 {
		p.Alpha = ComputeAlpha(0, 0, 0, 0, 0, 0, p.DaysSinceLastTrade(time.Now()), cfg)
		return p
	}

	var winSum, lossSum decimal.Decimal
	var rSum float64
	var holdSum int64
	for _, t := range completed {
		p.TotalRealizedProfitSOL = p.TotalRealizedProfitSOL.Add(t.ProfitSOL)
		p.TotalVolumeSOL = p.TotalVolumeSOL.Add(t.BuySOL).Add(t.SellSOL)
		rSum += t.RMultiple
		holdSum += t.HoldSecs

		if t.ProfitSOL.IsPositive() {
			p.WinCount++
			winSum = winSum.Add(t.ProfitSOL)
			if t.ProfitSOL.GreaterThan(p.LargestWinSOL) {
				p.LargestWinSOL = t.ProfitSOL
			}
		} else {
			p.LossCount++
			lossSum = lossSum.Add(t.ProfitSOL.Abs())
			if t.ProfitSOL.Abs().GreaterThan(p.LargestLossSOL) {
				p.LargestLossSOL = t.ProfitSOL.Abs()
			}
		}

		if t.HoldSecs < quickFlipHoldSecs {
			p.QuickFlipCount++
		}
		if t.HoldSecs < preGraduationHoldSecs {
			p.PreGraduationTrades++
		}
	}

	p.CompletedTrades = completed
	p.TotalTrades = total
	p.WinRate = float64(p.WinCount) / float64(total)
	if p.WinCount > 0 {
		p.AvgWinSOL = winSum.Div(decimal.NewFromInt(int64(p.WinCount)))
	}
	if p.LossCount > 0 {
		p.AvgLossSOL = lossSum.Div(decimal.NewFromInt(int64(p.LossCount)))
	}
	p.AvgRMultiple = rSum / float64(total)
	p.AvgHoldSecs = holdSum / int64(total)
	p.PreGraduationRatio = float64(p.PreGraduationTrades) / float64(total)

	optimalHolds := 0
	for _, t := range completed {
		if t.HoldSecs >= optimalHoldMinSecs && t.HoldSecs <= optimalHoldMaxSecs {
			optimalHolds++
		}
	}
	optimalRatio := float64(optimalHolds) / float64(total)

	// Partial-sell tracking needs position sizing data the swap legs do not
	// carry, so the discipline term leans on hold timing alone.
	p.Alpha = ComputeAlpha(
		p.WinRate, p.AvgRMultiple, p.PreGraduationRatio,
		0.0, optimalRatio,
		total, p.DaysSinceLastTrade(time.Now()), cfg,
	)
	return p
}
