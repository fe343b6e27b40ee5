package momentum

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Metrics -- measured activity over one observation window
// ---------------------------------------------------------------------------

// Metrics is everything measured about a watched token so far. Ratios are
// fractions in [0,1]; PriceChangePct is a signed percent.
type Metrics struct {
	ObservationSecs float64 `json:"observation_secs"`
	TradeCount      int     `json:"trade_count"`
	BuyCount        int     `json:"buy_count"`
	SellCount       int     `json:"sell_count"`
	TotalVolumeSOL  float64 `json:"total_volume_sol"`
	UniqueTraders   int     `json:"unique_traders"`

	FirstPrice     float64 `json:"first_price"`
	LastPrice      float64 `json:"last_price"`
	HighPrice      float64 `json:"high_price"`
	LowPrice       float64 `json:"low_price"`
	PriceChangePct float64 `json:"price_change_pct"`

	// Volatility is the coefficient of variation of trade prices, which
	// stays meaningful at sub-lamport token prices.
	Volatility float64 `json:"volatility"`

	BuyRatio       float64 `json:"buy_ratio"`
	BuyVolumeSOL   float64 `json:"buy_volume_sol"`
	SellVolumeSOL  float64 `json:"sell_volume_sol"`
	VolumeBuyRatio float64 `json:"volume_buy_ratio"`
	NetFlowSOL     float64 `json:"net_flow_sol"`

	SurvivalRatio       float64 `json:"survival_ratio"`
	HolderConcentration float64 `json:"holder_concentration"`
	HolderDataFetched   bool    `json:"holder_data_fetched"`
	SecondWaveBuyRatio  float64 `json:"second_wave_buy_ratio"`
}

// Gates holds the individual entry conditions. Entry requires every gate;
// a single false keeps the token in observation.
type Gates struct {
	Observed      bool `json:"observed"`
	TradeCount    bool `json:"trade_count"`
	Volume        bool `json:"volume"`
	PriceChange   bool `json:"price_change"`
	UniqueTraders bool `json:"unique_traders"`
	BuyRatio      bool `json:"buy_ratio"`
	NetFlow       bool `json:"net_flow"`
	Volatility    bool `json:"volatility"`
	Survival      bool `json:"survival"`
	HolderData    bool `json:"holder_data"`
	Concentration bool `json:"concentration"`
	SecondWave    bool `json:"second_wave"`
}

// AllPass reports whether every entry condition holds.
func (g Gates) AllPass() bool {
	return g.Observed && g.TradeCount && g.Volume && g.PriceChange &&
		g.UniqueTraders && g.BuyRatio && g.NetFlow && g.Volatility &&
		g.Survival && g.HolderData && g.Concentration && g.SecondWave
}

// evaluateGates checks the metrics against every threshold. Comparisons
// pass on equality; the price-change gate requires positive movement, not
// absolute movement -- buying into a dump is not momentum.
func evaluateGates(m Metrics, cfg Config) Gates {
	return Gates{
		Observed:      m.ObservationSecs >= float64(cfg.MinObservationSecs),
		TradeCount:    m.TradeCount >= cfg.MinTradeCount,
		Volume:        m.TotalVolumeSOL >= cfg.MinVolumeSOL,
		PriceChange:   m.PriceChangePct >= cfg.MinPriceChangePct,
		UniqueTraders: m.UniqueTraders >= cfg.MinUniqueTraders,
		BuyRatio:      m.VolumeBuyRatio >= cfg.MinBuyRatio,
		NetFlow:       m.NetFlowSOL >= 0,
		Volatility:    m.Volatility >= cfg.MinVolatility,
		Survival:      m.SurvivalRatio >= cfg.MinSurvivalRatio,
		HolderData:    m.HolderDataFetched,
		Concentration: m.HolderConcentration <= cfg.MaxHolderConcentration,
		SecondWave:    m.SecondWaveBuyRatio >= cfg.MinSecondWaveRatio,
	}
}

// waitingReason renders the blocking gates in compact form, e.g.
// "WAITING: obs:30s<60s, trades:3<10".
func waitingReason(m Metrics, g Gates, cfg Config) string {
	var missing []string

	if !g.Observed {
		missing = append(missing, fmt.Sprintf("obs:%.0fs<%ds", m.ObservationSecs, cfg.MinObservationSecs))
	}
	if !g.TradeCount {
		missing = append(missing, fmt.Sprintf("trades:%d<%d", m.TradeCount, cfg.MinTradeCount))
	}
	if !g.Volume {
		missing = append(missing, fmt.Sprintf("vol:%.2f<%.2f", m.TotalVolumeSOL, cfg.MinVolumeSOL))
	}
	if !g.PriceChange {
		missing = append(missing, fmt.Sprintf("price:%+.1f%%<+%.1f%%", m.PriceChangePct, cfg.MinPriceChangePct))
	}
	if !g.UniqueTraders {
		missing = append(missing, fmt.Sprintf("traders:%d<%d", m.UniqueTraders, cfg.MinUniqueTraders))
	}
	if !g.BuyRatio {
		missing = append(missing, fmt.Sprintf("vol_buy:%.0f%%<%.0f%%", m.VolumeBuyRatio*100, cfg.MinBuyRatio*100))
	}
	if !g.NetFlow {
		missing = append(missing, fmt.Sprintf("net_flow:%+.2fSOL<0", m.NetFlowSOL))
	}
	if !g.Volatility {
		missing = append(missing, fmt.Sprintf("volatility:%.4f<%.4f", m.Volatility, cfg.MinVolatility))
	}
	if !g.Survival {
		missing = append(missing, fmt.Sprintf("survival:%.0f%%<%.0f%%", m.SurvivalRatio*100, cfg.MinSurvivalRatio*100))
	}
	if !g.HolderData {
		missing = append(missing, "holder_data:pending")
	} else if !g.Concentration {
		missing = append(missing, fmt.Sprintf("whale:%.0f%%>%.0f%%", m.HolderConcentration*100, cfg.MaxHolderConcentration*100))
	}
	if !g.SecondWave {
		missing = append(missing, fmt.Sprintf("2nd_wave:%.0f%%<%.0f%%", m.SecondWaveBuyRatio*100, cfg.MinSecondWaveRatio*100))
	}

	if len(missing) == 0 {
		return "READY"
	}
	return "WAITING: " + strings.Join(missing, ", ")
}

// metrics computes the full measurement set at the given instant. The
// second-wave window is the trailing SecondWaveWindowPct share of the
// elapsed observation, so it moves with every call.
func (w *watched) metrics(now time.Time, cfg Config) Metrics {
	m := Metrics{
		ObservationSecs:     now.Sub(w.started).Seconds(),
		HolderConcentration: w.holderConcentration,
		HolderDataFetched:   w.holderDataFetched,
	}
	if len(w.trades) == 0 {
		return m
	}

	m.TradeCount = len(w.trades)
	m.UniqueTraders = len(w.traders)
	m.FirstPrice = w.trades[0].price
	m.LastPrice = w.trades[len(w.trades)-1].price
	m.LowPrice = math.MaxFloat64

	var priceSum float64
	for _, t := range w.trades {
		m.TotalVolumeSOL += t.solAmount
		if t.isBuy {
			m.BuyCount++
			m.BuyVolumeSOL += t.solAmount
		} else {
			m.SellCount++
			m.SellVolumeSOL += t.solAmount
		}
		if t.price > m.HighPrice {
			m.HighPrice = t.price
		}
		if t.price < m.LowPrice {
			m.LowPrice = t.price
		}
		priceSum += t.price
	}

	if m.TotalVolumeSOL > 0 {
		m.VolumeBuyRatio = m.BuyVolumeSOL / m.TotalVolumeSOL
	}
	m.NetFlowSOL = m.BuyVolumeSOL - m.SellVolumeSOL
	m.BuyRatio = float64(m.BuyCount) / float64(m.TradeCount)

	if m.HighPrice > 0 {
		m.SurvivalRatio = m.LastPrice / m.HighPrice
	}
	if m.FirstPrice > 0 {
		m.PriceChangePct = (m.LastPrice - m.FirstPrice) / m.FirstPrice * 100
	}

	if m.TradeCount > 1 {
		mean := priceSum / float64(m.TradeCount)
		if mean > 0 {
			var variance float64
			for _, t := range w.trades {
				d := t.price - mean
				variance += d * d
			}
			variance /= float64(m.TradeCount)
			m.Volatility = math.Sqrt(variance) / mean
		}
	}

	elapsed := now.Sub(w.started)
	waveStart := w.started.Add(time.Duration(float64(elapsed) * (1 - cfg.SecondWaveWindowPct)))
	waveTrades, waveBuys := 0, 0
	for _, t := range w.trades {
		if t.at.Before(waveStart) {
			continue
		}
		waveTrades++
		if t.isBuy {
			waveBuys++
		}
	}
	if waveTrades > 0 {
		m.SecondWaveBuyRatio = float64(waveBuys) / float64(waveTrades)
	}

	return m
}
