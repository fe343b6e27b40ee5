package momentum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptTrade struct {
	offsetSec float64
	isBuy     bool
	sol       float64
	price     float64
	trader    string
}

// rallyScript is a healthy launch: 12 trades over 80 seconds, 9 buys and
// 3 sells from 8 wallets, 2.70 SOL total, price climbing +12% and holding
// its high, with buys still arriving in the trailing window at t+90s.
func rallyScript() []scriptTrade {
	return []scriptTrade{
		{0, true, 0.30, 1.00e-7, "trader-a"},
		{5, true, 0.25, 1.02e-7, "trader-b"},
		{10, true, 0.20, 1.05e-7, "trader-c"},
		{20, false, 0.15, 1.04e-7, "trader-d"},
		{30, true, 0.30, 1.06e-7, "trader-e"},
		{40, true, 0.20, 1.08e-7, "trader-f"},
		{50, false, 0.20, 1.07e-7, "trader-a"},
		{60, true, 0.25, 1.09e-7, "trader-b"},
		{65, true, 0.30, 1.10e-7, "trader-g"},
		{70, false, 0.10, 1.09e-7, "trader-c"},
		{75, true, 0.25, 1.11e-7, "trader-h"},
		{80, true, 0.20, 1.12e-7, "trader-e"},
	}
}

func playScript(v *Validator, mint string, started time.Time, script []scriptTrade) {
	for _, s := range script {
		at := started.Add(time.Duration(s.offsetSec * float64(time.Second)))
		v.RecordTrade(mint, s.isBuy, s.sol, s.sol/s.price, s.trader, at)
	}
}

func watchedRally(started time.Time) *Validator {
	v := NewValidator(DefaultConfig())
	v.Watch("rally-mint", "RLY", "Rally Token", "curve-rally", started)
	playScript(v, "rally-mint", started, rallyScript())
	v.SetHolderConcentration("rally-mint", 0.30)
	return v
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 60, cfg.MinObservationSecs)
	assert.Equal(t, 180, cfg.MaxObservationSecs)
	assert.Equal(t, 10, cfg.MinTradeCount)
	assert.Equal(t, 2.0, cfg.MinVolumeSOL)
	assert.Equal(t, 5.0, cfg.MinPriceChangePct)
	assert.Equal(t, 5, cfg.MinUniqueTraders)
	assert.Equal(t, 0.55, cfg.MinBuyRatio)
	assert.Equal(t, 0.01, cfg.MinVolatility)
	assert.Equal(t, 0.50, cfg.MaxHolderConcentration)
	assert.Equal(t, 0.70, cfg.MinSurvivalRatio)
	assert.Equal(t, 0.30, cfg.SecondWaveWindowPct)
	assert.Equal(t, 0.40, cfg.MinSecondWaveRatio)
}

func TestValidator_HealthyRallyBecomesReady(t *testing.T) {
	started := time.Now()
	v := watchedRally(started)

	result := v.Evaluate("rally-mint", started.Add(90*time.Second))

	require.Equal(t, StateReady, result.State)
	assert.True(t, result.Gates.AllPass())
	assert.Empty(t, result.Reason)

	m := result.Metrics
	assert.Equal(t, 12, m.TradeCount)
	assert.Equal(t, 9, m.BuyCount)
	assert.Equal(t, 3, m.SellCount)
	assert.Equal(t, 8, m.UniqueTraders)
	assert.InDelta(t, 2.70, m.TotalVolumeSOL, 1e-9)
	assert.InDelta(t, 12.0, m.PriceChangePct, 1e-9)
	assert.InDelta(t, 0.8333, m.VolumeBuyRatio, 0.001)
	assert.InDelta(t, 1.80, m.NetFlowSOL, 1e-9)
	assert.InDelta(t, 1.0, m.SurvivalRatio, 1e-9)
	assert.InDelta(t, 0.75, m.SecondWaveBuyRatio, 1e-9)
	assert.True(t, m.HolderDataFetched)

	stats := v.Stats()
	assert.Equal(t, int64(1), stats.ReadyTotal)

	// A second evaluation is still ready but does not recount.
	v.Evaluate("rally-mint", started.Add(91*time.Second))
	assert.Equal(t, int64(1), v.Stats().ReadyTotal)
}

// Every entry gate must hold at once. Each case breaks exactly one input
// and expects the token to stay in observation naming that gate.
func TestValidator_SingleFailingGateBlocksEntry(t *testing.T) {
	now := func(started time.Time) time.Time { return started.Add(90 * time.Second) }

	t.Run("holder data pending", func(t *testing.T) {
		started := time.Now()
		v := NewValidator(DefaultConfig())
		v.Watch("m", "TST", "Test", "curve", started)
		playScript(v, "m", started, rallyScript())

		result := v.Evaluate("m", now(started))

		require.Equal(t, StateObserving, result.State)
		assert.False(t, result.Gates.HolderData)
		assert.Contains(t, result.Reason, "holder_data:pending")
	})

	t.Run("whale concentration", func(t *testing.T) {
		started := time.Now()
		v := watchedRally(started)
		v.SetHolderConcentration("rally-mint", 0.65)

		result := v.Evaluate("rally-mint", now(started))

		require.Equal(t, StateObserving, result.State)
		assert.False(t, result.Gates.Concentration)
		assert.True(t, result.Gates.HolderData)
		assert.Contains(t, result.Reason, "whale:65%>50%")
	})

	t.Run("price collapse fails survival", func(t *testing.T) {
		started := time.Now()
		script := rallyScript()[:10]
		script = append(script,
			scriptTrade{75, false, 0.25, 0.75e-7, "trader-h"},
			scriptTrade{80, false, 0.20, 0.60e-7, "trader-e"},
		)
		v := NewValidator(DefaultConfig())
		v.Watch("m", "TST", "Test", "curve", started)
		playScript(v, "m", started, script)
		v.SetHolderConcentration("m", 0.30)

		result := v.Evaluate("m", now(started))

		require.Equal(t, StateObserving, result.State)
		assert.False(t, result.Gates.Survival)
		assert.False(t, result.Gates.PriceChange)
		assert.Contains(t, result.Reason, "survival:55%<70%")
		assert.Contains(t, result.Reason, "price:-40.0%<+5.0%")
	})

	t.Run("demand dried up in trailing window", func(t *testing.T) {
		started := time.Now()
		script := rallyScript()
		for i := range script {
			script[i].offsetSec = float64(i * 5) // everything within 55s
		}
		v := NewValidator(DefaultConfig())
		v.Watch("m", "TST", "Test", "curve", started)
		playScript(v, "m", started, script)
		v.SetHolderConcentration("m", 0.30)

		result := v.Evaluate("m", now(started))

		require.Equal(t, StateObserving, result.State)
		assert.False(t, result.Gates.SecondWave)
		assert.True(t, result.Gates.Survival)
		assert.Contains(t, result.Reason, "2nd_wave:0%<40%")
	})

	t.Run("thin volume", func(t *testing.T) {
		started := time.Now()
		script := rallyScript()
		for i := range script {
			script[i].sol *= 0.1
		}
		v := NewValidator(DefaultConfig())
		v.Watch("m", "TST", "Test", "curve", started)
		playScript(v, "m", started, script)
		v.SetHolderConcentration("m", 0.30)

		result := v.Evaluate("m", now(started))

		require.Equal(t, StateObserving, result.State)
		assert.False(t, result.Gates.Volume)
		assert.True(t, result.Gates.NetFlow)
		assert.Contains(t, result.Reason, "vol:0.27<2.00")
	})

	t.Run("single wallet painting the tape", func(t *testing.T) {
		started := time.Now()
		script := rallyScript()
		for i := range script {
			script[i].trader = "solo-wallet"
		}
		v := NewValidator(DefaultConfig())
		v.Watch("m", "TST", "Test", "curve", started)
		playScript(v, "m", started, script)
		v.SetHolderConcentration("m", 0.30)

		result := v.Evaluate("m", now(started))

		require.Equal(t, StateObserving, result.State)
		assert.False(t, result.Gates.UniqueTraders)
		assert.Contains(t, result.Reason, "traders:1<5")
	})

	t.Run("flat tape has no volatility", func(t *testing.T) {
		started := time.Now()
		script := rallyScript()
		for i := range script {
			script[i].price = 1.00e-7
		}
		v := NewValidator(DefaultConfig())
		v.Watch("m", "TST", "Test", "curve", started)
		playScript(v, "m", started, script)
		v.SetHolderConcentration("m", 0.30)

		result := v.Evaluate("m", now(started))

		require.Equal(t, StateObserving, result.State)
		assert.False(t, result.Gates.Volatility)
		assert.False(t, result.Gates.PriceChange)
		assert.True(t, result.Gates.Survival)
		assert.Contains(t, result.Reason, "volatility:0.0000<0.0100")
	})
}

func TestValidator_ObservingBeforeMinWindow(t *testing.T) {
	started := time.Now()
	v := watchedRally(started)

	result := v.Evaluate("rally-mint", started.Add(30*time.Second))

	require.Equal(t, StateObserving, result.State)
	assert.False(t, result.Gates.Observed)
	assert.Contains(t, result.Reason, "WAITING: ")
	assert.Contains(t, result.Reason, "obs:30s<60s")
}

func TestValidator_ReadinessIsNotSticky(t *testing.T) {
	started := time.Now()
	v := watchedRally(started)

	require.Equal(t, StateReady, v.Evaluate("rally-mint", started.Add(90*time.Second)).State)

	// By t+150s the trailing 30% window is 105s..150s and holds no
	// trades at all, so the second-wave gate closes again.
	result := v.Evaluate("rally-mint", started.Add(150*time.Second))

	require.Equal(t, StateObserving, result.State)
	assert.False(t, result.Gates.SecondWave)
	assert.Contains(t, result.Reason, "2nd_wave:0%<40%")
	assert.Equal(t, int64(1), v.Stats().ReadyTotal)
}

func TestValidator_ExpiresPastMaxObservation(t *testing.T) {
	started := time.Now()
	v := watchedRally(started)

	result := v.Evaluate("rally-mint", started.Add(200*time.Second))

	require.Equal(t, StateExpired, result.State)
	assert.Equal(t, 12, result.Metrics.TradeCount)
	assert.Equal(t, int64(1), v.Stats().ExpiredTotal)

	// Still expired on re-evaluation, counted once.
	v.Evaluate("rally-mint", started.Add(210*time.Second))
	assert.Equal(t, int64(1), v.Stats().ExpiredTotal)
}

func TestValidator_CleanupExpired(t *testing.T) {
	started := time.Now()
	v := NewValidator(DefaultConfig())
	v.Watch("old-mint", "OLD", "Old Token", "curve-old", started)
	playScript(v, "old-mint", started, rallyScript()[:3])
	v.Watch("fresh-mint", "FRS", "Fresh Token", "curve-fresh", started.Add(150*time.Second))

	// Evaluating the stale token first must not double-count it when the
	// sweep removes it.
	v.Evaluate("old-mint", started.Add(200*time.Second))

	expired := v.CleanupExpired(started.Add(200 * time.Second))

	require.Equal(t, []string{"old-mint"}, expired)
	assert.False(t, v.IsWatching("old-mint"))
	assert.True(t, v.IsWatching("fresh-mint"))
	assert.Equal(t, 1, v.WatchedCount())
	assert.Equal(t, int64(1), v.Stats().ExpiredTotal)
}

func TestValidator_WatchIsIdempotent(t *testing.T) {
	started := time.Now()
	v := NewValidator(DefaultConfig())
	v.Watch("m", "FIRST", "First Name", "curve-1", started)
	v.Watch("m", "SECOND", "Second Name", "curve-2", started.Add(time.Second))

	assert.Equal(t, 1, v.WatchedCount())
	assert.Equal(t, int64(1), v.Stats().WatchedTotal)

	info, ok := v.Info("m")
	require.True(t, ok)
	assert.Equal(t, "FIRST", info.Symbol)
	assert.Equal(t, "curve-1", info.BondingCurve)
}

func TestValidator_UnwatchedMint(t *testing.T) {
	v := NewValidator(DefaultConfig())

	result := v.Evaluate("never-seen", time.Now())
	assert.Equal(t, StateNotWatched, result.State)

	// Trades for unwatched mints are dropped silently.
	v.RecordTrade("never-seen", true, 1.0, 1e7, "trader-a", time.Now())
	assert.Equal(t, 0, v.WatchedCount())

	_, ok := v.Info("never-seen")
	assert.False(t, ok)
}

func TestValidator_EmptyWindowMetrics(t *testing.T) {
	started := time.Now()
	v := NewValidator(DefaultConfig())
	v.Watch("quiet-mint", "QT", "Quiet Token", "curve-q", started)

	result := v.Evaluate("quiet-mint", started.Add(70*time.Second))

	require.Equal(t, StateObserving, result.State)
	assert.Equal(t, 0, result.Metrics.TradeCount)
	assert.InDelta(t, 70, result.Metrics.ObservationSecs, 0.001)
	assert.Contains(t, result.Reason, "trades:0<10")
	assert.Contains(t, result.Reason, "vol:0.00<2.00")
	assert.Contains(t, result.Reason, "holder_data:pending")
}

func TestValidator_PriceDerivedFromAmounts(t *testing.T) {
	started := time.Now()
	v := NewValidator(DefaultConfig())
	v.Watch("m", "TST", "Test", "curve", started)

	// 0.5 SOL for 5M tokens is 1e-7 SOL per token.
	v.RecordTrade("m", true, 0.5, 5e6, "trader-a", started.Add(time.Second))
	// Zero token amount cannot produce a price.
	v.RecordTrade("m", false, 0.1, 0, "trader-b", started.Add(2*time.Second))

	m := v.Evaluate("m", started.Add(10*time.Second)).Metrics
	assert.InDelta(t, 1e-7, m.FirstPrice, 1e-15)
	assert.InDelta(t, 0.0, m.LastPrice, 1e-15)
	assert.Equal(t, 2, m.TradeCount)
}

func TestValidator_SnapshotAndRemove(t *testing.T) {
	started := time.Now()
	v := watchedRally(started)
	v.Watch("quiet-mint", "QT", "Quiet Token", "curve-q", started)

	statuses := v.Snapshot(started.Add(90 * time.Second))
	require.Len(t, statuses, 2)

	byMint := make(map[string]WatchStatus, len(statuses))
	for _, s := range statuses {
		byMint[s.Mint] = s
	}
	assert.Equal(t, StateReady, byMint["rally-mint"].Result.State)
	assert.Equal(t, StateObserving, byMint["quiet-mint"].Result.State)
	assert.Equal(t, "QT", byMint["quiet-mint"].Symbol)

	v.Remove("rally-mint")
	assert.False(t, v.IsWatching("rally-mint"))
	assert.Equal(t, 1, v.WatchedCount())
}
