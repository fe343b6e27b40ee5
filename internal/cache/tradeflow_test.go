package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/nexus-trading/vigil/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flowTrade(mint, trader string, isBuy bool, sol float64, age time.Duration) signal.TradeRecord {
	return signal.TradeRecord{
		Mint:      mint,
		Trader:    trader,
		IsBuy:     isBuy,
		AmountSOL: sol,
		Timestamp: time.Now().Add(-age),
	}
}

func TestTradeFlow_RingCap(t *testing.T) {
	tf := NewTradeFlow(3)
	for i := 0; i < 10; i++ {
		tf.Record(flowTrade("m1", fmt.Sprintf("t%d", i), true, 0.1, 0))
	}

	trades := tf.Recent("m1", time.Minute)
	require.Len(t, trades, 3)
	assert.Equal(t, "t7", trades[0].Trader, "oldest surviving trade")
	assert.Equal(t, "t9", trades[2].Trader)
}

func TestTradeFlow_WindowFilter(t *testing.T) {
	tf := NewTradeFlow(100)
	tf.Record(flowTrade("m1", "old", true, 1.0, 2*time.Minute))
	tf.Record(flowTrade("m1", "new", true, 1.0, time.Second))

	trades := tf.Recent("m1", time.Minute)
	require.Len(t, trades, 1)
	assert.Equal(t, "new", trades[0].Trader)
}

func TestTradeFlow_Snapshot(t *testing.T) {
	tf := NewTradeFlow(100)
	tf.Record(flowTrade("m1", "a", true, 2.0, time.Second))
	tf.Record(flowTrade("m1", "b", true, 1.0, time.Second))
	tf.Record(flowTrade("m1", "a", true, 0.5, time.Second))
	tf.Record(flowTrade("m1", "c", false, 1.5, time.Second))

	of := tf.Snapshot("m1", time.Minute)
	require.NotNil(t, of)
	assert.Equal(t, 3, of.BuyCount)
	assert.Equal(t, 1, of.SellCount)
	assert.Equal(t, 2, of.UniqueBuyers)
	assert.Equal(t, 1, of.UniqueSellers)
	assert.InDelta(t, 3.5, of.BuyVolumeSOL, 1e-9)
	assert.InDelta(t, 1.5, of.SellVolumeSOL, 1e-9)
	assert.InDelta(t, 2.0, of.NetFlowSOL(), 1e-9)

	assert.Nil(t, tf.Snapshot("unknown", time.Minute))
}

func TestTradeFlow_Prune(t *testing.T) {
	tf := NewTradeFlow(100)
	tf.Record(flowTrade("stale", "a", true, 1.0, time.Hour))
	tf.Record(flowTrade("live", "b", true, 1.0, time.Second))

	dropped := tf.Prune(10 * time.Minute)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, tf.Tracked())
	assert.Nil(t, tf.Snapshot("stale", 2*time.Hour))
}
