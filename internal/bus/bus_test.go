package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicNaming(t *testing.T) {
	assert.Equal(t, "chain.launches.pumpfun", Topics.Launches(VenuePumpFun))
	assert.Equal(t, "chain.trades.pumpfun", Topics.Trades(VenuePumpFun))
	assert.Equal(t, "score.decisions", Topics.Decisions())
	assert.Equal(t, "guard.alerts", Topics.ExitAlerts())
}

func TestTopicRetentionCoversAllPrefixes(t *testing.T) {
	for _, prefix := range AllTopicPrefixes() {
		_, exact := TopicRetention[prefix]
		_, wildcard := TopicRetention[prefix+".*"]
		assert.True(t, exact || wildcard, "no retention rule for %s", prefix)
	}
}

func TestNewBaseEvent(t *testing.T) {
	ev := NewBaseEvent("vigil-test", "1.2.0")

	assert.Len(t, ev.EventID, 36)
	assert.Len(t, ev.TraceID, 16)
	assert.Equal(t, "vigil-test", ev.Producer)
	assert.Equal(t, "1.2.0", ev.SchemaVersion)
	assert.WithinDuration(t, time.Now(), ev.Timestamp, time.Second)
}

func TestStubProducer_CapturesDecisions(t *testing.T) {
	p := NewStubProducer()

	decision := Decision{
		BaseEvent:      NewBaseEvent("vigil", "1.0.0"),
		Mint:           "mint-x",
		Symbol:         "TEST",
		Score:          0.62,
		Confidence:     0.85,
		Recommendation: "STRONG_BUY",
		SizeMultiplier: 1.54,
		SignalCount:    7,
	}
	err := p.PublishJSON(context.Background(), Topics.Decisions(), decision.Mint, decision)
	require.NoError(t, err)

	captured := p.MessagesOn(Topics.Decisions())
	require.Len(t, captured, 1)
	assert.Equal(t, "mint-x", captured[0].Key)

	var got Decision
	require.NoError(t, json.Unmarshal(captured[0].Value, &got))
	assert.Equal(t, decision.Mint, got.Mint)
	assert.Equal(t, decision.Recommendation, got.Recommendation)
	assert.InDelta(t, 0.62, got.Score, 1e-9)
	assert.Equal(t, decision.EventID, got.EventID)
}

func TestStubProducer_CapturesExitAlerts(t *testing.T) {
	p := NewStubProducer()

	alert := ExitAlert{
		BaseEvent:    NewBaseEvent("vigil", "1.0.0"),
		Mint:         "mint-x",
		Trigger:      "BUNDLE_SELL",
		Urgency:      "HIGH",
		Reason:       "2 bundled wallets sold together within 30s",
		AutoExit:     true,
		SellersCount: 2,
		TotalSellSOL: decimal.NewFromFloat(2.3),
	}
	require.NoError(t, p.PublishJSON(context.Background(), Topics.ExitAlerts(), alert.Mint, alert))

	captured := p.MessagesOn(Topics.ExitAlerts())
	require.Len(t, captured, 1)

	var got ExitAlert
	require.NoError(t, json.Unmarshal(captured[0].Value, &got))
	assert.Equal(t, "BUNDLE_SELL", got.Trigger)
	assert.True(t, got.AutoExit)
	assert.True(t, got.TotalSellSOL.Equal(decimal.NewFromFloat(2.3)))
}

func TestStubProducer_TopicIsolationAndReset(t *testing.T) {
	p := NewStubProducer()
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, Message{Topic: "score.decisions", Key: "a", Value: []byte("{}")}))
	require.NoError(t, p.Publish(ctx, Message{Topic: "guard.alerts", Key: "b", Value: []byte("{}")}))
	require.NoError(t, p.Publish(ctx, Message{Topic: "guard.alerts", Key: "c", Value: []byte("{}")}))

	assert.Len(t, p.Messages(), 3)
	assert.Len(t, p.MessagesOn("guard.alerts"), 2)
	assert.Empty(t, p.MessagesOn("chain.trades.pumpfun"))
	assert.Equal(t, 0, p.Flush(time.Second))

	p.Reset()
	assert.Empty(t, p.Messages())
}
