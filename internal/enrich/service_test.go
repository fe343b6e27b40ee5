package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-trading/vigil/internal/cache"
	"github.com/nexus-trading/vigil/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(stub *StubClient) (*Service, *cache.Cache) {
	c := cache.New(cache.DefaultConfig())
	cfg := DefaultServiceConfig()
	return NewService(cfg, stub, c), c
}

func stubWithTokenData(mint, creator string) *StubClient {
	stub := NewStubClient()
	stub.SetMintInfo(&signal.MintInfo{Mint: mint, Decimals: 6, Supply: 1e9, FetchedAt: time.Now()})
	stub.SetWalletHistory(&signal.WalletHistory{Address: creator, TotalTrades: 42, FetchedAt: time.Now()})
	stub.SetHolders(&signal.TokenDistribution{
		Mint:         mint,
		HolderCount:  12,
		TopHolderPct: 0.15,
		Holders:      []signal.TokenHolder{{Address: "h1", Balance: 1000, Pct: 0.15}},
		FetchedAt:    time.Now(),
	})
	return stub
}

func TestService_EnrichToken_FullFetch(t *testing.T) {
	stub := stubWithTokenData("mintA", "creatorA")
	svc, c := newTestService(stub)

	tc := &signal.TokenContext{Mint: "mintA", Creator: "creatorA"}
	complete := svc.EnrichToken(context.Background(), tc)

	require.True(t, complete)
	assert.NotNil(t, tc.MintState)
	assert.NotNil(t, tc.CreatorHistory)
	assert.NotNil(t, tc.Distribution)
	assert.Equal(t, 42, tc.CreatorHistory.TotalTrades)

	// everything landed in the cache
	assert.True(t, c.HasTokenData("mintA"))
	_, ok := c.GetWalletHistory("creatorA")
	assert.True(t, ok)

	assert.Equal(t, 1, stub.Calls("mint_info"))
	assert.Equal(t, 1, stub.Calls("wallet_history"))
	assert.Equal(t, 1, stub.Calls("token_holders"))
	assert.Equal(t, int64(1), svc.Stats().TokensEnriched)
}

func TestService_EnrichToken_CacheSkipsFetch(t *testing.T) {
	stub := NewStubClient() // no fixtures: any upstream call would fail
	svc, c := newTestService(stub)

	c.PutMintInfo(&signal.MintInfo{Mint: "mintA", FetchedAt: time.Now()})
	c.PutWalletHistory(&signal.WalletHistory{Address: "creatorA", FetchedAt: time.Now()})
	c.PutHolders(&signal.TokenDistribution{Mint: "mintA", HolderCount: 3, FetchedAt: time.Now()})

	tc := &signal.TokenContext{Mint: "mintA", Creator: "creatorA"}
	complete := svc.EnrichToken(context.Background(), tc)

	// fully cached means no fetch was attempted, so no new work happened
	assert.False(t, complete)
	assert.NotNil(t, tc.MintState)
	assert.NotNil(t, tc.CreatorHistory)
	assert.NotNil(t, tc.Distribution)
	assert.Zero(t, stub.Calls("mint_info"))
	assert.Zero(t, stub.Calls("wallet_history"))
	assert.Zero(t, stub.Calls("token_holders"))
}

func TestService_EnrichToken_PartialFailure(t *testing.T) {
	stub := stubWithTokenData("mintA", "creatorA")
	svc, _ := newTestService(stub)
	stub.SetFailNext(context.DeadlineExceeded) // first fetch (mint info) dies

	tc := &signal.TokenContext{Mint: "mintA", Creator: "creatorA"}
	complete := svc.EnrichToken(context.Background(), tc)

	assert.False(t, complete)
	assert.Nil(t, tc.MintState)
	assert.NotNil(t, tc.CreatorHistory)
	assert.NotNil(t, tc.Distribution)

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.Partials)
	assert.Equal(t, int64(1), stats.FetchErrors)
	assert.Zero(t, stats.TokensEnriched)
}

func TestService_EnrichToken_AllFetchesDisabled(t *testing.T) {
	stub := stubWithTokenData("mintA", "creatorA")
	cfg := DefaultServiceConfig()
	cfg.FetchMintInfo = false
	cfg.FetchCreatorHistory = false
	cfg.FetchHolders = false
	svc := NewService(cfg, stub, cache.New(cache.DefaultConfig()))

	tc := &signal.TokenContext{Mint: "mintA", Creator: "creatorA"}
	assert.False(t, svc.EnrichToken(context.Background(), tc))
	assert.Zero(t, stub.Calls("mint_info"))
}

func TestService_EnrichWallet_CachesResult(t *testing.T) {
	stub := NewStubClient()
	stub.SetWalletHistory(&signal.WalletHistory{Address: "w1", TotalTrades: 7, FetchedAt: time.Now()})
	svc, _ := newTestService(stub)

	require.True(t, svc.EnrichWallet(context.Background(), "w1"))
	require.True(t, svc.EnrichWallet(context.Background(), "w1")) // cache hit
	assert.Equal(t, 1, stub.Calls("wallet_history"))

	assert.False(t, svc.EnrichWallet(context.Background(), "missing"))
	assert.False(t, svc.EnrichWallet(context.Background(), ""))
}

func TestService_BackgroundQueueDrains(t *testing.T) {
	stub := stubWithTokenData("mintQ", "creatorQ")
	svc, c := newTestService(stub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	ok := svc.Handle().Request("mintQ", "creatorQ", PriorityHigh)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return c.HasTokenData("mintQ")
	}, 2*time.Second, 10*time.Millisecond, "worker should enrich the queued mint")

	cancel()
	svc.Wait()
	assert.Equal(t, int64(1), svc.Stats().TokensEnriched)
}

func TestService_QueueOverflowDrops(t *testing.T) {
	stub := NewStubClient()
	cfg := DefaultServiceConfig()
	cfg.QueueSize = 2
	svc := NewService(cfg, stub, cache.New(cache.DefaultConfig()))
	// not started: nothing drains the queue

	h := svc.Handle()
	assert.True(t, h.Request("m1", "c1", PriorityNormal))
	assert.True(t, h.Request("m2", "c2", PriorityNormal))
	assert.False(t, h.Request("m3", "c3", PriorityLow))
	assert.Equal(t, int64(1), svc.Stats().Dropped)
	assert.Equal(t, 2, svc.Stats().QueueDepth)
}
