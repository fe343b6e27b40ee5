package bundle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/vigil/internal/enrich"
)

func TestClusterer_AddRelationship(t *testing.T) {
	cl := NewClusterer(DefaultClusterConfig(), nil)

	cl.AddRelationship("src", "w1")
	cl.AddRelationship("src", "w2")

	assert.True(t, cl.AreRelated("w1", "w2"))
	assert.True(t, cl.AreRelated("w1", "w1"))
	assert.False(t, cl.AreRelated("w1", "w3"))

	c, ok := cl.ClusterOf("w1")
	require.True(t, ok)
	assert.Equal(t, "src", c.ID)
	// The funding source itself is a member of its ring.
	assert.True(t, c.Contains("src"))
	assert.Equal(t, 3, c.Size())
}

func TestClusterer_RelatedWallets(t *testing.T) {
	cl := NewClusterer(DefaultClusterConfig(), nil)

	cl.AddRelationship("src", "w1")
	cl.AddRelationship("src", "w2")
	cl.AddRelationship("src", "w3")

	related := cl.RelatedWallets("w1")

	assert.Contains(t, related, "w2")
	assert.Contains(t, related, "w3")
	assert.Contains(t, related, "src")
	assert.NotContains(t, related, "w1")
}

func TestClusterer_FindClusterFromFunding(t *testing.T) {
	client := enrich.NewStubClient()
	recent := time.Now().Add(-time.Hour)
	client.SetTransfers("w-a", []enrich.Transfer{
		{From: "funder", To: "w-a", AmountSOL: 5.0, Timestamp: recent},
	})
	client.SetTransfers("w-b", []enrich.Transfer{
		{From: "funder", To: "w-b", AmountSOL: 3.0, Timestamp: recent},
	})

	cl := NewClusterer(DefaultClusterConfig(), client)
	ctx := context.Background()

	a := cl.FindCluster(ctx, "w-a")
	require.NotNil(t, a)
	assert.Equal(t, "funder", a.ID)
	assert.Equal(t, 1, a.Size())

	b := cl.FindCluster(ctx, "w-b")
	require.NotNil(t, b)
	assert.Equal(t, "funder", b.ID)
	assert.Equal(t, 2, b.Size())

	assert.True(t, cl.AreRelated("w-a", "w-b"))
}

func TestClusterer_KnownWalletSkipsRefetch(t *testing.T) {
	client := enrich.NewStubClient()
	client.SetTransfers("w-a", []enrich.Transfer{
		{From: "funder", To: "w-a", AmountSOL: 5.0, Timestamp: time.Now().Add(-time.Hour)},
	})

	cl := NewClusterer(DefaultClusterConfig(), client)
	ctx := context.Background()

	require.NotNil(t, cl.FindCluster(ctx, "w-a"))
	require.NotNil(t, cl.FindCluster(ctx, "w-a"))

	assert.Equal(t, 1, client.Calls("funding_transfers"))
}

func TestClusterer_IgnoresDustAndStaleFunding(t *testing.T) {
	client := enrich.NewStubClient()
	client.SetTransfers("dusted", []enrich.Transfer{
		{From: "funder", To: "dusted", AmountSOL: 0.01, Timestamp: time.Now().Add(-time.Hour)},
	})
	client.SetTransfers("stale", []enrich.Transfer{
		{From: "funder", To: "stale", AmountSOL: 5.0, Timestamp: time.Now().Add(-100 * time.Hour)},
	})

	cl := NewClusterer(DefaultClusterConfig(), client)
	ctx := context.Background()

	assert.Nil(t, cl.FindCluster(ctx, "dusted"))
	assert.Nil(t, cl.FindCluster(ctx, "stale"))
}

func TestClusterer_FetchFailureReturnsNil(t *testing.T) {
	client := enrich.NewStubClient()
	client.SetFailNext(errors.New("api down"))

	cl := NewClusterer(DefaultClusterConfig(), client)

	assert.Nil(t, cl.FindCluster(context.Background(), "w-a"))
}

func TestClusterer_CapEvictsOldestMember(t *testing.T) {
	config := DefaultClusterConfig()
	config.MaxClusterSize = 3
	cl := NewClusterer(config, nil)

	// src joins its own cluster first, then w1..w2 fill it.
	cl.AddRelationship("src", "w1")
	cl.AddRelationship("src", "w2")

	// At capacity: src (the oldest member) is evicted for w3.
	cl.AddRelationship("src", "w3")
	c, ok := cl.ClusterOf("w3")
	require.True(t, ok)
	assert.Equal(t, []string{"w1", "w2", "w3"}, c.Wallets)
	_, ok = cl.ClusterOf("src")
	assert.False(t, ok)

	// Next addition rolls w1 out.
	cl.AddRelationship("src", "w4")
	c, ok = cl.ClusterOf("w4")
	require.True(t, ok)
	assert.Equal(t, []string{"w2", "w3", "w4"}, c.Wallets)
	_, ok = cl.ClusterOf("w1")
	assert.False(t, ok)

	// Funding history outlives membership: w1 and w4 still share a source.
	assert.True(t, cl.AreRelated("w1", "w4"))
}

func TestClusterer_Disabled(t *testing.T) {
	config := DefaultClusterConfig()
	config.Enabled = false
	client := enrich.NewStubClient()
	client.SetTransfers("w-a", []enrich.Transfer{
		{From: "funder", To: "w-a", AmountSOL: 5.0, Timestamp: time.Now()},
	})

	cl := NewClusterer(config, client)

	assert.Nil(t, cl.FindCluster(context.Background(), "w-a"))
	assert.Equal(t, 0, client.Calls("funding_transfers"))
}

func TestClusterer_StatsAndClear(t *testing.T) {
	cl := NewClusterer(DefaultClusterConfig(), nil)

	cl.AddRelationship("src1", "w1")
	cl.AddRelationship("src1", "w2")
	cl.AddRelationship("src2", "w3")

	stats := cl.Stats()
	assert.Equal(t, 2, stats.Clusters)
	assert.Equal(t, 5, stats.Wallets)
	assert.Equal(t, 3, stats.LargestCluster)

	cl.Clear()
	stats = cl.Stats()
	assert.Equal(t, 0, stats.Clusters)
	assert.Equal(t, 0, stats.Wallets)
}
