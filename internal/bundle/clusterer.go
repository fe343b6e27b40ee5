package bundle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/vigil/internal/enrich"
)

// ---------------------------------------------------------------------------
// Clusterer -- group wallets by funding relationships
// ---------------------------------------------------------------------------

// ClusterConfig controls funding-based wallet clustering.
type ClusterConfig struct {
	Enabled bool `yaml:"enabled"`

	// LookbackHours bounds how far back funding transfers count.
	LookbackHours int `yaml:"lookback_hours"`

	// MinFundingSOL ignores dust transfers when linking wallets.
	MinFundingSOL float64 `yaml:"min_funding_sol"`

	// MaxClusterSize caps cluster membership; the oldest member is
	// evicted when a full cluster gains a new wallet.
	MaxClusterSize int `yaml:"max_cluster_size"`
}

// DefaultClusterConfig returns clustering defaults.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		Enabled:        true,
		LookbackHours:  48,
		MinFundingSOL:  0.1,
		MaxClusterSize: 50,
	}
}

// ClusterType classifies what kind of coordination a cluster represents.
type ClusterType string

const (
	ClusterSniperRing  ClusterType = "sniper_ring"
	ClusterDeployer    ClusterType = "deployer_cluster"
	ClusterWashTraders ClusterType = "wash_traders"
	ClusterMarketMaker ClusterType = "market_maker"
	ClusterUnknown     ClusterType = "unknown"
)

// Cluster is a set of wallets sharing a funding source. The ID is the
// funding source address; Wallets keeps join order so the cap can evict
// the oldest member.
type Cluster struct {
	ID             string      `json:"id"`
	Wallets        []string    `json:"wallets"`
	Type           ClusterType `json:"type"`
	TotalVolumeSOL float64     `json:"total_volume_sol"`
	FundingSources []string    `json:"funding_sources"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Contains reports cluster membership.
func (c *Cluster) Contains(wallet string) bool {
	for _, w := range c.Wallets {
		if w == wallet {
			return true
		}
	}
	return false
}

// Size returns the number of member wallets.
func (c *Cluster) Size() int {
	return len(c.Wallets)
}

func (c *Cluster) clone() *Cluster {
	cp := *c
	cp.Wallets = append([]string(nil), c.Wallets...)
	cp.FundingSources = append([]string(nil), c.FundingSources...)
	return &cp
}

// Clusterer links wallets through shared funding sources. Clusters are
// treated as single entities downstream: one member selling flags the
// whole group.
type Clusterer struct {
	config ClusterConfig
	client enrich.Client // nil disables funding lookups

	mu            sync.RWMutex
	clusters      map[string]*Cluster
	walletCluster map[string]string
	fundingGraph  map[string][]string
}

// NewClusterer creates a clusterer. client may be nil; relationships can
// still be added manually from bundle detection.
func NewClusterer(config ClusterConfig, client enrich.Client) *Clusterer {
	return &Clusterer{
		config:        config,
		client:        client,
		clusters:      make(map[string]*Cluster),
		walletCluster: make(map[string]string),
		fundingGraph:  make(map[string][]string),
	}
}

// FindCluster returns the wallet's cluster, building one from recent
// funding transfers on first sight. Returns nil when the wallet has no
// significant funding relationships.
func (cl *Clusterer) FindCluster(ctx context.Context, wallet string) *Cluster {
	if !cl.config.Enabled {
		return nil
	}

	cl.mu.RLock()
	if id, ok := cl.walletCluster[wallet]; ok {
		if c, ok := cl.clusters[id]; ok {
			out := c.clone()
			cl.mu.RUnlock()
			return out
		}
	}
	cl.mu.RUnlock()

	if cl.client == nil {
		return nil
	}
	return cl.buildFromFunding(ctx, wallet)
}

// buildFromFunding fetches the wallet's recent SOL inflows and clusters it
// under its primary funding source.
func (cl *Clusterer) buildFromFunding(ctx context.Context, wallet string) *Cluster {
	lookback := time.Duration(cl.config.LookbackHours) * time.Hour
	transfers, err := cl.client.FundingTransfers(ctx, wallet, lookback)
	if err != nil {
		log.Warn().Str("wallet", wallet).Err(err).Msg("bundle: funding lookup failed")
		return nil
	}

	cutoff := time.Now().Add(-lookback)
	var sources []string
	for _, tr := range transfers {
		if tr.AmountSOL >= cl.config.MinFundingSOL && tr.Timestamp.After(cutoff) {
			sources = append(sources, tr.From)
		}
	}
	if len(sources) == 0 {
		return nil
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	for _, src := range sources {
		cl.fundingGraph[src] = append(cl.fundingGraph[src], wallet)
	}

	id := sources[0]
	if existing, ok := cl.clusters[id]; ok {
		cl.addMember(existing, wallet)
		log.Debug().
			Str("wallet", wallet).
			Str("cluster", id).
			Int("size", existing.Size()).
			Msg("bundle: wallet joined existing cluster")
		return existing.clone()
	}

	c := &Cluster{
		ID:             id,
		Wallets:        []string{wallet},
		Type:           ClusterUnknown,
		FundingSources: sources,
		UpdatedAt:      time.Now(),
	}

	// Pull in siblings already known to share this source.
	for _, sibling := range cl.fundingGraph[id] {
		if sibling != wallet && !c.Contains(sibling) {
			cl.addMember(c, sibling)
		}
	}

	cl.walletCluster[wallet] = id
	cl.clusters[id] = c

	if c.Size() > 1 {
		log.Info().
			Str("cluster", id).
			Int("size", c.Size()).
			Msg("bundle: new wallet cluster")
	}
	return c.clone()
}

// addMember inserts a wallet, evicting the oldest member at capacity.
// Caller holds the write lock.
func (cl *Clusterer) addMember(c *Cluster, wallet string) {
	if c.Contains(wallet) {
		return
	}
	if cl.config.MaxClusterSize > 0 && len(c.Wallets) >= cl.config.MaxClusterSize {
		oldest := c.Wallets[0]
		c.Wallets = c.Wallets[1:]
		if cl.walletCluster[oldest] == c.ID {
			delete(cl.walletCluster, oldest)
		}
	}
	c.Wallets = append(c.Wallets, wallet)
	c.UpdatedAt = time.Now()
	cl.walletCluster[wallet] = c.ID
}

// AreRelated reports whether two wallets share a cluster or a funding
// source.
func (cl *Clusterer) AreRelated(w1, w2 string) bool {
	if w1 == w2 {
		return true
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()

	c1, ok1 := cl.walletCluster[w1]
	c2, ok2 := cl.walletCluster[w2]
	if ok1 && ok2 && c1 == c2 {
		return true
	}

	for _, funded := range cl.fundingGraph {
		var saw1, saw2 bool
		for _, w := range funded {
			if w == w1 {
				saw1 = true
			}
			if w == w2 {
				saw2 = true
			}
		}
		if saw1 && saw2 {
			return true
		}
	}
	return false
}

// RelatedWallets returns every wallet linked to the given one through its
// cluster or shared funding, deduplicated, excluding the wallet itself.
func (cl *Clusterer) RelatedWallets(wallet string) []string {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	var related []string
	if id, ok := cl.walletCluster[wallet]; ok {
		if c, ok := cl.clusters[id]; ok {
			related = append(related, c.Wallets...)
		}
	}
	for _, funded := range cl.fundingGraph {
		for _, w := range funded {
			if w == wallet {
				related = append(related, funded...)
				break
			}
		}
	}

	sort.Strings(related)
	out := related[:0]
	var prev string
	for _, w := range related {
		if w == wallet || w == prev {
			continue
		}
		out = append(out, w)
		prev = w
	}
	return out
}

// ClusterOf returns the wallet's cluster, if any.
func (cl *Clusterer) ClusterOf(wallet string) (*Cluster, bool) {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	id, ok := cl.walletCluster[wallet]
	if !ok {
		return nil, false
	}
	c, ok := cl.clusters[id]
	if !ok {
		return nil, false
	}
	return c.clone(), true
}

// AddRelationship links a funded wallet to a source directly, bypassing
// the funding fetch. Bundle detection uses this to persist what it found.
func (cl *Clusterer) AddRelationship(source, funded string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.fundingGraph[source] = append(cl.fundingGraph[source], funded)

	if c, ok := cl.clusters[source]; ok {
		cl.addMember(c, funded)
		return
	}

	c := &Cluster{
		ID:        source,
		Wallets:   []string{source},
		Type:      ClusterUnknown,
		UpdatedAt: time.Now(),
	}
	cl.walletCluster[source] = source
	cl.clusters[source] = c
	cl.addMember(c, funded)
}

// Clear drops all clustering state.
func (cl *Clusterer) Clear() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.clusters = make(map[string]*Cluster)
	cl.walletCluster = make(map[string]string)
	cl.fundingGraph = make(map[string][]string)
}

// ClusterStats is a snapshot of clustering state.
type ClusterStats struct {
	Clusters       int `json:"clusters"`
	Wallets        int `json:"wallets"`
	LargestCluster int `json:"largest_cluster"`
}

// Stats returns current clustering counts.
func (cl *Clusterer) Stats() ClusterStats {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	largest := 0
	for _, c := range cl.clusters {
		if c.Size() > largest {
			largest = c.Size()
		}
	}
	return ClusterStats{
		Clusters:       len(cl.clusters),
		Wallets:        len(cl.walletCluster),
		LargestCluster: largest,
	}
}
