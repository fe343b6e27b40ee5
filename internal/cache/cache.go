package cache

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexus-trading/vigil/internal/signal"
)

// ---------------------------------------------------------------------------
// Enrichment Cache -- sharded TTL stores for wallet/holder/mint data
// ---------------------------------------------------------------------------
// One wallet fetch should serve every token that wallet ever touches within
// the TTL. Reads on different keys must not contend: the hot path hits this
// on every launch.

const shardCount = 16

// Config sizes the three stores and the trade-flow ring.
type Config struct {
	WalletCacheSize     int `yaml:"wallet_cache_size"`
	WalletCacheTTLSecs  int `yaml:"wallet_cache_ttl_secs"`
	HolderCacheSize     int `yaml:"holder_cache_size"`
	HolderCacheTTLSecs  int `yaml:"holder_cache_ttl_secs"`
	MintCacheSize       int `yaml:"mint_cache_size"`
	MintCacheTTLSecs    int `yaml:"mint_cache_ttl_secs"`
	TradeFlowBufferSize int `yaml:"trade_flow_buffer_size"`
}

// DefaultConfig returns production sizing.
func DefaultConfig() Config {
	return Config{
		WalletCacheSize:     10_000,
		WalletCacheTTLSecs:  3600,
		HolderCacheSize:     1_000,
		HolderCacheTTLSecs:  300,
		MintCacheSize:       1_000,
		MintCacheTTLSecs:    300,
		TradeFlowBufferSize: 1_000,
	}
}

// entry wraps a cached value with expiry and recency.
type entry[V any] struct {
	value      V
	expiresAt  time.Time
	lastAccess time.Time
}

// shard is one lock domain of a store.
type shard[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
}

// store is a sharded TTL map with LRU batch eviction. Expired entries act
// as absent and are removed on read.
type store[V any] struct {
	shards   [shardCount]*shard[V]
	capacity int // per shard
	ttl      time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func newStore[V any](capacity int, ttl time.Duration) *store[V] {
	s := &store[V]{
		capacity: capacity / shardCount,
		ttl:      ttl,
	}
	if s.capacity < 1 {
		s.capacity = 1
	}
	for i := range s.shards {
		s.shards[i] = &shard[V]{entries: make(map[string]*entry[V])}
	}
	return s
}

func (s *store[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func (s *store[V]) get(key string) (V, bool) {
	var zero V
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		s.misses.Add(1)
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		delete(sh.entries, key)
		s.misses.Add(1)
		return zero, false
	}
	e.lastAccess = time.Now()
	s.hits.Add(1)
	return e.value, true
}

// contains checks presence without touching hit/miss counters or recency.
func (s *store[V]) contains(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	return ok && !time.Now().After(e.expiresAt)
}

func (s *store[V]) put(key string, value V) {
	now := time.Now()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.entries[key]; !exists && len(sh.entries) >= s.capacity {
		s.evictLocked(sh)
	}
	sh.entries[key] = &entry[V]{
		value:      value,
		expiresAt:  now.Add(s.ttl),
		lastAccess: now,
	}
}

// evictLocked drops the least-recently-used ~10% of the shard in one batch,
// so a full cache does not pay an eviction on every insert.
func (s *store[V]) evictLocked(sh *shard[V]) {
	n := len(sh.entries) / 10
	if n < 1 {
		n = 1
	}

	type victim struct {
		key        string
		lastAccess time.Time
	}
	oldest := make([]victim, 0, n)
	for key, e := range sh.entries {
		v := victim{key, e.lastAccess}
		if len(oldest) < n {
			oldest = append(oldest, v)
			continue
		}
		// Replace the newest of the current victims if this one is older.
		newest := 0
		for i := 1; i < len(oldest); i++ {
			if oldest[i].lastAccess.After(oldest[newest].lastAccess) {
				newest = i
			}
		}
		if v.lastAccess.Before(oldest[newest].lastAccess) {
			oldest[newest] = v
		}
	}
	for _, v := range oldest {
		delete(sh.entries, v.key)
	}
}

func (s *store[V]) len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}

func (s *store[V]) clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]*entry[V])
		sh.mu.Unlock()
	}
}

// Cache bundles the three enrichment stores.
type Cache struct {
	wallets *store[*signal.WalletHistory]
	holders *store[*signal.TokenDistribution]
	mints   *store[*signal.MintInfo]
}

// New creates a cache with the given sizing.
func New(cfg Config) *Cache {
	return &Cache{
		wallets: newStore[*signal.WalletHistory](cfg.WalletCacheSize, time.Duration(cfg.WalletCacheTTLSecs)*time.Second),
		holders: newStore[*signal.TokenDistribution](cfg.HolderCacheSize, time.Duration(cfg.HolderCacheTTLSecs)*time.Second),
		mints:   newStore[*signal.MintInfo](cfg.MintCacheSize, time.Duration(cfg.MintCacheTTLSecs)*time.Second),
	}
}

// GetWalletHistory returns the cached history for a wallet, if fresh.
func (c *Cache) GetWalletHistory(address string) (*signal.WalletHistory, bool) {
	return c.wallets.get(address)
}

// PutWalletHistory caches a wallet history keyed by its address.
func (c *Cache) PutWalletHistory(h *signal.WalletHistory) {
	if h == nil || h.Address == "" {
		return
	}
	c.wallets.put(h.Address, h)
}

// GetHolders returns the cached holder distribution for a mint, if fresh.
func (c *Cache) GetHolders(mint string) (*signal.TokenDistribution, bool) {
	return c.holders.get(mint)
}

// PutHolders caches a holder distribution keyed by its mint.
func (c *Cache) PutHolders(d *signal.TokenDistribution) {
	if d == nil || d.Mint == "" {
		return
	}
	c.holders.put(d.Mint, d)
}

// GetMintInfo returns the cached mint account state, if fresh.
func (c *Cache) GetMintInfo(mint string) (*signal.MintInfo, bool) {
	return c.mints.get(mint)
}

// PutMintInfo caches mint account state keyed by its mint.
func (c *Cache) PutMintInfo(m *signal.MintInfo) {
	if m == nil || m.Mint == "" {
		return
	}
	c.mints.put(m.Mint, m)
}

// HasTokenData reports whether any token-level data (holders or mint info)
// is cached for the mint. Does not count as a hit or miss.
func (c *Cache) HasTokenData(mint string) bool {
	return c.holders.contains(mint) || c.mints.contains(mint)
}

// TotalCached returns the number of live entries across all stores.
func (c *Cache) TotalCached() int {
	return c.wallets.len() + c.holders.len() + c.mints.len()
}

// Clear empties every store. Counters are kept.
func (c *Cache) Clear() {
	c.wallets.clear()
	c.holders.clear()
	c.mints.clear()
}

// Stats is a point-in-time cache counters snapshot.
type Stats struct {
	WalletHits   int64   `json:"wallet_hits"`
	WalletMisses int64   `json:"wallet_misses"`
	HolderHits   int64   `json:"holder_hits"`
	HolderMisses int64   `json:"holder_misses"`
	MintHits     int64   `json:"mint_hits"`
	MintMisses   int64   `json:"mint_misses"`
	HitRate      float64 `json:"hit_rate"` // wallet store
	TotalCached  int     `json:"total_cached"`
}

func (c *Cache) Stats() Stats {
	hits := c.wallets.hits.Load()
	misses := c.wallets.misses.Load()
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}
	return Stats{
		WalletHits:   hits,
		WalletMisses: misses,
		HolderHits:   c.holders.hits.Load(),
		HolderMisses: c.holders.misses.Load(),
		MintHits:     c.mints.hits.Load(),
		MintMisses:   c.mints.misses.Load(),
		HitRate:      hitRate,
		TotalCached:  c.TotalCached(),
	}
}
