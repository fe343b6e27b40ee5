package enrich

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexus-trading/vigil/internal/cache"
	"github.com/nexus-trading/vigil/internal/signal"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Enrichment Service -- cache-through fetching with a background worker pool
// ---------------------------------------------------------------------------

// ServiceConfig tunes enrichment behavior.
type ServiceConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"` // parallel upstream fetches
	APITimeoutMs  int `yaml:"api_timeout_ms"` // budget per individual fetch
	HolderLimit   int `yaml:"holder_limit"`
	WalletTxLimit int `yaml:"wallet_tx_limit"`

	FetchMintInfo       bool `yaml:"fetch_mint_info"`
	FetchCreatorHistory bool `yaml:"fetch_creator_history"`
	FetchHolders        bool `yaml:"fetch_holders"`

	Workers              int `yaml:"workers"`
	QueueSize            int `yaml:"queue_size"`
	FundingLookbackHours int `yaml:"funding_lookback_hours"`
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxConcurrent:        5,
		APITimeoutMs:         5000,
		HolderLimit:          20,
		WalletTxLimit:        50,
		FetchMintInfo:        true,
		FetchCreatorHistory:  true,
		FetchHolders:         true,
		Workers:              4,
		QueueSize:            100,
		FundingLookbackHours: 24,
	}
}

// Priority orders enrichment requests. Advisory: the queue is FIFO, but
// priority is logged and carried so a future scheduler can use it.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Request asks the worker pool to enrich one token.
type Request struct {
	Mint       string
	Creator    string
	Priority   Priority
	EnqueuedAt time.Time
}

// Service fetches enrichment data through the Client and lands it in the
// cache. Fetch failures degrade to missing data, never to errors upstream.
type Service struct {
	config ServiceConfig
	client Client
	cache  *cache.Cache

	sem   chan struct{} // bounds concurrent upstream fetches
	queue chan Request

	wg      sync.WaitGroup
	started atomic.Bool

	tokensEnriched  atomic.Int64
	walletsEnriched atomic.Int64
	partials        atomic.Int64
	fetchErrors     atomic.Int64
	dropped         atomic.Int64
}

// NewService creates an enrichment service.
func NewService(config ServiceConfig, client Client, c *cache.Cache) *Service {
	return &Service{
		config: config,
		client: client,
		cache:  c,
		sem:    make(chan struct{}, config.MaxConcurrent),
		queue:  make(chan Request, config.QueueSize),
	}
}

// EnrichToken fetches whatever token data is enabled and not already
// cached, attaches it to the context, and caches it. Returns true only
// when every attempted fetch succeeded and at least one ran.
func (s *Service) EnrichToken(ctx context.Context, tc *signal.TokenContext) bool {
	attempted, succeeded := 0, 0

	if s.config.FetchMintInfo && tc.Mint != "" {
		if m, ok := s.cache.GetMintInfo(tc.Mint); ok {
			tc.MintState = m
		} else {
			attempted++
			if m := s.fetchMintInfo(ctx, tc.Mint); m != nil {
				succeeded++
				tc.MintState = m
			}
		}
	}

	if s.config.FetchCreatorHistory && tc.Creator != "" {
		if h, ok := s.cache.GetWalletHistory(tc.Creator); ok {
			tc.CreatorHistory = h
		} else {
			attempted++
			if h := s.fetchWalletHistory(ctx, tc.Creator); h != nil {
				succeeded++
				tc.CreatorHistory = h
			}
		}
	}

	if s.config.FetchHolders && tc.Mint != "" {
		if d, ok := s.cache.GetHolders(tc.Mint); ok {
			tc.Distribution = d
		} else {
			attempted++
			if d := s.fetchHolders(ctx, tc.Mint); d != nil {
				succeeded++
				tc.Distribution = d
			}
		}
	}

	complete := attempted > 0 && succeeded == attempted
	if complete {
		s.tokensEnriched.Add(1)
	} else if succeeded > 0 {
		s.partials.Add(1)
		log.Debug().
			Str("mint", tc.Mint).
			Int("succeeded", succeeded).
			Int("attempted", attempted).
			Msg("enrich: partial token enrichment")
	}
	return complete
}

// EnrichWallet fetches and caches one wallet's history if absent.
func (s *Service) EnrichWallet(ctx context.Context, address string) bool {
	if address == "" {
		return false
	}
	if _, ok := s.cache.GetWalletHistory(address); ok {
		return true
	}
	if h := s.fetchWalletHistory(ctx, address); h != nil {
		s.walletsEnriched.Add(1)
		return true
	}
	return false
}

func (s *Service) fetchMintInfo(ctx context.Context, mint string) *signal.MintInfo {
	fctx, cancel := s.fetchContext(ctx)
	defer cancel()
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	m, err := s.client.MintInfo(fctx, mint)
	if err != nil {
		s.fetchErrors.Add(1)
		log.Debug().Err(err).Str("mint", mint).Msg("enrich: mint info fetch failed")
		return nil
	}
	s.cache.PutMintInfo(m)
	return m
}

func (s *Service) fetchWalletHistory(ctx context.Context, address string) *signal.WalletHistory {
	fctx, cancel := s.fetchContext(ctx)
	defer cancel()
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	h, err := s.client.WalletHistory(fctx, address, s.config.WalletTxLimit)
	if err != nil {
		s.fetchErrors.Add(1)
		log.Debug().Err(err).Str("wallet", address).Msg("enrich: wallet history fetch failed")
		return nil
	}
	s.cache.PutWalletHistory(h)
	return h
}

func (s *Service) fetchHolders(ctx context.Context, mint string) *signal.TokenDistribution {
	fctx, cancel := s.fetchContext(ctx)
	defer cancel()
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	d, err := s.client.TokenHolders(fctx, mint, s.config.HolderLimit)
	if err != nil {
		s.fetchErrors.Add(1)
		log.Debug().Err(err).Str("mint", mint).Msg("enrich: holder fetch failed")
		return nil
	}
	s.cache.PutHolders(d)
	return d
}

func (s *Service) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(s.config.APITimeoutMs)*time.Millisecond)
}

// ---------------------------------------------------------------------------
// Background worker pool
// ---------------------------------------------------------------------------

// Start launches the worker pool. Workers exit when ctx is canceled.
func (s *Service) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	log.Info().Int("workers", s.config.Workers).Msg("enrich: worker pool started")
}

// Wait blocks until all workers have exited.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.queue:
			tc := &signal.TokenContext{Mint: req.Mint, Creator: req.Creator}
			s.EnrichToken(ctx, tc)
			log.Debug().
				Int("worker", id).
				Str("mint", req.Mint).
				Str("priority", string(req.Priority)).
				Dur("queued", time.Since(req.EnqueuedAt)).
				Msg("enrich: background request done")
		}
	}
}

// Handle is the producer side of the worker queue.
type Handle struct {
	svc *Service
}

// Handle returns the request handle for this service.
func (s *Service) Handle() *Handle {
	return &Handle{svc: s}
}

// Request enqueues a background enrichment without blocking. Returns false
// when the queue is full (request dropped, counted).
func (h *Handle) Request(mint, creator string, priority Priority) bool {
	req := Request{Mint: mint, Creator: creator, Priority: priority, EnqueuedAt: time.Now()}
	select {
	case h.svc.queue <- req:
		return true
	default:
		h.svc.dropped.Add(1)
		return false
	}
}

// ServiceStats is a point-in-time counters snapshot.
type ServiceStats struct {
	TokensEnriched  int64 `json:"tokens_enriched"`
	WalletsEnriched int64 `json:"wallets_enriched"`
	Partials        int64 `json:"partials"`
	FetchErrors     int64 `json:"fetch_errors"`
	Dropped         int64 `json:"dropped"`
	QueueDepth      int   `json:"queue_depth"`
}

func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		TokensEnriched:  s.tokensEnriched.Load(),
		WalletsEnriched: s.walletsEnriched.Load(),
		Partials:        s.partials.Load(),
		FetchErrors:     s.fetchErrors.Load(),
		Dropped:         s.dropped.Load(),
		QueueDepth:      len(s.queue),
	}
}
