package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexus-trading/vigil/internal/signal"
)

// StubClient is an in-memory Client for tests and stub mode. Fixtures are
// set per key; unset keys return a not-found error like the real API.
type StubClient struct {
	mu        sync.Mutex
	wallets   map[string]*signal.WalletHistory
	trades    map[string][]signal.TradeRecord
	holders   map[string]*signal.TokenDistribution
	mints     map[string]*signal.MintInfo
	transfers map[string][]Transfer

	failNext  error
	callCount map[string]int
}

// NewStubClient creates an empty stub.
func NewStubClient() *StubClient {
	return &StubClient{
		wallets:   make(map[string]*signal.WalletHistory),
		trades:    make(map[string][]signal.TradeRecord),
		holders:   make(map[string]*signal.TokenDistribution),
		mints:     make(map[string]*signal.MintInfo),
		transfers: make(map[string][]Transfer),
		callCount: make(map[string]int),
	}
}

// SetWalletHistory installs a wallet fixture.
func (s *StubClient) SetWalletHistory(h *signal.WalletHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[h.Address] = h
}

// SetWalletTrades installs swap-leg fixtures for an address.
func (s *StubClient) SetWalletTrades(address string, trades []signal.TradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[address] = trades
}

// SetHolders installs a holder distribution fixture.
func (s *StubClient) SetHolders(d *signal.TokenDistribution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders[d.Mint] = d
}

// SetMintInfo installs a mint account fixture.
func (s *StubClient) SetMintInfo(m *signal.MintInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mints[m.Mint] = m
}

// SetTransfers installs funding transfers for an address.
func (s *StubClient) SetTransfers(address string, transfers []Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[address] = transfers
}

// SetFailNext makes the next call fail with err (one-shot).
func (s *StubClient) SetFailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Calls returns how many times the named method ran.
func (s *StubClient) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount[method]
}

// shouldFail consumes a pending one-shot failure.
func (s *StubClient) shouldFail(method string) error {
	s.callCount[method]++
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	return nil
}

func (s *StubClient) WalletHistory(ctx context.Context, address string, txLimit int) (*signal.WalletHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.shouldFail("wallet_history"); err != nil {
		return nil, err
	}
	h, ok := s.wallets[address]
	if !ok {
		return nil, fmt.Errorf("stub: no wallet history for %s", address)
	}
	return h, nil
}

func (s *StubClient) WalletTrades(ctx context.Context, address string, limit int) ([]signal.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.shouldFail("wallet_trades"); err != nil {
		return nil, err
	}
	return s.trades[address], nil
}

func (s *StubClient) TokenHolders(ctx context.Context, mint string, limit int) (*signal.TokenDistribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.shouldFail("token_holders"); err != nil {
		return nil, err
	}
	d, ok := s.holders[mint]
	if !ok {
		return nil, fmt.Errorf("stub: no holders for %s", mint)
	}
	return d, nil
}

func (s *StubClient) MintInfo(ctx context.Context, mint string) (*signal.MintInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.shouldFail("mint_info"); err != nil {
		return nil, err
	}
	m, ok := s.mints[mint]
	if !ok {
		return nil, fmt.Errorf("stub: no mint info for %s", mint)
	}
	return m, nil
}

func (s *StubClient) FundingTransfers(ctx context.Context, address string, lookback time.Duration) ([]Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.shouldFail("funding_transfers"); err != nil {
		return nil, err
	}
	return s.transfers[address], nil
}

func (s *StubClient) Health(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldFail("health")
}
