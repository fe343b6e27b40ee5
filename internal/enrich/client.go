package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nexus-trading/vigil/internal/signal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ---------------------------------------------------------------------------
// Enrichment Client -- wallet/holder/mint lookups via Helius-style APIs
// ---------------------------------------------------------------------------

// Transfer is a native SOL movement, used for funding-source analysis.
type Transfer struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	AmountSOL float64   `json:"amount_sol"`
	Timestamp time.Time `json:"ts"`
}

// Client fetches enrichment data. Implementations must tolerate concurrent
// calls; every error is recoverable (callers degrade, never crash).
type Client interface {
	WalletHistory(ctx context.Context, address string, txLimit int) (*signal.WalletHistory, error)
	WalletTrades(ctx context.Context, address string, limit int) ([]signal.TradeRecord, error)
	TokenHolders(ctx context.Context, mint string, limit int) (*signal.TokenDistribution, error)
	MintInfo(ctx context.Context, mint string) (*signal.MintInfo, error)
	FundingTransfers(ctx context.Context, address string, lookback time.Duration) ([]Transfer, error)
	Health(ctx context.Context) error
}

// ClientConfig configures the HTTP client and its guards.
type ClientConfig struct {
	RPCURL     string `yaml:"rpc_url"`
	APIBaseURL string `yaml:"api_base_url"`
	APIKey     string `yaml:"api_key"`
	TimeoutMs  int    `yaml:"timeout_ms"`

	// Rate limiting shared by all calls.
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	Burst          int     `yaml:"burst"`

	// Circuit breaker: trip after N consecutive failures, retry after reset.
	BreakerFailures  uint32 `yaml:"breaker_failures"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs"`
}

// DefaultClientConfig returns mainnet defaults. The API key comes from
// config expansion (${HELIUS_API_KEY}).
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RPCURL:           "https://mainnet.helius-rpc.com",
		APIBaseURL:       "https://api.helius.xyz",
		TimeoutMs:        5000,
		RequestsPerSec:   10,
		Burst:            10,
		BreakerFailures:  5,
		BreakerResetSecs: 30,
	}
}

// HTTPClient is the production Client. Every call waits on the shared rate
// limiter and runs through the circuit breaker; when the upstream is down
// the breaker fails fast instead of stacking up timeouts in the worker pool.
type HTTPClient struct {
	config  ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	requests atomic.Int64
	failures atomic.Int64
}

// NewHTTPClient creates a guarded HTTP client.
func NewHTTPClient(config ClientConfig) *HTTPClient {
	st := gobreaker.Settings{Name: "enrich-api"}
	st.Timeout = time.Duration(config.BreakerResetSecs) * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= config.BreakerFailures
	}

	return &HTTPClient{
		config:  config,
		http:    &http.Client{Timeout: time.Duration(config.TimeoutMs) * time.Millisecond},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSec), config.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// guard applies the rate limit and circuit breaker around one upstream call.
func (c *HTTPClient) guard(ctx context.Context, op string, fn func() (interface{}, error)) (interface{}, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("enrich: %s: rate limiter: %w", op, err)
	}
	c.requests.Add(1)
	out, err := c.breaker.Execute(fn)
	if err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("enrich: %s: %w", op, err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// JSON-RPC plumbing
// ---------------------------------------------------------------------------

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *HTTPClient) rpcCall(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{Jsonrpc: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	url := fmt.Sprintf("%s/?api-key=%s", c.config.RPCURL, c.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

func (c *HTTPClient) enhancedGet(ctx context.Context, path string, query string, out any) error {
	url := fmt.Sprintf("%s%s?api-key=%s%s", c.config.APIBaseURL, path, c.config.APIKey, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Enhanced transaction API
// ---------------------------------------------------------------------------

type enhancedTx struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	Source    string `json:"source"`
	FeePayer  string `json:"feePayer"`

	NativeTransfers []struct {
		FromUserAccount string `json:"fromUserAccount"`
		ToUserAccount   string `json:"toUserAccount"`
		Amount          int64  `json:"amount"` // lamports
	} `json:"nativeTransfers"`

	TokenTransfers []struct {
		FromUserAccount string  `json:"fromUserAccount"`
		ToUserAccount   string  `json:"toUserAccount"`
		Mint            string  `json:"mint"`
		TokenAmount     float64 `json:"tokenAmount"`
	} `json:"tokenTransfers"`
}

// WalletHistory derives summary stats from the wallet's recent enhanced
// transactions. First-seen is approximated by the oldest fetched tx; the
// profiler refines trade-level stats separately.
func (c *HTTPClient) WalletHistory(ctx context.Context, address string, txLimit int) (*signal.WalletHistory, error) {
	out, err := c.guard(ctx, "wallet_history", func() (interface{}, error) {
		var txs []enhancedTx
		path := fmt.Sprintf("/v0/addresses/%s/transactions", address)
		query := fmt.Sprintf("&limit=%d", txLimit)
		if err := c.enhancedGet(ctx, path, query, &txs); err != nil {
			return nil, err
		}
		return txs, nil
	})
	if err != nil {
		return nil, err
	}
	txs := out.([]enhancedTx)

	h := &signal.WalletHistory{
		Address:           address,
		TotalTransactions: len(txs),
		FetchedAt:         time.Now(),
	}
	var oldest int64
	for _, tx := range txs {
		if oldest == 0 || tx.Timestamp < oldest {
			oldest = tx.Timestamp
		}
		if tx.Source == "PUMP_FUN" {
			h.PumpfunTransactions++
		}
		switch tx.Type {
		case "SWAP":
			h.TotalTrades++
		case "TOKEN_MINT":
			if tx.FeePayer == address {
				h.TokensDeployed++
			}
		}
	}
	if oldest > 0 {
		h.FirstSeen = time.Unix(oldest, 0)
	}
	return h, nil
}

// WalletTrades extracts the wallet's swap legs as trade records. Direction
// comes from the token transfer side; the SOL leg is the sum of lamports the
// wallet paid (buy) or received (sell) in the same transaction.
func (c *HTTPClient) WalletTrades(ctx context.Context, address string, limit int) ([]signal.TradeRecord, error) {
	out, err := c.guard(ctx, "wallet_trades", func() (interface{}, error) {
		var txs []enhancedTx
		path := fmt.Sprintf("/v0/addresses/%s/transactions", address)
		query := fmt.Sprintf("&limit=%d&type=SWAP", limit)
		if err := c.enhancedGet(ctx, path, query, &txs); err != nil {
			return nil, err
		}
		return txs, nil
	})
	if err != nil {
		return nil, err
	}

	var trades []signal.TradeRecord
	for _, tx := range out.([]enhancedTx) {
		if tx.Type != "SWAP" {
			continue
		}
		var mint string
		var tokens float64
		isBuy := false
		for _, tt := range tx.TokenTransfers {
			if tt.ToUserAccount == address {
				mint, tokens, isBuy = tt.Mint, tt.TokenAmount, true
				break
			}
			if tt.FromUserAccount == address {
				mint, tokens = tt.Mint, tt.TokenAmount
				break
			}
		}
		if mint == "" {
			continue
		}
		var lamports int64
		for _, nt := range tx.NativeTransfers {
			if isBuy && nt.FromUserAccount == address {
				lamports += nt.Amount
			}
			if !isBuy && nt.ToUserAccount == address {
				lamports += nt.Amount
			}
		}
		trades = append(trades, signal.TradeRecord{
			Mint:         mint,
			Trader:       address,
			IsBuy:        isBuy,
			AmountSOL:    float64(lamports) / 1e9,
			AmountTokens: tokens,
			Timestamp:    time.Unix(tx.Timestamp, 0),
		})
	}
	return trades, nil
}

// FundingTransfers returns native SOL transfers touching the address within
// the lookback window.
func (c *HTTPClient) FundingTransfers(ctx context.Context, address string, lookback time.Duration) ([]Transfer, error) {
	out, err := c.guard(ctx, "funding_transfers", func() (interface{}, error) {
		var txs []enhancedTx
		path := fmt.Sprintf("/v0/addresses/%s/transactions", address)
		if err := c.enhancedGet(ctx, path, "&type=TRANSFER", &txs); err != nil {
			return nil, err
		}
		return txs, nil
	})
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-lookback)
	var transfers []Transfer
	for _, tx := range out.([]enhancedTx) {
		ts := time.Unix(tx.Timestamp, 0)
		if ts.Before(cutoff) {
			continue
		}
		for _, nt := range tx.NativeTransfers {
			transfers = append(transfers, Transfer{
				From:      nt.FromUserAccount,
				To:        nt.ToUserAccount,
				AmountSOL: float64(nt.Amount) / 1e9,
				Timestamp: ts,
			})
		}
	}
	return transfers, nil
}

// ---------------------------------------------------------------------------
// Token RPC lookups
// ---------------------------------------------------------------------------

type largestAccountsResult struct {
	Value []struct {
		Address  string  `json:"address"`
		UIAmount float64 `json:"uiAmount"`
	} `json:"value"`
}

type tokenSupplyResult struct {
	Value struct {
		UIAmount float64 `json:"uiAmount"`
	} `json:"value"`
}

// TokenHolders builds a distribution snapshot from the token's largest
// accounts. Concentration metrics cover the fetched top slice, which is
// where rug risk lives anyway.
func (c *HTTPClient) TokenHolders(ctx context.Context, mint string, limit int) (*signal.TokenDistribution, error) {
	out, err := c.guard(ctx, "token_holders", func() (interface{}, error) {
		var largest largestAccountsResult
		if err := c.rpcCall(ctx, "getTokenLargestAccounts", []any{mint}, &largest); err != nil {
			return nil, err
		}
		var supply tokenSupplyResult
		if err := c.rpcCall(ctx, "getTokenSupply", []any{mint}, &supply); err != nil {
			return nil, err
		}
		return buildDistribution(mint, largest, supply.Value.UIAmount, limit), nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*signal.TokenDistribution), nil
}

func buildDistribution(mint string, largest largestAccountsResult, supply float64, limit int) *signal.TokenDistribution {
	d := &signal.TokenDistribution{
		Mint:      mint,
		FetchedAt: time.Now(),
	}

	holders := make([]signal.TokenHolder, 0, len(largest.Value))
	for _, acc := range largest.Value {
		pct := 0.0
		if supply > 0 {
			pct = acc.UIAmount / supply
		}
		holders = append(holders, signal.TokenHolder{Address: acc.Address, Balance: acc.UIAmount, Pct: pct})
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Balance > holders[j].Balance })
	if len(holders) > limit {
		holders = holders[:limit]
	}

	d.Holders = holders
	d.HolderCount = len(holders)
	for i, h := range holders {
		if i == 0 {
			d.TopHolderPct = h.Pct
		}
		if i < 5 {
			d.Top5Pct += h.Pct
		}
		if i < 10 {
			d.Top10Pct += h.Pct
		}
	}
	d.GiniCoefficient = gini(holders)
	return d
}

// gini computes the Gini coefficient over the holder balances (0 = evenly
// spread, 1 = one wallet owns it all).
func gini(holders []signal.TokenHolder) float64 {
	n := len(holders)
	if n < 2 {
		return 0
	}
	balances := make([]float64, n)
	var total float64
	for i, h := range holders {
		balances[i] = h.Balance
		total += h.Balance
	}
	if total <= 0 {
		return 0
	}
	sort.Float64s(balances)

	var weighted float64
	for i, b := range balances {
		weighted += float64(2*(i+1)-n-1) * b
	}
	return weighted / (float64(n) * total)
}

type accountInfoResult struct {
	Value *struct {
		Data struct {
			Parsed struct {
				Type string `json:"type"`
				Info struct {
					MintAuthority   *string `json:"mintAuthority"`
					FreezeAuthority *string `json:"freezeAuthority"`
					Supply          string  `json:"supply"`
					Decimals        int     `json:"decimals"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"value"`
}

// MintInfo fetches the parsed mint account. A null authority in the
// response maps to an empty string (revoked).
func (c *HTTPClient) MintInfo(ctx context.Context, mint string) (*signal.MintInfo, error) {
	out, err := c.guard(ctx, "mint_info", func() (interface{}, error) {
		var info accountInfoResult
		params := []any{mint, map[string]string{"encoding": "jsonParsed"}}
		if err := c.rpcCall(ctx, "getAccountInfo", params, &info); err != nil {
			return nil, err
		}
		if info.Value == nil {
			return nil, fmt.Errorf("mint account %s not found", mint)
		}
		if info.Value.Data.Parsed.Type != "mint" {
			return nil, fmt.Errorf("account %s is not a mint", mint)
		}
		return &info, nil
	})
	if err != nil {
		return nil, err
	}

	parsed := out.(*accountInfoResult).Value.Data.Parsed.Info
	m := &signal.MintInfo{
		Mint:      mint,
		Decimals:  parsed.Decimals,
		FetchedAt: time.Now(),
	}
	if parsed.MintAuthority != nil {
		m.MintAuthority = *parsed.MintAuthority
	}
	if parsed.FreezeAuthority != nil {
		m.FreezeAuthority = *parsed.FreezeAuthority
	}
	if v, err := strconv.ParseFloat(parsed.Supply, 64); err == nil {
		m.Supply = v
	}
	return m, nil
}

// Health pings the RPC endpoint.
func (c *HTTPClient) Health(ctx context.Context) error {
	_, err := c.guard(ctx, "health", func() (interface{}, error) {
		var status string
		if err := c.rpcCall(ctx, "getHealth", nil, &status); err != nil {
			return nil, err
		}
		if status != "ok" {
			return nil, fmt.Errorf("rpc unhealthy: %s", status)
		}
		return status, nil
	})
	return err
}

// ClientStats is a request counter snapshot.
type ClientStats struct {
	Requests int64 `json:"requests"`
	Failures int64 `json:"failures"`
}

func (c *HTTPClient) Stats() ClientStats {
	return ClientStats{
		Requests: c.requests.Load(),
		Failures: c.failures.Load(),
	}
}
