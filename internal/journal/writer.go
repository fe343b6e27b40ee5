package journal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/vigil/internal/bus"
)

// DecisionRow is a scoring verdict as stored in the vigil_decisions table.
type DecisionRow struct {
	EventID          string    `json:"event_id"`
	Timestamp        time.Time `json:"ts"`
	Mint             string    `json:"mint"`
	Symbol           string    `json:"symbol"`
	Score            float64   `json:"score"`
	Confidence       float64   `json:"confidence"`
	RiskScore        float64   `json:"risk_score"`
	OpportunityScore float64   `json:"opportunity_score"`
	Recommendation   string    `json:"recommendation"`
	SizeMultiplier   float64   `json:"size_multiplier"`
	Reason           string    `json:"reason"`
	Degraded         bool      `json:"degraded"`
	SignalCount      uint32    `json:"signal_count"`
	ElapsedMs        float64   `json:"elapsed_ms"`
	Producer         string    `json:"producer"`
}

// ExitAlertRow is a fired exit trigger as stored in the vigil_exit_alerts
// table.
type ExitAlertRow struct {
	EventID      string    `json:"event_id"`
	Timestamp    time.Time `json:"ts"`
	Mint         string    `json:"mint"`
	Trigger      string    `json:"trigger"`
	Urgency      string    `json:"urgency"`
	Reason       string    `json:"reason"`
	AutoExit     bool      `json:"auto_exit"`
	Wallet       string    `json:"wallet"`
	Rank         uint32    `json:"rank"`
	PctSold      float64   `json:"pct_sold"`
	TokensSold   uint64    `json:"tokens_sold"`
	SellersCount uint32    `json:"sellers_count"`
	TotalSellSOL float64   `json:"total_sell_sol"`
	Producer     string    `json:"producer"`
}

// DecisionToRow converts a published decision envelope to a journal row.
func DecisionToRow(d bus.Decision) DecisionRow {
	return DecisionRow{
		EventID:          d.EventID,
		Timestamp:        d.Timestamp,
		Mint:             d.Mint,
		Symbol:           d.Symbol,
		Score:            d.Score,
		Confidence:       d.Confidence,
		RiskScore:        d.RiskScore,
		OpportunityScore: d.OpportunityScore,
		Recommendation:   d.Recommendation,
		SizeMultiplier:   d.SizeMultiplier,
		Reason:           d.Reason,
		Degraded:         d.Degraded,
		SignalCount:      uint32(d.SignalCount),
		ElapsedMs:        d.ElapsedMs,
		Producer:         d.Producer,
	}
}

// ExitAlertToRow converts a published exit alert envelope to a journal row.
func ExitAlertToRow(a bus.ExitAlert) ExitAlertRow {
	return ExitAlertRow{
		EventID:      a.EventID,
		Timestamp:    a.Timestamp,
		Mint:         a.Mint,
		Trigger:      a.Trigger,
		Urgency:      a.Urgency,
		Reason:       a.Reason,
		AutoExit:     a.AutoExit,
		Wallet:       a.Wallet,
		Rank:         uint32(a.Rank),
		PctSold:      a.PctSold,
		TokensSold:   a.TokensSold,
		SellersCount: uint32(a.SellersCount),
		TotalSellSOL: a.TotalSellSOL.InexactFloat64(),
		Producer:     a.Producer,
	}
}

// Writer batches decision and exit-alert rows and flushes to ClickHouse
// when the combined buffers reach the batch size or on the flush interval.
type Writer struct {
	client        *Client
	dbPrefix      string
	batchSize     int
	flushInterval time.Duration

	mu          sync.Mutex
	decisionBuf []DecisionRow
	alertBuf    []ExitAlertRow
	closed      bool

	flushCount atomic.Int64
	errorCount atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}

	// flushHook replaces real writes during testing.
	flushHook func(ctx context.Context, table string, rows [][]any) error
}

// NewWriter creates a journal batch writer that flushes on size or
// interval.
func NewWriter(client *Client, dbPrefix string, batchSize int, flushInterval time.Duration) *Writer {
	if batchSize <= 0 {
		batchSize = 500
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Writer{
		client:        client,
		dbPrefix:      dbPrefix,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		decisionBuf:   make([]DecisionRow, 0, batchSize),
		alertBuf:      make([]ExitAlertRow, 0, 64),
	}
}

func (w *Writer) tableName(name string) string {
	if w.dbPrefix == "" {
		return name
	}
	return w.dbPrefix + "." + name
}

// WriteDecision adds a decision row to the buffer.
func (w *Writer) WriteDecision(ctx context.Context, row DecisionRow) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("journal writer is closed")
	}
	w.decisionBuf = append(w.decisionBuf, row)
	needsFlush := len(w.decisionBuf)+len(w.alertBuf) >= w.batchSize
	w.mu.Unlock()

	if needsFlush {
		return w.Flush(ctx)
	}
	return nil
}

// WriteExitAlert adds an exit alert row to the buffer.
func (w *Writer) WriteExitAlert(ctx context.Context, row ExitAlertRow) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("journal writer is closed")
	}
	w.alertBuf = append(w.alertBuf, row)
	needsFlush := len(w.decisionBuf)+len(w.alertBuf) >= w.batchSize
	w.mu.Unlock()

	if needsFlush {
		return w.Flush(ctx)
	}
	return nil
}

// Start begins the background flush loop.
func (w *Writer) Start(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()

		log.Info().
			Str("prefix", w.dbPrefix).
			Int("batch_size", w.batchSize).
			Dur("flush_interval", w.flushInterval).
			Msg("journal: writer started")

		for {
			select {
			case <-bgCtx.Done():
				if err := w.Flush(context.Background()); err != nil {
					log.Error().Err(err).Msg("journal: final flush error")
				}
				return
			case <-ticker.C:
				if err := w.Flush(bgCtx); err != nil {
					log.Error().Err(err).Msg("journal: periodic flush error")
				}
			}
		}
	}()
}

// Flush writes all buffered rows to ClickHouse.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	decisions := w.decisionBuf
	alerts := w.alertBuf
	w.decisionBuf = make([]DecisionRow, 0, w.batchSize)
	w.alertBuf = make([]ExitAlertRow, 0, 64)
	w.mu.Unlock()

	if len(decisions) == 0 && len(alerts) == 0 {
		return nil
	}

	var firstErr error

	if len(decisions) > 0 {
		if err := w.flushDecisions(ctx, decisions); err != nil {
			log.Error().Err(err).Int("count", len(decisions)).Msg("journal: flush decisions failed")
			w.errorCount.Add(1)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if len(alerts) > 0 {
		if err := w.flushAlerts(ctx, alerts); err != nil {
			log.Error().Err(err).Int("count", len(alerts)).Msg("journal: flush exit alerts failed")
			w.errorCount.Add(1)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	w.flushCount.Add(1)
	log.Debug().
		Int("decisions", len(decisions)).
		Int("exit_alerts", len(alerts)).
		Msg("journal: batch flushed")

	return firstErr
}

func (w *Writer) flushDecisions(ctx context.Context, rows []DecisionRow) error {
	if w.flushHook != nil {
		generic := make([][]any, len(rows))
		for i, r := range rows {
			generic[i] = []any{
				r.EventID, r.Timestamp, r.Mint, r.Symbol,
				r.Score, r.Confidence, r.RiskScore, r.OpportunityScore,
				r.Recommendation, r.SizeMultiplier, r.Reason,
				r.Degraded, r.SignalCount, r.ElapsedMs, r.Producer,
			}
		}
		return w.flushHook(ctx, w.tableName("vigil_decisions"), generic)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (event_id, ts, mint, symbol, score, confidence, "+
			"risk_score, opportunity_score, recommendation, size_multiplier, "+
			"reason, degraded, signal_count, elapsed_ms, producer)",
		w.tableName("vigil_decisions"))

	batch, err := w.client.Conn().PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare decision batch: %w", err)
	}

	for _, r := range rows {
		if err := batch.Append(
			r.EventID, r.Timestamp, r.Mint, r.Symbol,
			r.Score, r.Confidence, r.RiskScore, r.OpportunityScore,
			r.Recommendation, r.SizeMultiplier, r.Reason,
			r.Degraded, r.SignalCount, r.ElapsedMs, r.Producer,
		); err != nil {
			return fmt.Errorf("append decision row: %w", err)
		}
	}

	return batch.Send()
}

func (w *Writer) flushAlerts(ctx context.Context, rows []ExitAlertRow) error {
	if w.flushHook != nil {
		generic := make([][]any, len(rows))
		for i, r := range rows {
			generic[i] = []any{
				r.EventID, r.Timestamp, r.Mint, r.Trigger, r.Urgency,
				r.Reason, r.AutoExit, r.Wallet, r.Rank, r.PctSold,
				r.TokensSold, r.SellersCount, r.TotalSellSOL, r.Producer,
			}
		}
		return w.flushHook(ctx, w.tableName("vigil_exit_alerts"), generic)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (event_id, ts, mint, trigger, urgency, reason, "+
			"auto_exit, wallet, rank, pct_sold, tokens_sold, sellers_count, "+
			"total_sell_sol, producer)",
		w.tableName("vigil_exit_alerts"))

	batch, err := w.client.Conn().PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare exit alert batch: %w", err)
	}

	for _, r := range rows {
		if err := batch.Append(
			r.EventID, r.Timestamp, r.Mint, r.Trigger, r.Urgency,
			r.Reason, r.AutoExit, r.Wallet, r.Rank, r.PctSold,
			r.TokensSold, r.SellersCount, r.TotalSellSOL, r.Producer,
		); err != nil {
			return fmt.Errorf("append exit alert row: %w", err)
		}
	}

	return batch.Send()
}

// Close stops the background writer and performs a final flush.
func (w *Writer) Close() error {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	if err := w.Flush(context.Background()); err != nil {
		log.Error().Err(err).Msg("journal: final flush on close failed")
		return err
	}

	log.Info().
		Int64("flushes", w.flushCount.Load()).
		Int64("errors", w.errorCount.Load()).
		Msg("journal: writer closed")
	return nil
}

// Stats returns writer statistics.
func (w *Writer) Stats() (flushCount, errorCount int64, pendingDecisions, pendingAlerts int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushCount.Load(), w.errorCount.Load(), len(w.decisionBuf), len(w.alertBuf)
}

// SetFlushHook sets a test hook. Intended for testing only.
func (w *Writer) SetFlushHook(hook func(ctx context.Context, table string, rows [][]any) error) {
	w.flushHook = hook
}
