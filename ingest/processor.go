package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/viktsys/bolsaingest/market"
	"github.com/viktsys/bolsaingest/metrics"
	"github.com/viktsys/bolsaingest/models"
)

const DefaultRetentionDays = 30

var (
	ErrFetch         = errors.New("fetch failed")
	ErrEmptyUpstream = errors.New("upstream returned no instruments")
	ErrWrite         = errors.New("write failed")
	ErrBusy          = errors.New("another cycle is in flight")
)

// Status is the outcome of one ingestion cycle.
type Status string

const (
	StatusOK          Status = "ok"
	StatusSkipped     Status = "skipped"
	StatusFetchFailed Status = "fetch_failed"
	StatusWriteFailed Status = "write_failed"
	StatusBusy        Status = "busy"
)

// CycleResult describes what a cycle did. Err is nil only for StatusOK and
// StatusSkipped.
type CycleResult struct {
	Status     Status        `json:"status"`
	Inserted   int64         `json:"inserted"`
	Pruned     int64         `json:"pruned"`
	Skipped    int           `json:"skipped_records"`
	CapturedAt time.Time     `json:"captured_at"`
	Duration   time.Duration `json:"duration_ns"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
}

// Sink persists a cycle: append snaps and prune rows older than cutoff,
// all or nothing.
type Sink interface {
	SaveCycle(ctx context.Context, snaps []models.PriceSnapshot, cutoff time.Time) (inserted, pruned int64, err error)
}

type Options struct {
	RetentionDays int
	Hours         market.Hours
	// Names maps symbols to display names; lookups ignore case.
	Names map[string]string
	Now   func() time.Time
}

// Ingestor runs snapshot-and-prune cycles. At most one cycle runs at a time.
type Ingestor struct {
	source Source
	sink   Sink
	opts   Options
	names  map[string]string
	log    *zap.SugaredLogger
	mu     sync.Mutex
}

func NewIngestor(source Source, sink Sink, opts Options, log *zap.SugaredLogger) *Ingestor {
	if opts.RetentionDays < 1 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	names := make(map[string]string, len(opts.Names))
	for sym, name := range opts.Names {
		names[strings.ToLower(sym)] = name
	}
	return &Ingestor{
		source: source,
		sink:   sink,
		opts:   opts,
		names:  names,
		log:    log,
	}
}

// RunCycle fetches the instrument list and stores one row per instrument.
// Unless force is set, it does nothing outside market hours. Failures never
// leave a partial cycle behind and are reported in the result, not raised.
func (i *Ingestor) RunCycle(ctx context.Context, force bool) CycleResult {
	if !i.mu.TryLock() {
		i.log.Warnw("Skipping cycle, previous one still running", "force", force)
		return i.finish(CycleResult{Status: StatusBusy, Err: ErrBusy}, time.Time{})
	}
	defer i.mu.Unlock()

	now := i.opts.Now().UTC()
	if !force && !i.opts.Hours.IsOpen(now) {
		i.log.Debugw("Market closed, cycle skipped", "local_time", now.In(market.Zone).Format(time.RFC3339))
		return i.finish(CycleResult{Status: StatusSkipped, CapturedAt: now}, now)
	}

	records, err := i.source.Fetch(ctx)
	if err != nil {
		i.log.Errorw("Failed to fetch market summary", "error", err)
		return i.finish(CycleResult{Status: StatusFetchFailed, CapturedAt: now, Err: fmt.Errorf("%w: %w", ErrFetch, err)}, now)
	}
	if len(records) == 0 {
		i.log.Warnw("Upstream returned an empty instrument list, keeping stored data")
		return i.finish(CycleResult{Status: StatusFetchFailed, CapturedAt: now, Err: fmt.Errorf("%w: %w", ErrFetch, ErrEmptyUpstream)}, now)
	}

	snaps := make([]models.PriceSnapshot, 0, len(records))
	skipped := 0
	for _, record := range records {
		snap, err := i.parseRecord(record, now)
		if err != nil {
			skipped++
			i.log.Warnw("Skipping invalid record", "symbol", record.Symbol, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		return i.finish(CycleResult{Status: StatusFetchFailed, Skipped: skipped, CapturedAt: now,
			Err: fmt.Errorf("%w: all %d records were invalid", ErrFetch, skipped)}, now)
	}

	cutoff := now.AddDate(0, 0, -i.opts.RetentionDays)
	inserted, pruned, err := i.sink.SaveCycle(ctx, snaps, cutoff)
	if err != nil {
		i.log.Errorw("Failed to store snapshots, cycle rolled back", "error", err, "instruments", len(snaps))
		return i.finish(CycleResult{Status: StatusWriteFailed, Skipped: skipped, CapturedAt: now, Err: fmt.Errorf("%w: %w", ErrWrite, err)}, now)
	}

	i.log.Infow("Cycle stored",
		"inserted", inserted,
		"pruned", pruned,
		"skipped_records", skipped,
		"captured_at", now)
	return i.finish(CycleResult{Status: StatusOK, Inserted: inserted, Pruned: pruned, Skipped: skipped, CapturedAt: now}, now)
}

func (i *Ingestor) finish(res CycleResult, started time.Time) CycleResult {
	if !started.IsZero() {
		res.Duration = i.opts.Now().Sub(started)
		metrics.CycleDuration.Observe(res.Duration.Seconds())
	}
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	metrics.CyclesTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.RowsInserted.Add(float64(res.Inserted))
	metrics.RowsPruned.Add(float64(res.Pruned))
	metrics.RecordsSkipped.Add(float64(res.Skipped))
	return res
}

func (i *Ingestor) parseRecord(record Record, capturedAt time.Time) (models.PriceSnapshot, error) {
	var snap models.PriceSnapshot

	symbol := strings.TrimSpace(record.Symbol)
	if symbol == "" {
		return snap, errors.New("missing symbol")
	}

	price, err := record.Price.Decimal()
	if err != nil {
		return snap, fmt.Errorf("invalid price format: %w", err)
	}

	// Change, volume and amount are blank for instruments without trades
	absChange, err := optionalDecimal(record.AbsChange)
	if err != nil {
		return snap, fmt.Errorf("invalid absolute change format: %w", err)
	}
	relChange, err := optionalDecimal(record.RelChange)
	if err != nil {
		return snap, fmt.Errorf("invalid relative change format: %w", err)
	}
	volume, err := optionalDecimal(record.Volume)
	if err != nil {
		return snap, fmt.Errorf("invalid volume format: %w", err)
	}
	cashAmount, err := optionalDecimal(record.CashAmount)
	if err != nil {
		return snap, fmt.Errorf("invalid cash amount format: %w", err)
	}

	snap.Symbol = symbol
	snap.Name = i.displayName(symbol, record.Description)
	snap.Price = price
	snap.AbsChange = absChange
	snap.RelChange = relChange
	snap.Volume = volume
	snap.CashAmount = cashAmount
	snap.TimeOfQuote = strings.TrimSpace(record.Time)
	snap.IconURL = strings.TrimSpace(record.Icon)
	snap.CapturedAt = capturedAt

	return snap, nil
}

func (i *Ingestor) displayName(symbol, upstream string) string {
	if name, ok := i.names[strings.ToLower(symbol)]; ok && name != "" {
		return name
	}
	return strings.TrimSpace(upstream)
}

func optionalDecimal(n LocaleNumber) (decimal.Decimal, error) {
	d, err := n.Decimal()
	if errors.Is(err, ErrEmptyNumber) {
		return decimal.Zero, nil
	}
	return d, err
}
