package probe

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"PcapLedger/internal/config"
	"PcapLedger/internal/core/model"
	"PcapLedger/internal/metrics"
	"PcapLedger/internal/storage"
)

var errIngestorStopped = errors.New("ingestor stopped")

// Ingestor buffers received records and writes them to storage in batches,
// whenever the buffer is full, on every flush interval and on Stop.
type Ingestor struct {
	store     storage.Store
	flushSize int
	interval  time.Duration
	metrics   *metrics.Metrics

	in      chan model.Record
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	saved   atomic.Int64
	dropped atomic.Int64
	lastErr atomic.Pointer[error]
}

// NewIngestor creates an ingestor from the probe settings. m may be nil.
func NewIngestor(store storage.Store, cfg config.ProbeConfig, m *metrics.Metrics) (*Ingestor, error) {
	interval, err := cfg.Interval()
	if err != nil {
		return nil, err
	}
	flushSize := cfg.FlushSize
	if flushSize <= 0 {
		flushSize = 1
	}
	return &Ingestor{
		store:     store,
		flushSize: flushSize,
		interval:  interval,
		metrics:   m,
		in:        make(chan model.Record, flushSize),
	}, nil
}

// Start launches the flush loop. ctx bounds the storage calls; records still
// buffered when ctx ends are flushed by Stop.
func (i *Ingestor) Start(ctx context.Context) {
	i.wg.Add(1)
	go i.run(ctx)
	slog.Info("ingestor started", "flush_size", i.flushSize, "flush_interval", i.interval)
}

// Handle queues a record. It blocks while the buffer is full and drops the
// record after Stop.
func (i *Ingestor) Handle(r model.Record) {
	if err := i.enqueue(r); err != nil {
		i.dropped.Add(1)
		slog.Warn("record dropped", "error", err)
	}
}

func (i *Ingestor) enqueue(r model.Record) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.stopped {
		return errIngestorStopped
	}
	i.metrics.ProbeReceived()
	i.in <- r
	return nil
}

// Stop flushes what is buffered and waits for the loop to exit. It returns
// the error of the last failed flush, if any.
func (i *Ingestor) Stop() error {
	i.mu.Lock()
	if !i.stopped {
		i.stopped = true
		close(i.in)
	}
	i.mu.Unlock()
	i.wg.Wait()

	slog.Info("ingestor stopped", "saved", i.Saved(), "dropped", i.dropped.Load())
	if p := i.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Saved returns the number of records committed so far.
func (i *Ingestor) Saved() int64 {
	return i.saved.Load()
}

func (i *Ingestor) run(ctx context.Context) {
	defer i.wg.Done()
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	buf := make([]model.Record, 0, i.flushSize)
	for {
		select {
		case r, ok := <-i.in:
			if !ok {
				i.flush(context.WithoutCancel(ctx), buf)
				return
			}
			buf = append(buf, r)
			if len(buf) >= i.flushSize {
				buf = i.flush(ctx, buf)
			}
		case <-ticker.C:
			buf = i.flush(ctx, buf)
		}
	}
}

// flush writes buf as one batch and returns an empty buffer. A failed batch
// is logged and discarded.
func (i *Ingestor) flush(ctx context.Context, buf []model.Record) []model.Record {
	if len(buf) == 0 {
		return buf
	}
	if err := i.store.InsertBatch(ctx, buf); err != nil {
		slog.Error("failed to flush records", "records", len(buf), "error", err)
		i.metrics.Saved(0, true)
		i.lastErr.Store(&err)
	} else {
		i.saved.Add(int64(len(buf)))
		i.metrics.Saved(len(buf), false)
		slog.Debug("flushed records", "records", len(buf))
	}
	return make([]model.Record, 0, i.flushSize)
}
