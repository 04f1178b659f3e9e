// Package storage persists normalized records behind a driver-neutral Store
// interface. Backends register themselves by URL scheme.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"PcapLedger/internal/config"
	"PcapLedger/internal/core/model"
)

// ErrNoRecords is returned when an operation needs stored records and the
// store is empty.
var ErrNoRecords = errors.New("pcapledger: no records in storage")

// Store is a persistent record table.
type Store interface {
	CreateSchema(ctx context.Context) error
	// InsertBatch stores records atomically: either all of them or none.
	InsertBatch(ctx context.Context, records []model.Record) error
	QueryAll(ctx context.Context) ([]model.Record, error)
	QueryByProtocol(ctx context.Context, p model.Protocol) ([]model.Record, error)
	// QueryByAddress returns records whose source or destination is addr.
	QueryByAddress(ctx context.Context, addr string) ([]model.Record, error)
	Close() error
}

// Opener creates a Store from a database URL.
type Opener func(ctx context.Context, rawURL string) (Store, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Opener)
)

// Register makes a backend available under driver. It panics on duplicates.
func Register(driver string, open Opener) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[driver]; exists {
		panic(fmt.Sprintf("storage driver '%s' already registered", driver))
	}
	registry[driver] = open
}

// Drivers lists the registered driver names.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the store addressed by cfg.URL.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	driver, err := cfg.Driver()
	if err != nil {
		return nil, err
	}

	mu.RLock()
	open, ok := registry[driver]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage driver '%s' is not linked into this binary", driver)
	}

	store, err := open(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("error opening %s storage: %w", driver, err)
	}
	slog.Debug("storage opened", "driver", driver)
	return store, nil
}

// BatchError reports a failed batch and how many records were committed
// before it.
type BatchError struct {
	Batch  int
	Saved  int
	Reason error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d failed after %d records saved: %v", e.Batch, e.Saved, e.Reason)
}

func (e *BatchError) Unwrap() error { return e.Reason }

// SaveBatches inserts records in chunks of batchSize, each chunk its own
// transaction. It stops at the first failing chunk; earlier chunks stay
// committed and are reflected in the returned count.
func SaveBatches(ctx context.Context, store Store, records []model.Record, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	saved := 0
	for start, batch := 0, 0; start < len(records); start, batch = start+batchSize, batch+1 {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		end := min(start+batchSize, len(records))
		if err := store.InsertBatch(ctx, records[start:end]); err != nil {
			return saved, &BatchError{Batch: batch, Saved: saved, Reason: err}
		}
		saved += end - start
		slog.Debug("batch saved", "batch", batch, "records", end-start, "total", saved)
	}
	return saved, nil
}
