package storage

import (
	"context"
	"errors"
	"testing"

	"PcapLedger/internal/config"
	"PcapLedger/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore accepts a fixed number of batches and then fails.
type flakyStore struct {
	okBatches int
	batches   [][]model.Record
}

var errBoom = errors.New("disk full")

func (s *flakyStore) CreateSchema(context.Context) error { return nil }
func (s *flakyStore) InsertBatch(_ context.Context, records []model.Record) error {
	if len(s.batches) == s.okBatches {
		return errBoom
	}
	s.batches = append(s.batches, append([]model.Record(nil), records...))
	return nil
}
func (s *flakyStore) QueryAll(context.Context) ([]model.Record, error) { return nil, nil }
func (s *flakyStore) QueryByProtocol(context.Context, model.Protocol) ([]model.Record, error) {
	return nil, nil
}
func (s *flakyStore) QueryByAddress(context.Context, string) ([]model.Record, error) {
	return nil, nil
}
func (s *flakyStore) Close() error { return nil }

func records(n int) []model.Record {
	out := make([]model.Record, n)
	for i := range out {
		out[i] = model.Record{Protocol: model.ProtocolOther, Size: i}
	}
	return out
}

func TestSaveBatches_Chunks(t *testing.T) {
	store := &flakyStore{okBatches: 100}

	saved, err := SaveBatches(context.Background(), store, records(2500), 1000)
	require.NoError(t, err)
	assert.Equal(t, 2500, saved)
	require.Len(t, store.batches, 3)
	assert.Len(t, store.batches[0], 1000)
	assert.Len(t, store.batches[2], 500)
}

func TestSaveBatches_StopsAtFirstFailure(t *testing.T) {
	store := &flakyStore{okBatches: 2}

	saved, err := SaveBatches(context.Background(), store, records(10), 3)

	assert.Equal(t, 6, saved)
	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 2, batchErr.Batch)
	assert.Equal(t, 6, batchErr.Saved)
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, store.batches, 2)
}

func TestSaveBatches_Empty(t *testing.T) {
	saved, err := SaveBatches(context.Background(), &flakyStore{}, nil, 10)
	require.NoError(t, err)
	assert.Zero(t, saved)

	_, err = SaveBatches(context.Background(), &flakyStore{}, records(1), 0)
	assert.Error(t, err)
}

func TestSaveBatches_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	saved, err := SaveBatches(ctx, &flakyStore{okBatches: 10}, records(5), 2)
	assert.Zero(t, saved)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	Register("memtest", func(context.Context, string) (Store, error) { return &flakyStore{}, nil })
	assert.Contains(t, Drivers(), "memtest")
	assert.Panics(t, func() {
		Register("memtest", func(context.Context, string) (Store, error) { return nil, nil })
	})

	_, err := Open(context.Background(), config.DatabaseConfig{URL: "ftp://nowhere"})
	assert.Error(t, err, "unsupported scheme")
}
