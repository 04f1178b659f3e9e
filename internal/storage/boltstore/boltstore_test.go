package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"PcapLedger/internal/config"
	"PcapLedger/internal/storage"
	"PcapLedger/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) storage.Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "ledger.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoltStore(t *testing.T) {
	storagetest.Run(t, openTemp)
}

func TestBoltStore_InsertWithoutSchema(t *testing.T) {
	store := openTemp(t)
	err := store.InsertBatch(context.Background(), storagetest.Records())
	assert.ErrorContains(t, err, "schema not created")

	got, err := store.QueryAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBoltStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.bolt")

	store, err := storage.Open(ctx, config.DatabaseConfig{URL: "bolt:///" + path})
	require.NoError(t, err)
	require.NoError(t, store.CreateSchema(ctx))
	require.NoError(t, store.InsertBatch(ctx, storagetest.Records()))
	require.NoError(t, store.Close())

	again, err := New(path)
	require.NoError(t, err)
	defer again.Close()

	got, err := again.QueryAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, len(storagetest.Records()))
	assert.Equal(t, int64(1), got[0].ID)
}
