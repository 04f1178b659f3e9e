// Package storagetest holds behaviour checks shared by every Store backend.
package storagetest

import (
	"context"
	"testing"
	"time"

	"PcapLedger/internal/core/model"
	"PcapLedger/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Records returns a small mixed set covering every metadata variant and the
// absent-address and absent-port cases.
func Records() []model.Record {
	return []model.Record{
		{
			Timestamp: base, SrcIP: "192.168.1.100", DstIP: "192.168.1.1",
			Ports: &model.PortPair{Src: 12345, Dst: 80}, Protocol: model.ProtocolTCP, Size: 80,
			Metadata:   model.TCPMetadata{Flags: "PA", Seq: 1000, Ack: 2000, Window: 14600},
			SourceFile: "a.pcap",
		},
		{
			Timestamp: base.Add(time.Second), SrcIP: "192.168.1.100", DstIP: "8.8.8.8",
			Ports: &model.PortPair{Src: 53000, Dst: 53}, Protocol: model.ProtocolUDP, Size: 60,
			Metadata:   model.UDPMetadata{Length: 26, Checksum: 0xbeef},
			SourceFile: "a.pcap",
		},
		{
			Timestamp: base.Add(2 * time.Second), Protocol: model.ProtocolOther, Size: 42,
			Metadata:   model.OtherMetadata{Summary: "ARP", Layers: []string{"Ethernet", "ARP"}},
			SourceFile: "b.pcap",
		},
		{
			Timestamp: base.Add(3 * time.Second), SrcIP: "8.8.8.8", DstIP: "192.168.1.100",
			Protocol: model.ProtocolICMP, Size: 98,
			Metadata:   model.ICMPMetadata{Type: 0, Code: 0},
			SourceFile: "b.pcap",
		},
		{
			Timestamp: base.Add(4 * time.Second), SrcIP: "2001:db8::1", DstIP: "2001:db8::2",
			Ports: &model.PortPair{Src: 443, Dst: 51000}, Protocol: model.ProtocolTCPv6, Size: 74,
			SourceFile: "b.pcap",
		},
	}
}

// stripStoreFields clears what the store assigns so records compare against
// their inputs.
func stripStoreFields(records []model.Record) []model.Record {
	out := make([]model.Record, len(records))
	for i, r := range records {
		r.ID = 0
		r.CreatedAt = time.Time{}
		r.Timestamp = r.Timestamp.UTC()
		out[i] = r
	}
	return out
}

// Run exercises a freshly opened, empty store.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Run("RoundTrip", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)
		require.NoError(t, store.CreateSchema(ctx))
		require.NoError(t, store.CreateSchema(ctx), "schema creation is idempotent")

		empty, err := store.QueryAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		records := Records()
		require.NoError(t, store.InsertBatch(ctx, records))

		got, err := store.QueryAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, len(records))
		for _, r := range got {
			assert.NotZero(t, r.ID)
			assert.False(t, r.CreatedAt.IsZero())
		}
		assert.Equal(t, records, stripStoreFields(got))
	})

	t.Run("Queries", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)
		require.NoError(t, store.CreateSchema(ctx))
		records := Records()
		require.NoError(t, store.InsertBatch(ctx, records))

		tcp, err := store.QueryByProtocol(ctx, model.ProtocolTCP)
		require.NoError(t, err)
		assert.Equal(t, []model.Record{records[0]}, stripStoreFields(tcp))

		none, err := store.QueryByProtocol(ctx, model.ProtocolUDPv6)
		require.NoError(t, err)
		assert.Empty(t, none)

		byAddr, err := store.QueryByAddress(ctx, "8.8.8.8")
		require.NoError(t, err)
		assert.Equal(t, []model.Record{records[1], records[3]}, stripStoreFields(byAddr))
	})

	t.Run("SaveBatches", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)
		require.NoError(t, store.CreateSchema(ctx))

		var records []model.Record
		for i := 0; i < 7; i++ {
			records = append(records, Records()...)
		}

		saved, err := storage.SaveBatches(ctx, store, records, 4)
		require.NoError(t, err)
		assert.Equal(t, len(records), saved)

		got, err := store.QueryAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, records, stripStoreFields(got), "insertion order is preserved")
	})
}
