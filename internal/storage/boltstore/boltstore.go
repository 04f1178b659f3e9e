// Package boltstore keeps records in an embedded bolt database, one JSON
// document per key in insertion order.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"PcapLedger/internal/config"
	"PcapLedger/internal/core/model"
	"PcapLedger/internal/storage"

	"github.com/boltdb/bolt"
)

const recordsBucketName = "traffic_packets"

func init() {
	storage.Register(config.DriverBolt, func(ctx context.Context, rawURL string) (storage.Store, error) {
		rest, ok := strings.CutPrefix(rawURL, "bolt://")
		if !ok {
			return nil, fmt.Errorf("not a bolt url: %q", rawURL)
		}
		path := strings.TrimPrefix(rest, "/")
		if path == "" {
			return nil, fmt.Errorf("bolt url %q has no database path", rawURL)
		}
		return New(path)
	})
}

// Store is a bolt-backed storage.Store.
type Store struct {
	db *bolt.DB
}

// New opens or creates the bolt file at path.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// CreateSchema creates the records bucket.
func (s *Store) CreateSchema(context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordsBucketName))
		return err
	})
}

// InsertBatch writes records in one bolt transaction. Keys come from the
// bucket sequence so iteration order is insertion order.
func (s *Store) InsertBatch(ctx context.Context, records []model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordsBucketName))
		if b == nil {
			return fmt.Errorf("bucket %s missing, schema not created", recordsBucketName)
		}
		for i, r := range records {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			r.ID = int64(seq)
			r.CreatedAt = now
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to encode record %d: %w", i, err)
			}
			if err := b.Put(itob(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// QueryAll returns every record in insertion order.
func (s *Store) QueryAll(ctx context.Context) ([]model.Record, error) {
	return s.scan(ctx, func(model.Record) bool { return true })
}

// QueryByProtocol returns records carrying label p.
func (s *Store) QueryByProtocol(ctx context.Context, p model.Protocol) ([]model.Record, error) {
	return s.scan(ctx, func(r model.Record) bool { return r.Protocol == p })
}

// QueryByAddress returns records whose source or destination is addr.
func (s *Store) QueryByAddress(ctx context.Context, addr string) ([]model.Record, error) {
	return s.scan(ctx, func(r model.Record) bool { return r.SrcIP == addr || r.DstIP == addr })
}

func (s *Store) scan(ctx context.Context, keep func(model.Record) bool) ([]model.Record, error) {
	var records []model.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordsBucketName))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r model.Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed to decode record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if keep(r) {
				records = append(records, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the bolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
