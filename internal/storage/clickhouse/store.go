// Package clickhouse stores records in a ClickHouse MergeTree table.
package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"PcapLedger/internal/config"
	"PcapLedger/internal/core/model"
	"PcapLedger/internal/storage"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS traffic_packets (
    id               UInt64,
    timestamp        DateTime64(9, 'UTC'),
    source_ip        Nullable(String),
    destination_ip   Nullable(String),
    source_port      Nullable(UInt16),
    destination_port Nullable(UInt16),
    protocol         LowCardinality(String),
    packet_size      UInt32,
    packet_data      Nullable(String),
    file_name        String,
    created_at       DateTime64(3, 'UTC')
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(timestamp)
ORDER BY (id);
`

const selectColumns = `SELECT id, timestamp, source_ip, destination_ip, source_port,
    destination_port, protocol, packet_size, packet_data, file_name, created_at
FROM traffic_packets`

func init() {
	storage.Register(config.DriverClickHouse, func(ctx context.Context, rawURL string) (storage.Store, error) {
		opts, err := Options(rawURL)
		if err != nil {
			return nil, err
		}
		return New(ctx, opts)
	})
}

// Store implements storage.Store for ClickHouse. ClickHouse has no
// auto-increment, so ids are assigned here starting after the largest
// stored id; a single writer per table is assumed.
type Store struct {
	conn driver.Conn

	mu     sync.Mutex
	nextID uint64
}

// Options converts a clickhouse:// URL into connection options.
func Options(rawURL string) (*clickhouse.Options, error) {
	opts, err := clickhouse.ParseDSN(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid clickhouse url: %w", err)
	}
	opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	return opts, nil
}

// New connects and pings the server.
func New(ctx context.Context, opts *clickhouse.Options) (*Store, error) {
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return &Store{conn: conn}, nil
}

// CreateSchema creates the table and loads the id high-water mark.
func (s *Store) CreateSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createTableStatement); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	var maxID uint64
	if err := s.conn.QueryRow(ctx, "SELECT max(id) FROM traffic_packets").Scan(&maxID); err != nil {
		return fmt.Errorf("failed to read id high-water mark: %w", err)
	}
	s.mu.Lock()
	s.nextID = max(s.nextID, maxID+1)
	s.mu.Unlock()

	slog.Info("Successfully connected to ClickHouse and ensured table exists.")
	return nil
}

// InsertBatch sends records as one insert block.
func (s *Store) InsertBatch(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO traffic_packets")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Abort()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextID == 0 {
		s.nextID = 1
	}

	now := time.Now().UTC()
	for i, r := range records {
		row, err := rowValues(r)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		args := append([]any{s.nextID + uint64(i)}, row...)
		args = append(args, now)
		if err := batch.Append(args...); err != nil {
			return fmt.Errorf("failed to append record %d to batch: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	s.nextID += uint64(len(records))
	return nil
}

// rowValues returns the column values between id and created_at.
func rowValues(r model.Record) ([]any, error) {
	var src, dst *string
	if r.HasAddresses() {
		src, dst = &r.SrcIP, &r.DstIP
	}
	var sport, dport *uint16
	if r.Ports != nil {
		sport, dport = &r.Ports.Src, &r.Ports.Dst
	}
	var data *string
	if r.Metadata != nil {
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		s := string(raw)
		data = &s
	}
	return []any{
		r.Timestamp.UTC(), src, dst, sport, dport,
		string(r.Protocol), uint32(r.Size), data, r.SourceFile,
	}, nil
}

// QueryAll returns every record ordered by id.
func (s *Store) QueryAll(ctx context.Context) ([]model.Record, error) {
	return s.query(ctx, selectColumns+" ORDER BY id")
}

// QueryByProtocol returns records carrying label p.
func (s *Store) QueryByProtocol(ctx context.Context, p model.Protocol) ([]model.Record, error) {
	return s.query(ctx, selectColumns+" WHERE protocol = ? ORDER BY id", string(p))
}

// QueryByAddress returns records whose source or destination is addr.
func (s *Store) QueryByAddress(ctx context.Context, addr string) ([]model.Record, error) {
	return s.query(ctx, selectColumns+" WHERE source_ip = ? OR destination_ip = ? ORDER BY id", addr, addr)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]model.Record, error) {
	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var (
			id           uint64
			r            model.Record
			src, dst     *string
			sport, dport *uint16
			protocol     string
			size         uint32
			data         *string
		)
		if err := rows.Scan(&id, &r.Timestamp, &src, &dst, &sport, &dport,
			&protocol, &size, &data, &r.SourceFile, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.ID = int64(id)
		r.Timestamp = r.Timestamp.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		r.Protocol = model.Protocol(protocol)
		r.Size = int(size)
		if src != nil && dst != nil {
			r.SrcIP, r.DstIP = *src, *dst
		}
		if sport != nil && dport != nil {
			r.Ports = &model.PortPair{Src: *sport, Dst: *dport}
		}
		if data != nil {
			md, err := model.DecodeMetadata(r.Protocol, []byte(*data))
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", id, err)
			}
			r.Metadata = md
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return records, nil
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
