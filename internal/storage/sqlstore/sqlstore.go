// Package sqlstore implements storage.Store on database/sql for SQLite and
// MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"PcapLedger/internal/core/model"
)

const insertStatement = `INSERT INTO traffic_packets
    (timestamp, source_ip, destination_ip, source_port, destination_port,
     protocol, packet_size, packet_data, file_name, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectColumns = `SELECT id, timestamp, source_ip, destination_ip, source_port,
    destination_port, protocol, packet_size, packet_data, file_name, created_at
FROM traffic_packets`

// Store is a traffic_packets table in a SQL database.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// open connects using d and verifies the connection.
func open(ctx context.Context, d dialect, dsn string) (*Store, error) {
	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, err
	}
	if d.name == sqliteDialect.name {
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.name, err)
	}
	return &Store{db: db, dialect: d}, nil
}

// OpenSQLite opens a SQLite database file at path.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	return open(ctx, sqliteDialect, path+"?_busy_timeout=5000")
}

// CreateSchema creates the table and its indexes if they do not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	slog.Info("database schema ready", "driver", s.dialect.name)
	return nil
}

// InsertBatch inserts records in a single transaction.
func (s *Store) InsertBatch(ctx context.Context, records []model.Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertStatement)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, r := range records {
		args, err := insertArgs(r, now)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func insertArgs(r model.Record, createdAt time.Time) ([]any, error) {
	var src, dst sql.Null[string]
	if r.HasAddresses() {
		src = sql.Null[string]{V: r.SrcIP, Valid: true}
		dst = sql.Null[string]{V: r.DstIP, Valid: true}
	}
	var sport, dport sql.Null[int64]
	if r.Ports != nil {
		sport = sql.Null[int64]{V: int64(r.Ports.Src), Valid: true}
		dport = sql.Null[int64]{V: int64(r.Ports.Dst), Valid: true}
	}
	var data sql.Null[string]
	if r.Metadata != nil {
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		data = sql.Null[string]{V: string(raw), Valid: true}
	}
	return []any{
		r.Timestamp.UTC(), src, dst, sport, dport,
		string(r.Protocol), r.Size, data, r.SourceFile, createdAt,
	}, nil
}

// QueryAll returns every record in insertion order.
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
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (model.Record, error) {
	var (
		r            model.Record
		src, dst     sql.Null[string]
		sport, dport sql.Null[int64]
		protocol     sql.Null[string]
		data         sql.Null[string]
	)
	if err := rows.Scan(&r.ID, &r.Timestamp, &src, &dst, &sport, &dport,
		&protocol, &r.Size, &data, &r.SourceFile, &r.CreatedAt); err != nil {
		return model.Record{}, fmt.Errorf("failed to scan record: %w", err)
	}

	r.Timestamp = r.Timestamp.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.Protocol = model.Protocol(protocol.V)
	if src.Valid || dst.Valid {
		r.SrcIP, r.DstIP = src.V, dst.V
	}
	if sport.Valid && dport.Valid {
		r.Ports = &model.PortPair{Src: uint16(sport.V), Dst: uint16(dport.V)}
	}
	if data.Valid {
		md, err := model.DecodeMetadata(r.Protocol, []byte(data.V))
		if err != nil {
			return model.Record{}, fmt.Errorf("record %d: %w", r.ID, err)
		}
		r.Metadata = md
	}
	return r, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
