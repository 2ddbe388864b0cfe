package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/profclems/catchhook/client"
	"github.com/profclems/catchhook/protocol"

	_ "modernc.org/sqlite"
)

// DefaultLatestLimit is how many requests GET /latest returns
const DefaultLatestLimit = 50

const schema = `CREATE TABLE IF NOT EXISTS reqs (
	id    INTEGER PRIMARY KEY,
	ts_ms INTEGER NOT NULL,
	blob  BLOB NOT NULL
)`

// Store persists captured requests in SQLite, keeping at most maxReqs rows.
// Requests are stored as JSON blobs keyed by id.
type Store struct {
	db          *sql.DB
	nextID      atomic.Uint64
	maxReqs     int
	latestLimit int
}

// OpenStore opens (or creates) requests.db under dir. Ids continue from the
// largest id already stored.
func OpenStore(dir string, maxReqs int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "requests.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps inserts and prunes serialized.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize database (%s): %w", stmt, err)
		}
	}

	var lastID int64
	if err := db.QueryRow("SELECT COALESCE(MAX(id), 0) FROM reqs").Scan(&lastID); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read last id: %w", err)
	}

	if maxReqs <= 0 {
		maxReqs = 10_000
	}

	s := &Store{db: db, maxReqs: maxReqs, latestLimit: DefaultLatestLimit}
	s.nextID.Store(uint64(lastID))
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// NextID reserves the next request id
func (s *Store) NextID() uint64 {
	return s.nextID.Add(1)
}

// LastID returns the most recently reserved id
func (s *Store) LastID() uint64 {
	return s.nextID.Load()
}

// MaxRequests returns the retention limit
func (s *Store) MaxRequests() int {
	return s.maxReqs
}

// Insert stores req and prunes the oldest rows beyond the retention limit.
// It returns the number of pruned rows.
func (s *Store) Insert(ctx context.Context, req *protocol.Request) (int64, error) {
	blob, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO reqs (id, ts_ms, blob) VALUES (?, ?, ?)",
		int64(req.ID), req.TsMs, blob,
	); err != nil {
		return 0, fmt.Errorf("failed to insert request %d: %w", req.ID, err)
	}

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM reqs WHERE id NOT IN (SELECT id FROM reqs ORDER BY id DESC LIMIT ?)",
		s.maxReqs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune requests: %w", err)
	}
	pruned, _ := res.RowsAffected()
	return pruned, nil
}

// LatestN returns up to limit requests, newest first. Rows that fail to
// decode are skipped.
func (s *Store) LatestN(ctx context.Context, limit int) ([]protocol.Request, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT blob FROM reqs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	out := make([]protocol.Request, 0, limit)
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		var req protocol.Request
		if err := json.Unmarshal(blob, &req); err != nil {
			continue
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read requests: %w", err)
	}
	return out, nil
}

// Get returns the request with the given id or client.ErrNotFound
func (s *Store) Get(ctx context.Context, id uint64) (*protocol.Request, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT blob FROM reqs WHERE id = ?", int64(id)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, client.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request %d: %w", id, err)
	}

	var req protocol.Request
	if err := json.Unmarshal(blob, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request %d: %w", id, err)
	}
	return &req, nil
}

// Count returns the number of stored requests
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reqs").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return n, nil
}

// Latest implements client.Source
func (s *Store) Latest(ctx context.Context) ([]protocol.Request, error) {
	return s.LatestN(ctx, s.latestLimit)
}

// Request implements client.Source
func (s *Store) Request(ctx context.Context, id uint64) (*protocol.Request, error) {
	return s.Get(ctx, id)
}
