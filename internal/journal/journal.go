// Package journal records inbound envelopes in a sqlite database so a
// session can be replayed offline into a fresh mirror.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/napmirror/internal/protocol"
	_ "modernc.org/sqlite"
)

var ErrPathRequired = errors.New("journal: path required")

// Entry is one journaled envelope.
type Entry struct {
	Seq        int64
	ReceivedAt time.Time
	Envelope   protocol.Envelope
}

type Store struct {
	db *sql.DB
}

// Open creates or opens the journal at path. ":memory:" keeps it in memory.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrPathRequired
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and writes ordered.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS envelopes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		received_at INTEGER NOT NULL,
		id TEXT NOT NULL,
		result TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_envelopes_id ON envelopes(id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores env. A bare reply keeps a NULL result.
func (s *Store) Append(ctx context.Context, env protocol.Envelope, receivedAt time.Time) error {
	var result sql.NullString
	if env.Result != nil {
		result = sql.NullString{String: *env.Result, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO envelopes (received_at, id, result) VALUES (?, ?, ?)`,
		receivedAt.UTC().UnixNano(), env.ID, result,
	)
	if err != nil {
		return fmt.Errorf("journal: append %s: %w", env.ID, err)
	}
	return nil
}

// List returns every entry in arrival order.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := s.Replay(ctx, func(e Entry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM envelopes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}

// Replay feeds entries to fn in arrival order and stops at fn's first error.
func (s *Store) Replay(ctx context.Context, fn func(Entry) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, received_at, id, result FROM envelopes ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e        Entry
			received int64
			result   sql.NullString
		)
		if err := rows.Scan(&e.Seq, &received, &e.Envelope.ID, &result); err != nil {
			return fmt.Errorf("journal: scan: %w", err)
		}
		e.ReceivedAt = time.Unix(0, received).UTC()
		if result.Valid {
			r := result.String
			e.Envelope.Result = &r
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}
