package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// NOTE: table schema (works on Postgres and SQLite):
// CREATE TABLE client_sessions (
//   slot TEXT PRIMARY KEY,
//   snapshot TEXT NOT NULL,
//   updated_at TIMESTAMP NOT NULL
// );

// SQLStore keeps one row per slot. A save is a single upsert statement.
type SQLStore struct {
	db   *sqlx.DB
	slot string
}

func NewSQLStore(db *sqlx.DB, slot string) *SQLStore {
	if slot == "" {
		slot = "default"
	}
	return &SQLStore{db: db, slot: slot}
}

// EnsureTable creates the client_sessions table if not exists (idempotent).
func (s *SQLStore) EnsureTable(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS client_sessions (
  slot TEXT PRIMARY KEY,
  snapshot TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *SQLStore) Load(ctx context.Context) ([]byte, error) {
	var snapshot string
	q := s.db.Rebind(`SELECT snapshot FROM client_sessions WHERE slot = ?`)
	if err := s.db.GetContext(ctx, &snapshot, q, s.slot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(snapshot), nil
}

func (s *SQLStore) Save(ctx context.Context, snapshot []byte) error {
	q := s.db.Rebind(`INSERT INTO client_sessions (slot, snapshot, updated_at) VALUES (?, ?, ?)
ON CONFLICT (slot) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`)
	_, err := s.db.ExecContext(ctx, q, s.slot, string(snapshot), time.Now().UTC())
	return err
}

func (s *SQLStore) Clear(ctx context.Context) error {
	q := s.db.Rebind(`DELETE FROM client_sessions WHERE slot = ?`)
	_, err := s.db.ExecContext(ctx, q, s.slot)
	return err
}
