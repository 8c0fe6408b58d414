// Package store is the system of record for conversations, contact
// profiles, drafts, transcripts, the idempotency ledger and order data.
// Every read goes to Postgres; nothing is cached in-process, so
// horizontally scaled workers never observe stale state.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a contact has no row for the requested
// entity.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	contact          TEXT PRIMARY KEY,
	conversation_ref TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contact_profiles (
	contact          TEXT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	last_name        TEXT NOT NULL DEFAULT '',
	company          TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	notes            TEXT NOT NULL DEFAULT '',
	complete         BOOLEAN NOT NULL DEFAULT false,
	manual_mode      BOOLEAN NOT NULL DEFAULT false,
	draft            TEXT NOT NULL DEFAULT '',
	draft_created_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS messages (
	id          BIGSERIAL PRIMARY KEY,
	contact     TEXT NOT NULL,
	sender      TEXT NOT NULL CHECK (sender IN ('user', 'agent')),
	body        TEXT NOT NULL,
	external_id TEXT,
	status      TEXT NOT NULL DEFAULT 'sent',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_messages_contact ON messages (contact, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_external ON messages (external_id);

CREATE TABLE IF NOT EXISTS processed_messages (
	message_id   TEXT PRIMARY KEY,
	contact      TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_messages (processed_at);

CREATE TABLE IF NOT EXISTS orders (
	order_id               TEXT PRIMARY KEY,
	contact                TEXT NOT NULL,
	status                 TEXT NOT NULL CHECK (status IN ('processing', 'shipped', 'delivered')),
	product_name           TEXT NOT NULL,
	quantity               INT NOT NULL,
	total_amount           NUMERIC(10,2) NOT NULL,
	expected_delivery_date DATE NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_contact ON orders (contact, created_at);
`

// Migrate applies the schema. Statements are idempotent, so this runs
// unconditionally at startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// isSerializationFailure reports whether err is a Postgres
// serialization_failure or deadlock_detected, the two conflict classes
// worth one retry under per-contact serialization.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
