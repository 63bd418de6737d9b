// Package postgres provides sqlx-backed implementations of the repository
// interfaces consumed by the auth service.
package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// Connect opens a pooled connection and verifies connectivity with a ping.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[postgres.Connect] open")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[postgres.Connect] ping")
	}
	return db, nil
}

// EnsureSchema creates all tables if they do not exist (idempotent).
// This is a convenience for early development; prefer migrations in production.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id UUID PRIMARY KEY,
  email TEXT UNIQUE,
  mobile TEXT UNIQUE,
  password_hash TEXT NOT NULL DEFAULT '',
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  system_role TEXT NOT NULL DEFAULT 'user',
  two_factor_secret TEXT NOT NULL DEFAULT '',
  recovery_codes BYTEA,
  active BOOLEAN NOT NULL DEFAULT true,
  email_verified BOOLEAN NOT NULL DEFAULT false,
  date_joined TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  last_login TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS schools (
  id UUID PRIMARY KEY,
  code TEXT UNIQUE NOT NULL,
  name TEXT NOT NULL,
  active BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS memberships (
  user_id UUID NOT NULL REFERENCES users(id),
  school_id UUID NOT NULL REFERENCES schools(id),
  role TEXT NOT NULL,
  active BOOLEAN NOT NULL DEFAULT true,
  joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (user_id, school_id)
);

CREATE TABLE IF NOT EXISTS dependent_links (
  guardian_id UUID NOT NULL REFERENCES users(id),
  dependent_id UUID NOT NULL,
  school_id UUID NOT NULL REFERENCES schools(id),
  dependent_name TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (guardian_id, dependent_id, school_id)
);

CREATE TABLE IF NOT EXISTS one_time_codes (
  id UUID PRIMARY KEY,
  identifier TEXT NOT NULL,
  school_id TEXT NOT NULL DEFAULT '',
  code_hash TEXT NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  attempts INT NOT NULL DEFAULT 0,
  used BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_one_time_codes_identifier ON one_time_codes(identifier, created_at DESC);

CREATE TABLE IF NOT EXISTS audit_entries (
  id TEXT PRIMARY KEY,
  actor_id TEXT NOT NULL DEFAULT '',
  school_id TEXT NOT NULL DEFAULT '',
  action TEXT NOT NULL,
  resource TEXT NOT NULL,
  detail JSONB NOT NULL DEFAULT '{}'::jsonb,
  ip TEXT NOT NULL DEFAULT '',
  user_agent TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entries_actor ON audit_entries(actor_id, created_at DESC);
`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "[postgres.EnsureSchema] exec ddl")
	}
	return nil
}
