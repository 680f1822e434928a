package store

import (
	"context"
	"database/sql"
)

// schema statements are idempotent so they can run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		name TEXT,
		email TEXT UNIQUE,
		phone TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS activities (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		activity_date DATE NOT NULL,
		start_time TEXT NOT NULL DEFAULT '',
		duration_min INT,
		max_slots INT NOT NULL CHECK (max_slots >= 1),
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		id UUID PRIMARY KEY,
		activity_id UUID NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		account_id UUID,
		dedup_key TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'confirmed',
		attendance TEXT NOT NULL DEFAULT 'unmarked',
		enrolled_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Last line of defense against duplicate enrollment when the
	// application-level check races.
	`CREATE UNIQUE INDEX IF NOT EXISTS enrollments_activity_dedup
		ON enrollments (activity_id, dedup_key)`,
	`CREATE INDEX IF NOT EXISTS enrollments_activity
		ON enrollments (activity_id)`,
	`CREATE TABLE IF NOT EXISTS enrollment_events (
		id BIGSERIAL PRIMARY KEY,
		enrollment_id UUID NOT NULL,
		activity_id UUID NOT NULL,
		kind TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema applies the DDL above; safe to call on every boot.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
