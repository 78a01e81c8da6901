package db

import "fmt"

// schemaStatements are applied in order on startup. Statements are
// idempotent so repeated boots against the same database are safe.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (email)`,

	`CREATE TABLE IF NOT EXISTS polls (
		id         TEXT PRIMARY KEY,
		question   TEXT NOT NULL,
		status     TEXT NOT NULL,
		closes_at  TIMESTAMPTZ,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_polls_status_closes_at ON polls (status, closes_at)`,

	`CREATE TABLE IF NOT EXISTS poll_options (
		id       TEXT PRIMARY KEY,
		poll_id  TEXT NOT NULL REFERENCES polls (id) ON DELETE CASCADE,
		text     TEXT NOT NULL,
		position INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_poll_options_poll_id ON poll_options (poll_id)`,

	`CREATE TABLE IF NOT EXISTS votes (
		id        TEXT PRIMARY KEY,
		poll_id   TEXT NOT NULL REFERENCES polls (id) ON DELETE CASCADE,
		option_id TEXT NOT NULL REFERENCES poll_options (id) ON DELETE CASCADE,
		user_id   TEXT NOT NULL,
		cast_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_poll_user ON votes (poll_id, user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_votes_poll_option ON votes (poll_id, option_id)`,

	`CREATE TABLE IF NOT EXISTS poll_outbox (
		outbox_id    TEXT PRIMARY KEY,
		event_type   TEXT NOT NULL,
		payload      BYTEA NOT NULL,
		status       TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		published_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_poll_outbox_status_created ON poll_outbox (status, created_at)`,
}

// Migrate applies the schema. It runs each statement in its own
// implicit transaction; a failure reports the offending statement index.
func (p *Postgres) Migrate() error {
	for i, stmt := range schemaStatements {
		if err := p.DB.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
