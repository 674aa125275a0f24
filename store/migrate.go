package store

import (
	"context"

	"github.com/pkg/errors"
)

// schema is shared between sqlite and postgres: all identifiers and types
// below are understood by both. Timestamps are stored as unix seconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS chats (
		chat_id BIGINT PRIMARY KEY,
		chat_type TEXT NOT NULL DEFAULT 'private',
		title TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		is_source BOOLEAN NOT NULL DEFAULT TRUE,
		is_destination BOOLEAN NOT NULL DEFAULT TRUE,
		allow_self_send BOOLEAN NOT NULL DEFAULT FALSE,
		in_paused BOOLEAN NOT NULL DEFAULT FALSE,
		out_paused BOOLEAN NOT NULL DEFAULT FALSE,
		edit_mode TEXT NOT NULL DEFAULT 'off',
		registered_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS send_log (
		source_chat_id BIGINT NOT NULL,
		source_message_id BIGINT NOT NULL,
		dest_chat_id BIGINT NOT NULL,
		dest_message_id BIGINT NOT NULL,
		source_user_id BIGINT NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL,
		PRIMARY KEY (dest_chat_id, dest_message_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_send_log_source ON send_log (source_chat_id, source_message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_send_log_created ON send_log (created_ts)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		chat_id BIGINT PRIMARY KEY,
		plan TEXT NOT NULL DEFAULT '',
		paid_until_ts BIGINT NOT NULL DEFAULT 0,
		updated_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_aliases (
		user_id BIGINT PRIMARY KEY,
		alias TEXT NOT NULL UNIQUE,
		created_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_restrictions (
		user_id BIGINT PRIMARY KEY,
		restriction_type TEXT NOT NULL,
		expires_ts BIGINT NOT NULL DEFAULT 0,
		issued_by BIGINT NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bot_config (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,
}

// Migrate creates missing tables and indexes. Statements are idempotent, so
// running Migrate on every start is safe.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to run migration statement: %.60s", stmt)
		}
	}
	return nil
}
