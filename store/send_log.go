package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SendLogEntry maps one fan-out copy back to its source message. Rows older
// than the retention window (48 h) are pruned, so lookups must tolerate
// ErrNotFound and fall back to sending without a reply anchor.
type SendLogEntry struct {
	SourceChatID    int64
	SourceMessageID int
	DestChatID      int64
	DestMessageID   int
	SourceUserID    int64
	CreatedAt       time.Time
}

// RecordSends inserts one row per delivered copy. (dest_chat, dest_message)
// is the primary key; conflicting rows are ignored so redelivery stays
// idempotent.
func (s *Store) RecordSends(ctx context.Context, entries []*SendLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	query := `
		INSERT INTO send_log (source_chat_id, source_message_id, dest_chat_id, dest_message_id, source_user_id, created_ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dest_chat_id, dest_message_id) DO NOTHING
	`
	now := time.Now().Unix()
	for _, e := range entries {
		createdTs := now
		if !e.CreatedAt.IsZero() {
			createdTs = e.CreatedAt.Unix()
		}
		if _, err := s.db.ExecContext(ctx, query,
			e.SourceChatID, e.SourceMessageID, e.DestChatID, e.DestMessageID, e.SourceUserID, createdTs,
		); err != nil {
			return fmt.Errorf("failed to record send: %w", err)
		}
	}
	return nil
}

// ForwardLookup returns all fan-out copies of a source message, one row per
// destination. Used by edit propagation.
func (s *Store) ForwardLookup(ctx context.Context, sourceChatID int64, sourceMessageID int) ([]*SendLogEntry, error) {
	query := `
		SELECT source_chat_id, source_message_id, dest_chat_id, dest_message_id, source_user_id, created_ts
		FROM send_log
		WHERE source_chat_id = $1 AND source_message_id = $2
	`
	rows, err := s.db.QueryContext(ctx, query, sourceChatID, sourceMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed forward lookup: %w", err)
	}
	defer rows.Close()

	var entries []*SendLogEntry
	for rows.Next() {
		entry, err := scanSendLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return entries, nil
}

// ReverseLookup maps a bot-delivered message back to its origin. Returns
// ErrNotFound when the row never existed or was pruned.
func (s *Store) ReverseLookup(ctx context.Context, destChatID int64, destMessageID int) (*SendLogEntry, error) {
	query := `
		SELECT source_chat_id, source_message_id, dest_chat_id, dest_message_id, source_user_id, created_ts
		FROM send_log
		WHERE dest_chat_id = $1 AND dest_message_id = $2
	`
	entry, err := scanSendLogEntry(s.db.QueryRowContext(ctx, query, destChatID, destMessageID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed reverse lookup: %w", err)
	}
	return entry, nil
}

// DestMessageID returns the bot's message ID in destChatID for a given source
// message, or ErrNotFound.
func (s *Store) DestMessageID(ctx context.Context, sourceChatID int64, sourceMessageID int, destChatID int64) (int, error) {
	query := `
		SELECT dest_message_id
		FROM send_log
		WHERE source_chat_id = $1 AND source_message_id = $2 AND dest_chat_id = $3
	`
	var destMessageID int
	err := s.db.QueryRowContext(ctx, query, sourceChatID, sourceMessageID, destChatID).Scan(&destMessageID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed dest lookup: %w", err)
	}
	return destMessageID, nil
}

// PruneSendLog deletes at most limit rows older than cutoff and returns the
// number deleted. The sweeper calls this repeatedly so a large backlog never
// blocks the store in one statement.
func (s *Store) PruneSendLog(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := `
		DELETE FROM send_log
		WHERE (dest_chat_id, dest_message_id) IN (
			SELECT dest_chat_id, dest_message_id FROM send_log WHERE created_ts < $1 LIMIT $2
		)
	`
	result, err := s.db.ExecContext(ctx, query, cutoff.Unix(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to prune send log: %w", err)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// DestMessagesByUser returns all fan-out copies produced from a user's
// messages, for moderation cleanup after a ban.
func (s *Store) DestMessagesByUser(ctx context.Context, userID int64) ([]*SendLogEntry, error) {
	query := `
		SELECT source_chat_id, source_message_id, dest_chat_id, dest_message_id, source_user_id, created_ts
		FROM send_log
		WHERE source_user_id = $1
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed user lookup: %w", err)
	}
	defer rows.Close()

	var entries []*SendLogEntry
	for rows.Next() {
		entry, err := scanSendLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return entries, nil
}

// Stats queries, all scoped to the retention window by construction.

func (s *Store) CountSendsFromChat(ctx context.Context, chatID int64) (int64, error) {
	return s.countSendLog(ctx, `SELECT COUNT(*) FROM send_log WHERE source_chat_id = $1`, chatID)
}

func (s *Store) CountSendsToChat(ctx context.Context, chatID int64) (int64, error) {
	return s.countSendLog(ctx, `SELECT COUNT(*) FROM send_log WHERE dest_chat_id = $1`, chatID)
}

func (s *Store) CountTotalSends(ctx context.Context) (int64, error) {
	return s.countSendLog(ctx, `SELECT COUNT(*) FROM send_log`)
}

func (s *Store) CountUniqueSenders(ctx context.Context) (int64, error) {
	return s.countSendLog(ctx, `SELECT COUNT(DISTINCT source_user_id) FROM send_log WHERE source_user_id <> 0`)
}

func (s *Store) countSendLog(ctx context.Context, query string, args ...any) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count send log: %w", err)
	}
	return count, nil
}

func scanSendLogEntry(row interface{ Scan(...any) error }) (*SendLogEntry, error) {
	var entry SendLogEntry
	var createdTs int64
	err := row.Scan(
		&entry.SourceChatID,
		&entry.SourceMessageID,
		&entry.DestChatID,
		&entry.DestMessageID,
		&entry.SourceUserID,
		&createdTs,
	)
	if err != nil {
		return nil, err
	}
	entry.CreatedAt = time.Unix(createdTs, 0).UTC()
	return &entry, nil
}
