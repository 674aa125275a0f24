package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ChatKind mirrors the Telegram chat types.
type ChatKind string

const (
	ChatKindPrivate    ChatKind = "private"
	ChatKindGroup      ChatKind = "group"
	ChatKindSupergroup ChatKind = "supergroup"
	ChatKindChannel    ChatKind = "channel"
)

// IsGroup reports whether the chat kind uses the slower group cooldown.
func (k ChatKind) IsGroup() bool {
	return k == ChatKindGroup || k == ChatKindSupergroup
}

// Edit redistribution modes.
const (
	EditModeOff    = "off"
	EditModeResend = "resend"
)

// Chat is a registry entry. A chat is created on first sight or explicit
// registration and soft-deleted (active=false) on permanent send failure.
type Chat struct {
	ID            int64
	Kind          ChatKind
	Title         string
	Username      string
	Active        bool
	IsSource      bool
	IsDestination bool
	AllowSelfSend bool
	InPaused      bool
	OutPaused     bool
	EditMode      string
	RegisteredAt  time.Time
}

const chatColumns = `chat_id, chat_type, title, username, active, is_source, is_destination, allow_self_send, in_paused, out_paused, edit_mode, registered_ts`

func scanChat(row interface{ Scan(...any) error }) (*Chat, error) {
	var chat Chat
	var registeredTs int64
	err := row.Scan(
		&chat.ID,
		&chat.Kind,
		&chat.Title,
		&chat.Username,
		&chat.Active,
		&chat.IsSource,
		&chat.IsDestination,
		&chat.AllowSelfSend,
		&chat.InPaused,
		&chat.OutPaused,
		&chat.EditMode,
		&registeredTs,
	)
	if err != nil {
		return nil, err
	}
	chat.RegisteredAt = time.Unix(registeredTs, 0).UTC()
	return &chat, nil
}

// UpsertChat inserts or reactivates a chat. The registration timestamp of an
// existing row is preserved so the trial window does not restart.
func (s *Store) UpsertChat(ctx context.Context, chat *Chat) (*Chat, error) {
	if chat.EditMode == "" {
		chat.EditMode = EditModeOff
	}
	query := `
		INSERT INTO chats (chat_id, chat_type, title, username, active, is_source, is_destination, registered_ts)
		VALUES ($1, $2, $3, $4, TRUE, TRUE, TRUE, $5)
		ON CONFLICT (chat_id) DO UPDATE SET
			chat_type = EXCLUDED.chat_type,
			title = EXCLUDED.title,
			username = EXCLUDED.username,
			active = TRUE
	`
	if _, err := s.db.ExecContext(ctx, query,
		chat.ID, string(chat.Kind), chat.Title, chat.Username, time.Now().Unix(),
	); err != nil {
		slog.Error("failed to upsert chat", "chat_id", chat.ID, "error", err)
		return nil, fmt.Errorf("failed to upsert chat: %w", err)
	}
	return s.GetChat(ctx, chat.ID)
}

// GetChat returns a single chat by ID, or ErrNotFound.
func (s *Store) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE chat_id = $1`
	chat, err := scanChat(s.db.QueryRowContext(ctx, query, chatID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

// ActiveDestinations returns all active chats flagged as destinations.
func (s *Store) ActiveDestinations(ctx context.Context) ([]*Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE active = TRUE AND is_destination = TRUE ORDER BY chat_id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list destinations: %w", err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return chats, nil
}

// IsActiveSource reports whether the chat is registered, active, a source,
// and not out-paused.
func (s *Store) IsActiveSource(ctx context.Context, chatID int64) (bool, error) {
	query := `SELECT out_paused FROM chats WHERE chat_id = $1 AND active = TRUE AND is_source = TRUE`
	var outPaused bool
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(&outPaused)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check source: %w", err)
	}
	return !outPaused, nil
}

// DeactivateChat soft-deletes a chat after a permanent send failure.
func (s *Store) DeactivateChat(ctx context.Context, chatID int64) error {
	slog.Info("deactivating chat", "chat_id", chatID)
	query := `UPDATE chats SET active = FALSE WHERE chat_id = $1`
	if _, err := s.db.ExecContext(ctx, query, chatID); err != nil {
		return fmt.Errorf("failed to deactivate chat: %w", err)
	}
	return nil
}

// RenameChat handles group-to-supergroup migration. When a row for the new ID
// already exists, the old row is deactivated instead of renamed.
func (s *Store) RenameChat(ctx context.Context, oldID, newID int64) error {
	slog.Info("renaming chat after migration", "old_id", oldID, "new_id", newID)
	if _, err := s.GetChat(ctx, newID); err == nil {
		return s.DeactivateChat(ctx, oldID)
	} else if err != ErrNotFound {
		return err
	}
	query := `UPDATE chats SET chat_id = $1, chat_type = 'supergroup' WHERE chat_id = $2`
	if _, err := s.db.ExecContext(ctx, query, newID, oldID); err != nil {
		return fmt.Errorf("failed to rename chat: %w", err)
	}
	return nil
}

// UpdateChat mutates chat flags. Nil fields are left untouched.
type UpdateChat struct {
	ChatID        int64
	Active        *bool
	IsSource      *bool
	IsDestination *bool
	AllowSelfSend *bool
	InPaused      *bool
	OutPaused     *bool
	EditMode      *string
}

func (s *Store) UpdateChat(ctx context.Context, update *UpdateChat) (*Chat, error) {
	set, args := []string{}, []any{}
	appendSet := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if v := update.Active; v != nil {
		appendSet("active", *v)
	}
	if v := update.IsSource; v != nil {
		appendSet("is_source", *v)
	}
	if v := update.IsDestination; v != nil {
		appendSet("is_destination", *v)
	}
	if v := update.AllowSelfSend; v != nil {
		appendSet("allow_self_send", *v)
	}
	if v := update.InPaused; v != nil {
		appendSet("in_paused", *v)
	}
	if v := update.OutPaused; v != nil {
		appendSet("out_paused", *v)
	}
	if v := update.EditMode; v != nil {
		appendSet("edit_mode", *v)
	}
	if len(set) == 0 {
		return s.GetChat(ctx, update.ChatID)
	}

	args = append(args, update.ChatID)
	query := fmt.Sprintf(`UPDATE chats SET %s WHERE chat_id = $%d`, strings.Join(set, ", "), len(args))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update chat: %w", err)
	}
	return s.GetChat(ctx, update.ChatID)
}

// CountActiveChats counts active registry entries.
func (s *Store) CountActiveChats(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats WHERE active = TRUE`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chats: %w", err)
	}
	return count, nil
}
