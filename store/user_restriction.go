package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Restriction kinds.
const (
	RestrictionMute = "mute"
	RestrictionBan  = "ban"
)

// UserRestriction suppresses a user's messages at ingress. ExpiresAt is zero
// for permanent restrictions (bans).
type UserRestriction struct {
	UserID    int64
	Kind      string
	ExpiresAt time.Time
	IssuedBy  int64
	CreatedAt time.Time
}

// ActiveRestriction returns the user's restriction if one is in effect at the
// given time, or ErrNotFound.
func (s *Store) ActiveRestriction(ctx context.Context, userID int64, at time.Time) (*UserRestriction, error) {
	query := `
		SELECT user_id, restriction_type, expires_ts, issued_by, created_ts
		FROM user_restrictions
		WHERE user_id = $1 AND (expires_ts = 0 OR expires_ts > $2)
	`
	var r UserRestriction
	var expiresTs, createdTs int64
	err := s.db.QueryRowContext(ctx, query, userID, at.Unix()).Scan(
		&r.UserID, &r.Kind, &expiresTs, &r.IssuedBy, &createdTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get restriction: %w", err)
	}
	if expiresTs != 0 {
		r.ExpiresAt = time.Unix(expiresTs, 0).UTC()
	}
	r.CreatedAt = time.Unix(createdTs, 0).UTC()
	return &r, nil
}

// UpsertRestriction applies a mute or ban. A zero ExpiresAt means permanent.
func (s *Store) UpsertRestriction(ctx context.Context, r *UserRestriction) error {
	slog.Info("applying restriction",
		"user_id", r.UserID,
		"kind", r.Kind,
		"expires_at", r.ExpiresAt,
		"issued_by", r.IssuedBy,
	)
	var expiresTs int64
	if !r.ExpiresAt.IsZero() {
		expiresTs = r.ExpiresAt.Unix()
	}
	query := `
		INSERT INTO user_restrictions (user_id, restriction_type, expires_ts, issued_by, created_ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			restriction_type = EXCLUDED.restriction_type,
			expires_ts = EXCLUDED.expires_ts,
			issued_by = EXCLUDED.issued_by,
			created_ts = EXCLUDED.created_ts
	`
	if _, err := s.db.ExecContext(ctx, query, r.UserID, r.Kind, expiresTs, r.IssuedBy, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to upsert restriction: %w", err)
	}
	return nil
}

// RemoveRestriction lifts a mute or ban.
func (s *Store) RemoveRestriction(ctx context.Context, userID int64) error {
	slog.Info("removing restriction", "user_id", userID)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_restrictions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to remove restriction: %w", err)
	}
	return nil
}
