package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetUserAlias returns the persisted alias for a user, or ErrNotFound.
func (s *Store) GetUserAlias(ctx context.Context, userID int64) (string, error) {
	var alias string
	err := s.db.QueryRowContext(ctx, `SELECT alias FROM user_aliases WHERE user_id = $1`, userID).Scan(&alias)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get alias: %w", err)
	}
	return alias, nil
}

// UpsertUserAlias persists an alias on first use and returns the stored
// value. Aliases never change: a concurrent or earlier insert wins and its
// alias is returned instead of the proposed one.
func (s *Store) UpsertUserAlias(ctx context.Context, userID int64, alias string) (string, error) {
	query := `
		INSERT INTO user_aliases (user_id, alias, created_ts)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, userID, alias, time.Now().Unix()); err != nil {
		return "", fmt.Errorf("failed to create alias: %w", err)
	}
	return s.GetUserAlias(ctx, userID)
}
