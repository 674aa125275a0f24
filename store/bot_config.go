package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Well-known bot_config cells. These are configuration values mutated at
// runtime by the admin command surface and read per-task by the engine.
const (
	ConfigPaused           = "paused"
	ConfigEditMode         = "edit_redistribution"
	ConfigSignatureEnabled = "signature_enabled"
	ConfigSignatureText    = "signature_text"
	ConfigSignatureURL     = "signature_url"
)

// GetConfig returns a config value, or ErrNotFound.
func (s *Store) GetConfig(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM bot_config WHERE name = $1`, name).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get config %s: %w", name, err)
	}
	return value, nil
}

// GetConfigBool returns a config value interpreted as a boolean, with a
// default for missing cells.
func (s *Store) GetConfigBool(ctx context.Context, name string, def bool) (bool, error) {
	value, err := s.GetConfig(ctx, name)
	if err != nil {
		if err == ErrNotFound {
			return def, nil
		}
		return def, err
	}
	return value == "true" || value == "1" || value == "on", nil
}

// SetConfig writes a config value.
func (s *Store) SetConfig(ctx context.Context, name, value string) error {
	query := `
		INSERT INTO bot_config (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := s.db.ExecContext(ctx, query, name, value); err != nil {
		return fmt.Errorf("failed to set config %s: %w", name, err)
	}
	return nil
}
