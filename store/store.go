// Package store provides database access to the bot's durable state:
// chat registry, send log, subscriptions, aliases, restrictions and config.
package store

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/hrygo/mediahub/internal/profile"
)

// ErrNotFound is returned when a queried row does not exist. Callers on the
// distribution hot path must tolerate it and degrade (e.g. send without a
// reply anchor).
var ErrNotFound = errors.New("store: not found")

// Store provides database access to all raw objects.
type Store struct {
	db      *sql.DB
	profile *profile.Profile
}

// New creates a new instance of Store.
func New(db *sql.DB, profile *profile.Profile) *Store {
	return &Store{
		db:      db,
		profile: profile,
	}
}

func (s *Store) GetDB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity. The health endpoint reports unhealthy
// while this fails, and the distributor pauses dispatch.
func (s *Store) Ping() error {
	return s.db.Ping()
}
