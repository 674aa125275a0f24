// Package db provides the database driver factory.
package db

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/hrygo/mediahub/internal/profile"
	"github.com/hrygo/mediahub/store/db/postgres"
	"github.com/hrygo/mediahub/store/db/sqlite"
)

// NewDB opens a database connection for the configured driver.
func NewDB(profile *profile.Profile) (*sql.DB, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	case "postgres":
		return postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %s", profile.Driver)
	}
}
