// Package postgres opens the PostgreSQL database. Postgres is the driver for
// multi-process deployments where several engine instances share the send
// log and registry.
package postgres

import (
	"database/sql"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/mediahub/internal/profile"
)

// NewDB opens a PostgreSQL connection pool for the profile's DSN.
func NewDB(profile *profile.Profile) (*sql.DB, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	pgDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// Each send worker holds at most one short-lived session; a small pool
	// is plenty and keeps connection counts predictable.
	pgDB.SetMaxOpenConns(16)
	pgDB.SetMaxIdleConns(4)
	pgDB.SetConnMaxLifetime(30 * time.Minute)

	return pgDB, nil
}
