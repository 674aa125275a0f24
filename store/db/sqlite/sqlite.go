// Package sqlite opens the embedded SQLite database. This is the default
// driver for single-process deployments.
package sqlite

import (
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/mediahub/internal/profile"
)

// NewDB opens the SQLite database at the profile's DSN.
//
// Pragmas:
// - busy_timeout avoids spurious SQLITE_BUSY under the send worker pool.
// - WAL journal mode is the recommended mode and prevents locking issues.
// - Foreign keys stay disabled; the schema does not rely on them.
//
// With the `modernc.org/sqlite` driver each pragma must be prefixed with
// `_pragma=`. See https://pkg.go.dev/modernc.org/sqlite#Driver.Open.
func NewDB(profile *profile.Profile) (*sql.DB, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite: a single connection is optimal with WAL, and serializes the
	// workers' writes at the pool instead of on SQLITE_BUSY retries.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	return sqliteDB, nil
}
