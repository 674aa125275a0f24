package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main bot process.
type Profile struct {
	// Mode can be "prod", "dev" or "demo".
	Mode string
	// Addr is the bind address for the metrics/health endpoint.
	Addr string
	// Port is the bind port for the metrics/health endpoint.
	Port int
	// Data is the data directory (database file, fast-store files).
	Data string
	// Driver is the database driver: "sqlite" or "postgres".
	Driver string
	// DSN is the database source name.
	DSN string
	// Version is the current bot version.
	Version string

	// BotToken is the Telegram Bot API token.
	BotToken string
	// AdminUserIDs lists user IDs exempt from the paywall.
	AdminUserIDs []int64

	// GlobalRateLimit is the engine-wide send budget per second.
	GlobalRateLimit int
	// WorkerCount is the size of the send worker pool.
	WorkerCount int
	// QueueSize bounds the send task queue; a full queue backpressures ingress.
	QueueSize int
	// TrialDays is the free-trial length granted at first registration.
	TrialDays int
	// AliasSalt seeds deterministic alias derivation. Changing it changes
	// every alias, so it is set once per install.
	AliasSalt string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.BotToken = getEnvOrDefault("MEDIAHUB_BOT_TOKEN", p.BotToken)
	p.AliasSalt = getEnvOrDefault("MEDIAHUB_ALIAS_SALT", p.AliasSalt)

	p.GlobalRateLimit = getEnvOrDefaultInt("MEDIAHUB_GLOBAL_RATE_LIMIT", 25)
	p.WorkerCount = getEnvOrDefaultInt("MEDIAHUB_WORKER_COUNT", 10)
	p.QueueSize = getEnvOrDefaultInt("MEDIAHUB_QUEUE_SIZE", 1024)
	p.TrialDays = getEnvOrDefaultInt("MEDIAHUB_TRIAL_DAYS", 30)

	p.AdminUserIDs = parseAdminIDs(os.Getenv("MEDIAHUB_ADMIN_USER_IDS"))
}

// parseAdminIDs parses a comma-separated list of user IDs.
func parseAdminIDs(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// IsAdmin reports whether the given user is in the admin list.
func (p *Profile) IsAdmin(userID int64) bool {
	for _, id := range p.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes and validates the profile, filling in defaults.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/mediahub"
	}
	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "sqlite", "":
		p.Driver = "sqlite"
		if p.DSN == "" {
			dbFile := fmt.Sprintf("mediahub_%s.db", p.Mode)
			p.DSN = filepath.Join(dataDir, dbFile)
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn is required for postgres driver")
		}
	default:
		return errors.Errorf("unsupported database driver: %s", p.Driver)
	}

	if p.BotToken == "" {
		return errors.New("bot token is required (MEDIAHUB_BOT_TOKEN)")
	}
	if p.GlobalRateLimit <= 0 {
		p.GlobalRateLimit = 25
	}
	if p.WorkerCount <= 0 {
		p.WorkerCount = 10
	}
	if p.QueueSize <= 0 {
		p.QueueSize = 1024
	}
	if p.AliasSalt == "" {
		p.AliasSalt = "mediahub"
	}
	return nil
}
