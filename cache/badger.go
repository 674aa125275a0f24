package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// badgerCache implements Cache on an embedded Badger key-value store.
// Badger gives us per-entry TTLs and serializable transactions, which is all
// the atomicity the engine's test-and-set and counter keys need.
type badgerCache struct {
	db *badger.DB
}

// NewBadger opens a Badger-backed cache at dir. An empty dir opens an
// in-memory instance (used in tests and demo mode).
func NewBadger(dir string) (Cache, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	// Badger's own logger is chatty at INFO; route everything through slog
	// at debug level instead.
	opts = opts.WithLogger(badgerSlogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", dir, err)
	}
	return &badgerCache{db: db}, nil
}

func (c *badgerCache) Get(_ context.Context, key string) (string, bool, error) {
	var value string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		value = string(raw)
		return nil
	})
	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return value, true, nil
}

func (c *badgerCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(key, value, ttl))
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// update runs fn as a read-modify-write transaction, retrying when Badger's
// conflict detection aborts it. fn can run more than once, so it must reset
// any captured state at the top.
func (c *badgerCache) update(fn func(*badger.Txn) error) error {
	for {
		err := c.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
}

func (c *badgerCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	var set bool
	err := c.update(func(txn *badger.Txn) error {
		set = false
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil // exists; leave set=false
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		set = true
		return txn.SetEntry(newEntry(key, value, ttl))
	})
	if err != nil {
		return false, fmt.Errorf("cache setnx %s: %w", key, err)
	}
	return set, nil
}

func (c *badgerCache) Delete(_ context.Context, key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && err != badger.ErrKeyNotFound {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

func (c *badgerCache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64
	err := c.update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		switch err {
		case nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			count, _ = strconv.ParseInt(string(raw), 10, 64)
			count++
			// Preserve the original expiry instead of re-arming it.
			entry := badger.NewEntry([]byte(key), []byte(strconv.FormatInt(count, 10)))
			if expiresAt := item.ExpiresAt(); expiresAt != 0 {
				entry.ExpiresAt = expiresAt
			}
			return txn.SetEntry(entry)
		case badger.ErrKeyNotFound:
			count = 1
			return txn.SetEntry(newEntry(key, "1", ttl))
		default:
			return err
		}
	})
	if err != nil {
		return 0, fmt.Errorf("cache incr %s: %w", key, err)
	}
	return count, nil
}

// Window members are stored as individual keys under "<key>/<padded unix
// nanos>/<member>"; the zero-padded timestamp makes lexicographic key order
// equal time order, so counting and oldest-lookup are bounded prefix scans.

func windowMemberKey(key, member string, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s/%020d/%s", key, at.UnixNano(), member))
}

func windowTimestamp(memberKey, key []byte) (time.Time, bool) {
	suffix := memberKey[len(key)+1:]
	if len(suffix) < 20 {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(string(suffix[:20]), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

func (c *badgerCache) WindowAdd(_ context.Context, key, member string, at time.Time, ttl time.Duration) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(windowMemberKey(key, member, at), []byte{})
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache window add %s: %w", key, err)
	}
	return nil
}

func (c *badgerCache) WindowCount(_ context.Context, key string, since time.Time) (int, error) {
	var count int
	err := c.windowScan(key, since, func(time.Time) bool {
		count++
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("cache window count %s: %w", key, err)
	}
	return count, nil
}

func (c *badgerCache) WindowOldest(_ context.Context, key string, since time.Time) (time.Time, bool, error) {
	var oldest time.Time
	var found bool
	err := c.windowScan(key, since, func(at time.Time) bool {
		oldest, found = at, true
		return false // first hit in key order is the oldest
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cache window oldest %s: %w", key, err)
	}
	return oldest, found, nil
}

// windowScan visits window members at or after since, in time order, until
// visit returns false.
func (c *badgerCache) windowScan(key string, since time.Time, visit func(time.Time) bool) error {
	prefix := []byte(key + "/")
	return c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek straight to the first member at or after since.
		seek := []byte(fmt.Sprintf("%s/%020d/", key, since.UnixNano()))
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			at, ok := windowTimestamp(it.Item().KeyCopy(nil), []byte(key))
			if !ok || at.Before(since) {
				continue
			}
			if !visit(at) {
				return nil
			}
		}
		return nil
	})
}

func (c *badgerCache) Close() error {
	return c.db.Close()
}

func newEntry(key, value string, ttl time.Duration) *badger.Entry {
	entry := badger.NewEntry([]byte(key), []byte(value))
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return entry
}

// badgerSlogger adapts Badger's logger interface onto slog at debug level.
type badgerSlogger struct{}

func (badgerSlogger) Errorf(format string, args ...any) {
	slog.Error("badger: " + fmt.Sprintf(format, args...))
}
func (badgerSlogger) Warningf(format string, args ...any) {
	slog.Warn("badger: " + fmt.Sprintf(format, args...))
}
func (badgerSlogger) Infof(format string, args ...any) {
	slog.Debug("badger: " + fmt.Sprintf(format, args...))
}
func (badgerSlogger) Debugf(format string, args ...any) {
	slog.Debug("badger: " + fmt.Sprintf(format, args...))
}
