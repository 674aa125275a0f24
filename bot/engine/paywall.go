package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/mediahub/cache"
	"github.com/hrygo/mediahub/store"
)

const (
	entitlementCacheTTL = 5 * time.Minute
	nudgeCooldown       = 24 * time.Hour
	missedCounterTTL    = 48 * time.Hour
)

// Gate enforces the paywall on source chats. Entitlement is a property of
// where a message came from: a trial or paid subscription covering the
// source chat lets its messages fan out; otherwise delivery is withheld and
// the source is nudged at most once per cooldown.
type Gate struct {
	store     *store.Store
	cache     cache.Cache
	trialDays int
	isAdmin   func(int64) bool
}

// NewGate returns a paywall gate. isAdmin exempts operator chats; pass nil
// to exempt nobody.
func NewGate(s *store.Store, c cache.Cache, trialDays int, isAdmin func(int64) bool) *Gate {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Gate{store: s, cache: c, trialDays: trialDays, isAdmin: isAdmin}
}

// Entitled reports whether the source chat may distribute at the given time.
// Positive and negative verdicts are cached briefly, so a purchase can take
// up to the cache TTL to be noticed.
func (g *Gate) Entitled(ctx context.Context, sourceChatID int64, at time.Time) (bool, error) {
	if g.isAdmin(sourceChatID) {
		return true, nil
	}

	key := fmt.Sprintf("entitled:%d", sourceChatID)
	if v, ok, err := g.cache.Get(ctx, key); err == nil && ok {
		return v == "1", nil
	}

	entitled, err := g.store.IsEntitled(ctx, sourceChatID, at, g.trialDays)
	if err != nil {
		return false, fmt.Errorf("entitlement check for chat %d: %w", sourceChatID, err)
	}

	v := "0"
	if entitled {
		v = "1"
	}
	if err := g.cache.Set(ctx, key, v, entitlementCacheTTL); err != nil {
		slog.Warn("failed to cache entitlement", "chat_id", sourceChatID, "error", err)
	}
	return entitled, nil
}

// Invalidate drops the cached entitlement verdict, called after a purchase
// so the new subscription applies immediately.
func (g *Gate) Invalidate(ctx context.Context, sourceChatID int64) {
	_ = g.cache.Delete(ctx, fmt.Sprintf("entitled:%d", sourceChatID))
}

// ShouldNudge atomically claims the nudge slot for a source chat. At most
// one caller per cooldown window gets true.
func (g *Gate) ShouldNudge(ctx context.Context, sourceChatID int64) bool {
	set, err := g.cache.SetNX(ctx, fmt.Sprintf("nudge:%d", sourceChatID), "1", nudgeCooldown)
	if err != nil {
		slog.Warn("failed to claim nudge slot", "chat_id", sourceChatID, "error", err)
		return false
	}
	return set
}

// RecordMissed bumps today's missed-delivery counter for a source chat and
// returns the running total. The counter feeds the nudge text ("you missed
// N deliveries today").
func (g *Gate) RecordMissed(ctx context.Context, sourceChatID int64, at time.Time) int64 {
	key := fmt.Sprintf("missed:%d:%s", sourceChatID, at.UTC().Format("20060102"))
	count, err := g.cache.Incr(ctx, key, missedCounterTTL)
	if err != nil {
		slog.Warn("failed to bump missed counter", "chat_id", sourceChatID, "error", err)
		return 0
	}
	return count
}

// MissedToday returns today's missed-delivery count for a source chat.
func (g *Gate) MissedToday(ctx context.Context, sourceChatID int64, at time.Time) int64 {
	key := fmt.Sprintf("missed:%d:%s", sourceChatID, at.UTC().Format("20060102"))
	v, ok, err := g.cache.Get(ctx, key)
	if err != nil || !ok {
		return 0
	}
	var count int64
	_, _ = fmt.Sscanf(v, "%d", &count)
	return count
}
