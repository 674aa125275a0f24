package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hrygo/mediahub/cache"
	"github.com/hrygo/mediahub/store"
)

const restrictionCacheTTL = time.Minute

// Moderation suppresses messages from muted or banned authors at ingress.
// Verdicts sit on the hot path, so they are cached briefly; lifting a
// restriction takes effect within the cache TTL.
type Moderation struct {
	store *store.Store
	cache cache.Cache
}

func NewModeration(s *store.Store, c cache.Cache) *Moderation {
	return &Moderation{store: s, cache: c}
}

// Restricted reports whether the user is currently muted or banned. Unknown
// senders (zero id, channel posts) are never restricted.
func (m *Moderation) Restricted(ctx context.Context, userID int64) bool {
	if userID == 0 {
		return false
	}

	key := fmt.Sprintf("restricted:%d", userID)
	if v, ok, err := m.cache.Get(ctx, key); err == nil && ok {
		return v == "1"
	}

	verdict := "0"
	if _, err := m.store.ActiveRestriction(ctx, userID, time.Now()); err == nil {
		verdict = "1"
	} else if err != store.ErrNotFound {
		slog.Error("restriction lookup failed", "user_id", userID, "error", err)
		return false
	}
	_ = m.cache.Set(ctx, key, verdict, restrictionCacheTTL)
	return verdict == "1"
}

// Mute silences a user for the given duration.
func (m *Moderation) Mute(ctx context.Context, userID int64, d time.Duration, issuedBy int64) error {
	err := m.store.UpsertRestriction(ctx, &store.UserRestriction{
		UserID:    userID,
		Kind:      store.RestrictionMute,
		ExpiresAt: time.Now().Add(d),
		IssuedBy:  issuedBy,
	})
	if err != nil {
		return err
	}
	m.invalidate(ctx, userID)
	return nil
}

// Ban silences a user permanently.
func (m *Moderation) Ban(ctx context.Context, userID int64, issuedBy int64) error {
	err := m.store.UpsertRestriction(ctx, &store.UserRestriction{
		UserID:   userID,
		Kind:     store.RestrictionBan,
		IssuedBy: issuedBy,
	})
	if err != nil {
		return err
	}
	m.invalidate(ctx, userID)
	return nil
}

// Lift removes any restriction on the user.
func (m *Moderation) Lift(ctx context.Context, userID int64) error {
	if err := m.store.RemoveRestriction(ctx, userID); err != nil {
		return err
	}
	m.invalidate(ctx, userID)
	return nil
}

func (m *Moderation) invalidate(ctx context.Context, userID int64) {
	_ = m.cache.Delete(ctx, fmt.Sprintf("restricted:%d", userID))
}

// ParseRestrictionDuration parses durations like "30m", "2h" or "7d".
func ParseRestrictionDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
