package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/mediahub/bot/engine"
	"github.com/hrygo/mediahub/cache"
	"github.com/hrygo/mediahub/store"
)

// reminderOffsets are the days-before-expiry marks at which a trial chat is
// warned.
var reminderOffsets = []int{7, 3, 1}

const reminderCheckInterval = 6 * time.Hour

// Reminders warns chats whose trial is about to lapse so the paywall does
// not hit them by surprise. Each (chat, offset) pair fires at most once; the
// claim marker in the fast store outlives the check interval.
type Reminders struct {
	store     *store.Store
	platform  engine.Platform
	cache     cache.Cache
	trialDays int
}

func NewReminders(s *store.Store, p engine.Platform, c cache.Cache, trialDays int) *Reminders {
	return &Reminders{store: s, platform: p, cache: c, trialDays: trialDays}
}

// Run checks periodically until ctx is done.
func (r *Reminders) Run(ctx context.Context) error {
	ticker := time.NewTicker(reminderCheckInterval)
	defer ticker.Stop()

	r.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.check(ctx)
		}
	}
}

func (r *Reminders) check(ctx context.Context) {
	for _, offset := range reminderOffsets {
		chats, err := r.store.ExpiringTrials(ctx, r.trialDays, offset)
		if err != nil {
			slog.Error("trial reminder query failed", "days_before", offset, "error", err)
			continue
		}
		for _, chat := range chats {
			r.remind(ctx, chat, offset)
		}
	}
}

func (r *Reminders) remind(ctx context.Context, chat *store.Chat, daysLeft int) {
	key := fmt.Sprintf("trialrem:%d:%d", chat.ID, daysLeft)
	claimed, err := r.cache.SetNX(ctx, key, "1", 72*time.Hour)
	if err != nil || !claimed {
		return
	}

	text := fmt.Sprintf(
		"Your free trial ends in %d day(s). After that, messages from this chat "+
			"will no longer be redistributed. See /subscribe for plans.", daysLeft)
	if _, err := r.platform.SendText(ctx, chat.ID, text, engine.Reply{}); err != nil {
		slog.Warn("trial reminder failed", "chat_id", chat.ID, "error", err)
	}
}
