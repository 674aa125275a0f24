package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Plan describes a purchasable subscription tier.
type Plan struct {
	Key   string
	Label string
	Stars int
	Days  int
}

// Plans lists the available tiers, keyed by plan key.
var Plans = map[string]Plan{
	"week":  {Key: "week", Label: "1 Week", Stars: 250, Days: 7},
	"month": {Key: "month", Label: "1 Month", Stars: 750, Days: 30},
	"year":  {Key: "year", Label: "1 Year", Stars: 10000, Days: 365},
}

// Subscription is the paid-access record for a chat. A chat is entitled at
// time T iff max(trial end, PaidUntil) >= T; the trial end derives from the
// chat's registration timestamp.
type Subscription struct {
	ChatID    int64
	Plan      string
	PaidUntil time.Time
	UpdatedAt time.Time
}

// GetSubscription returns the subscription row for a chat, or ErrNotFound.
func (s *Store) GetSubscription(ctx context.Context, chatID int64) (*Subscription, error) {
	query := `SELECT chat_id, plan, paid_until_ts, updated_ts FROM subscriptions WHERE chat_id = $1`
	var sub Subscription
	var paidUntilTs, updatedTs int64
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(&sub.ChatID, &sub.Plan, &paidUntilTs, &updatedTs)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	sub.PaidUntil = time.Unix(paidUntilTs, 0).UTC()
	sub.UpdatedAt = time.Unix(updatedTs, 0).UTC()
	return &sub, nil
}

// ExtendSubscription stacks paid days onto a chat: the new period starts at
// max(now, current paid-until) so unused time is never lost.
func (s *Store) ExtendSubscription(ctx context.Context, chatID int64, planKey string, d time.Duration) (*Subscription, error) {
	now := time.Now().UTC()
	start := now
	if existing, err := s.GetSubscription(ctx, chatID); err == nil {
		if existing.PaidUntil.After(start) {
			start = existing.PaidUntil
		}
	} else if err != ErrNotFound {
		return nil, err
	}
	paidUntil := start.Add(d)

	query := `
		INSERT INTO subscriptions (chat_id, plan, paid_until_ts, updated_ts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			paid_until_ts = EXCLUDED.paid_until_ts,
			updated_ts = EXCLUDED.updated_ts
	`
	if _, err := s.db.ExecContext(ctx, query, chatID, planKey, paidUntil.Unix(), now.Unix()); err != nil {
		return nil, fmt.Errorf("failed to extend subscription: %w", err)
	}
	slog.Info("subscription extended",
		"chat_id", chatID,
		"plan", planKey,
		"paid_until", paidUntil,
	)
	return s.GetSubscription(ctx, chatID)
}

// IsEntitled reports whether a chat may act as a paying source at the given
// time: either its trial (trialDays from registration) has not ended, or a
// paid subscription covers the instant.
func (s *Store) IsEntitled(ctx context.Context, chatID int64, at time.Time, trialDays int) (bool, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	trialEnd := chat.RegisteredAt.Add(time.Duration(trialDays) * 24 * time.Hour)
	if at.Before(trialEnd) {
		return true, nil
	}

	sub, err := s.GetSubscription(ctx, chatID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return at.Before(sub.PaidUntil), nil
}

// ExpiringTrials returns active chats whose trial ends in exactly daysBefore
// days (within a one-day window) and which have no paid coverage beyond it.
// Feeds the daily reminder task.
func (s *Store) ExpiringTrials(ctx context.Context, trialDays, daysBefore int) ([]*Chat, error) {
	day := 24 * time.Hour
	now := time.Now().UTC()
	// Registration window whose trial ends within (daysBefore-1, daysBefore]
	// days from now, so a "3 days left" reminder fires during the third-to-last
	// day rather than a day late.
	windowEnd := now.Add(-time.Duration(trialDays)*day + time.Duration(daysBefore)*day)
	windowStart := windowEnd.Add(-day)

	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE active = TRUE
		  AND registered_ts > $1 AND registered_ts <= $2
		  AND chat_id NOT IN (SELECT chat_id FROM subscriptions WHERE paid_until_ts > $3)
	`
	rows, err := s.db.QueryContext(ctx, query, windowStart.Unix(), windowEnd.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring trials: %w", err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return chats, nil
}
