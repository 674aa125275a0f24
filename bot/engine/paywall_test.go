package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/mediahub/store"
)

func registerChat(t *testing.T, s *store.Store, id int64, kind store.ChatKind) *store.Chat {
	t.Helper()
	chat, err := s.UpsertChat(context.Background(), &store.Chat{ID: id, Kind: kind})
	require.NoError(t, err)
	return chat
}

func backdateRegistration(t *testing.T, s *store.Store, chatID int64, age time.Duration) {
	t.Helper()
	_, err := s.GetDB().Exec(
		`UPDATE chats SET registered_ts = $1 WHERE chat_id = $2`,
		time.Now().Add(-age).Unix(), chatID,
	)
	require.NoError(t, err)
}

func TestGateEntitlement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	gate := NewGate(s, newTestCache(t), 30, nil)

	registerChat(t, s, 100, store.ChatKindGroup)
	entitled, err := gate.Entitled(ctx, 100, time.Now())
	require.NoError(t, err)
	require.True(t, entitled, "fresh registration is inside the trial")

	registerChat(t, s, 200, store.ChatKindGroup)
	backdateRegistration(t, s, 200, 31*24*time.Hour)
	entitled, err = gate.Entitled(ctx, 200, time.Now())
	require.NoError(t, err)
	require.False(t, entitled, "expired trial without a subscription")

	// A purchase restores entitlement once the cached verdict is dropped.
	_, err = s.ExtendSubscription(ctx, 200, "week", 7*24*time.Hour)
	require.NoError(t, err)
	gate.Invalidate(ctx, 200)
	entitled, err = gate.Entitled(ctx, 200, time.Now())
	require.NoError(t, err)
	require.True(t, entitled)
}

func TestGateVerdictIsCached(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	gate := NewGate(s, newTestCache(t), 30, nil)

	registerChat(t, s, 100, store.ChatKindGroup)
	backdateRegistration(t, s, 100, 31*24*time.Hour)

	entitled, err := gate.Entitled(ctx, 100, time.Now())
	require.NoError(t, err)
	require.False(t, entitled)

	// Without invalidation the purchase is not seen yet.
	_, err = s.ExtendSubscription(ctx, 100, "week", 7*24*time.Hour)
	require.NoError(t, err)
	entitled, err = gate.Entitled(ctx, 100, time.Now())
	require.NoError(t, err)
	require.False(t, entitled, "cached verdict still applies")
}

func TestGateAdminExempt(t *testing.T) {
	s := newTestStore(t)
	gate := NewGate(s, newTestCache(t), 30, func(id int64) bool { return id == 999 })

	// Not even registered, still entitled.
	entitled, err := gate.Entitled(context.Background(), 999, time.Now())
	require.NoError(t, err)
	require.True(t, entitled)
}

func TestGateNudgeOncePerWindow(t *testing.T) {
	gate := NewGate(newTestStore(t), newTestCache(t), 30, nil)
	ctx := context.Background()

	require.True(t, gate.ShouldNudge(ctx, 100))
	require.False(t, gate.ShouldNudge(ctx, 100), "second nudge inside the window is suppressed")
	require.True(t, gate.ShouldNudge(ctx, 200), "other chats nudge independently")
}

func TestGateMissedCounter(t *testing.T) {
	gate := NewGate(newTestStore(t), newTestCache(t), 30, nil)
	ctx := context.Background()
	now := time.Now()

	require.Zero(t, gate.MissedToday(ctx, 100, now))
	require.Equal(t, int64(1), gate.RecordMissed(ctx, 100, now))
	require.Equal(t, int64(2), gate.RecordMissed(ctx, 100, now))
	require.Equal(t, int64(2), gate.MissedToday(ctx, 100, now))
}
