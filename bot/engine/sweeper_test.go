package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/mediahub/store"
)

func TestSweepRemovesExpiredRowsInBatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sweeper := NewSweeper(s, NewMetrics())
	sweeper.batch = 10

	old := time.Now().Add(-72 * time.Hour)
	var entries []*store.SendLogEntry
	for i := 0; i < 25; i++ {
		entries = append(entries, &store.SendLogEntry{
			SourceChatID: 100, SourceMessageID: i, DestChatID: 200, DestMessageID: 1000 + i,
			CreatedAt: old,
		})
	}
	// One fresh row that must survive.
	entries = append(entries, &store.SendLogEntry{
		SourceChatID: 100, SourceMessageID: 99, DestChatID: 200, DestMessageID: 9999,
	})
	require.NoError(t, s.RecordSends(ctx, entries))

	sweeper.sweep(ctx)

	total, err := s.CountTotalSends(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	_, err = s.ReverseLookup(ctx, 200, 9999)
	require.NoError(t, err)
}
