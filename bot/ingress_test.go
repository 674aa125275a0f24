package bot

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mediahub/bot/engine"
	"github.com/hrygo/mediahub/store"
)

func TestResolveReplyContext(t *testing.T) {
	s := newTestStore(t)
	b := &Bot{store: s, resolver: engine.NewResolver(s)}
	ctx := context.Background()

	require.NoError(t, s.RecordSends(ctx, []*store.SendLogEntry{
		{SourceChatID: 100, SourceMessageID: 1, DestChatID: 200, DestMessageID: 51},
	}))

	// A reply to one of our delivered copies resolves to its origin.
	nm := &engine.NormalizedMessage{SourceChatID: 200, SourceMessageID: 60}
	msg := &tgbotapi.Message{
		Chat:           &tgbotapi.Chat{ID: 200},
		ReplyToMessage: &tgbotapi.Message{MessageID: 51},
	}
	b.resolveReplyContext(ctx, msg, nm)
	require.Equal(t, int64(100), nm.ReplySourceChatID)
	require.Equal(t, 1, nm.ReplySourceMessageID)

	// A reply to an ordinary message gets no thread context.
	nm = &engine.NormalizedMessage{SourceChatID: 200, SourceMessageID: 61}
	msg.ReplyToMessage = &tgbotapi.Message{MessageID: 52}
	b.resolveReplyContext(ctx, msg, nm)
	require.Zero(t, nm.ReplySourceChatID)
	require.Zero(t, nm.ReplySourceMessageID)

	// No reply at all.
	nm = &engine.NormalizedMessage{SourceChatID: 200, SourceMessageID: 62}
	msg.ReplyToMessage = nil
	b.resolveReplyContext(ctx, msg, nm)
	require.Zero(t, nm.ReplySourceChatID)
}
