package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mediahub/bot/engine"
)

func TestMediaGroupConfigCarriesReplyAnchor(t *testing.T) {
	items := []engine.MediaItem{
		{Kind: engine.KindPhoto, FileID: "f1", Caption: "first"},
		{Kind: engine.KindVideo, FileID: "f2"},
	}

	config := mediaGroupConfig(-100200, items, engine.Reply{MessageID: 42})
	require.Equal(t, int64(-100200), config.ChatID)
	require.Equal(t, 42, config.ReplyToMessageID)
	require.Len(t, config.Media, 2)

	photo, ok := config.Media[0].(tgbotapi.InputMediaPhoto)
	require.True(t, ok)
	require.Equal(t, "first", photo.Caption)
	_, ok = config.Media[1].(tgbotapi.InputMediaVideo)
	require.True(t, ok)

	// No reply context sends unthreaded.
	config = mediaGroupConfig(-100200, items, engine.Reply{})
	require.Zero(t, config.ReplyToMessageID)
}
