package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/mediahub/bot/engine"
	"github.com/hrygo/mediahub/store"
)

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.PreCheckoutQuery != nil:
		b.handlePreCheckout(update.PreCheckoutQuery)
	case update.Message != nil:
		msg := update.Message
		switch {
		case msg.SuccessfulPayment != nil:
			b.handleSuccessfulPayment(ctx, msg)
		case msg.IsCommand():
			b.handleCommand(ctx, msg)
		default:
			b.handleContent(ctx, msg, false)
		}
	case update.EditedMessage != nil:
		b.handleContent(ctx, update.EditedMessage, true)
	case update.ChannelPost != nil:
		post := update.ChannelPost
		if post.IsCommand() {
			b.handleCommand(ctx, post)
			return
		}
		b.handleContent(ctx, post, false)
	case update.EditedChannelPost != nil:
		b.handleContent(ctx, update.EditedChannelPost, true)
	}
}

// handleContent runs the ingest pipeline for one message: self-filter,
// registration refresh, source check, moderation, normalization, reply
// resolution, album buffering, dedup and hand-off to the distributor.
func (b *Bot) handleContent(ctx context.Context, msg *tgbotapi.Message, edited bool) {
	if msg.Chat == nil {
		return
	}
	if msg.From != nil && msg.From.ID == b.self.ID {
		return
	}
	// Channel posts made by the bot carry no From; a send-log hit on the
	// message's own coordinates identifies our copies reliably.
	if origin, err := b.resolver.Origin(ctx, msg.Chat.ID, msg.MessageID); err == nil && origin != nil {
		return
	}

	nm := engine.Normalize(msg)
	if nm == nil {
		return
	}
	b.metrics.NormalizedTotal.Inc()

	b.refreshRegistration(ctx, msg.Chat)

	active, err := b.store.IsActiveSource(ctx, nm.SourceChatID)
	if err != nil {
		slog.Error("source check failed", "chat_id", nm.SourceChatID, "error", err)
		return
	}
	if !active {
		return
	}

	if b.moderation.Restricted(ctx, nm.SourceUserID) {
		slog.Debug("dropping message from restricted user", "user_id", nm.SourceUserID)
		return
	}

	b.resolveReplyContext(ctx, msg, nm)

	if edited {
		b.handleEdit(ctx, nm)
		return
	}

	if nm.AlbumID != "" {
		// Dedup happens on the completed album, not per part.
		b.albums.Add(nm)
		return
	}

	seen, err := b.dedup.Seen(ctx, nm)
	if err != nil {
		slog.Error("dedup failed", "chat_id", nm.SourceChatID, "error", err)
	}
	if seen {
		b.metrics.DuplicatesTotal.Inc()
		slog.Debug("duplicate dropped",
			"source_chat", nm.SourceChatID, "source_message", nm.SourceMessageID)
		return
	}

	if err := b.distributor.Distribute(ctx, nm); err != nil {
		slog.Error("distribution failed",
			"source_chat", nm.SourceChatID, "source_message", nm.SourceMessageID, "error", err)
	}
}

// resolveReplyContext fills the origin coordinates when the message replies
// to one of our delivered copies, mapped back through the send log. Replies
// to ordinary messages carry no thread context and go out unthreaded.
func (b *Bot) resolveReplyContext(ctx context.Context, msg *tgbotapi.Message, nm *engine.NormalizedMessage) {
	replyTo := msg.ReplyToMessage
	if replyTo == nil {
		return
	}
	origin, err := b.resolver.Origin(ctx, msg.Chat.ID, replyTo.MessageID)
	if err != nil || origin == nil {
		return
	}
	nm.ReplySourceChatID = origin.SourceChatID
	nm.ReplySourceMessageID = origin.SourceMessageID
}

// handleEdit applies the configured edit mode. Off drops the edit; resend
// re-delivers the new content to every destination that got the original.
func (b *Bot) handleEdit(ctx context.Context, nm *engine.NormalizedMessage) {
	mode, err := b.store.GetConfig(ctx, store.ConfigEditMode)
	if err != nil || mode != store.EditModeResend {
		return
	}
	if err := b.distributor.PropagateEdit(ctx, nm); err != nil {
		slog.Error("edit propagation failed",
			"source_chat", nm.SourceChatID, "source_message", nm.SourceMessageID, "error", err)
	}
}

// refreshRegistration keeps the registry row current without resetting the
// registration timestamp.
func (b *Bot) refreshRegistration(ctx context.Context, chat *tgbotapi.Chat) {
	_, err := b.store.UpsertChat(ctx, &store.Chat{
		ID:       chat.ID,
		Kind:     store.ChatKind(chat.Type),
		Title:    chat.Title,
		Username: chat.UserName,
	})
	if err != nil {
		slog.Error("failed to refresh chat registration", "chat_id", chat.ID, "error", err)
	}
}
