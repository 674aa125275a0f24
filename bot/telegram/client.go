// Package telegram adapts the Bot API onto the engine's platform contract.
// All sends re-use platform file handles; the bot never downloads or
// re-uploads media.
package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/mediahub/bot/engine"
)

// Client implements engine.Platform over a Bot API connection.
type Client struct {
	api *tgbotapi.BotAPI
}

// NewClient wraps an authorized Bot API handle.
func NewClient(api *tgbotapi.BotAPI) *Client {
	return &Client{api: api}
}

// applyReply sets the reply anchor on an outgoing config. Anchors are always
// best-effort: if the anchored message is gone the send proceeds unthreaded.
func applyReply(base *tgbotapi.BaseChat, reply engine.Reply) {
	if reply.MessageID == 0 {
		return
	}
	base.ReplyToMessageID = reply.MessageID
	base.AllowSendingWithoutReply = true
}

func (c *Client) send(config tgbotapi.Chattable) (int, error) {
	sent, err := c.api.Send(config)
	if err != nil {
		return 0, classify(err)
	}
	return sent.MessageID, nil
}

func (c *Client) SendText(_ context.Context, chatID int64, text string, reply engine.Reply) (int, error) {
	config := tgbotapi.NewMessage(chatID, text)
	config.DisableWebPagePreview = true
	applyReply(&config.BaseChat, reply)
	return c.send(config)
}

func (c *Client) SendPhoto(_ context.Context, chatID int64, fileID, caption string, reply engine.Reply) (int, error) {
	config := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	config.Caption = caption
	applyReply(&config.BaseChat, reply)
	return c.send(config)
}

func (c *Client) SendVideo(_ context.Context, chatID int64, fileID, caption string, reply engine.Reply) (int, error) {
	config := tgbotapi.NewVideo(chatID, tgbotapi.FileID(fileID))
	config.Caption = caption
	applyReply(&config.BaseChat, reply)
	return c.send(config)
}

func (c *Client) SendAnimation(_ context.Context, chatID int64, fileID, caption string, reply engine.Reply) (int, error) {
	config := tgbotapi.NewAnimation(chatID, tgbotapi.FileID(fileID))
	config.Caption = caption
	applyReply(&config.BaseChat, reply)
	return c.send(config)
}

func (c *Client) SendAudio(_ context.Context, chatID int64, fileID, caption string, reply engine.Reply) (int, error) {
	config := tgbotapi.NewAudio(chatID, tgbotapi.FileID(fileID))
	config.Caption = caption
	applyReply(&config.BaseChat, reply)
	return c.send(config)
}

func (c *Client) SendDocument(_ context.Context, chatID int64, fileID, caption string, reply engine.Reply) (int, error) {
	config := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
	config.Caption = caption
	applyReply(&config.BaseChat, reply)
	return c.send(config)
}

func (c *Client) SendVoice(_ context.Context, chatID int64, fileID, caption string, reply engine.Reply) (int, error) {
	config := tgbotapi.NewVoice(chatID, tgbotapi.FileID(fileID))
	config.Caption = caption
	applyReply(&config.BaseChat, reply)
	return c.send(config)
}

func (c *Client) SendVideoNote(_ context.Context, chatID int64, fileID string, length int, reply engine.Reply) (int, error) {
	config := tgbotapi.NewVideoNote(chatID, length, tgbotapi.FileID(fileID))
	applyReply(&config.BaseChat, reply)
	return c.send(config)
}

func (c *Client) SendSticker(_ context.Context, chatID int64, fileID string, reply engine.Reply) (int, error) {
	config := tgbotapi.NewSticker(chatID, tgbotapi.FileID(fileID))
	applyReply(&config.BaseChat, reply)
	return c.send(config)
}

func (c *Client) SendMediaGroup(_ context.Context, chatID int64, items []engine.MediaItem, reply engine.Reply) ([]int, error) {
	sent, err := c.api.SendMediaGroup(mediaGroupConfig(chatID, items, reply))
	if err != nil {
		return nil, classify(err)
	}
	ids := make([]int, len(sent))
	for i, msg := range sent {
		ids[i] = msg.MessageID
	}
	return ids, nil
}

// mediaGroupConfig assembles the outgoing media group. MediaGroupConfig
// carries its own reply field rather than embedding BaseChat, so the anchor
// is set directly here.
func mediaGroupConfig(chatID int64, items []engine.MediaItem, reply engine.Reply) tgbotapi.MediaGroupConfig {
	media := make([]interface{}, 0, len(items))
	for _, item := range items {
		media = append(media, inputMedia(item))
	}
	config := tgbotapi.NewMediaGroup(chatID, media)
	if reply.MessageID != 0 {
		config.ReplyToMessageID = reply.MessageID
	}
	return config
}

// inputMedia builds the media-group item for a part. Telegram only allows
// photos, videos, audio and documents inside a group, which matches what the
// platform delivers as albums.
func inputMedia(item engine.MediaItem) interface{} {
	file := tgbotapi.FileID(item.FileID)
	switch item.Kind {
	case engine.KindVideo:
		m := tgbotapi.NewInputMediaVideo(file)
		m.Caption = item.Caption
		return m
	case engine.KindAudio:
		m := tgbotapi.NewInputMediaAudio(file)
		m.Caption = item.Caption
		return m
	case engine.KindDocument:
		m := tgbotapi.NewInputMediaDocument(file)
		m.Caption = item.Caption
		return m
	default:
		m := tgbotapi.NewInputMediaPhoto(file)
		m.Caption = item.Caption
		return m
	}
}
