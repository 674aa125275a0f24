package engine

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Normalize extracts the canonical record from an incoming platform message.
// It returns nil for unsupported content (polls, dice, contacts, locations,
// service messages) which the pipeline ignores entirely.
//
// Exactly one kind is chosen per message; when several content fields are
// present (Telegram attaches a Document alongside every Animation) the first
// match in the fixed priority order wins: text, photo, video, animation,
// audio, document, voice, video note, sticker.
func Normalize(msg *tgbotapi.Message) *NormalizedMessage {
	if msg == nil || msg.Chat == nil {
		return nil
	}

	nm := &NormalizedMessage{
		SourceChatID:    msg.Chat.ID,
		SourceMessageID: msg.MessageID,
		AlbumID:         msg.MediaGroupID,
		Caption:         msg.Caption,
		ReceivedAt:      time.Now(),
	}
	if msg.From != nil {
		nm.SourceUserID = msg.From.ID
	}

	switch {
	case msg.Text != "":
		nm.Kind = KindText
		nm.Text = msg.Text
	case len(msg.Photo) > 0:
		nm.Kind = KindPhoto
		best := largestPhoto(msg.Photo)
		nm.FileID = best.FileID
		nm.FileUniqueID = best.FileUniqueID
	case msg.Video != nil:
		nm.Kind = KindVideo
		nm.FileID = msg.Video.FileID
		nm.FileUniqueID = msg.Video.FileUniqueID
	case msg.Animation != nil:
		nm.Kind = KindAnimation
		nm.FileID = msg.Animation.FileID
		nm.FileUniqueID = msg.Animation.FileUniqueID
	case msg.Audio != nil:
		nm.Kind = KindAudio
		nm.FileID = msg.Audio.FileID
		nm.FileUniqueID = msg.Audio.FileUniqueID
	case msg.Document != nil:
		nm.Kind = KindDocument
		nm.FileID = msg.Document.FileID
		nm.FileUniqueID = msg.Document.FileUniqueID
	case msg.Voice != nil:
		nm.Kind = KindVoice
		nm.FileID = msg.Voice.FileID
		nm.FileUniqueID = msg.Voice.FileUniqueID
	case msg.VideoNote != nil:
		nm.Kind = KindVideoNote
		nm.FileID = msg.VideoNote.FileID
		nm.FileUniqueID = msg.VideoNote.FileUniqueID
		nm.Length = msg.VideoNote.Length
	case msg.Sticker != nil:
		nm.Kind = KindSticker
		nm.FileID = msg.Sticker.FileID
		nm.FileUniqueID = msg.Sticker.FileUniqueID
	default:
		return nil
	}

	return nm
}

// largestPhoto picks the biggest size variant. Telegram orders variants from
// smallest to largest, but we compare explicitly rather than trust position.
func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}
