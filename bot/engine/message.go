// Package engine implements the distribution engine: normalization, dedup,
// album buffering, reply resolution, fan-out scheduling, rate limiting and
// send-log bookkeeping.
package engine

import "time"

// Kind is the content kind of a normalized message. Exactly one kind applies
// per message; the sender dispatches on it.
type Kind int

const (
	KindText Kind = iota
	KindPhoto
	KindVideo
	KindAnimation
	KindAudio
	KindDocument
	KindVoice
	KindVideoNote
	KindSticker
	KindAlbum
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindAnimation:
		return "animation"
	case KindAudio:
		return "audio"
	case KindDocument:
		return "document"
	case KindVoice:
		return "voice"
	case KindVideoNote:
		return "video_note"
	case KindSticker:
		return "sticker"
	case KindAlbum:
		return "album"
	default:
		return "unknown"
	}
}

// IsMedia reports whether the kind carries a media handle.
func (k Kind) IsMedia() bool {
	return k != KindText && k != KindAlbum
}

// NormalizedMessage is the canonical record extracted from a platform update.
// For media kinds, FileID is a platform-stable handle that allows re-sending
// without re-uploading, and FileUniqueID is stable across chats (used for
// fingerprinting).
type NormalizedMessage struct {
	Kind            Kind
	SourceChatID    int64
	SourceMessageID int
	// SourceUserID is zero for channel posts without a sender.
	SourceUserID int64
	// AlbumID groups media-group parts; empty for standalone messages.
	AlbumID string

	Text    string
	Caption string

	FileID       string
	FileUniqueID string
	// Length is the video-note diameter; zero for other kinds.
	Length int

	// Album holds the ordered parts when Kind is KindAlbum.
	Album []*NormalizedMessage

	// Reply context: the origin coordinates this message replies to, filled
	// by the ingress after a send-log reverse lookup. Zero when the message
	// is not a reply to a bot-delivered copy.
	ReplySourceChatID    int64
	ReplySourceMessageID int

	ReceivedAt time.Time
}
