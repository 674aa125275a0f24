package engine

import (
	"context"
	"fmt"
	"time"
)

// Reply is the optional reply anchor for an outgoing send. A zero MessageID
// means the copy is not a reply. Anchors are always best-effort: if the
// anchored message was deleted in the destination, the platform is told to
// send anyway.
type Reply struct {
	MessageID int
}

// MediaItem is one part of an outgoing media group.
type MediaItem struct {
	Kind    Kind
	FileID  string
	Caption string
}

// Platform is the messaging-platform client the engine sends through. Every
// method returns the platform message id(s) assigned to the delivered copy.
// Errors are *PlatformError values carrying the failure kind.
type Platform interface {
	SendText(ctx context.Context, chatID int64, text string, reply Reply) (int, error)
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, reply Reply) (int, error)
	SendVideo(ctx context.Context, chatID int64, fileID, caption string, reply Reply) (int, error)
	SendAnimation(ctx context.Context, chatID int64, fileID, caption string, reply Reply) (int, error)
	SendAudio(ctx context.Context, chatID int64, fileID, caption string, reply Reply) (int, error)
	SendDocument(ctx context.Context, chatID int64, fileID, caption string, reply Reply) (int, error)
	SendVoice(ctx context.Context, chatID int64, fileID, caption string, reply Reply) (int, error)
	SendVideoNote(ctx context.Context, chatID int64, fileID string, length int, reply Reply) (int, error)
	SendSticker(ctx context.Context, chatID int64, fileID string, reply Reply) (int, error)
	SendMediaGroup(ctx context.Context, chatID int64, items []MediaItem, reply Reply) ([]int, error)
}

// PlatformErrorKind classifies a failed send.
type PlatformErrorKind int

const (
	// ErrTooManyRequests is a platform rate rejection; RetryAfter carries the
	// advised pause.
	ErrTooManyRequests PlatformErrorKind = iota
	// ErrForbidden means the bot was blocked, kicked or lacks permission.
	ErrForbidden
	// ErrChatNotFound means the destination chat no longer exists.
	ErrChatNotFound
	// ErrMigrated means the group was upgraded; MigrateTo carries the new id.
	ErrMigrated
	// ErrBadRequest is any other permanent request rejection.
	ErrBadRequest
	// ErrNetwork is a transient transport failure.
	ErrNetwork
)

// String returns the string representation of the kind.
func (k PlatformErrorKind) String() string {
	switch k {
	case ErrTooManyRequests:
		return "too_many_requests"
	case ErrForbidden:
		return "forbidden"
	case ErrChatNotFound:
		return "chat_not_found"
	case ErrMigrated:
		return "migrated"
	case ErrBadRequest:
		return "bad_request"
	case ErrNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// PlatformError is a classified send failure.
type PlatformError struct {
	Kind PlatformErrorKind
	// RetryAfter is set for ErrTooManyRequests.
	RetryAfter time.Duration
	// MigrateTo is set for ErrMigrated.
	MigrateTo int64
	Err       error
}

func (e *PlatformError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("platform: %s", e.Kind)
	}
	return fmt.Sprintf("platform: %s: %v", e.Kind, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}
