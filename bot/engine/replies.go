package engine

import (
	"context"
	"fmt"

	"github.com/hrygo/mediahub/store"
)

// Resolver maps reply relationships through the send log so a reply to a
// redistributed copy threads correctly in every destination.
type Resolver struct {
	store *store.Store
}

// NewResolver returns a resolver over the send log.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Origin maps a message the bot delivered into a chat back to its source
// coordinates. Returns (nil, nil) when the message is not a known copy —
// either it never was one or its row aged out of retention.
func (r *Resolver) Origin(ctx context.Context, chatID int64, messageID int) (*store.SendLogEntry, error) {
	entry, err := r.store.ReverseLookup(ctx, chatID, messageID)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reply origin lookup: %w", err)
	}
	return entry, nil
}

// AnchorFor returns the destination-local message id to anchor a reply on,
// or zero when the message carries no reply context or the destination never
// received (or no longer maps) the replied-to message. A missing anchor is
// normal; the copy just goes out unthreaded.
func (r *Resolver) AnchorFor(ctx context.Context, nm *NormalizedMessage, destChatID int64) int {
	if nm.ReplySourceChatID == 0 {
		return 0
	}
	// Replies within the destination chat itself anchor on the original
	// message, which needs no mapping.
	if nm.ReplySourceChatID == destChatID {
		return nm.ReplySourceMessageID
	}
	id, err := r.store.DestMessageID(ctx, nm.ReplySourceChatID, nm.ReplySourceMessageID, destChatID)
	if err != nil {
		return 0
	}
	return id
}
