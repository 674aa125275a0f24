package engine

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	// albumIdleWait is how long after the last arriving part an album is
	// considered complete.
	albumIdleWait = time.Second
	// albumMaxWait caps total buffering per album regardless of arrivals.
	albumMaxWait = 5 * time.Second
)

// AlbumBuffer collects media-group parts that Telegram delivers as separate
// messages and emits one composite message per album. An album flushes when
// no new part arrived for the idle wait, or unconditionally at the hard cap,
// whichever comes first. Parts are emitted in ascending message-id order so
// a late-arriving earlier part still lands in its place.
type AlbumBuffer struct {
	mu      sync.Mutex
	pending map[string]*albumEntry

	sink     func(context.Context, *NormalizedMessage)
	idleWait time.Duration
	maxWait  time.Duration
	closed   bool
}

type albumEntry struct {
	parts []*NormalizedMessage
	idle  *time.Timer
	hard  *time.Timer
}

// NewAlbumBuffer returns a buffer that delivers completed albums to sink.
// Sink runs on timer goroutines; it must be safe for concurrent use.
func NewAlbumBuffer(sink func(context.Context, *NormalizedMessage)) *AlbumBuffer {
	return &AlbumBuffer{
		pending:  make(map[string]*albumEntry),
		sink:     sink,
		idleWait: albumIdleWait,
		maxWait:  albumMaxWait,
	}
}

// Add buffers one album part. The caller has already checked nm.AlbumID is
// non-empty.
func (b *AlbumBuffer) Add(nm *NormalizedMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	albumID := nm.AlbumID
	entry, ok := b.pending[albumID]
	if !ok {
		entry = &albumEntry{}
		entry.hard = time.AfterFunc(b.maxWait, func() { b.flush(albumID) })
		b.pending[albumID] = entry
	}
	entry.parts = append(entry.parts, nm)

	// Every arrival rearms the idle timer; the hard timer never moves.
	if entry.idle != nil {
		entry.idle.Stop()
	}
	entry.idle = time.AfterFunc(b.idleWait, func() { b.flush(albumID) })
}

// Close stops all timers and flushes whatever is still buffered so a
// shutdown does not swallow partially collected albums.
func (b *AlbumBuffer) Close() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.pending))
	for id, entry := range b.pending {
		ids = append(ids, id)
		entry.idle.Stop()
		entry.hard.Stop()
	}
	b.closed = true
	b.mu.Unlock()

	for _, id := range ids {
		b.flush(id)
	}
}

func (b *AlbumBuffer) flush(albumID string) {
	b.mu.Lock()
	entry, ok := b.pending[albumID]
	if ok {
		delete(b.pending, albumID)
		entry.idle.Stop()
		entry.hard.Stop()
	}
	b.mu.Unlock()
	if !ok || len(entry.parts) == 0 {
		return
	}

	parts := entry.parts
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].SourceMessageID < parts[j].SourceMessageID
	})

	composite := &NormalizedMessage{
		Kind:            KindAlbum,
		SourceChatID:    parts[0].SourceChatID,
		SourceMessageID: parts[0].SourceMessageID,
		SourceUserID:    parts[0].SourceUserID,
		AlbumID:         albumID,
		Album:           parts,
		ReceivedAt:      parts[0].ReceivedAt,
	}
	for _, part := range parts {
		if part.ReplySourceChatID != 0 {
			composite.ReplySourceChatID = part.ReplySourceChatID
			composite.ReplySourceMessageID = part.ReplySourceMessageID
			break
		}
	}

	b.sink(context.Background(), composite)
}
