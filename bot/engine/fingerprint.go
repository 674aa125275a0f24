package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/hrygo/mediahub/cache"
)

// dedupTTL bounds how long a fingerprint suppresses repeats. After it lapses
// the same content redistributes again.
const dedupTTL = 24 * time.Hour

// Fingerprint computes the content fingerprint of a normalized message, or
// "" when the message has nothing to fingerprint.
//
// Media fingerprints use the platform's chat-independent file identity, so
// the same photo posted in two source chats dedups across both. Text is
// hashed after Unicode NFC normalization and trailing-whitespace stripping;
// album fingerprints chain the part fingerprints in order.
func Fingerprint(nm *NormalizedMessage) string {
	switch {
	case nm.Kind == KindAlbum:
		if len(nm.Album) == 0 {
			return ""
		}
		h := sha256.New()
		for _, part := range nm.Album {
			h.Write([]byte(Fingerprint(part)))
			h.Write([]byte{0})
		}
		return "album:" + hex.EncodeToString(h.Sum(nil))[:32]
	case nm.Kind.IsMedia():
		if nm.FileUniqueID == "" {
			return ""
		}
		return "media:" + nm.FileUniqueID
	default:
		return textFingerprint(nm.Text)
	}
}

func textFingerprint(text string) string {
	canonical := norm.NFC.String(strings.TrimRightFunc(text, unicode.IsSpace))
	if canonical == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(canonical))
	return "text:" + hex.EncodeToString(sum[:])[:32]
}

// Dedup suppresses repeated content per source chat within the dedup window.
type Dedup struct {
	cache cache.Cache
}

// NewDedup returns a Dedup backed by the fast store.
func NewDedup(c cache.Cache) *Dedup {
	return &Dedup{cache: c}
}

// Seen atomically records the message's fingerprint and reports whether it
// was already present. Messages with no fingerprint are never duplicates.
// Check-and-record is a single operation so two racing deliveries cannot
// both pass.
func (d *Dedup) Seen(ctx context.Context, nm *NormalizedMessage) (bool, error) {
	fp := Fingerprint(nm)
	if fp == "" {
		return false, nil
	}
	key := fmt.Sprintf("dedup:%d:%s", nm.SourceChatID, fp)
	set, err := d.cache.SetNX(ctx, key, "1", dedupTTL)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return !set, nil
}
