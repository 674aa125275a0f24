package engine

import (
	"context"
	"log/slog"

	"github.com/hrygo/mediahub/store"
)

// Platform length caps for outgoing content.
const (
	TextLimit    = 4096
	CaptionLimit = 1024
)

// Compose assembles the outgoing body: original text, then the author alias
// tag, then the redistribution signature, separated by blank lines. The body
// is truncated (with an ellipsis) to keep the whole result under limit; the
// alias tag and signature are never truncated.
func Compose(body, aliasTag, signature string, limit int) string {
	var suffix string
	switch {
	case aliasTag != "" && signature != "":
		suffix = aliasTag + "\n" + signature
	case aliasTag != "":
		suffix = aliasTag
	case signature != "":
		suffix = signature
	}

	if suffix == "" {
		return truncate(body, limit)
	}
	if body == "" {
		return suffix
	}

	sep := "\n\n"
	available := limit - len([]rune(suffix)) - len([]rune(sep))
	if available <= 0 {
		// Pathological suffix; keep it whole and drop the body.
		return suffix
	}
	return truncate(body, available) + sep + suffix
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

// SignatureSource resolves the current redistribution signature from runtime
// configuration. Cells are read per message so admin changes apply without a
// restart.
type SignatureSource struct {
	store    *store.Store
	fallback string
}

// NewSignatureSource returns a source that falls back to a "via @bot" line
// when no custom signature text is configured.
func NewSignatureSource(s *store.Store, botUsername string) *SignatureSource {
	fallback := ""
	if botUsername != "" {
		fallback = "via @" + botUsername
	}
	return &SignatureSource{store: s, fallback: fallback}
}

// Signature returns the signature line to append, or "" when signatures are
// disabled. Signatures default to on, so a fresh install attributes copies
// to the bot. Lookup failures disable the signature for that message rather
// than failing the send.
func (s *SignatureSource) Signature(ctx context.Context) string {
	enabled, err := s.store.GetConfigBool(ctx, store.ConfigSignatureEnabled, true)
	if err != nil {
		slog.Warn("failed to read signature config", "error", err)
		return ""
	}
	if !enabled {
		return ""
	}

	text, err := s.store.GetConfig(ctx, store.ConfigSignatureText)
	if err != nil && err != store.ErrNotFound {
		slog.Warn("failed to read signature text", "error", err)
		return ""
	}
	if text == "" {
		text = s.fallback
	}

	url, err := s.store.GetConfig(ctx, store.ConfigSignatureURL)
	if err == nil && url != "" {
		if text == "" {
			return url
		}
		return text + " " + url
	}
	return text
}
