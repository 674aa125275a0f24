package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/mediahub/store"
)

func TestCompose(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		aliasTag  string
		signature string
		limit     int
		want      string
	}{
		{
			name:  "body only",
			body:  "hello",
			limit: TextLimit,
			want:  "hello",
		},
		{
			name:      "body with alias and signature",
			body:      "hello",
			aliasTag:  "— u-a3x7k2",
			signature: "via @hubbot",
			limit:     TextLimit,
			want:      "hello\n\n— u-a3x7k2\nvia @hubbot",
		},
		{
			name:      "signature without alias",
			body:      "hello",
			signature: "via @hubbot",
			limit:     TextLimit,
			want:      "hello\n\nvia @hubbot",
		},
		{
			name:     "alias without body",
			body:     "",
			aliasTag: "— u-a3x7k2",
			limit:    CaptionLimit,
			want:     "— u-a3x7k2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compose(tt.body, tt.aliasTag, tt.signature, tt.limit)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestComposeTruncatesBodyOnly(t *testing.T) {
	body := strings.Repeat("x", 5000)
	aliasTag := "— u-a3x7k2"
	signature := "via @hubbot"

	got := Compose(body, aliasTag, signature, TextLimit)
	require.LessOrEqual(t, len([]rune(got)), TextLimit)
	require.True(t, strings.HasSuffix(got, aliasTag+"\n"+signature), "suffix must survive truncation")
	require.Contains(t, got, "...")
}

func TestComposeRuneSafeTruncation(t *testing.T) {
	body := strings.Repeat("эй", 3000) // multi-byte runes
	got := Compose(body, "", "", TextLimit)
	require.LessOrEqual(t, len([]rune(got)), TextLimit)
	require.True(t, strings.HasSuffix(got, "..."))
}

func TestComposeCaptionLimit(t *testing.T) {
	body := strings.Repeat("y", 2000)
	got := Compose(body, "", "via @hubbot", CaptionLimit)
	require.LessOrEqual(t, len([]rune(got)), CaptionLimit)
	require.True(t, strings.HasSuffix(got, "via @hubbot"))
}

func TestSignatureDefaultsOn(t *testing.T) {
	s := newTestStore(t)
	src := NewSignatureSource(s, "hubbot")
	ctx := context.Background()

	// Fresh install: signatures are on and fall back to the bot handle.
	require.Equal(t, "via @hubbot", src.Signature(ctx))

	require.NoError(t, s.SetConfig(ctx, store.ConfigSignatureEnabled, "false"))
	require.Empty(t, src.Signature(ctx))

	require.NoError(t, s.SetConfig(ctx, store.ConfigSignatureEnabled, "true"))
	require.NoError(t, s.SetConfig(ctx, store.ConfigSignatureText, "join us"))
	require.NoError(t, s.SetConfig(ctx, store.ConfigSignatureURL, "https://t.me/hub"))
	require.Equal(t, "join us https://t.me/hub", src.Signature(ctx))
}
