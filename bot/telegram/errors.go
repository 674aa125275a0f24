package telegram

import (
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/mediahub/bot/engine"
)

// classify maps a Bot API failure onto the engine's error taxonomy. Anything
// that is not a structured API error (timeouts, connection resets, decode
// failures) is a transient network failure.
func classify(err error) *engine.PlatformError {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return &engine.PlatformError{Kind: engine.ErrNetwork, Err: err}
	}

	switch {
	case apiErr.Code == 429:
		return &engine.PlatformError{
			Kind:       engine.ErrTooManyRequests,
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
			Err:        apiErr,
		}
	case apiErr.MigrateToChatID != 0:
		return &engine.PlatformError{
			Kind:      engine.ErrMigrated,
			MigrateTo: apiErr.MigrateToChatID,
			Err:       apiErr,
		}
	case apiErr.Code == 403:
		// Blocked by the user, kicked from the group, or missing rights.
		return &engine.PlatformError{Kind: engine.ErrForbidden, Err: apiErr}
	case apiErr.Code == 400 && strings.Contains(strings.ToLower(apiErr.Message), "chat not found"):
		return &engine.PlatformError{Kind: engine.ErrChatNotFound, Err: apiErr}
	case apiErr.Code >= 400 && apiErr.Code < 500:
		return &engine.PlatformError{Kind: engine.ErrBadRequest, Err: apiErr}
	default:
		// 5xx from the Bot API is retryable.
		return &engine.PlatformError{Kind: engine.ErrNetwork, Err: apiErr}
	}
}
