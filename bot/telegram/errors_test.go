package telegram

import (
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mediahub/bot/engine"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want engine.PlatformErrorKind
	}{
		{
			name: "rate limited",
			err: &tgbotapi.Error{
				Code:               429,
				Message:            "Too Many Requests: retry after 7",
				ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7},
			},
			want: engine.ErrTooManyRequests,
		},
		{
			name: "migrated",
			err: &tgbotapi.Error{
				Code:               400,
				Message:            "Bad Request: group chat was upgraded to a supergroup chat",
				ResponseParameters: tgbotapi.ResponseParameters{MigrateToChatID: -100123},
			},
			want: engine.ErrMigrated,
		},
		{
			name: "blocked",
			err:  &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"},
			want: engine.ErrForbidden,
		},
		{
			name: "chat not found",
			err:  &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"},
			want: engine.ErrChatNotFound,
		},
		{
			name: "other bad request",
			err:  &tgbotapi.Error{Code: 400, Message: "Bad Request: message is too long"},
			want: engine.ErrBadRequest,
		},
		{
			name: "server error",
			err:  &tgbotapi.Error{Code: 502, Message: "Bad Gateway"},
			want: engine.ErrNetwork,
		},
		{
			name: "transport failure",
			err:  errors.New("dial tcp: connection refused"),
			want: engine.ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := classify(tt.err)
			require.Equal(t, tt.want, perr.Kind)
		})
	}
}

func TestClassifyCarriesParameters(t *testing.T) {
	perr := classify(&tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 7",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7},
	})
	require.Equal(t, 7*time.Second, perr.RetryAfter)

	perr = classify(&tgbotapi.Error{
		Code:               400,
		Message:            "Bad Request: group chat was upgraded to a supergroup chat",
		ResponseParameters: tgbotapi.ResponseParameters{MigrateToChatID: -100123},
	})
	require.Equal(t, int64(-100123), perr.MigrateTo)
}

func TestClassifyWrapsCause(t *testing.T) {
	apiErr := &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	perr := classify(apiErr)

	var unwrapped *tgbotapi.Error
	require.True(t, errors.As(perr, &unwrapped))
	require.Equal(t, apiErr.Message, unwrapped.Message)
}
