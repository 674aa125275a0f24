package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/mediahub/store"
)

// handlePreCheckout approves or rejects a pending Stars payment. The payload
// was set by /subscribe; anything else is stale and gets rejected.
func (b *Bot) handlePreCheckout(query *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 true,
	}
	if _, ok := planFromPayload(query.InvoicePayload); !ok {
		answer.OK = false
		answer.ErrorMessage = "This invoice has expired, request a new one with /subscribe."
	}
	if _, err := b.api.Request(answer); err != nil {
		slog.Error("failed to answer pre-checkout", "query_id", query.ID, "error", err)
	}
}

// handleSuccessfulPayment extends the chat's subscription and invalidates
// the cached paywall verdict so delivery resumes immediately.
func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	payment := msg.SuccessfulPayment
	plan, ok := planFromPayload(payment.InvoicePayload)
	if !ok {
		slog.Error("payment with unknown payload", "payload", payment.InvoicePayload, "chat_id", msg.Chat.ID)
		return
	}

	sub, err := b.store.ExtendSubscription(ctx, msg.Chat.ID, plan.Key, time.Duration(plan.Days)*24*time.Hour)
	if err != nil {
		slog.Error("failed to extend subscription after payment",
			"chat_id", msg.Chat.ID, "plan", plan.Key, "error", err)
		b.reply(ctx, msg.Chat.ID, "Payment received but activation failed; contact the operator.")
		return
	}
	b.gate.Invalidate(ctx, msg.Chat.ID)

	slog.Info("payment processed",
		"chat_id", msg.Chat.ID,
		"plan", plan.Key,
		"stars", payment.TotalAmount,
		"paid_until", sub.PaidUntil,
	)
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"Payment received. Access active until %s.", sub.PaidUntil.Format("2006-01-02")))
}

func planFromPayload(payload string) (store.Plan, bool) {
	key, ok := strings.CutPrefix(payload, "plan:")
	if !ok {
		return store.Plan{}, false
	}
	plan, ok := store.Plans[key]
	return plan, ok
}
