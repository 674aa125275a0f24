package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/mediahub/bot/engine"
	"github.com/hrygo/mediahub/store"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	admin := msg.From != nil && b.profile.IsAdmin(msg.From.ID)
	slog.Debug("command received", "command", command, "chat_id", chatID, "admin", admin)

	switch command {
	case "start":
		b.refreshRegistration(ctx, msg.Chat)
		b.reply(ctx, chatID, fmt.Sprintf(
			"Registered. Messages posted here are redistributed to every other registered chat.\n"+
				"Free trial: %d days. See /subscribe for plans, /help for commands.",
			b.profile.TrialDays))
	case "help":
		b.reply(ctx, chatID, b.helpText(admin))
	case "subscribe":
		b.handleSubscribe(ctx, msg, args)
	case "status":
		if admin {
			b.handleStatus(ctx, chatID)
		}
	case "stats":
		if admin {
			b.handleStats(ctx, chatID)
		}
	case "pause":
		if admin {
			b.setPaused(ctx, chatID, true)
		}
	case "resume":
		if admin {
			b.setPaused(ctx, chatID, false)
		}
	case "pause_in", "resume_in":
		if admin {
			b.setChatFlag(ctx, chatID, "in", command == "pause_in")
		}
	case "pause_out", "resume_out":
		if admin {
			b.setChatFlag(ctx, chatID, "out", command == "pause_out")
		}
	case "selfsend":
		if admin {
			b.setSelfSend(ctx, chatID, args)
		}
	case "editmode":
		if admin {
			b.setEditMode(ctx, chatID, args)
		}
	case "signature":
		if admin {
			b.handleSignature(ctx, chatID, args)
		}
	case "mute", "unmute", "ban":
		if admin {
			b.handleModeration(ctx, chatID, command, args)
		}
	}
}

func (b *Bot) helpText(admin bool) string {
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	sb.WriteString("/start — register this chat\n")
	sb.WriteString("/subscribe — plans and payment\n")
	if !admin {
		return sb.String()
	}
	sb.WriteString("\nAdmin:\n")
	sb.WriteString("/pause /resume — stop or restart all redistribution\n")
	sb.WriteString("/pause_in /resume_in — stop deliveries into this chat\n")
	sb.WriteString("/pause_out /resume_out — stop pickups from this chat\n")
	sb.WriteString("/selfsend on|off — return copies to this chat\n")
	sb.WriteString("/editmode off|resend — edit redistribution\n")
	sb.WriteString("/signature on|off|text <t>|url <u>\n")
	sb.WriteString("/mute <user_id> <duration>  /unmute <user_id>  /ban <user_id>\n")
	sb.WriteString("/status /stats\n")
	return sb.String()
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	chats, err := b.store.CountActiveChats(ctx)
	if err != nil {
		b.reply(ctx, chatID, "status unavailable: "+err.Error())
		return
	}
	paused, _ := b.store.GetConfigBool(ctx, store.ConfigPaused, false)
	mode, err := b.store.GetConfig(ctx, store.ConfigEditMode)
	if err != nil {
		mode = store.EditModeOff
	}
	b.reply(ctx, chatID, fmt.Sprintf(
		"active chats: %d\npaused: %v\nedit mode: %s\nversion: %s",
		chats, paused, mode, b.profile.Version))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	total, err := b.store.CountTotalSends(ctx)
	if err != nil {
		b.reply(ctx, chatID, "stats unavailable: "+err.Error())
		return
	}
	senders, _ := b.store.CountUniqueSenders(ctx)
	from, _ := b.store.CountSendsFromChat(ctx, chatID)
	to, _ := b.store.CountSendsToChat(ctx, chatID)
	b.reply(ctx, chatID, fmt.Sprintf(
		"deliveries in retention window: %d\nunique authors: %d\nfrom this chat: %d\ninto this chat: %d",
		total, senders, from, to))
}

func (b *Bot) setPaused(ctx context.Context, chatID int64, paused bool) {
	value := "false"
	text := "Redistribution resumed."
	if paused {
		value = "true"
		text = "Redistribution paused. Incoming messages are dropped, not queued."
	}
	if err := b.store.SetConfig(ctx, store.ConfigPaused, value); err != nil {
		b.reply(ctx, chatID, "failed: "+err.Error())
		return
	}
	b.reply(ctx, chatID, text)
}

func (b *Bot) setChatFlag(ctx context.Context, chatID int64, direction string, paused bool) {
	update := &store.UpdateChat{ChatID: chatID}
	if direction == "in" {
		update.InPaused = &paused
	} else {
		update.OutPaused = &paused
	}
	if _, err := b.store.UpdateChat(ctx, update); err != nil {
		b.reply(ctx, chatID, "failed: "+err.Error())
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("%s-flow paused: %v", direction, paused))
}

func (b *Bot) setSelfSend(ctx context.Context, chatID int64, args string) {
	var allow bool
	switch args {
	case "on":
		allow = true
	case "off":
		allow = false
	default:
		b.reply(ctx, chatID, "usage: /selfsend on|off")
		return
	}
	if _, err := b.store.UpdateChat(ctx, &store.UpdateChat{ChatID: chatID, AllowSelfSend: &allow}); err != nil {
		b.reply(ctx, chatID, "failed: "+err.Error())
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("self-send: %v", allow))
}

func (b *Bot) setEditMode(ctx context.Context, chatID int64, args string) {
	if args != store.EditModeOff && args != store.EditModeResend {
		b.reply(ctx, chatID, "usage: /editmode off|resend")
		return
	}
	if err := b.store.SetConfig(ctx, store.ConfigEditMode, args); err != nil {
		b.reply(ctx, chatID, "failed: "+err.Error())
		return
	}
	b.reply(ctx, chatID, "edit mode: "+args)
}

func (b *Bot) handleSignature(ctx context.Context, chatID int64, args string) {
	field, value, _ := strings.Cut(args, " ")
	var err error
	switch field {
	case "on":
		err = b.store.SetConfig(ctx, store.ConfigSignatureEnabled, "true")
	case "off":
		err = b.store.SetConfig(ctx, store.ConfigSignatureEnabled, "false")
	case "text":
		err = b.store.SetConfig(ctx, store.ConfigSignatureText, strings.TrimSpace(value))
	case "url":
		err = b.store.SetConfig(ctx, store.ConfigSignatureURL, strings.TrimSpace(value))
	default:
		b.reply(ctx, chatID, "usage: /signature on|off|text <text>|url <url>")
		return
	}
	if err != nil {
		b.reply(ctx, chatID, "failed: "+err.Error())
		return
	}
	b.reply(ctx, chatID, "signature updated")
}

func (b *Bot) handleModeration(ctx context.Context, chatID int64, command, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		b.reply(ctx, chatID, fmt.Sprintf("usage: /%s <user_id> [duration]", command))
		return
	}
	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		b.reply(ctx, chatID, "invalid user id")
		return
	}

	switch command {
	case "unmute":
		if err := b.moderation.Lift(ctx, userID); err != nil {
			b.reply(ctx, chatID, "failed: "+err.Error())
			return
		}
		b.reply(ctx, chatID, fmt.Sprintf("restrictions lifted for %d", userID))
	case "ban":
		if err := b.moderation.Ban(ctx, userID, chatID); err != nil {
			b.reply(ctx, chatID, "failed: "+err.Error())
			return
		}
		b.reply(ctx, chatID, fmt.Sprintf("user %d banned", userID))
	case "mute":
		duration := 24 * time.Hour
		if len(fields) > 1 {
			duration, err = ParseRestrictionDuration(fields[1])
			if err != nil {
				b.reply(ctx, chatID, "invalid duration, use e.g. 30m, 2h, 7d")
				return
			}
		}
		if err := b.moderation.Mute(ctx, userID, duration, chatID); err != nil {
			b.reply(ctx, chatID, "failed: "+err.Error())
			return
		}
		b.reply(ctx, chatID, fmt.Sprintf("user %d muted for %s", userID, duration))
	}
}

func (b *Bot) handleSubscribe(ctx context.Context, msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	if args == "" {
		keys := make([]string, 0, len(store.Plans))
		for key := range store.Plans {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool { return store.Plans[keys[i]].Days < store.Plans[keys[j]].Days })

		var sb strings.Builder
		sb.WriteString("Plans (paid in Telegram Stars):\n")
		for _, key := range keys {
			plan := store.Plans[key]
			sb.WriteString(fmt.Sprintf("• %s — %d⭐ — /subscribe %s\n", plan.Label, plan.Stars, plan.Key))
		}
		b.reply(ctx, chatID, sb.String())
		return
	}

	plan, ok := store.Plans[args]
	if !ok {
		b.reply(ctx, chatID, "unknown plan, see /subscribe")
		return
	}

	invoice := tgbotapi.InvoiceConfig{
		BaseChat:    tgbotapi.BaseChat{ChatID: chatID},
		Title:       "MediaHub " + plan.Label,
		Description: fmt.Sprintf("Redistribution access for this chat, %d days.", plan.Days),
		Payload:     "plan:" + plan.Key,
		Currency:    "XTR",
		Prices:      []tgbotapi.LabeledPrice{{Label: plan.Label, Amount: plan.Stars}},
	}
	if _, err := b.api.Request(invoice); err != nil {
		slog.Error("failed to send invoice", "chat_id", chatID, "plan", plan.Key, "error", err)
		b.reply(ctx, chatID, "could not start the payment, try again later")
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.client.SendText(ctx, chatID, text, engine.Reply{}); err != nil {
		slog.Warn("command reply failed", "chat_id", chatID, "error", err)
	}
}
