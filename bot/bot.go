// Package bot wires the Telegram front end to the distribution engine:
// update ingestion, the admin and subscriber command surface, moderation and
// the background loops.
package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/mediahub/bot/engine"
	"github.com/hrygo/mediahub/bot/telegram"
	"github.com/hrygo/mediahub/cache"
	"github.com/hrygo/mediahub/internal/profile"
	"github.com/hrygo/mediahub/store"
)

// Bot is the running service: one Telegram connection, one engine.
type Bot struct {
	profile *profile.Profile
	api     *tgbotapi.BotAPI
	client  *telegram.Client
	store   *store.Store
	cache   cache.Cache

	self tgbotapi.User

	metrics     *engine.Metrics
	dedup       *engine.Dedup
	albums      *engine.AlbumBuffer
	gate        *engine.Gate
	resolver    *engine.Resolver
	distributor *engine.Distributor
	sweeper     *engine.Sweeper
	moderation  *Moderation
	reminders   *Reminders
}

// New connects to the Bot API and assembles the engine.
func New(p *profile.Profile, s *store.Store, c cache.Cache) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(p.BotToken)
	if err != nil {
		return nil, err
	}
	slog.Info("authorized on telegram", "username", api.Self.UserName)

	client := telegram.NewClient(api)
	metrics := engine.NewMetrics()
	gate := engine.NewGate(s, c, p.TrialDays, p.IsAdmin)
	resolver := engine.NewResolver(s)

	limiter := engine.NewRateLimiter(
		engine.NewGlobalLimiter(c, p.GlobalRateLimit, p.Driver == "postgres"),
		c,
	)

	distributor := engine.New(engine.Config{
		Store:      s,
		Cache:      c,
		Platform:   client,
		Gate:       gate,
		Resolver:   resolver,
		Limiter:    limiter,
		Aliases:    engine.NewAliasService(s, c, p.AliasSalt),
		Signatures: engine.NewSignatureSource(s, api.Self.UserName),
		Metrics:    metrics,
		Workers:    p.WorkerCount,
		QueueSize:  p.QueueSize,
	})

	b := &Bot{
		profile:     p,
		api:         api,
		client:      client,
		store:       s,
		cache:       c,
		self:        api.Self,
		metrics:     metrics,
		dedup:       engine.NewDedup(c),
		gate:        gate,
		resolver:    resolver,
		distributor: distributor,
		sweeper:     engine.NewSweeper(s, metrics),
		moderation:  NewModeration(s, c),
		reminders:   NewReminders(s, client, c, p.TrialDays),
	}
	b.albums = engine.NewAlbumBuffer(b.distributeAlbum)
	return b, nil
}

// Metrics exposes the engine metric set for the HTTP endpoint.
func (b *Bot) Metrics() *engine.Metrics {
	return b.metrics
}

// Run processes updates and background loops until ctx is done, then drains
// the send queue.
func (b *Bot) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.distributor.Run(gctx) })
	g.Go(func() error { return b.sweeper.Run(gctx) })
	g.Go(func() error { return b.reminders.Run(gctx) })
	g.Go(func() error {
		defer b.albums.Close()
		return b.pollUpdates(gctx)
	})

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (b *Bot) pollUpdates(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// distributeAlbum is the album-buffer sink: dedup the completed album, then
// fan it out.
func (b *Bot) distributeAlbum(ctx context.Context, nm *engine.NormalizedMessage) {
	seen, err := b.dedup.Seen(ctx, nm)
	if err != nil {
		slog.Error("album dedup failed", "album_id", nm.AlbumID, "error", err)
	}
	if seen {
		b.metrics.DuplicatesTotal.Inc()
		return
	}
	if err := b.distributor.Distribute(ctx, nm); err != nil {
		slog.Error("album distribution failed", "album_id", nm.AlbumID, "error", err)
	}
}
