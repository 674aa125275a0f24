package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/mediahub/cache"
	"github.com/hrygo/mediahub/store"
)

// drainGrace bounds how long shutdown waits for queued tasks to flush.
const drainGrace = 30 * time.Second

// Config wires a Distributor.
type Config struct {
	Store      *store.Store
	Cache      cache.Cache
	Platform   Platform
	Gate       *Gate
	Resolver   *Resolver
	Limiter    *RateLimiter
	Aliases    *AliasService
	Signatures *SignatureSource
	Metrics    *Metrics

	Workers   int
	QueueSize int
}

// Distributor fans normalized messages out to every eligible destination and
// runs the worker pool that delivers the resulting send tasks. The queue is
// bounded; a full queue blocks the ingress (backpressure) instead of growing
// without limit.
type Distributor struct {
	store      *store.Store
	cache      cache.Cache
	platform   Platform
	gate       *Gate
	resolver   *Resolver
	limiter    *RateLimiter
	aliases    *AliasService
	signatures *SignatureSource
	metrics    *Metrics

	queue   chan *SendTask
	workers int

	accepting atomic.Bool
	// dead marks destinations deactivated mid-flight so queued tasks to them
	// are dropped instead of retried.
	dead sync.Map
}

// New returns a stopped Distributor; call Run to start the workers.
func New(cfg Config) *Distributor {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	d := &Distributor{
		store:      cfg.Store,
		cache:      cfg.Cache,
		platform:   cfg.Platform,
		gate:       cfg.Gate,
		resolver:   cfg.Resolver,
		limiter:    cfg.Limiter,
		aliases:    cfg.Aliases,
		signatures: cfg.Signatures,
		metrics:    cfg.Metrics,
		queue:      make(chan *SendTask, cfg.QueueSize),
		workers:    cfg.Workers,
	}
	d.accepting.Store(true)
	return d
}

// Run starts the worker pool and blocks until ctx is done and the queue has
// drained (or the grace period lapsed). Workers finish their in-flight task
// before exiting.
func (d *Distributor) Run(ctx context.Context) error {
	workCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g errgroup.Group
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.worker(workCtx)
			return nil
		})
	}
	slog.Info("send workers started", "workers", d.workers, "queue", cap(d.queue))

	<-ctx.Done()
	d.accepting.Store(false)

	deadline := time.Now().Add(drainGrace)
	for len(d.queue) > 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	cancel()
	return g.Wait()
}

// Distribute fans one normalized message out. It resolves per-message state
// once (signature, alias, entitlement) and enqueues one task per eligible
// destination, blocking when the queue is full.
func (d *Distributor) Distribute(ctx context.Context, nm *NormalizedMessage) error {
	if paused, err := d.store.GetConfigBool(ctx, store.ConfigPaused, false); err == nil && paused {
		slog.Debug("distribution paused, dropping message",
			"source_chat", nm.SourceChatID, "source_message", nm.SourceMessageID)
		return nil
	}

	source, err := d.store.GetChat(ctx, nm.SourceChatID)
	if err != nil {
		return fmt.Errorf("distribute: source chat %d: %w", nm.SourceChatID, err)
	}

	dests, err := d.store.ActiveDestinations(ctx)
	if err != nil {
		return fmt.Errorf("distribute: list destinations: %w", err)
	}

	entitled, err := d.gate.Entitled(ctx, source.ID, nm.ReceivedAt)
	if err != nil {
		slog.Error("entitlement check failed, withholding message",
			"source_chat", source.ID, "error", err)
		entitled = false
	}

	aliasTag := d.resolveAliasTag(ctx, nm)
	signature := d.signatures.Signature(ctx)

	enqueued := 0
	missed := 0
	for _, dest := range dests {
		// Still enumerated as active, so any mid-flight deactivation marker
		// is stale (the chat was re-registered).
		d.dead.Delete(dest.ID)
		if dest.InPaused {
			continue
		}
		if dest.ID == source.ID {
			// The paywall is cross-chat only; an expired source still gets
			// its own copy when self-send is on.
			if !dest.AllowSelfSend {
				continue
			}
		} else if !entitled {
			missed++
			continue
		}

		task := &SendTask{
			Msg:       nm,
			DestChat:  dest.ID,
			DestKind:  dest.Kind,
			ReplyTo:   d.resolver.AnchorFor(ctx, nm, dest.ID),
			AliasTag:  aliasTag,
			Signature: signature,
		}
		if err := d.enqueue(ctx, task); err != nil {
			return err
		}
		enqueued++
	}

	if missed > 0 {
		d.nudge(ctx, source, missed)
	}
	if enqueued > 0 {
		d.metrics.DistributedTotal.Inc()
	}
	slog.Debug("message distributed",
		"source_chat", nm.SourceChatID,
		"source_message", nm.SourceMessageID,
		"kind", nm.Kind.String(),
		"enqueued", enqueued,
		"withheld", missed,
	)
	return nil
}

// PropagateEdit re-delivers an edited source message. Destinations that
// already received the original get a fresh copy; if no copies exist (for
// example the original predates retention) the edit distributes normally.
func (d *Distributor) PropagateEdit(ctx context.Context, nm *NormalizedMessage) error {
	entries, err := d.store.ForwardLookup(ctx, nm.SourceChatID, nm.SourceMessageID)
	if err != nil {
		return fmt.Errorf("edit lookup: %w", err)
	}
	if len(entries) == 0 {
		return d.Distribute(ctx, nm)
	}

	aliasTag := d.resolveAliasTag(ctx, nm)
	signature := d.signatures.Signature(ctx)

	for _, entry := range entries {
		dest, err := d.store.GetChat(ctx, entry.DestChatID)
		if err != nil || !dest.Active || dest.InPaused {
			continue
		}
		task := &SendTask{
			Msg:      nm,
			DestChat: dest.ID,
			DestKind: dest.Kind,
			// Anchor the re-send on the copy it supersedes.
			ReplyTo:   entry.DestMessageID,
			AliasTag:  aliasTag,
			Signature: signature,
			Edit:      true,
		}
		if err := d.enqueue(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func (d *Distributor) resolveAliasTag(ctx context.Context, nm *NormalizedMessage) string {
	alias, err := d.aliases.AliasFor(ctx, nm.SourceUserID)
	if err != nil {
		slog.Warn("alias resolution failed", "user_id", nm.SourceUserID, "error", err)
		return ""
	}
	return d.aliases.Tag(alias)
}

func (d *Distributor) enqueue(ctx context.Context, task *SendTask) error {
	if !d.accepting.Load() {
		slog.Warn("queue closed, dropping task", "dest_chat", task.DestChat)
		return nil
	}
	select {
	case d.queue <- task:
		d.metrics.QueueDepth.Set(float64(len(d.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requeue re-enqueues a task after delay without blocking the worker.
func (d *Distributor) requeue(ctx context.Context, task *SendTask, delay time.Duration) {
	go func() {
		if delay > 0 {
			if err := sleepCtx(ctx, delay); err != nil {
				return
			}
		}
		if err := d.enqueue(ctx, task); err != nil {
			slog.Warn("requeue dropped", "dest_chat", task.DestChat, "error", err)
		}
	}()
}

// nudge tells a non-entitled source chat (at most once per cooldown) that
// its messages were withheld.
func (d *Distributor) nudge(ctx context.Context, source *store.Chat, missedNow int) {
	for i := 0; i < missedNow; i++ {
		d.gate.RecordMissed(ctx, source.ID, time.Now())
	}
	if !d.gate.ShouldNudge(ctx, source.ID) {
		return
	}

	total := d.gate.MissedToday(ctx, source.ID, time.Now())
	text := fmt.Sprintf(
		"Your access has expired, so %d of today's messages were not redistributed.\n"+
			"Use /subscribe to restore delivery.", total)

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := d.platform.SendText(sendCtx, source.ID, text, Reply{}); err != nil {
			slog.Debug("nudge delivery failed", "chat_id", source.ID, "error", err)
			return
		}
		d.metrics.NudgesTotal.Inc()
	}()
}
