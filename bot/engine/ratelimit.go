package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hrygo/mediahub/cache"
	"github.com/hrygo/mediahub/store"
)

const (
	// Per-destination cooldowns between consecutive sends.
	cooldownPrivate = time.Second
	cooldownGroup   = 3 * time.Second

	// Per-chat circuit breaker.
	breakerThreshold = 3
	breakerPause     = 5 * time.Minute

	// Global rejection breaker: this many platform rate rejections inside the
	// window park all workers for the pause.
	rejectionThreshold = 5
	rejectionWindow    = time.Minute
	globalRejectPause  = 30 * time.Second

	globalWindowKey = "ratelimit:global"
)

// GlobalLimiter hands out send tokens against the global messages-per-second
// cap. Acquire blocks until a token is available or ctx is done.
type GlobalLimiter interface {
	Acquire(ctx context.Context) error
}

// NewGlobalLimiter picks the limiter implementation. The shared variant
// keeps the sliding window in the fast store so several engine processes
// honor one combined cap; the local variant is a plain in-process token
// bucket for single-instance deployments.
func NewGlobalLimiter(c cache.Cache, perSecond int, shared bool) GlobalLimiter {
	if shared {
		return &windowLimiter{cache: c, limit: perSecond}
	}
	return &localLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond)}
}

// windowLimiter implements the cap as a one-second sliding window of send
// ticks in the fast store. Every grant appends a tick; a full window waits
// until the oldest tick ages out.
type windowLimiter struct {
	cache cache.Cache
	limit int
	// mu makes count-then-reserve one step. Without it, concurrent acquirers
	// all observe a non-full window and overshoot the cap.
	mu sync.Mutex
}

func (l *windowLimiter) Acquire(ctx context.Context) error {
	for {
		granted, wait, err := l.reserve(ctx)
		if err != nil {
			return err
		}
		if granted {
			return nil
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve counts the window and, if under the cap, appends the tick in the
// same critical section. On a full window it returns how long to wait before
// the next attempt.
func (l *windowLimiter) reserve(ctx context.Context) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	since := now.Add(-time.Second)
	count, err := l.cache.WindowCount(ctx, globalWindowKey, since)
	if err != nil {
		return false, 0, fmt.Errorf("rate window count: %w", err)
	}
	if count < l.limit {
		// Ticks only matter inside the window; a short TTL keeps the
		// keyspace from growing.
		if err := l.cache.WindowAdd(ctx, globalWindowKey, uuid.NewString(), now, 2*time.Second); err != nil {
			return false, 0, fmt.Errorf("rate window add: %w", err)
		}
		return true, 0, nil
	}

	wait := 20 * time.Millisecond
	if oldest, found, err := l.cache.WindowOldest(ctx, globalWindowKey, since); err == nil && found {
		if until := oldest.Add(time.Second).Sub(now); until > wait {
			wait = until
		}
	}
	return false, wait, nil
}

type localLimiter struct {
	limiter *rate.Limiter
}

func (l *localLimiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// RateLimiter combines everything a worker must clear before a send: the
// global pause after repeated platform rejections, the global per-second
// cap, and the per-destination cooldown. It also tracks the per-chat and
// global circuit breakers.
type RateLimiter struct {
	global GlobalLimiter
	cache  cache.Cache

	mu           sync.Mutex
	destLocks    map[int64]*sync.Mutex
	failures     map[int64]int
	breakerUntil map[int64]time.Time
	rejections   []time.Time
	globalUntil  time.Time
}

// NewRateLimiter returns a limiter over the given global token source.
func NewRateLimiter(global GlobalLimiter, c cache.Cache) *RateLimiter {
	return &RateLimiter{
		global:       global,
		cache:        c,
		destLocks:    make(map[int64]*sync.Mutex),
		failures:     make(map[int64]int),
		breakerUntil: make(map[int64]time.Time),
	}
}

// DestLock returns the mutex serializing sends to one destination. Holding
// it across token acquisition and the send keeps per-destination delivery
// in FIFO order.
func (r *RateLimiter) DestLock(chatID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.destLocks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		r.destLocks[chatID] = lock
	}
	return lock
}

// Acquire blocks until the send to chatID may go out: global pause over,
// global token granted, destination cooldown elapsed. On return the cooldown
// stamp has been advanced.
func (r *RateLimiter) Acquire(ctx context.Context, chatID int64, kind store.ChatKind) error {
	for {
		pause := r.GlobalPauseRemaining()
		if pause <= 0 {
			break
		}
		if err := sleepCtx(ctx, pause); err != nil {
			return err
		}
	}
	if err := r.global.Acquire(ctx); err != nil {
		return err
	}
	return r.waitCooldown(ctx, chatID, kind)
}

// CooldownFor returns the per-destination spacing for a chat kind.
func CooldownFor(kind store.ChatKind) time.Duration {
	if kind.IsGroup() {
		return cooldownGroup
	}
	return cooldownPrivate
}

func (r *RateLimiter) waitCooldown(ctx context.Context, chatID int64, kind store.ChatKind) error {
	cooldown := CooldownFor(kind)
	key := fmt.Sprintf("cooldown:%d", chatID)

	if v, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		if lastMilli, err := strconv.ParseInt(v, 10, 64); err == nil {
			next := time.UnixMilli(lastMilli).Add(cooldown)
			if wait := time.Until(next); wait > 0 {
				if err := sleepCtx(ctx, wait); err != nil {
					return err
				}
			}
		}
	}
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := r.cache.Set(ctx, key, stamp, cooldown+2*time.Second); err != nil {
		slog.Warn("failed to stamp cooldown", "chat_id", chatID, "error", err)
	}
	return nil
}

// ReportSuccess resets the destination's failure streak.
func (r *RateLimiter) ReportSuccess(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failures, chatID)
}

// ReportFailure counts a transient failure against the destination and trips
// its breaker after breakerThreshold consecutive failures. Returns true when
// this call tripped it.
func (r *RateLimiter) ReportFailure(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[chatID]++
	if r.failures[chatID] < breakerThreshold {
		return false
	}
	delete(r.failures, chatID)
	r.breakerUntil[chatID] = time.Now().Add(breakerPause)
	slog.Warn("chat breaker tripped", "chat_id", chatID, "pause", breakerPause)
	return true
}

// BreakerRemaining returns how long the destination's breaker stays open, or
// zero when it is closed.
func (r *RateLimiter) BreakerRemaining(chatID int64) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.breakerUntil[chatID]
	if !ok {
		return 0
	}
	remaining := time.Until(until)
	if remaining <= 0 {
		delete(r.breakerUntil, chatID)
		return 0
	}
	return remaining
}

// Report429 records a platform rate rejection and trips the global pause
// when rejectionThreshold of them land inside the rejection window. Returns
// true when this call tripped it.
func (r *RateLimiter) Report429() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	kept := r.rejections[:0]
	for _, at := range r.rejections {
		if now.Sub(at) < rejectionWindow {
			kept = append(kept, at)
		}
	}
	r.rejections = append(kept, now)

	if len(r.rejections) < rejectionThreshold {
		return false
	}
	r.rejections = r.rejections[:0]
	r.globalUntil = now.Add(globalRejectPause)
	slog.Warn("global rejection breaker tripped", "pause", globalRejectPause)
	return true
}

// GlobalPauseRemaining returns how long workers stay parked, or zero.
func (r *RateLimiter) GlobalPauseRemaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	remaining := time.Until(r.globalUntil)
	if remaining <= 0 {
		return 0
	}
	return remaining
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
