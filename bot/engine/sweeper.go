package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/mediahub/store"
)

const (
	sendLogRetention = 48 * time.Hour
	sweepInterval    = time.Hour
	sweepBatchSize   = 500
)

// Sweeper prunes send-log rows past the retention window, in bounded batches
// so a backlog never produces one giant delete.
type Sweeper struct {
	store   *store.Store
	metrics *Metrics

	retention time.Duration
	interval  time.Duration
	batch     int
}

// NewSweeper returns a retention sweeper.
func NewSweeper(s *store.Store, m *Metrics) *Sweeper {
	return &Sweeper{
		store:     s,
		metrics:   m,
		retention: sendLogRetention,
		interval:  sweepInterval,
		batch:     sweepBatchSize,
	}
}

// Run sweeps once immediately, then hourly until ctx is done.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.retention)
	var total int64
	for {
		deleted, err := w.store.PruneSendLog(ctx, cutoff, w.batch)
		if err != nil {
			slog.Error("send log sweep failed", "error", err)
			return
		}
		total += deleted
		w.metrics.SendLogPrunedRows.Add(float64(deleted))
		if int(deleted) < w.batch {
			break
		}
		if ctx.Err() != nil {
			return
		}
	}
	if total > 0 {
		slog.Info("send log swept", "deleted", total, "cutoff", cutoff)
	}
}
