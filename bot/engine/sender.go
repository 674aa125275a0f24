package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hrygo/mediahub/store"
)

// worker consumes tasks until ctx is done. One task is delivered at a time;
// per-destination FIFO comes from holding the destination lock across the
// whole token-wait-and-send sequence.
func (d *Distributor) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-d.queue:
			d.metrics.QueueDepth.Set(float64(len(d.queue)))
			d.process(ctx, task)
		}
	}
}

func (d *Distributor) process(ctx context.Context, task *SendTask) {
	if _, gone := d.dead.Load(task.DestChat); gone {
		d.metrics.SendsTotal.WithLabelValues("dropped").Inc()
		return
	}

	// An open breaker parks the task, not the worker.
	if remaining := d.limiter.BreakerRemaining(task.DestChat); remaining > 0 {
		d.requeue(ctx, task, remaining)
		return
	}

	lock := d.limiter.DestLock(task.DestChat)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	if err := d.limiter.Acquire(ctx, task.DestChat, task.DestKind); err != nil {
		return
	}

	ids, err := d.send(ctx, task)
	d.metrics.SendDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		d.record(ctx, task, ids)
		d.limiter.ReportSuccess(task.DestChat)
		d.metrics.SendsTotal.WithLabelValues("success").Inc()
		return
	}
	d.handleSendError(ctx, task, err)
}

// send dispatches on the message kind. Captions and text bodies are composed
// here so truncation happens once per delivery.
func (d *Distributor) send(ctx context.Context, task *SendTask) ([]int, error) {
	nm := task.Msg
	reply := Reply{MessageID: task.ReplyTo}

	switch nm.Kind {
	case KindText:
		body := Compose(nm.Text, task.AliasTag, task.Signature, TextLimit)
		id, err := d.platform.SendText(ctx, task.DestChat, body, reply)
		return []int{id}, err
	case KindAlbum:
		items := make([]MediaItem, len(nm.Album))
		for i, part := range nm.Album {
			caption := part.Caption
			// Attribution rides on the first part only.
			if i == 0 {
				caption = Compose(caption, task.AliasTag, task.Signature, CaptionLimit)
			}
			items[i] = MediaItem{Kind: part.Kind, FileID: part.FileID, Caption: caption}
		}
		return d.platform.SendMediaGroup(ctx, task.DestChat, items, reply)
	case KindVideoNote:
		// Video notes carry no caption on the platform.
		id, err := d.platform.SendVideoNote(ctx, task.DestChat, nm.FileID, nm.Length, reply)
		return []int{id}, err
	case KindSticker:
		id, err := d.platform.SendSticker(ctx, task.DestChat, nm.FileID, reply)
		return []int{id}, err
	}

	caption := Compose(nm.Caption, task.AliasTag, task.Signature, CaptionLimit)
	var send func(context.Context, int64, string, string, Reply) (int, error)
	switch nm.Kind {
	case KindPhoto:
		send = d.platform.SendPhoto
	case KindVideo:
		send = d.platform.SendVideo
	case KindAnimation:
		send = d.platform.SendAnimation
	case KindAudio:
		send = d.platform.SendAudio
	case KindDocument:
		send = d.platform.SendDocument
	default:
		send = d.platform.SendVoice
	}
	id, err := send(ctx, task.DestChat, nm.FileID, caption, reply)
	return []int{id}, err
}

// record writes the send-log rows for a delivered task. Album parts map
// positionally onto the returned ids.
func (d *Distributor) record(ctx context.Context, task *SendTask, ids []int) {
	nm := task.Msg
	var entries []*store.SendLogEntry
	if nm.Kind == KindAlbum {
		n := len(ids)
		if len(nm.Album) < n {
			n = len(nm.Album)
		}
		for i := 0; i < n; i++ {
			entries = append(entries, &store.SendLogEntry{
				SourceChatID:    nm.Album[i].SourceChatID,
				SourceMessageID: nm.Album[i].SourceMessageID,
				DestChatID:      task.DestChat,
				DestMessageID:   ids[i],
				SourceUserID:    nm.SourceUserID,
			})
		}
	} else if len(ids) > 0 {
		entries = append(entries, &store.SendLogEntry{
			SourceChatID:    nm.SourceChatID,
			SourceMessageID: nm.SourceMessageID,
			DestChatID:      task.DestChat,
			DestMessageID:   ids[0],
			SourceUserID:    nm.SourceUserID,
		})
	}
	if err := d.store.RecordSends(ctx, entries); err != nil {
		slog.Error("failed to record sends",
			"source_chat", nm.SourceChatID, "dest_chat", task.DestChat, "error", err)
	}
}

func (d *Distributor) handleSendError(ctx context.Context, task *SendTask, err error) {
	var perr *PlatformError
	if !errors.As(err, &perr) {
		perr = &PlatformError{Kind: ErrNetwork, Err: err}
	}

	log := slog.With(
		"dest_chat", task.DestChat,
		"source_chat", task.Msg.SourceChatID,
		"source_message", task.Msg.SourceMessageID,
		"attempt", task.Attempt+1,
		"kind", perr.Kind.String(),
	)

	switch perr.Kind {
	case ErrTooManyRequests:
		d.metrics.RateRejections.Inc()
		if d.limiter.Report429() {
			d.metrics.BreakerTrips.WithLabelValues("global").Inc()
		}
		task.Attempt++
		if task.Attempt < maxAttempts {
			delay := perr.RetryAfter
			if delay <= 0 {
				delay = time.Second
			}
			log.Warn("rate limited, retrying", "retry_after", delay)
			d.requeue(ctx, task, delay)
			d.metrics.SendsTotal.WithLabelValues("retried").Inc()
			return
		}
		log.Error("rate limited, retries exhausted")
		d.metrics.SendsTotal.WithLabelValues("dropped").Inc()

	case ErrMigrated:
		if perr.MigrateTo != 0 && !task.migrated {
			log.Info("chat migrated, re-routing", "new_chat", perr.MigrateTo)
			if err := d.store.RenameChat(ctx, task.DestChat, perr.MigrateTo); err != nil {
				slog.Error("failed to record migration", "error", err)
			}
			task.DestChat = perr.MigrateTo
			task.DestKind = store.ChatKindSupergroup
			task.migrated = true
			d.requeue(ctx, task, 0)
			return
		}
		log.Error("migration loop, dropping task")
		d.metrics.SendsTotal.WithLabelValues("dropped").Inc()

	case ErrForbidden, ErrChatNotFound:
		log.Info("destination unreachable, deactivating")
		if err := d.store.DeactivateChat(ctx, task.DestChat); err != nil {
			slog.Error("failed to deactivate chat", "chat_id", task.DestChat, "error", err)
		}
		d.dead.Store(task.DestChat, true)
		d.metrics.SendsTotal.WithLabelValues("deactivated").Inc()

	case ErrBadRequest:
		log.Warn("send rejected", "error", perr.Err)
		d.metrics.SendsTotal.WithLabelValues("rejected").Inc()

	default:
		if d.limiter.ReportFailure(task.DestChat) {
			d.metrics.BreakerTrips.WithLabelValues("chat").Inc()
		}
		task.Attempt++
		if task.Attempt < maxAttempts {
			log.Warn("transient send failure, retrying", "error", perr.Err)
			d.requeue(ctx, task, 2*time.Second)
			d.metrics.SendsTotal.WithLabelValues("retried").Inc()
			return
		}
		log.Error("transient send failure, retries exhausted", "error", perr.Err)
		d.metrics.SendsTotal.WithLabelValues("dropped").Inc()
	}
}
