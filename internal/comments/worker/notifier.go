// Package worker drains the notification queue and delivers reply emails.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/comments-platform/internal/comments/mail"
	"github.com/example/comments-platform/internal/comments/notify"
	"github.com/example/comments-platform/internal/comments/store"
)

const (
	defaultBatchSize = 50
	defaultInterval  = time.Minute
)

// Notifier is the queue-draining worker. Queue entries are the retry unit: an
// entry is deleted only after its email went out, so a failed send is retried
// on the next drain.
type Notifier struct {
	Store     store.Store
	Mailer    mail.Sender
	Log       *zap.Logger
	BatchSize int
	Interval  time.Duration
	BaseURL   string
}

// Run drains the queue until ctx is cancelled. A NATS wake on
// notify.SubjectEnqueued triggers an immediate drain; the ticker is the
// fallback when the wake channel is absent or a message is lost.
func (w *Notifier) Run(ctx context.Context, nc *nats.Conn) error {
	interval := w.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	var wake chan *nats.Msg
	if nc != nil {
		wake = make(chan *nats.Msg, 16)
		sub, err := nc.ChanSubscribe(notify.SubjectEnqueued, wake)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", notify.SubjectEnqueued, err)
		}
		defer sub.Unsubscribe()
		w.Log.Info("notification worker subscribed", zap.String("subject", notify.SubjectEnqueued))
	} else {
		w.Log.Warn("nats unavailable, notification worker running on ticker only")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
			w.Drain(ctx)
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain processes one batch of pending notifications.
func (w *Notifier) Drain(ctx context.Context) {
	batch := w.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	entries, err := w.Store.PendingNotifications(ctx, batch)
	if err != nil {
		w.Log.Error("load pending notifications failed", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, entry)
	}
}

func (w *Notifier) process(ctx context.Context, entry store.QueueEntry) {
	trigger, err := w.Store.GetComment(ctx, entry.TriggeringCommentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Deleted before delivery; nothing to say.
		w.discard(ctx, entry, "triggering comment gone")
		return
	case err != nil:
		w.Log.Error("load triggering comment failed", zap.Int64("entry_id", entry.ID), zap.Error(err))
		return
	}
	if !trigger.Status.Displayable() {
		w.discard(ctx, entry, "triggering comment not displayable")
		return
	}

	subscribed, err := w.Store.GetComment(ctx, entry.ParentCommentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		w.discard(ctx, entry, "subscribed comment gone")
		return
	case err != nil:
		w.Log.Error("load subscribed comment failed", zap.Int64("entry_id", entry.ID), zap.Error(err))
		return
	}
	if subscribed.NotifyPref == store.NotifyNone {
		// Unsubscribed while the entry was queued.
		w.discard(ctx, entry, "recipient unsubscribed")
		return
	}

	n := mail.ReplyNotification{
		To:             entry.RecipientEmail,
		Author:         trigger.Author,
		Text:           trigger.Text,
		ThreadURL:      fmt.Sprintf("%s/%s#comment-%d", w.BaseURL, entry.PageID, trigger.ID),
		UnsubscribeURL: fmt.Sprintf("%s/v1/comments/remote?code=%s&notification=0", w.BaseURL, subscribed.Code),
	}
	if trigger.ParentID == subscribed.ID {
		n.OriginalText = subscribed.Text
	}

	if err := w.Mailer.SendReplyNotification(n); err != nil {
		// Entry stays queued for the next drain.
		w.Log.Error("reply notification failed",
			zap.Int64("entry_id", entry.ID),
			zap.String("recipient", entry.RecipientEmail),
			zap.Error(err))
		return
	}

	if err := w.Store.DeleteNotification(ctx, entry.ID); err != nil {
		w.Log.Error("delete sent notification failed", zap.Int64("entry_id", entry.ID), zap.Error(err))
		return
	}
	w.Log.Info("reply notification sent",
		zap.Int64("entry_id", entry.ID),
		zap.Int64("comment_id", trigger.ID))
}

func (w *Notifier) discard(ctx context.Context, entry store.QueueEntry, reason string) {
	if err := w.Store.DeleteNotification(ctx, entry.ID); err != nil {
		w.Log.Error("discard notification failed", zap.Int64("entry_id", entry.ID), zap.Error(err))
		return
	}
	w.Log.Debug("notification discarded", zap.Int64("entry_id", entry.ID), zap.String("reason", reason))
}
