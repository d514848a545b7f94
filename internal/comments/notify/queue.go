// Package notify computes reply-notification recipients and writes them to
// the queue that decouples comment saves from mail dispatch.
package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/comments-platform/internal/comments/store"
)

// Mode is the deployment-wide notification setting.
type Mode string

const (
	ModeOff     Mode = "off"
	ModeReplies Mode = "replies"
	ModeAll     Mode = "all" // replies plus thread-wide subscriptions
)

// ParseMode maps config strings, falling back to replies-only.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return ModeOff
	case "all":
		return ModeAll
	default:
		return ModeReplies
	}
}

// SubjectEnqueued wakes the notification worker after new queue entries.
const SubjectEnqueued = "comments.notifications.enqueued"

// Recipient pairs an email with the comment whose subscription earned it.
type Recipient struct {
	Email     string
	CommentID int64
}

// Recipients computes who should hear about a new comment: the direct
// parent's author when they subscribed to replies, plus (in mode all) every
// other commenter on the thread who opted into all new comments. The
// submitting author never notifies themselves, and an email qualifying via
// both routes appears once.
func Recipients(thread []store.Comment, c store.Comment, mode Mode) []Recipient {
	if mode == ModeOff {
		return nil
	}

	var out []Recipient
	seen := make(map[string]bool)
	self := strings.ToLower(strings.TrimSpace(c.Email))

	add := func(email string, commentID int64) {
		key := strings.ToLower(strings.TrimSpace(email))
		if key == "" || key == self || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Recipient{Email: email, CommentID: commentID})
	}

	// Direct parent first, so the queue entry points at the replied-to
	// comment rather than an arbitrary subscription.
	if c.ParentID != 0 {
		for _, other := range thread {
			if other.ID == c.ParentID {
				if other.NotifyPref == store.NotifyReplies || other.NotifyPref == store.NotifyAll {
					add(other.Email, other.ID)
				}
				break
			}
		}
	}

	if mode == ModeAll {
		for _, other := range thread {
			if other.ID == c.ID {
				continue
			}
			if other.NotifyPref == store.NotifyAll {
				add(other.Email, other.ID)
			}
		}
	}
	return out
}

// Queue writes notification recipients and nudges the worker.
type Queue struct {
	Store store.Store
	NATS  *nats.Conn // optional; nil means the worker relies on its ticker
	Mode  Mode
	Log   *zap.Logger
}

type enqueuedEvent struct {
	CommentID int64  `json:"comment_id"`
	PageID    string `json:"page_id"`
	FieldID   string `json:"field_id"`
	Count     int    `json:"count"`
}

// EnqueueForNewComment computes the recipient set for c and persists one
// queue entry per recipient. An empty set writes nothing and reports zero.
func (q *Queue) EnqueueForNewComment(ctx context.Context, c store.Comment) (int, error) {
	if q.Mode == ModeOff {
		return 0, nil
	}

	thread, err := q.Store.ListThread(ctx, c.PageID, c.FieldID)
	if err != nil {
		return 0, err
	}
	recipients := Recipients(thread, c, q.Mode)
	if len(recipients) == 0 {
		return 0, nil
	}

	entries := make([]store.QueueEntry, len(recipients))
	for i, r := range recipients {
		entries[i] = store.QueueEntry{
			ParentCommentID:     r.CommentID,
			TriggeringCommentID: c.ID,
			RecipientEmail:      r.Email,
			PageID:              c.PageID,
			FieldID:             c.FieldID,
		}
	}
	if err := q.Store.Enqueue(ctx, entries); err != nil {
		return 0, err
	}

	if q.NATS != nil {
		payload, _ := json.Marshal(enqueuedEvent{
			CommentID: c.ID,
			PageID:    c.PageID,
			FieldID:   c.FieldID,
			Count:     len(entries),
		})
		if err := q.NATS.Publish(SubjectEnqueued, payload); err != nil {
			// The ticker drain picks the entries up anyway.
			q.Log.Warn("notification wake publish failed", zap.Error(err))
		}
	}
	return len(entries), nil
}
