package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/example/comments-platform/internal/comments/mail"
	"github.com/example/comments-platform/internal/comments/store"
)

type recordingMailer struct {
	replies []mail.ReplyNotification
	fail    bool
}

func (m *recordingMailer) SendReplyNotification(n mail.ReplyNotification) error {
	if m.fail {
		return errors.New("smtp down")
	}
	m.replies = append(m.replies, n)
	return nil
}

func (m *recordingMailer) SendStatusChange(mail.StatusChange) error { return nil }
func (m *recordingMailer) SendModeratorAlert(mail.ModeratorAlert) error { return nil }

func seedThread(t *testing.T, st *store.InMemoryStore) (parent, reply store.Comment) {
	t.Helper()
	ctx := context.Background()
	parent, err := st.CreateComment(ctx, store.Comment{
		PageID: "blog/post-1", FieldID: "comments",
		Author: "Ada", Email: "ada@example.com", Text: "first",
		Status: store.StatusApproved, NotifyPref: store.NotifyReplies,
	})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	reply, err = st.CreateComment(ctx, store.Comment{
		ParentID: parent.ID, PageID: "blog/post-1", FieldID: "comments",
		Author: "Bob", Email: "bob@example.com", Text: "nice post",
		Status: store.StatusApproved,
	})
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}
	err = st.Enqueue(ctx, []store.QueueEntry{{
		ParentCommentID:     parent.ID,
		TriggeringCommentID: reply.ID,
		RecipientEmail:      parent.Email,
		PageID:              parent.PageID,
		FieldID:             parent.FieldID,
	}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return parent, reply
}

func TestDrainDeliversAndDeletes(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	parent, reply := seedThread(t, st)

	mailer := &recordingMailer{}
	w := &Notifier{Store: st, Mailer: mailer, Log: zap.NewNop(), BaseURL: "https://example.com"}
	w.Drain(ctx)

	if len(mailer.replies) != 1 {
		t.Fatalf("sent = %d, want 1", len(mailer.replies))
	}
	n := mailer.replies[0]
	if n.To != "ada@example.com" || n.Author != "Bob" || n.Text != reply.Text {
		t.Fatalf("notification = %+v", n)
	}
	if n.OriginalText != parent.Text {
		t.Fatalf("original text = %q", n.OriginalText)
	}
	if !strings.Contains(n.UnsubscribeURL, "notification=0") {
		t.Fatalf("unsubscribe url = %q", n.UnsubscribeURL)
	}
	if !strings.Contains(n.ThreadURL, "#comment-") {
		t.Fatalf("thread url = %q", n.ThreadURL)
	}

	if pending, _ := st.PendingNotifications(ctx, 10); len(pending) != 0 {
		t.Fatalf("entry not deleted after delivery: %v", pending)
	}
}

func TestDrainLeavesEntryOnSendFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	seedThread(t, st)

	mailer := &recordingMailer{fail: true}
	w := &Notifier{Store: st, Mailer: mailer, Log: zap.NewNop(), BaseURL: "https://example.com"}
	w.Drain(ctx)

	pending, _ := st.PendingNotifications(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("failed entry deleted, pending = %v", pending)
	}

	// Once mail recovers the retry drains the entry.
	mailer.fail = false
	w.Drain(ctx)
	if pending, _ := st.PendingNotifications(ctx, 10); len(pending) != 0 {
		t.Fatalf("entry survived successful retry: %v", pending)
	}
	if len(mailer.replies) != 1 {
		t.Fatalf("sent = %d, want 1", len(mailer.replies))
	}
}

func TestDrainDiscardsStaleEntries(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()

	t.Run("triggering comment no longer displayable", func(t *testing.T) {
		_, reply := seedThread(t, st)
		if _, err := st.SetStatus(ctx, reply.ID, store.StatusSpam, false); err != nil {
			t.Fatalf("set status: %v", err)
		}

		mailer := &recordingMailer{}
		w := &Notifier{Store: st, Mailer: mailer, Log: zap.NewNop()}
		w.Drain(ctx)

		if len(mailer.replies) != 0 {
			t.Fatalf("spam comment still notified")
		}
		if pending, _ := st.PendingNotifications(ctx, 10); len(pending) != 0 {
			t.Fatalf("stale entry kept: %v", pending)
		}
	})

	t.Run("recipient unsubscribed meanwhile", func(t *testing.T) {
		parent, _ := seedThread(t, st)
		if err := st.SetNotifyPref(ctx, parent.ID, store.NotifyNone); err != nil {
			t.Fatalf("set pref: %v", err)
		}

		mailer := &recordingMailer{}
		w := &Notifier{Store: st, Mailer: mailer, Log: zap.NewNop()}
		w.Drain(ctx)

		if len(mailer.replies) != 0 {
			t.Fatalf("unsubscribed recipient notified")
		}
		if pending, _ := st.PendingNotifications(ctx, 10); len(pending) != 0 {
			t.Fatalf("stale entry kept: %v", pending)
		}
	})
}
