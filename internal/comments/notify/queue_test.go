package notify

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/example/comments-platform/internal/comments/store"
)

func subscriber(id, parent int64, email string, pref store.NotifyPref) store.Comment {
	return store.Comment{
		ID:         id,
		ParentID:   parent,
		PageID:     "blog/post-1",
		FieldID:    "comments",
		Email:      email,
		Status:     store.StatusApproved,
		NotifyPref: pref,
	}
}

func TestRecipientsRepliesMode(t *testing.T) {
	thread := []store.Comment{
		subscriber(1, 0, "parent@example.com", store.NotifyReplies),
		subscriber(2, 0, "bystander@example.com", store.NotifyAll),
	}
	reply := subscriber(3, 1, "author@example.com", store.NotifyNone)

	got := Recipients(thread, reply, ModeReplies)
	if len(got) != 1 || got[0].Email != "parent@example.com" || got[0].CommentID != 1 {
		t.Fatalf("recipients = %v, want only the parent author", got)
	}

	// Top-level comments notify nobody in replies mode.
	if got := Recipients(thread, subscriber(4, 0, "new@example.com", store.NotifyNone), ModeReplies); got != nil {
		t.Fatalf("top-level recipients = %v, want none", got)
	}
}

func TestRecipientsAllMode(t *testing.T) {
	thread := []store.Comment{
		subscriber(1, 0, "parent@example.com", store.NotifyReplies),
		subscriber(2, 0, "watcher@example.com", store.NotifyAll),
		subscriber(3, 0, "quiet@example.com", store.NotifyNone),
	}
	reply := subscriber(4, 1, "author@example.com", store.NotifyNone)

	got := Recipients(thread, reply, ModeAll)
	if len(got) != 2 {
		t.Fatalf("recipients = %v, want parent and watcher", got)
	}
	if got[0].Email != "parent@example.com" || got[0].CommentID != 1 {
		t.Fatalf("parent must come first, got %v", got[0])
	}
	if got[1].Email != "watcher@example.com" || got[1].CommentID != 2 {
		t.Fatalf("watcher = %v", got[1])
	}
}

func TestRecipientsExcludesSelfAndDuplicates(t *testing.T) {
	thread := []store.Comment{
		subscriber(1, 0, "Same@Example.com", store.NotifyReplies),
		subscriber(2, 0, "same@example.com", store.NotifyAll),
		subscriber(3, 0, "author@example.com", store.NotifyAll),
	}
	// The author replies to their own earlier comment on a thread where
	// another email subscribed twice.
	reply := subscriber(4, 1, "AUTHOR@example.com", store.NotifyAll)

	got := Recipients(thread, reply, ModeAll)
	if len(got) != 1 {
		t.Fatalf("recipients = %v, want one after self-exclusion and dedup", got)
	}
	if got[0].CommentID != 1 {
		t.Fatalf("dedup kept %v, want the parent subscription", got[0])
	}
}

func TestRecipientsModeOff(t *testing.T) {
	thread := []store.Comment{subscriber(1, 0, "parent@example.com", store.NotifyAll)}
	if got := Recipients(thread, subscriber(2, 1, "x@example.com", store.NotifyNone), ModeOff); got != nil {
		t.Fatalf("recipients = %v, want none in off mode", got)
	}
}

func TestEnqueueForNewComment(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()

	parent, err := st.CreateComment(ctx, store.Comment{
		PageID: "blog/post-1", FieldID: "comments",
		Author: "Ada", Email: "parent@example.com", Text: "first",
		Status: store.StatusApproved, NotifyPref: store.NotifyReplies,
	})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	reply, err := st.CreateComment(ctx, store.Comment{
		ParentID: parent.ID, PageID: "blog/post-1", FieldID: "comments",
		Author: "Bob", Email: "bob@example.com", Text: "reply",
		Status: store.StatusApproved,
	})
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}

	q := &Queue{Store: st, Mode: ModeReplies, Log: zap.NewNop()}
	n, err := q.EnqueueForNewComment(ctx, reply)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if n != 1 {
		t.Fatalf("queued = %d, want 1", n)
	}

	pending, _ := st.PendingNotifications(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("pending = %d", len(pending))
	}
	e := pending[0]
	if e.RecipientEmail != "parent@example.com" || e.ParentCommentID != parent.ID || e.TriggeringCommentID != reply.ID {
		t.Fatalf("entry = %+v", e)
	}

	// Re-running for the same comment must not duplicate entries.
	if _, err := q.EnqueueForNewComment(ctx, reply); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	pending, _ = st.PendingNotifications(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("pending after rerun = %d, want 1", len(pending))
	}
}
