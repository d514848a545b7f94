package votes

import (
	"context"
	"testing"
	"time"

	"github.com/example/comments-platform/internal/comments/store"
)

func TestParseDirection(t *testing.T) {
	if d, ok := ParseDirection("up"); !ok || d != Up {
		t.Fatalf("up parsed as %d, %v", d, ok)
	}
	if d, ok := ParseDirection("down"); !ok || d != Down {
		t.Fatalf("down parsed as %d, %v", d, ok)
	}
	for _, bad := range []string{"", "UP", "sideways", "1"} {
		if _, ok := ParseDirection(bad); ok {
			t.Errorf("%q parsed as valid", bad)
		}
	}
}

func TestCastAcceptedAndRejected(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	c, err := st.CreateComment(ctx, store.Comment{
		PageID: "blog/post-1", FieldID: "comments",
		Author: "Ada", Email: "a@example.com", Text: "x",
		Status: store.StatusApproved,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	l := Ledger{Store: st, Cooldown: 24 * time.Hour}
	id := store.Identity{IP: "203.0.113.9", UserAgent: "browser"}

	res, err := l.Cast(ctx, c.ID, id, Up)
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	if !res.Accepted || res.Upvotes != 1 || res.Downvotes != 0 {
		t.Fatalf("first cast = %+v", res)
	}

	// A repeat within the cooldown is a result, not an error, and carries
	// the unchanged tallies.
	res, err = l.Cast(ctx, c.ID, id, Down)
	if err != nil {
		t.Fatalf("repeat cast: %v", err)
	}
	if res.Accepted || res.Upvotes != 1 || res.Downvotes != 0 {
		t.Fatalf("repeat cast = %+v", res)
	}
	if res.CooldownRemaining <= 0 {
		t.Fatalf("cooldown remaining = %s", res.CooldownRemaining)
	}
}

func TestCastZeroCooldownAlwaysAccepts(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	c, _ := st.CreateComment(ctx, store.Comment{
		PageID: "blog/post-1", FieldID: "comments",
		Author: "Ada", Email: "a@example.com", Text: "x",
		Status: store.StatusApproved,
	})

	l := Ledger{Store: st}
	id := store.Identity{IP: "203.0.113.9"}
	for i := 0; i < 3; i++ {
		res, err := l.Cast(ctx, c.ID, id, Up)
		if err != nil || !res.Accepted {
			t.Fatalf("cast %d = %+v, %v", i, res, err)
		}
	}
	got, _ := st.GetComment(ctx, c.ID)
	if got.Upvotes != 3 {
		t.Fatalf("upvotes = %d, want 3", got.Upvotes)
	}
}

func TestCastUnknownComment(t *testing.T) {
	l := Ledger{Store: store.NewInMemoryStore(), Cooldown: time.Hour}
	if _, err := l.Cast(context.Background(), 42, store.Identity{IP: "1.2.3.4"}, Up); err == nil {
		t.Fatalf("expected error for unknown comment")
	}
}
