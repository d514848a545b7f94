package tree

import (
	"testing"

	"github.com/example/comments-platform/internal/comments/store"
)

func flatNodes(n int) []*Node {
	out := make([]*Node, n)
	for i := range out {
		out[i] = &Node{Comment: store.Comment{ID: int64(i + 1)}}
	}
	return out
}

func TestPaginateWindows(t *testing.T) {
	flat := flatNodes(5)

	p := Paginate(flat, 2, 1)
	if p.TotalPages != 3 || p.Total != 5 {
		t.Fatalf("totals = %d pages / %d items, want 3 / 5", p.TotalPages, p.Total)
	}
	if got := ids(p.Items); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("page 1 = %v, want [1 2]", got)
	}
	if p.WindowStart != 1 || p.WindowEnd != 2 {
		t.Fatalf("window = %d..%d, want 1..2", p.WindowStart, p.WindowEnd)
	}

	p = Paginate(flat, 2, 3)
	if got := ids(p.Items); len(got) != 1 || got[0] != 5 {
		t.Fatalf("last page = %v, want [5]", got)
	}
	if p.WindowStart != 5 || p.WindowEnd != 5 {
		t.Fatalf("window = %d..%d, want 5..5", p.WindowStart, p.WindowEnd)
	}
}

func TestPaginateOutOfRangeNormalizesToFirst(t *testing.T) {
	flat := flatNodes(5)
	for _, page := range []int{-1, 0, 4, 99} {
		p := Paginate(flat, 2, page)
		if p.Page != 1 {
			t.Errorf("page %d normalized to %d, want 1", page, p.Page)
		}
		if got := ids(p.Items); got[0] != 1 {
			t.Errorf("page %d items = %v, want start of page 1", page, got)
		}
	}
}

func TestPaginateDisabled(t *testing.T) {
	flat := flatNodes(5)
	p := Paginate(flat, 0, 7)
	if p.Page != 1 || p.TotalPages != 1 || len(p.Items) != 5 {
		t.Fatalf("disabled pagination = %+v, want everything on one page", p)
	}
}

func TestPaginateEmpty(t *testing.T) {
	p := Paginate(nil, 10, 1)
	if p.Total != 0 || p.TotalPages != 1 || p.WindowStart != 0 || p.WindowEnd != 0 {
		t.Fatalf("empty pagination = %+v", p)
	}
}

func TestPageOf(t *testing.T) {
	flat := flatNodes(5)
	if got := PageOf(flat, 3, 2); got != 2 {
		t.Fatalf("PageOf(3) = %d, want 2", got)
	}
	if got := PageOf(flat, 5, 2); got != 3 {
		t.Fatalf("PageOf(5) = %d, want 3", got)
	}
	if got := PageOf(flat, 42, 2); got != 0 {
		t.Fatalf("PageOf(missing) = %d, want 0", got)
	}
	if got := PageOf(flat, 4, 0); got != 1 {
		t.Fatalf("PageOf with pagination disabled = %d, want 1", got)
	}
}
