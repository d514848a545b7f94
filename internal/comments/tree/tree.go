// Package tree assembles the ordered, depth-bounded comment forest that the
// rendering layer walks. It is pure: flat rows in, annotated nodes out.
package tree

import (
	"sort"

	"github.com/example/comments-platform/internal/comments/store"
)

// Node is one comment in the assembled forest, annotated with the metadata a
// renderer needs. Children are kept for tree walkers; the flattened form used
// for pagination does not serialize them.
type Node struct {
	Comment  store.Comment `json:"comment"`
	Children []*Node       `json:"-"`

	// Depth is the effective rendering level, clamped to the configured
	// maximum. Nodes past the maximum are still attached, only rendered at
	// the clamped level.
	Depth int `json:"depth"`
	// LevelIndex is the 1-based ordinal among siblings, in render order.
	LevelIndex   int  `json:"level_index"`
	First        bool `json:"first"`
	Last         bool `json:"last"`
	SiblingCount int  `json:"sibling_count"`
	// ReplyAllowed is withdrawn for nodes at or beyond the maximum depth.
	ReplyAllowed bool `json:"reply_allowed"`
}

// Forest is the assembled tree of displayable comments.
type Forest struct {
	Roots []*Node
	Size  int
}

// Build turns a flat row set into an ordered forest.
//
// Only displayable statuses (approved, spam-with-replies) are included.
// Children are ordered by sort index ascending; sortDescending reverses the
// top level only, reply order within a thread stays chronological. A
// displayable comment whose parent is filtered out is promoted to the top
// level rather than dropped.
func Build(comments []store.Comment, maxDepth int, sortDescending bool) *Forest {
	displayable := make([]store.Comment, 0, len(comments))
	present := make(map[int64]bool, len(comments))
	for _, c := range comments {
		if c.Status.Displayable() {
			displayable = append(displayable, c)
			present[c.ID] = true
		}
	}

	byParent := make(map[int64][]store.Comment)
	for _, c := range displayable {
		pid := c.ParentID
		if pid != 0 && !present[pid] {
			pid = 0
		}
		byParent[pid] = append(byParent[pid], c)
	}
	for pid := range byParent {
		group := byParent[pid]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].SortIndex != group[j].SortIndex {
				return group[i].SortIndex < group[j].SortIndex
			}
			return group[i].ID < group[j].ID
		})
	}

	roots := byParent[0]
	if sortDescending {
		for i, j := 0, len(roots)-1; i < j; i, j = i+1, j-1 {
			roots[i], roots[j] = roots[j], roots[i]
		}
	}

	f := &Forest{}
	f.Roots = f.attach(roots, byParent, 0, maxDepth)
	return f
}

func (f *Forest) attach(group []store.Comment, byParent map[int64][]store.Comment, depth, maxDepth int) []*Node {
	if len(group) == 0 {
		return nil
	}
	nodes := make([]*Node, len(group))
	for i, c := range group {
		n := &Node{
			Comment:      c,
			Depth:        depth,
			LevelIndex:   i + 1,
			First:        i == 0,
			Last:         i == len(group)-1,
			SiblingCount: len(group),
			ReplyAllowed: depth < maxDepth,
		}
		if n.Depth > maxDepth {
			n.Depth = maxDepth
		}
		childDepth := depth + 1
		n.Children = f.attach(byParent[c.ID], byParent, childDepth, maxDepth)
		nodes[i] = n
		f.Size++
	}
	return nodes
}

// Flatten returns the depth-first ordering of the forest, replies inlined
// after their parent. This is the pagination unit.
func (f *Forest) Flatten() []*Node {
	out := make([]*Node, 0, f.Size)
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			out = append(out, n)
			walk(n.Children)
		}
	}
	walk(f.Roots)
	return out
}
