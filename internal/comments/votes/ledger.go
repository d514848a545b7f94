// Package votes is the vote ledger: at most one vote per (comment, identity)
// within the cooldown window, tallies incremented atomically by the store.
package votes

import (
	"context"
	"errors"
	"time"

	"github.com/example/comments-platform/internal/comments/store"
)

// Direction of a vote.
type Direction int16

const (
	Up   Direction = 1
	Down Direction = -1
)

// ParseDirection maps the wire values "up" and "down".
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "up":
		return Up, true
	case "down":
		return Down, true
	}
	return 0, false
}

// Result is the outcome of a cast. A rejected vote is an expected, non-fatal
// outcome, not an error.
type Result struct {
	Accepted          bool          `json:"accepted"`
	Upvotes           int           `json:"upvotes"`
	Downvotes         int           `json:"downvotes"`
	CooldownRemaining time.Duration `json:"-"`
}

// Ledger casts votes against the store.
type Ledger struct {
	Store    store.Store
	Cooldown time.Duration
}

// Cast records a vote for the given identity. Returns a rejected Result when
// the identity already voted on this comment within the cooldown window;
// store failures propagate as errors with no tally change.
func (l Ledger) Cast(ctx context.Context, commentID int64, id store.Identity, dir Direction) (Result, error) {
	v := store.Vote{
		CommentID: commentID,
		UserID:    id.UserID,
		IP:        id.IP,
		UserAgent: id.UserAgent,
		Direction: int16(dir),
	}

	updated, err := l.Store.CastVote(ctx, v, l.Cooldown)
	if err != nil {
		var already *store.AlreadyVotedError
		if errors.As(err, &already) {
			// Tallies unchanged; report the current ones if we can get them.
			res := Result{Accepted: false, CooldownRemaining: already.Remaining}
			if c, gerr := l.Store.GetComment(ctx, commentID); gerr == nil {
				res.Upvotes = c.Upvotes
				res.Downvotes = c.Downvotes
			}
			return res, nil
		}
		return Result{}, err
	}

	return Result{Accepted: true, Upvotes: updated.Upvotes, Downvotes: updated.Downvotes}, nil
}
