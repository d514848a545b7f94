// Package store defines the persistence boundary for comments, votes and the
// notification queue, with Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the moderation state of a comment.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusSpam     Status = "spam"
	// StatusSpamReplies marks a comment whose text was removed by a moderator
	// but which keeps live replies, so the node must stay reachable.
	StatusSpamReplies Status = "spam_replies"
)

// Displayable reports whether a comment with this status appears in the
// reader-facing tree.
func (s Status) Displayable() bool {
	return s == StatusApproved || s == StatusSpamReplies
}

// Live reports whether the comment still participates in the thread at all.
// Pending comments count: marking their parent spam must not orphan them.
func (s Status) Live() bool {
	return s != StatusSpam
}

// NotifyPref is a commenter's email notification preference.
type NotifyPref string

const (
	NotifyNone    NotifyPref = "none"
	NotifyReplies NotifyPref = "replies"
	NotifyAll     NotifyPref = "all"
)

// Comment is one submitted comment or reply. ParentID 0 means top-level.
type Comment struct {
	ID               int64      `json:"id"`
	ParentID         int64      `json:"parent_id"`
	PageID           string     `json:"page_id"`
	FieldID          string     `json:"field_id"`
	Author           string     `json:"author"`
	Email            string     `json:"-"`
	Website          string     `json:"website,omitempty"`
	Text             string     `json:"text"`
	Stars            *int       `json:"stars,omitempty"`
	Status           Status     `json:"status"`
	Upvotes          int        `json:"upvotes"`
	Downvotes        int        `json:"downvotes"`
	NotifyPref       NotifyPref `json:"-"`
	SortIndex        int        `json:"sort_index"`
	RemoteChangeUsed bool       `json:"-"`
	Code             string     `json:"-"`
	UserID           string     `json:"-"`
	IP               string     `json:"-"`
	UserAgent        string     `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Identity is the heuristic fingerprint used to deduplicate votes. It is not
// a strong identity; collisions across browsers or NATs are an accepted
// tradeoff for not requiring accounts.
type Identity struct {
	UserID    string
	IP        string
	UserAgent string
}

// Vote is one cast vote. Rows are never mutated and only deleted when their
// comment is deleted.
type Vote struct {
	ID        int64
	CommentID int64
	UserID    string
	IP        string
	UserAgent string
	Direction int16 // +1 or -1
	CreatedAt time.Time
}

// QueueEntry is one pending notification recipient for a new comment.
type QueueEntry struct {
	ID                  int64
	ParentCommentID     int64 // the subscribed comment (0 for thread-wide subscribers without one)
	TriggeringCommentID int64
	RecipientEmail      string
	PageID              string
	FieldID             string
	CreatedAt           time.Time
}

// RatingSummary aggregates the star ratings of a thread's approved comments.
type RatingSummary struct {
	PageID       string  `json:"page_id"`
	FieldID      string  `json:"field_id"`
	AverageStars float64 `json:"average_stars"`
	TotalRatings int     `json:"total_ratings"`
}

// Sentinel errors. Expected business outcomes are typed so callers can branch
// without string matching; anything else is a storage failure.
var (
	ErrNotFound       = errors.New("not found")
	ErrHasReplies     = errors.New("comment has replies")
	ErrRemoteLinkUsed = errors.New("remote change already used")
)

// AlreadyVotedError reports a vote rejected by the cooldown window.
type AlreadyVotedError struct {
	Remaining time.Duration
}

func (e *AlreadyVotedError) Error() string {
	return fmt.Sprintf("already voted, %s of cooldown remaining", e.Remaining)
}

// Store is the persistence contract consumed by the domain packages.
type Store interface {
	// CreateComment persists c, assigning ID, SortIndex (per thread, insertion
	// order), Code and CreatedAt.
	CreateComment(ctx context.Context, c Comment) (Comment, error)
	GetComment(ctx context.Context, id int64) (Comment, error)
	GetCommentByCode(ctx context.Context, code string) (Comment, error)
	// ListThread returns every comment of a thread instance regardless of
	// status, ordered by sort_index ascending.
	ListThread(ctx context.Context, pageID, fieldID string) ([]Comment, error)
	// ListByStatus returns newest-first comments in a given status.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Comment, error)
	// HasApprovedByEmail reports whether this email already has an approved
	// comment anywhere (the "new commenters only" moderation check).
	HasApprovedByEmail(ctx context.Context, email string) (bool, error)
	// HasLiveReplies reports whether any direct reply is not pure spam.
	HasLiveReplies(ctx context.Context, id int64) (bool, error)
	// SetStatus updates the status under a per-row lock. When markRemoteUsed
	// is set the update additionally requires remote_change_used to still be
	// false and flips it, returning ErrRemoteLinkUsed otherwise; backend
	// writes pass false and are never blocked by the one-shot guard.
	SetStatus(ctx context.Context, id int64, status Status, markRemoteUsed bool) (Comment, error)
	SetNotifyPref(ctx context.Context, id int64, pref NotifyPref) error
	// DeleteComment removes a comment and cascades its votes and queue
	// entries. Returns ErrHasReplies when replies exist.
	DeleteComment(ctx context.Context, id int64) error

	// CastVote atomically checks the (comment, identity) tuple against the
	// cooldown window, inserts the vote and increments the matching tally,
	// returning the updated comment. The check-then-increment is serialized
	// per comment row.
	CastVote(ctx context.Context, v Vote, cooldown time.Duration) (Comment, error)

	Enqueue(ctx context.Context, entries []QueueEntry) error
	PendingNotifications(ctx context.Context, limit int) ([]QueueEntry, error)
	DeleteNotification(ctx context.Context, id int64) error

	RatingSummary(ctx context.Context, pageID, fieldID string) (RatingSummary, error)
}
