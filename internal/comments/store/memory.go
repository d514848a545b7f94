package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a development and test implementation with the same
// semantics as PostgresStore. The single mutex stands in for the per-row
// locking the database gives us.
type InMemoryStore struct {
	mu       sync.Mutex
	comments map[int64]Comment
	votes    map[int64][]Vote
	queue    []QueueEntry

	nextCommentID int64
	nextVoteID    int64
	nextQueueID   int64

	now func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		comments: make(map[int64]Comment),
		votes:    make(map[int64][]Vote),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *InMemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *InMemoryStore) CreateComment(_ context.Context, c Comment) (Comment, error) {
	code, err := NewCode()
	if err != nil {
		return Comment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCommentID++
	c.ID = s.nextCommentID
	c.Code = code
	c.CreatedAt = s.now().UTC()
	c.Upvotes = 0
	c.Downvotes = 0
	c.RemoteChangeUsed = false

	maxIdx := 0
	for _, other := range s.comments {
		if other.PageID == c.PageID && other.FieldID == c.FieldID && other.SortIndex > maxIdx {
			maxIdx = other.SortIndex
		}
	}
	c.SortIndex = maxIdx + 1

	s.comments[c.ID] = c
	return c, nil
}

func (s *InMemoryStore) GetComment(_ context.Context, id int64) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return Comment{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemoryStore) GetCommentByCode(_ context.Context, code string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.comments {
		if c.Code == code {
			return c, nil
		}
	}
	return Comment{}, ErrNotFound
}

func (s *InMemoryStore) ListThread(_ context.Context, pageID, fieldID string) ([]Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Comment
	for _, c := range s.comments {
		if c.PageID == pageID && c.FieldID == fieldID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortIndex != out[j].SortIndex {
			return out[i].SortIndex < out[j].SortIndex
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, status Status, limit int) ([]Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []Comment
	for _, c := range s.comments {
		if c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) HasApprovedByEmail(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.comments {
		if c.Status == StatusApproved && strings.EqualFold(c.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) HasLiveReplies(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.comments {
		if c.ParentID == id && c.Status.Live() {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) SetStatus(_ context.Context, id int64, status Status, markRemoteUsed bool) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return Comment{}, ErrNotFound
	}
	if markRemoteUsed {
		if c.RemoteChangeUsed {
			return Comment{}, ErrRemoteLinkUsed
		}
		c.RemoteChangeUsed = true
	}
	c.Status = status
	s.comments[id] = c
	return c, nil
}

func (s *InMemoryStore) SetNotifyPref(_ context.Context, id int64, pref NotifyPref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return ErrNotFound
	}
	c.NotifyPref = pref
	s.comments[id] = c
	return nil
}

func (s *InMemoryStore) DeleteComment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[id]; !ok {
		return ErrNotFound
	}
	for _, c := range s.comments {
		if c.ParentID == id {
			return ErrHasReplies
		}
	}
	delete(s.comments, id)
	delete(s.votes, id)

	kept := s.queue[:0]
	for _, e := range s.queue {
		if e.TriggeringCommentID != id && e.ParentCommentID != id {
			kept = append(kept, e)
		}
	}
	s.queue = kept
	return nil
}

func (s *InMemoryStore) CastVote(_ context.Context, v Vote, cooldown time.Duration) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[v.CommentID]
	if !ok {
		return Comment{}, ErrNotFound
	}

	now := s.now().UTC()
	cutoff := now.Add(-cooldown)
	for _, prev := range s.votes[v.CommentID] {
		if prev.UserID == v.UserID && prev.IP == v.IP && prev.UserAgent == v.UserAgent &&
			prev.CreatedAt.After(cutoff) {
			return Comment{}, &AlreadyVotedError{Remaining: prev.CreatedAt.Add(cooldown).Sub(now)}
		}
	}

	s.nextVoteID++
	v.ID = s.nextVoteID
	v.CreatedAt = now
	s.votes[v.CommentID] = append(s.votes[v.CommentID], v)

	if v.Direction < 0 {
		c.Downvotes++
	} else {
		c.Upvotes++
	}
	s.comments[v.CommentID] = c
	return c, nil
}

func (s *InMemoryStore) Enqueue(_ context.Context, entries []QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		dup := false
		for _, existing := range s.queue {
			if existing.TriggeringCommentID == e.TriggeringCommentID &&
				strings.EqualFold(existing.RecipientEmail, e.RecipientEmail) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		s.nextQueueID++
		e.ID = s.nextQueueID
		e.CreatedAt = s.now().UTC()
		s.queue = append(s.queue, e)
	}
	return nil
}

func (s *InMemoryStore) PendingNotifications(_ context.Context, limit int) ([]QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	n := len(s.queue)
	if n > limit {
		n = limit
	}
	out := make([]QueueEntry, n)
	copy(out, s.queue[:n])
	return out, nil
}

func (s *InMemoryStore) DeleteNotification(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.queue {
		if e.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) RatingSummary(_ context.Context, pageID, fieldID string) (RatingSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := RatingSummary{PageID: pageID, FieldID: fieldID}
	total := 0
	for _, c := range s.comments {
		if c.PageID == pageID && c.FieldID == fieldID && c.Status == StatusApproved && c.Stars != nil {
			total += *c.Stars
			out.TotalRatings++
		}
	}
	if out.TotalRatings > 0 {
		out.AverageStars = float64(total) / float64(out.TotalRatings)
	}
	return out, nil
}
