package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists comments, votes and the notification queue in
// Postgres.
//
// Logical schema: comments keyed by bigserial id with parent_id (0 for
// top-level) and a unique code; comment_votes keyed by auto-id, indexed on
// (comment_id, user_id, ip, user_agent); notification_queue keyed by auto-id
// with a unique (triggering_comment_id, recipient_email) pair.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by Postgres.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const commentCols = `id, parent_id, page_id, field_id, author, email, website, body, stars,
	status, upvotes, downvotes, notify_pref, sort_index, remote_change_used, code,
	user_id, ip, user_agent, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComment(row rowScanner) (Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.ParentID, &c.PageID, &c.FieldID, &c.Author, &c.Email,
		&c.Website, &c.Text, &c.Stars, &c.Status, &c.Upvotes, &c.Downvotes,
		&c.NotifyPref, &c.SortIndex, &c.RemoteChangeUsed, &c.Code,
		&c.UserID, &c.IP, &c.UserAgent, &c.CreatedAt)
	return c, err
}

func (s *PostgresStore) CreateComment(ctx context.Context, c Comment) (Comment, error) {
	code, err := NewCode()
	if err != nil {
		return Comment{}, err
	}
	// sort_index is assigned per thread at insert time; the subquery and the
	// insert run in one statement so concurrent submissions cannot read the
	// same maximum outside a visible row.
	q := `INSERT INTO comments (parent_id, page_id, field_id, author, email, website, body, stars,
	        status, notify_pref, sort_index, code, user_id, ip, user_agent)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
	        (SELECT COALESCE(MAX(sort_index), 0) + 1 FROM comments WHERE page_id = $2 AND field_id = $3),
	        $11, $12, $13, $14)
	      RETURNING ` + commentCols
	row := s.pool.QueryRow(ctx, q, c.ParentID, c.PageID, c.FieldID, c.Author, c.Email,
		c.Website, c.Text, c.Stars, c.Status, c.NotifyPref, code, c.UserID, c.IP, c.UserAgent)
	return scanComment(row)
}

func (s *PostgresStore) GetComment(ctx context.Context, id int64) (Comment, error) {
	q := `SELECT ` + commentCols + ` FROM comments WHERE id = $1`
	c, err := scanComment(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) GetCommentByCode(ctx context.Context, code string) (Comment, error) {
	q := `SELECT ` + commentCols + ` FROM comments WHERE code = $1`
	c, err := scanComment(s.pool.QueryRow(ctx, q, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) ListThread(ctx context.Context, pageID, fieldID string) ([]Comment, error) {
	q := `SELECT ` + commentCols + ` FROM comments
	      WHERE page_id = $1 AND field_id = $2
	      ORDER BY sort_index ASC, id ASC`
	return s.queryComments(ctx, q, pageID, fieldID)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]Comment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + commentCols + ` FROM comments
	      WHERE status = $1
	      ORDER BY created_at DESC, id DESC
	      LIMIT $2`
	return s.queryComments(ctx, q, status, limit)
}

func (s *PostgresStore) queryComments(ctx context.Context, q string, args ...any) ([]Comment, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HasApprovedByEmail(ctx context.Context, email string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM comments WHERE lower(email) = lower($1) AND status = $2)`
	var exists bool
	err := s.pool.QueryRow(ctx, q, email, StatusApproved).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) HasLiveReplies(ctx context.Context, id int64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM comments WHERE parent_id = $1 AND status <> $2)`
	var exists bool
	err := s.pool.QueryRow(ctx, q, id, StatusSpam).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) SetStatus(ctx context.Context, id int64, status Status, markRemoteUsed bool) (Comment, error) {
	if markRemoteUsed {
		q := `UPDATE comments SET status = $2, remote_change_used = true
		      WHERE id = $1 AND remote_change_used = false
		      RETURNING ` + commentCols
		c, err := scanComment(s.pool.QueryRow(ctx, q, id, status))
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish "gone" from "already used".
			var used bool
			if err := s.pool.QueryRow(ctx, `SELECT remote_change_used FROM comments WHERE id = $1`, id).Scan(&used); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return Comment{}, ErrNotFound
				}
				return Comment{}, err
			}
			return Comment{}, ErrRemoteLinkUsed
		}
		return c, err
	}

	q := `UPDATE comments SET status = $2 WHERE id = $1 RETURNING ` + commentCols
	c, err := scanComment(s.pool.QueryRow(ctx, q, id, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) SetNotifyPref(ctx context.Context, id int64, pref NotifyPref) error {
	tag, err := s.pool.Exec(ctx, `UPDATE comments SET notify_pref = $2 WHERE id = $1`, id, pref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var hasReplies bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM comments WHERE parent_id = $1)`, id).Scan(&hasReplies); err != nil {
		return err
	}
	if hasReplies {
		return ErrHasReplies
	}

	if _, err := tx.Exec(ctx, `DELETE FROM comment_votes WHERE comment_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM notification_queue WHERE triggering_comment_id = $1 OR parent_comment_id = $1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) CastVote(ctx context.Context, v Vote, cooldown time.Duration) (Comment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Comment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row lock serializes the check-then-increment per comment.
	lockQ := `SELECT ` + commentCols + ` FROM comments WHERE id = $1 FOR UPDATE`
	if _, err := scanComment(tx.QueryRow(ctx, lockQ, v.CommentID)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Comment{}, ErrNotFound
		}
		return Comment{}, err
	}

	cutoff := time.Now().Add(-cooldown)
	var last time.Time
	err = tx.QueryRow(ctx,
		`SELECT created_at FROM comment_votes
		 WHERE comment_id = $1 AND user_id = $2 AND ip = $3 AND user_agent = $4 AND created_at > $5
		 ORDER BY created_at DESC LIMIT 1`,
		v.CommentID, v.UserID, v.IP, v.UserAgent, cutoff).Scan(&last)
	switch {
	case err == nil:
		return Comment{}, &AlreadyVotedError{Remaining: time.Until(last.Add(cooldown))}
	case !errors.Is(err, pgx.ErrNoRows):
		return Comment{}, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO comment_votes (comment_id, user_id, ip, user_agent, direction) VALUES ($1, $2, $3, $4, $5)`,
		v.CommentID, v.UserID, v.IP, v.UserAgent, v.Direction); err != nil {
		return Comment{}, err
	}

	col := "upvotes"
	if v.Direction < 0 {
		col = "downvotes"
	}
	q := fmt.Sprintf(`UPDATE comments SET %s = %s + 1 WHERE id = $1 RETURNING `, col, col) + commentCols
	updated, err := scanComment(tx.QueryRow(ctx, q, v.CommentID))
	if err != nil {
		return Comment{}, err
	}
	return updated, tx.Commit(ctx)
}

func (s *PostgresStore) Enqueue(ctx context.Context, entries []QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO notification_queue (parent_comment_id, triggering_comment_id, recipient_email, page_id, field_id)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (triggering_comment_id, recipient_email) DO NOTHING`,
			e.ParentCommentID, e.TriggeringCommentID, e.RecipientEmail, e.PageID, e.FieldID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) PendingNotifications(ctx context.Context, limit int) ([]QueueEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, parent_comment_id, triggering_comment_id, recipient_email, page_id, field_id, created_at
		 FROM notification_queue ORDER BY id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.ID, &e.ParentCommentID, &e.TriggeringCommentID,
			&e.RecipientEmail, &e.PageID, &e.FieldID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteNotification(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM notification_queue WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) RatingSummary(ctx context.Context, pageID, fieldID string) (RatingSummary, error) {
	const q = `SELECT COALESCE(AVG(stars), 0), COUNT(stars)
	           FROM comments
	           WHERE page_id = $1 AND field_id = $2 AND status = $3 AND stars IS NOT NULL`
	out := RatingSummary{PageID: pageID, FieldID: fieldID}
	if err := s.pool.QueryRow(ctx, q, pageID, fieldID, StatusApproved).Scan(&out.AverageStars, &out.TotalRatings); err != nil {
		return out, err
	}
	return out, nil
}
