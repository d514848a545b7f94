// Package moderation implements comment intake and the moderation state
// machine: validation, initial status assignment, moderator transitions and
// the one-shot remote links embedded in moderator emails.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/example/comments-platform/internal/comments/mail"
	"github.com/example/comments-platform/internal/comments/store"
)

// Mode selects which submissions require moderator approval.
type Mode string

const (
	ModeNone          Mode = "none"
	ModeNewCommenters Mode = "new_commenters"
	ModeAll           Mode = "all"
)

// ParseMode maps config strings, falling back to moderating everything.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return ModeNone
	case "new_commenters":
		return ModeNewCommenters
	default:
		return ModeAll
	}
}

const (
	maxAuthorLen = 100
	maxTextLen   = 10000
	// MaxStars is the upper bound of the star rating scale.
	MaxStars = 5
)

// ValidationError rejects a submission field. It maps to a 400 upstream.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Submission is a comment as it arrives from the form, before any status is
// assigned.
type Submission struct {
	PageID     string
	FieldID    string
	ParentID   int64
	Author     string
	Email      string
	Website    string
	Text       string
	Stars      *int
	NotifyPref store.NotifyPref
	Identity   store.Identity
}

// Enqueuer hands an approved comment to the notification pipeline.
type Enqueuer interface {
	EnqueueForNewComment(ctx context.Context, c store.Comment) (int, error)
}

// Service wires the moderation flow together. Queue may be nil when
// notifications are disabled.
type Service struct {
	Store          store.Store
	Mailer         mail.Sender
	Queue          Enqueuer
	Log            *zap.Logger
	Mode           Mode
	ModeratorEmail string
	BaseURL        string
}

// Outcome messages surfaced to the submitter.
const (
	MsgPosted  = "Your comment has been posted."
	MsgPending = "Thank you! Your comment is awaiting moderation."
)

func (s *Service) validate(sub *Submission) error {
	sub.PageID = strings.TrimSpace(sub.PageID)
	sub.FieldID = strings.TrimSpace(sub.FieldID)
	sub.Author = strings.TrimSpace(sub.Author)
	sub.Email = strings.TrimSpace(sub.Email)
	sub.Website = strings.TrimSpace(sub.Website)
	sub.Text = strings.TrimSpace(sub.Text)

	if sub.PageID == "" {
		return &ValidationError{Field: "page_id", Reason: "required"}
	}
	if sub.FieldID == "" {
		return &ValidationError{Field: "field_id", Reason: "required"}
	}
	if sub.Author == "" {
		return &ValidationError{Field: "author", Reason: "required"}
	}
	if len(sub.Author) > maxAuthorLen {
		return &ValidationError{Field: "author", Reason: "too long"}
	}
	if sub.Email == "" {
		return &ValidationError{Field: "email", Reason: "required"}
	}
	at := strings.Index(sub.Email, "@")
	if at < 1 || at == len(sub.Email)-1 || strings.ContainsAny(sub.Email, " \t") {
		return &ValidationError{Field: "email", Reason: "not a valid address"}
	}
	if sub.Website != "" {
		u, err := url.Parse(sub.Website)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Field: "website", Reason: "must be an http(s) URL"}
		}
	}
	if sub.Text == "" {
		return &ValidationError{Field: "text", Reason: "required"}
	}
	if len(sub.Text) > maxTextLen {
		return &ValidationError{Field: "text", Reason: "too long"}
	}
	if sub.Stars != nil {
		if *sub.Stars < 1 || *sub.Stars > MaxStars {
			return &ValidationError{Field: "stars", Reason: fmt.Sprintf("must be between 1 and %d", MaxStars)}
		}
		if sub.ParentID != 0 {
			return &ValidationError{Field: "stars", Reason: "ratings are only accepted on top-level comments"}
		}
	}
	switch sub.NotifyPref {
	case "", store.NotifyNone:
		sub.NotifyPref = store.NotifyNone
	case store.NotifyReplies, store.NotifyAll:
	default:
		return &ValidationError{Field: "notify", Reason: "must be none, replies or all"}
	}
	return nil
}

// initialStatus applies the moderation mode to a validated submission.
func (s *Service) initialStatus(ctx context.Context, sub Submission) (store.Status, error) {
	switch s.Mode {
	case ModeNone:
		return store.StatusApproved, nil
	case ModeNewCommenters:
		known, err := s.Store.HasApprovedByEmail(ctx, sub.Email)
		if err != nil {
			return "", err
		}
		if known {
			return store.StatusApproved, nil
		}
		return store.StatusPending, nil
	default:
		return store.StatusPending, nil
	}
}

// Submit validates, stores and routes a new comment. The returned message is
// reader-facing and reflects whether the comment went live immediately.
func (s *Service) Submit(ctx context.Context, sub Submission) (store.Comment, string, error) {
	if err := s.validate(&sub); err != nil {
		return store.Comment{}, "", err
	}

	if sub.ParentID != 0 {
		parent, err := s.Store.GetComment(ctx, sub.ParentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Comment{}, "", &ValidationError{Field: "parent_id", Reason: "no such comment"}
			}
			return store.Comment{}, "", err
		}
		if parent.PageID != sub.PageID || parent.FieldID != sub.FieldID {
			return store.Comment{}, "", &ValidationError{Field: "parent_id", Reason: "belongs to a different thread"}
		}
		if !parent.Status.Live() {
			return store.Comment{}, "", &ValidationError{Field: "parent_id", Reason: "comment is no longer open for replies"}
		}
	}

	status, err := s.initialStatus(ctx, sub)
	if err != nil {
		return store.Comment{}, "", err
	}

	created, err := s.Store.CreateComment(ctx, store.Comment{
		ParentID:   sub.ParentID,
		PageID:     sub.PageID,
		FieldID:    sub.FieldID,
		Author:     sub.Author,
		Email:      sub.Email,
		Website:    sub.Website,
		Text:       sub.Text,
		Stars:      sub.Stars,
		Status:     status,
		NotifyPref: sub.NotifyPref,
		UserID:     sub.Identity.UserID,
		IP:         sub.Identity.IP,
		UserAgent:  sub.Identity.UserAgent,
	})
	if err != nil {
		return store.Comment{}, "", err
	}

	if status == store.StatusApproved {
		s.enqueueNotifications(ctx, created)
		return created, MsgPosted, nil
	}

	s.alertModerator(created)
	return created, MsgPending, nil
}

// enqueueNotifications is best-effort: a queue failure never fails the
// submit that triggered it.
func (s *Service) enqueueNotifications(ctx context.Context, c store.Comment) {
	if s.Queue == nil {
		return
	}
	n, err := s.Queue.EnqueueForNewComment(ctx, c)
	if err != nil {
		s.Log.Error("enqueue notifications failed", zap.Int64("comment_id", c.ID), zap.Error(err))
		return
	}
	if n > 0 {
		s.Log.Info("notifications queued", zap.Int64("comment_id", c.ID), zap.Int("recipients", n))
	}
}

func (s *Service) alertModerator(c store.Comment) {
	if s.ModeratorEmail == "" {
		return
	}
	err := s.Mailer.SendModeratorAlert(mail.ModeratorAlert{
		To:         s.ModeratorEmail,
		Author:     c.Author,
		Email:      c.Email,
		Text:       c.Text,
		ApproveURL: s.RemoteStatusURL(c.Code, store.StatusApproved),
		SpamURL:    s.RemoteStatusURL(c.Code, store.StatusSpam),
	})
	if err != nil {
		s.Log.Error("moderator alert failed", zap.Int64("comment_id", c.ID), zap.Error(err))
	}
}

// RemoteStatusURL builds the one-shot approve/spam link for a comment code.
func (s *Service) RemoteStatusURL(code string, status store.Status) string {
	return fmt.Sprintf("%s/v1/comments/remote?code=%s&status=%s", s.BaseURL, url.QueryEscape(code), status)
}

// UnsubscribeURL builds the notification opt-out link for a comment code.
func (s *Service) UnsubscribeURL(code string) string {
	return fmt.Sprintf("%s/v1/comments/remote?code=%s&notification=0", s.BaseURL, url.QueryEscape(code))
}

// effectiveStatus downgrades a spam verdict to spam_replies when live replies
// would otherwise be orphaned.
func (s *Service) effectiveStatus(ctx context.Context, id int64, desired store.Status) (store.Status, error) {
	if desired != store.StatusSpam {
		return desired, nil
	}
	hasReplies, err := s.Store.HasLiveReplies(ctx, id)
	if err != nil {
		return "", err
	}
	if hasReplies {
		return store.StatusSpamReplies, nil
	}
	return store.StatusSpam, nil
}

// SetStatus applies a moderator's verdict from the backend. Approving a
// pending comment releases its queued notifications; the author is told about
// the change when mail is configured.
func (s *Service) SetStatus(ctx context.Context, id int64, desired store.Status) (store.Comment, error) {
	old, err := s.Store.GetComment(ctx, id)
	if err != nil {
		return store.Comment{}, err
	}

	effective, err := s.effectiveStatus(ctx, id, desired)
	if err != nil {
		return store.Comment{}, err
	}

	updated, err := s.Store.SetStatus(ctx, id, effective, false)
	if err != nil {
		return store.Comment{}, err
	}

	s.afterStatusChange(ctx, old, updated)
	return updated, nil
}

// ApplyRemoteChange performs the status change behind a one-shot email link.
// The code is consumed even when the requested status matches the current
// one; a second use fails with store.ErrRemoteLinkUsed.
func (s *Service) ApplyRemoteChange(ctx context.Context, code string, desired store.Status) (store.Comment, error) {
	if desired != store.StatusApproved && desired != store.StatusSpam {
		return store.Comment{}, &ValidationError{Field: "status", Reason: "must be approved or spam"}
	}

	old, err := s.Store.GetCommentByCode(ctx, code)
	if err != nil {
		return store.Comment{}, err
	}

	effective, err := s.effectiveStatus(ctx, old.ID, desired)
	if err != nil {
		return store.Comment{}, err
	}

	updated, err := s.Store.SetStatus(ctx, old.ID, effective, true)
	if err != nil {
		return store.Comment{}, err
	}

	s.afterStatusChange(ctx, old, updated)
	return updated, nil
}

func (s *Service) afterStatusChange(ctx context.Context, old, updated store.Comment) {
	if old.Status == updated.Status {
		return
	}
	s.Log.Info("comment status changed",
		zap.Int64("comment_id", updated.ID),
		zap.String("from", string(old.Status)),
		zap.String("to", string(updated.Status)))

	if old.Status == store.StatusPending && updated.Status == store.StatusApproved {
		s.enqueueNotifications(ctx, updated)
	}

	if err := s.Mailer.SendStatusChange(mail.StatusChange{
		To:        updated.Email,
		Author:    updated.Author,
		OldStatus: string(old.Status),
		NewStatus: string(updated.Status),
		Text:      updated.Text,
	}); err != nil {
		s.Log.Error("status change mail failed", zap.Int64("comment_id", updated.ID), zap.Error(err))
	}
}

// Unsubscribe turns off notifications for the comment behind the code. It is
// idempotent and, unlike status links, never consumes the code.
func (s *Service) Unsubscribe(ctx context.Context, code string) error {
	c, err := s.Store.GetCommentByCode(ctx, code)
	if err != nil {
		return err
	}
	return s.Store.SetNotifyPref(ctx, c.ID, store.NotifyNone)
}

// Delete removes a comment outright. Comments with replies refuse deletion
// (store.ErrHasReplies); moderators mark those spam instead so the subtree
// keeps its shape.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.Store.DeleteComment(ctx, id); err != nil {
		return err
	}
	s.Log.Info("comment deleted", zap.Int64("comment_id", id))
	return nil
}
