package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/comments-platform/internal/comments/moderation"
	"github.com/example/comments-platform/internal/comments/store"
	"github.com/example/comments-platform/internal/platform/api"
	"github.com/example/comments-platform/internal/platform/auth"
	"github.com/example/comments-platform/internal/platform/httpserver"
)

const moderatorTokenTTL = 12 * time.Hour

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type listResponse struct {
	Comments []store.Comment `json:"comments"`
}

// ModeratorLogin handles POST /v1/moderation/login. The deployment has a
// single moderator account configured through the environment.
func ModeratorLogin(verifier auth.JWTVerifier, moderatorEmail, passwordHash string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		if moderatorEmail == "" || passwordHash == "" {
			api.Unauthorized(w, "MODERATION_DISABLED", "no moderator account configured", rid)
			return
		}

		var req loginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<14)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}

		if !strings.EqualFold(strings.TrimSpace(req.Email), moderatorEmail) ||
			bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)) != nil {
			api.Unauthorized(w, "INVALID_CREDENTIALS", "invalid email or password", rid)
			return
		}

		token, exp, err := verifier.Issue(moderatorEmail, "moderator", moderatorTokenTTL)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp})
	}
}

// ListByStatus handles GET /v1/moderation/comments?status=pending&limit=50
func ListByStatus(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		status := store.Status(r.URL.Query().Get("status"))
		if status == "" {
			status = store.StatusPending
		}
		switch status {
		case store.StatusPending, store.StatusApproved, store.StatusSpam, store.StatusSpamReplies:
		default:
			api.BadRequest(w, "INVALID_STATUS", "unknown status", rid, nil)
			return
		}

		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 500 {
				api.BadRequest(w, "INVALID_LIMIT", "limit must be between 1 and 500", rid, nil)
				return
			}
			limit = n
		}

		comments, err := st.ListByStatus(r.Context(), status, limit)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, listResponse{Comments: comments})
	}
}

// SetCommentStatus handles POST /v1/moderation/comments/{comment_id}/status
func SetCommentStatus(svc *moderation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		id, err := strconv.ParseInt(chi.URLParam(r, "comment_id"), 10, 64)
		if err != nil || id <= 0 {
			api.BadRequest(w, "INVALID_ID", "comment_id must be a positive integer", rid, nil)
			return
		}

		var req setStatusRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}
		status := store.Status(req.Status)
		if status != store.StatusApproved && status != store.StatusPending && status != store.StatusSpam {
			api.BadRequest(w, "INVALID_STATUS", "status must be approved, pending or spam", rid, nil)
			return
		}

		updated, err := svc.SetStatus(r.Context(), id, status)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "COMMENT_NOT_FOUND", "no such comment", rid)
				return
			}
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, updated)
	}
}

// DeleteComment handles DELETE /v1/moderation/comments/{comment_id}
func DeleteComment(svc *moderation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		id, err := strconv.ParseInt(chi.URLParam(r, "comment_id"), 10, 64)
		if err != nil || id <= 0 {
			api.BadRequest(w, "INVALID_ID", "comment_id must be a positive integer", rid, nil)
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				api.NotFound(w, "COMMENT_NOT_FOUND", "no such comment", rid)
			case errors.Is(err, store.ErrHasReplies):
				api.Conflict(w, "HAS_REPLIES", "comment has replies; mark it spam instead", rid, nil)
			default:
				api.Internal(w, rid)
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
