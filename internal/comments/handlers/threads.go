// Package handlers exposes the comment service over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/comments-platform/internal/comments/moderation"
	"github.com/example/comments-platform/internal/comments/store"
	"github.com/example/comments-platform/internal/comments/tree"
	"github.com/example/comments-platform/internal/platform/api"
	"github.com/example/comments-platform/internal/platform/auth"
	"github.com/example/comments-platform/internal/platform/config"
	"github.com/example/comments-platform/internal/platform/httpserver"
)

type submitRequest struct {
	ParentID int64  `json:"parent_id,omitempty"`
	Author   string `json:"author"`
	Email    string `json:"email"`
	Website  string `json:"website,omitempty"`
	Text     string `json:"text"`
	Stars    *int   `json:"stars,omitempty"`
	Notify   string `json:"notify,omitempty"` // none, replies, all
}

type submitResponse struct {
	Comment store.Comment `json:"comment"`
	Message string        `json:"message"`
	// Page is where the new comment landed in the paginated thread, 0 while
	// the comment is pending and not yet visible.
	Page int `json:"page,omitempty"`
}

// identityFromRequest builds the vote/ownership fingerprint. An authenticated
// subject strengthens it; anonymous readers fall back to IP plus user agent.
func identityFromRequest(r *http.Request) store.Identity {
	uid, _ := auth.UserIDFromContext(r.Context())
	return store.Identity{
		UserID:    uid,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func threadParams(r *http.Request) (pageID, fieldID string) {
	return strings.TrimSpace(chi.URLParam(r, "page_id")), strings.TrimSpace(chi.URLParam(r, "field_id"))
}

// buildPage assembles, flattens and paginates one thread instance.
func buildPage(comments []store.Comment, cfg config.CommentSettings, page int) tree.Page {
	forest := tree.Build(comments, cfg.MaxReplyDepth, cfg.SortDescending)
	return tree.Paginate(forest.Flatten(), cfg.PageSize, page)
}

// GetThread handles GET /v1/threads/{page_id}/{field_id}/comments
func GetThread(cfg config.CommentSettings, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pageID, fieldID := threadParams(r)
		if pageID == "" || fieldID == "" {
			api.BadRequest(w, "MISSING_THREAD", "page_id and field_id are required", rid, nil)
			return
		}

		page := 1
		if v := r.URL.Query().Get("page"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				api.BadRequest(w, "INVALID_PAGE", "page must be an integer", rid, nil)
				return
			}
			page = n
		}

		comments, err := st.ListThread(r.Context(), pageID, fieldID)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		api.WriteJSON(w, http.StatusOK, buildPage(comments, cfg, page))
	}
}

// SubmitComment handles POST /v1/threads/{page_id}/{field_id}/comments
func SubmitComment(cfg config.CommentSettings, svc *moderation.Service, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pageID, fieldID := threadParams(r)
		if pageID == "" || fieldID == "" {
			api.BadRequest(w, "MISSING_THREAD", "page_id and field_id are required", rid, nil)
			return
		}

		var req submitRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}

		created, msg, err := svc.Submit(r.Context(), moderation.Submission{
			PageID:     pageID,
			FieldID:    fieldID,
			ParentID:   req.ParentID,
			Author:     req.Author,
			Email:      req.Email,
			Website:    req.Website,
			Text:       req.Text,
			Stars:      req.Stars,
			NotifyPref: store.NotifyPref(req.Notify),
			Identity:   identityFromRequest(r),
		})
		if err != nil {
			var verr *moderation.ValidationError
			if errors.As(err, &verr) {
				api.BadRequest(w, "INVALID_SUBMISSION", verr.Error(), rid, map[string]any{"field": verr.Field})
				return
			}
			api.Internal(w, rid)
			return
		}

		resp := submitResponse{Comment: created, Message: msg}
		if created.Status.Displayable() {
			// Tell the client which page the new comment landed on so it can
			// jump there.
			if comments, lerr := st.ListThread(r.Context(), pageID, fieldID); lerr == nil {
				forest := tree.Build(comments, cfg.MaxReplyDepth, cfg.SortDescending)
				resp.Page = tree.PageOf(forest.Flatten(), created.ID, cfg.PageSize)
			}
		}
		api.WriteJSON(w, http.StatusCreated, resp)
	}
}
