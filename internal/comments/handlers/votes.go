package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/example/comments-platform/internal/comments/store"
	"github.com/example/comments-platform/internal/comments/votes"
	"github.com/example/comments-platform/internal/platform/api"
	"github.com/example/comments-platform/internal/platform/httpserver"
)

type voteRequest struct {
	Direction string `json:"direction"` // "up" or "down"
}

type voteResponse struct {
	Accepted        bool  `json:"accepted"`
	Upvotes         int   `json:"upvotes"`
	Downvotes       int   `json:"downvotes"`
	CooldownSeconds int64 `json:"cooldown_seconds,omitempty"`
}

// CastVote handles POST /v1/comments/{comment_id}/vote. A rejected repeat
// vote is a 200 with accepted=false, not an error: the client shows the
// current tallies either way.
func CastVote(ledger votes.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		id, err := strconv.ParseInt(chi.URLParam(r, "comment_id"), 10, 64)
		if err != nil || id <= 0 {
			api.BadRequest(w, "INVALID_ID", "comment_id must be a positive integer", rid, nil)
			return
		}

		var req voteRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}
		dir, ok := votes.ParseDirection(req.Direction)
		if !ok {
			api.BadRequest(w, "INVALID_DIRECTION", `direction must be "up" or "down"`, rid, nil)
			return
		}

		res, err := ledger.Cast(r.Context(), id, identityFromRequest(r), dir)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "COMMENT_NOT_FOUND", "no such comment", rid)
				return
			}
			api.Internal(w, rid)
			return
		}

		resp := voteResponse{Accepted: res.Accepted, Upvotes: res.Upvotes, Downvotes: res.Downvotes}
		if !res.Accepted {
			resp.CooldownSeconds = int64(res.CooldownRemaining.Seconds())
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}
