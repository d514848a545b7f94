package handlers

import (
	"net/http"

	"github.com/example/comments-platform/internal/comments/store"
	"github.com/example/comments-platform/internal/platform/api"
	"github.com/example/comments-platform/internal/platform/httpserver"
)

// GetRatings handles GET /v1/threads/{page_id}/{field_id}/ratings, the
// aggregate star rating over the thread's approved comments.
func GetRatings(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		pageID, fieldID := threadParams(r)
		if pageID == "" || fieldID == "" {
			api.BadRequest(w, "MISSING_THREAD", "page_id and field_id are required", rid, nil)
			return
		}

		summary, err := st.RatingSummary(r.Context(), pageID, fieldID)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, summary)
	}
}
