package handlers

import (
	"errors"
	"net/http"

	"github.com/example/comments-platform/internal/comments/moderation"
	"github.com/example/comments-platform/internal/comments/store"
	"github.com/example/comments-platform/internal/platform/api"
	"github.com/example/comments-platform/internal/platform/httpserver"
)

type remoteResponse struct {
	Message string       `json:"message"`
	Status  store.Status `json:"status,omitempty"`
	Comment int64        `json:"comment_id,omitempty"`
}

// RemoteChange handles GET /v1/comments/remote. The link carries a secret
// code plus exactly one action: ?status=approved|spam performs the one-shot
// moderation change, ?notification=0 unsubscribes the commenter.
//
// GET because these links are clicked from email clients; the code is the
// authorization.
func RemoteChange(svc *moderation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		q := r.URL.Query()

		code := q.Get("code")
		if code == "" {
			api.BadRequest(w, "MISSING_CODE", "code is required", rid, nil)
			return
		}

		status := q.Get("status")
		_, unsubscribe := q["notification"]
		if (status != "") == unsubscribe {
			api.BadRequest(w, "AMBIGUOUS_ACTION", "exactly one of status or notification is required", rid, nil)
			return
		}

		if unsubscribe {
			if q.Get("notification") != "0" {
				api.BadRequest(w, "INVALID_ACTION", "notification only supports 0", rid, nil)
				return
			}
			if err := svc.Unsubscribe(r.Context(), code); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					api.NotFound(w, "UNKNOWN_CODE", "no comment for this code", rid)
					return
				}
				api.Internal(w, rid)
				return
			}
			api.WriteJSON(w, http.StatusOK, remoteResponse{Message: "You will no longer receive notifications for this comment."})
			return
		}

		updated, err := svc.ApplyRemoteChange(r.Context(), code, store.Status(status))
		if err != nil {
			var verr *moderation.ValidationError
			switch {
			case errors.As(err, &verr):
				api.BadRequest(w, "INVALID_STATUS", verr.Error(), rid, nil)
			case errors.Is(err, store.ErrNotFound):
				api.NotFound(w, "UNKNOWN_CODE", "no comment for this code", rid)
			case errors.Is(err, store.ErrRemoteLinkUsed):
				api.Gone(w, "LINK_USED", "this link has already been used", rid)
			default:
				api.Internal(w, rid)
			}
			return
		}

		api.WriteJSON(w, http.StatusOK, remoteResponse{
			Message: "Comment status updated.",
			Status:  updated.Status,
			Comment: updated.ID,
		})
	}
}
