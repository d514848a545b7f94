package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/comments-platform/internal/comments/mail"
	"github.com/example/comments-platform/internal/comments/moderation"
	"github.com/example/comments-platform/internal/comments/notify"
	"github.com/example/comments-platform/internal/comments/store"
	"github.com/example/comments-platform/internal/comments/votes"
	"github.com/example/comments-platform/internal/platform/auth"
	"github.com/example/comments-platform/internal/platform/config"
)

type nopMailer struct{}

func (nopMailer) SendReplyNotification(mail.ReplyNotification) error { return nil }
func (nopMailer) SendStatusChange(mail.StatusChange) error           { return nil }
func (nopMailer) SendModeratorAlert(mail.ModeratorAlert) error       { return nil }

type env struct {
	store  *store.InMemoryStore
	svc    *moderation.Service
	router chi.Router
}

func newEnv(t *testing.T, settings config.CommentSettings) *env {
	t.Helper()
	st := store.NewInMemoryStore()
	svc := &moderation.Service{
		Store:          st,
		Mailer:         nopMailer{},
		Queue:          &notify.Queue{Store: st, Mode: notify.ParseMode(settings.NotificationMode), Log: zap.NewNop()},
		Log:            zap.NewNop(),
		Mode:           moderation.ParseMode(settings.ModerationMode),
		ModeratorEmail: "mod@example.com",
		BaseURL:        "https://example.com",
	}
	ledger := votes.Ledger{Store: st, Cooldown: settings.VoteCooldown}

	r := chi.NewRouter()
	r.Get("/v1/threads/{page_id}/{field_id}/comments", GetThread(settings, st))
	r.Post("/v1/threads/{page_id}/{field_id}/comments", SubmitComment(settings, svc, st))
	r.Get("/v1/threads/{page_id}/{field_id}/ratings", GetRatings(st))
	r.Post("/v1/comments/{comment_id}/vote", CastVote(ledger))
	r.Get("/v1/comments/remote", RemoteChange(svc))
	r.Get("/v1/moderation/comments", ListByStatus(st))
	r.Post("/v1/moderation/comments/{comment_id}/status", SetCommentStatus(svc))
	r.Delete("/v1/moderation/comments/{comment_id}", DeleteComment(svc))
	return &env{store: st, svc: svc, router: r}
}

func (e *env) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.RemoteAddr = "203.0.113.9:4242"
	req.Header.Set("User-Agent", "test-browser")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func openSettings() config.CommentSettings {
	return config.CommentSettings{
		ModerationMode:   "none",
		MaxReplyDepth:    3,
		VoteCooldown:     24 * time.Hour,
		NotificationMode: "replies",
		PageSize:         0,
	}
}

func TestSubmitAndGetThread(t *testing.T) {
	e := newEnv(t, openSettings())

	rec := e.do(t, http.MethodPost, "/v1/threads/blog-post-1/comments/comments",
		`{"author":"Ada","email":"ada@example.com","text":"hello"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[submitResponse](t, rec)
	if created.Comment.Status != store.StatusApproved || created.Page != 1 {
		t.Fatalf("submit response = %+v", created)
	}

	rec = e.do(t, http.MethodGet, "/v1/threads/blog-post-1/comments/comments", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get thread status = %d", rec.Code)
	}
	var page struct {
		Items []struct {
			Comment store.Comment `json:"comment"`
		} `json:"items"`
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || page.Items[0].Comment.Author != "Ada" {
		t.Fatalf("thread = %+v", page)
	}
}

func TestSubmitValidationErrors(t *testing.T) {
	e := newEnv(t, openSettings())

	rec := e.do(t, http.MethodPost, "/v1/threads/p/f/comments", `{"author":"","email":"a@b.c","text":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/v1/threads/p/f/comments", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", rec.Code)
	}
}

func TestVoteEndpoint(t *testing.T) {
	e := newEnv(t, openSettings())
	rec := e.do(t, http.MethodPost, "/v1/threads/p/f/comments",
		`{"author":"Ada","email":"ada@example.com","text":"hello"}`)
	created := decode[submitResponse](t, rec)
	target := fmt.Sprintf("/v1/comments/%d/vote", created.Comment.ID)

	rec = e.do(t, http.MethodPost, target, `{"direction":"up"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("vote status = %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[voteResponse](t, rec)
	if !res.Accepted || res.Upvotes != 1 {
		t.Fatalf("vote = %+v", res)
	}

	// Same client voting again inside the cooldown: 200, accepted=false.
	rec = e.do(t, http.MethodPost, target, `{"direction":"down"}`)
	res = decode[voteResponse](t, rec)
	if rec.Code != http.StatusOK || res.Accepted || res.Downvotes != 0 || res.CooldownSeconds <= 0 {
		t.Fatalf("repeat vote = %d %+v", rec.Code, res)
	}

	rec = e.do(t, http.MethodPost, target, `{"direction":"sideways"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad direction status = %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/v1/comments/999/vote", `{"direction":"up"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing comment status = %d", rec.Code)
	}
}

func TestRemoteChangeEndpoint(t *testing.T) {
	settings := openSettings()
	settings.ModerationMode = "all"
	e := newEnv(t, settings)

	rec := e.do(t, http.MethodPost, "/v1/threads/p/f/comments",
		`{"author":"Ada","email":"ada@example.com","text":"hello","notify":"replies"}`)
	created := decode[submitResponse](t, rec)
	stored, err := e.store.GetComment(context.Background(), created.Comment.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	rec = e.do(t, http.MethodGet, "/v1/comments/remote?code="+stored.Code+"&status=approved", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("remote approve status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/v1/comments/remote?code="+stored.Code+"&status=spam", "")
	if rec.Code != http.StatusGone {
		t.Fatalf("second use status = %d, want 410", rec.Code)
	}

	// Unsubscribe still works after the status code is spent.
	rec = e.do(t, http.MethodGet, "/v1/comments/remote?code="+stored.Code+"&notification=0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unsubscribe status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/v1/comments/remote?code="+stored.Code+"&status=approved&notification=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("two actions status = %d", rec.Code)
	}
	rec = e.do(t, http.MethodGet, "/v1/comments/remote?code=unknown&status=approved", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown code status = %d", rec.Code)
	}
}

func TestRatingsEndpoint(t *testing.T) {
	e := newEnv(t, openSettings())
	e.do(t, http.MethodPost, "/v1/threads/shop/reviews/comments",
		`{"author":"Ada","email":"ada@example.com","text":"great","stars":5}`)
	e.do(t, http.MethodPost, "/v1/threads/shop/reviews/comments",
		`{"author":"Bob","email":"bob@example.com","text":"meh","stars":2}`)

	rec := e.do(t, http.MethodGet, "/v1/threads/shop/reviews/ratings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ratings status = %d", rec.Code)
	}
	sum := decode[store.RatingSummary](t, rec)
	if sum.TotalRatings != 2 || sum.AverageStars != 3.5 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestModerationEndpoints(t *testing.T) {
	settings := openSettings()
	settings.ModerationMode = "all"
	e := newEnv(t, settings)

	rec := e.do(t, http.MethodPost, "/v1/threads/p/f/comments",
		`{"author":"Ada","email":"ada@example.com","text":"hello"}`)
	created := decode[submitResponse](t, rec)

	rec = e.do(t, http.MethodGet, "/v1/moderation/comments?status=pending", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decode[listResponse](t, rec)
	if len(list.Comments) != 1 || list.Comments[0].ID != created.Comment.ID {
		t.Fatalf("pending list = %+v", list)
	}

	target := fmt.Sprintf("/v1/moderation/comments/%d/status", created.Comment.ID)
	rec = e.do(t, http.MethodPost, target, `{"status":"approved"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set status = %d: %s", rec.Code, rec.Body.String())
	}
	updated := decode[store.Comment](t, rec)
	if updated.Status != store.StatusApproved {
		t.Fatalf("status = %s", updated.Status)
	}

	rec = e.do(t, http.MethodPost, target, `{"status":"deleted"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status code = %d", rec.Code)
	}

	rec = e.do(t, http.MethodDelete, fmt.Sprintf("/v1/moderation/comments/%d", created.Comment.ID), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = e.do(t, http.MethodDelete, "/v1/moderation/comments/999", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing status = %d", rec.Code)
	}
}

func TestDeleteRefusedWithReplies(t *testing.T) {
	e := newEnv(t, openSettings())
	rec := e.do(t, http.MethodPost, "/v1/threads/p/f/comments",
		`{"author":"Ada","email":"ada@example.com","text":"parent"}`)
	parent := decode[submitResponse](t, rec)
	e.do(t, http.MethodPost, "/v1/threads/p/f/comments",
		fmt.Sprintf(`{"author":"Bob","email":"bob@example.com","text":"reply","parent_id":%d}`, parent.Comment.ID))

	rec = e.do(t, http.MethodDelete, fmt.Sprintf("/v1/moderation/comments/%d", parent.Comment.ID), "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("delete with replies status = %d, want 409", rec.Code)
	}
}

func TestModeratorLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	verifier := auth.JWTVerifier{Secret: []byte("test-secret")}
	h := ModeratorLogin(verifier, "mod@example.com", string(hash))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/moderation/login", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}

	rec := post(`{"email":"mod@example.com","password":"hunter2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[loginResponse](t, rec)
	claims, err := verifier.Parse(res.Token)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.Role != "moderator" || claims.Subject != "mod@example.com" {
		t.Fatalf("claims = %+v", claims)
	}

	if rec := post(`{"email":"mod@example.com","password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", rec.Code)
	}
	if rec := post(`{"email":"other@example.com","password":"hunter2"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong email status = %d", rec.Code)
	}

	disabled := ModeratorLogin(verifier, "", "")
	req := httptest.NewRequest(http.MethodPost, "/v1/moderation/login", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	disabled(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("disabled login status = %d", rec.Code)
	}
}

func TestPaginationAcrossPages(t *testing.T) {
	settings := openSettings()
	settings.PageSize = 2
	e := newEnv(t, settings)

	for i := 0; i < 5; i++ {
		rec := e.do(t, http.MethodPost, "/v1/threads/p/f/comments",
			fmt.Sprintf(`{"author":"A%d","email":"a%d@example.com","text":"c%d"}`, i, i, i))
		if rec.Code != http.StatusCreated {
			t.Fatalf("submit %d status = %d", i, rec.Code)
		}
	}

	var page struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
		Items      []struct {
			Comment store.Comment `json:"comment"`
		} `json:"items"`
	}

	rec := e.do(t, http.MethodGet, "/v1/threads/p/f/comments?page=3", "")
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Page != 3 || page.TotalPages != 3 || len(page.Items) != 1 {
		t.Fatalf("page 3 = %+v", page)
	}

	// Out of range normalizes to page 1 rather than erroring.
	rec = e.do(t, http.MethodGet, "/v1/threads/p/f/comments?page=9", "")
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Page != 1 || len(page.Items) != 2 {
		t.Fatalf("out-of-range page = %+v", page)
	}

	rec = e.do(t, http.MethodGet, "/v1/threads/p/f/comments?page=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric page status = %d", rec.Code)
	}
}
