package main

import (
	"context"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/comments-platform/internal/comments/handlers"
	"github.com/example/comments-platform/internal/comments/mail"
	"github.com/example/comments-platform/internal/comments/moderation"
	"github.com/example/comments-platform/internal/comments/notify"
	"github.com/example/comments-platform/internal/comments/store"
	"github.com/example/comments-platform/internal/comments/votes"
	"github.com/example/comments-platform/internal/comments/worker"
	"github.com/example/comments-platform/internal/platform/auth"
	"github.com/example/comments-platform/internal/platform/config"
	"github.com/example/comments-platform/internal/platform/db"
	"github.com/example/comments-platform/internal/platform/httpserver"
	"github.com/example/comments-platform/internal/platform/logging"
	"github.com/example/comments-platform/internal/platform/natsconn"
	"github.com/example/comments-platform/internal/platform/run"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	st, closeStore := initStore(cfg, log)
	if closeStore != nil {
		defer closeStore()
	}

	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}
	mailer := mail.NewSMTPSender(cfg.SMTP, log)

	// NATS is a wake-up optimization for the notification worker; the
	// service stays up without it.
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL})
	if err != nil {
		log.Warn("nats connect failed, notifications fall back to polling", zap.Error(err))
		nc = nil
	}

	queue := &notify.Queue{
		Store: st,
		NATS:  nc,
		Mode:  notify.ParseMode(cfg.Comments.NotificationMode),
		Log:   log,
	}
	svc := &moderation.Service{
		Store:          st,
		Mailer:         mailer,
		Queue:          queue,
		Log:            log,
		Mode:           moderation.ParseMode(cfg.Comments.ModerationMode),
		ModeratorEmail: cfg.ModeratorEmail,
		BaseURL:        cfg.BaseURL,
	}
	ledger := votes.Ledger{Store: st, Cooldown: cfg.Comments.VoteCooldown}
	notifier := &worker.Notifier{
		Store:    st,
		Mailer:   mailer,
		Log:      log,
		Interval: time.Minute,
		BaseURL:  cfg.BaseURL,
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r)

	// Public surface; a token is optional and only sharpens the vote identity.
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalUser(verifier))
		r.Get("/v1/threads/{page_id}/{field_id}/comments", handlers.GetThread(cfg.Comments, st))
		r.Post("/v1/threads/{page_id}/{field_id}/comments", handlers.SubmitComment(cfg.Comments, svc, st))
		r.Get("/v1/threads/{page_id}/{field_id}/ratings", handlers.GetRatings(st))
		r.Post("/v1/comments/{comment_id}/vote", handlers.CastVote(ledger))
	})

	// Email links; the secret code is the authorization.
	r.Get("/v1/comments/remote", handlers.RemoteChange(svc))

	r.Post("/v1/moderation/login", handlers.ModeratorLogin(verifier, cfg.ModeratorEmail, cfg.ModeratorPasswordHash))
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Use(auth.RequireModerator)
		r.Get("/v1/moderation/comments", handlers.ListByStatus(st))
		r.Post("/v1/moderation/comments/{comment_id}/status", handlers.SetCommentStatus(svc))
		r.Delete("/v1/moderation/comments/{comment_id}", handlers.DeleteComment(svc))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if nc != nil {
			defer nc.Close()
		}
		go func() {
			if err := notifier.Run(ctx, nc); err != nil && ctx.Err() == nil {
				log.Error("notification worker stopped", zap.Error(err))
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initStore opens Postgres, falling back to the in-memory store outside
// production so the service can run without a database in dev and CI.
func initStore(cfg config.AppConfig, log *zap.Logger) (store.Store, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Open(ctx)
	if err == nil {
		log.Info("using postgres comment store")
		return store.NewPostgresStore(pool), pool.Close
	}

	if strings.EqualFold(cfg.Env, "production") {
		log.Error("postgres required in production", zap.Error(err))
		run.Exit(1)
	}
	log.Warn("postgres unavailable, using in-memory comment store", zap.Error(err))
	return store.NewInMemoryStore(), nil
}
