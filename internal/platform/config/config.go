package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr string
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Enabled reports whether outbound mail is configured at all.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.Port != "" && c.From != ""
}

// CommentSettings carries the per-deployment commenting behaviour.
// Domain packages parse the string enums; invalid values fall back to the
// defaults applied here.
type CommentSettings struct {
	ModerationMode   string // "none", "new_commenters", "all"
	MaxReplyDepth    int
	VoteCooldown     time.Duration
	NotificationMode string // "off", "replies", "all"
	PageSize         int    // <= 0 disables pagination
	SortDescending   bool
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	Env         string // "production" enforces real backends
	HTTP        HTTPConfig
	BaseURL     string // public URL prefix for remote links in emails
	NATSURL     string
	JWTSecret   string

	ModeratorEmail        string
	ModeratorPasswordHash string // bcrypt

	SMTP     SMTPConfig
	Comments CommentSettings
}

func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: getenv("SERVICE_NAME"),
		LogLevel:    getenv("LOG_LEVEL"),
		Env:         getenv("APP_ENV"),
		HTTP: HTTPConfig{
			Addr: getenv("HTTP_ADDR"),
		},
		BaseURL:               getenv("BASE_URL"),
		NATSURL:               getenv("NATS_URL"),
		JWTSecret:             getenv("JWT_SECRET"),
		ModeratorEmail:        getenv("MODERATOR_EMAIL"),
		ModeratorPasswordHash: getenv("MODERATOR_PASSWORD_HASH"),
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST"),
			Port:     getenv("SMTP_PORT"),
			Username: getenv("SMTP_USER"),
			Password: getenv("SMTP_PASS"),
			From:     getenv("SMTP_FROM"),
		},
		Comments: CommentSettings{
			ModerationMode:   getenv("MODERATION_MODE"),
			MaxReplyDepth:    envInt("MAX_REPLY_DEPTH", 3),
			VoteCooldown:     time.Duration(envInt("VOTE_COOLDOWN_DAYS", 1)) * 24 * time.Hour,
			NotificationMode: getenv("NOTIFICATION_MODE"),
			PageSize:         envInt("PAGE_SIZE", 0),
			SortDescending:   strings.EqualFold(getenv("SORT_ORDER"), "desc"),
		},
	}

	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Comments.ModerationMode == "" {
		cfg.Comments.ModerationMode = "all"
	}
	if cfg.Comments.NotificationMode == "" {
		cfg.Comments.NotificationMode = "replies"
	}
	if cfg.Comments.MaxReplyDepth < 0 {
		cfg.Comments.MaxReplyDepth = 0
	}
	return cfg, nil
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
