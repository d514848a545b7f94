// Package mail sends comment notification emails over SMTP.
package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/example/comments-platform/internal/platform/config"
)

// ReplyNotification tells a subscriber about a new comment or reply.
type ReplyNotification struct {
	To             string
	Author         string // who wrote the new comment
	Text           string
	OriginalText   string // the subscribed comment, empty for thread-wide subscribers
	ThreadURL      string
	UnsubscribeURL string
}

// StatusChange tells a commenter their comment was approved or removed.
type StatusChange struct {
	To        string
	Author    string
	OldStatus string
	NewStatus string
	Text      string
}

// ModeratorAlert tells the moderator a comment is awaiting approval, with
// one-shot remote links for acting straight from the inbox.
type ModeratorAlert struct {
	To         string
	Author     string
	Email      string
	Text       string
	ApproveURL string
	SpamURL    string
}

// Sender is the outbound mail boundary. Implementations must be safe for
// concurrent use.
type Sender interface {
	SendReplyNotification(n ReplyNotification) error
	SendStatusChange(n StatusChange) error
	SendModeratorAlert(n ModeratorAlert) error
}

var (
	replyTmpl = template.Must(template.New("reply").Parse(`<p><strong>{{.Author}}</strong> wrote a new comment:</p>
<blockquote>{{.Text}}</blockquote>
{{if .OriginalText}}<p>In reply to your comment:</p>
<blockquote>{{.OriginalText}}</blockquote>{{end}}
<p><a href="{{.ThreadURL}}">View the conversation</a></p>
<p><a href="{{.UnsubscribeURL}}">Stop receiving these notifications</a></p>`))

	statusTmpl = template.Must(template.New("status").Parse(`<p>Hello {{.Author}},</p>
<p>Your comment is now <strong>{{.NewStatus}}</strong> (was {{.OldStatus}}):</p>
<blockquote>{{.Text}}</blockquote>`))

	moderatorTmpl = template.Must(template.New("moderator").Parse(`<p>A new comment by <strong>{{.Author}}</strong> ({{.Email}}) is awaiting moderation:</p>
<blockquote>{{.Text}}</blockquote>
<p><a href="{{.ApproveURL}}">Approve</a> &middot; <a href="{{.SpamURL}}">Mark as spam</a></p>
<p>These links work exactly once.</p>`))
)

// SMTPSender delivers mail through a plain SMTP relay. When the deployment
// has no SMTP settings the sender is disabled and every send is a logged
// no-op, so the rest of the system never has to care.
type SMTPSender struct {
	cfg config.SMTPConfig
	log *zap.Logger
}

func NewSMTPSender(cfg config.SMTPConfig, log *zap.Logger) *SMTPSender {
	if !cfg.Enabled() {
		log.Warn("smtp not configured, outbound mail disabled")
	}
	return &SMTPSender{cfg: cfg, log: log}
}

func (s *SMTPSender) SendReplyNotification(n ReplyNotification) error {
	return s.send(n.To, "New reply to your comment", replyTmpl, n)
}

func (s *SMTPSender) SendStatusChange(n StatusChange) error {
	return s.send(n.To, fmt.Sprintf("Your comment was %s", n.NewStatus), statusTmpl, n)
}

func (s *SMTPSender) SendModeratorAlert(n ModeratorAlert) error {
	return s.send(n.To, "Comment awaiting moderation", moderatorTmpl, n)
}

func (s *SMTPSender) send(to, subject string, tmpl *template.Template, data any) error {
	if !s.cfg.Enabled() {
		s.log.Debug("mail disabled, dropping message", zap.String("to", to), zap.String("subject", subject))
		return nil
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.Write(body.Bytes())

	addr := s.cfg.Host + ":" + s.cfg.Port
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}
