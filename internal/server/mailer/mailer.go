// Package mailer sends the account emails (verification and password reset)
// over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/logging"
	"gopkg.in/gomail.v2"
)

// Config holds SMTP settings. BaseURL is the public address links point at.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	BaseURL  string
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// newDialer is a seam for tests.
var newDialer = func(cfg Config) sender {
	return gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
}

// Mailer renders and delivers account emails. With an empty Host it only logs
// the rendered link, which is what local development wants.
type Mailer struct {
	cfg    Config
	sender sender
	logger logging.Logger
}

func New(cfg Config, logger logging.Logger) *Mailer {
	m := &Mailer{cfg: cfg, logger: logger.With("module", "mailer")}
	if cfg.Host != "" {
		m.sender = newDialer(cfg)
	}
	return m
}

var (
	verificationTmpl = template.Must(template.New("verification").Parse(`<html>
<body>
<h2>Welcome to Contactbook!</h2>
<p>Thank you for registering. Please click the link below to verify your email address:</p>
<p><a href="{{.Link}}">Verify Email</a></p>
<p>Or copy and paste this link in your browser:</p>
<p>{{.Link}}</p>
<p>If you didn't create this account, please ignore this email.</p>
</body>
</html>`))

	resetTmpl = template.Must(template.New("reset").Parse(`<html>
<body>
<p>We received a request to reset the password for your account.</p>
<p>Use this token to choose a new password: <b>{{.Token}}</b></p>
<p><a href="{{.Link}}">Check the token</a></p>
<p>The token expires in {{.Validity}} and works only once.</p>
<p>If you did not request a password reset, you can ignore this email.</p>
</body>
</html>`))
)

// SendVerification mails the email verification link.
func (m *Mailer) SendVerification(ctx context.Context, to, token string) error {
	link := m.link("/api/v1/auth/verify-email", token)
	return m.send(ctx, to, "Verify your email - Contactbook", verificationTmpl, map[string]any{
		"Link": link,
	})
}

// SendPasswordReset mails a reset token valid for validity.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string, validity time.Duration) error {
	link := m.link("/api/v1/auth/verify-reset-token", token)
	return m.send(ctx, to, "Password reset - Contactbook", resetTmpl, map[string]any{
		"Link":     link,
		"Token":    token,
		"Validity": validity.String(),
	})
}

func (m *Mailer) link(path, token string) string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + path + "?token=" + token
}

func (m *Mailer) send(ctx context.Context, to, subject string, tmpl *template.Template, data any) error {
	if to == "" {
		return fmt.Errorf("no recipients specified")
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}

	if m.sender == nil {
		m.logger.Info(ctx, "smtp disabled, mail not sent", "to", to, "subject", subject, "template", tmpl.Name())
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body.String())

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.logger.Debug(ctx, "mail sent", "to", to, "template", tmpl.Name())
	return nil
}
