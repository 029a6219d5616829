package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/wneessen/go-mail"
)

type Mailer interface {
	SendVerification(ctx context.Context, to, name, link string) error
	// Delivers reports whether mail actually leaves the server.
	Delivers() bool
}

var verificationTmpl = template.Must(template.New("verify").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #9333ea;">Email Verification</h2>
  <p>Hello {{.Name}},</p>
  <p>Please verify your email address by clicking the button below:</p>
  <a href="{{.Link}}" style="display: inline-block; padding: 12px 24px; background-color: #9333ea; color: white; text-decoration: none; border-radius: 6px; margin: 20px 0;">Verify Email</a>
  <p>Or copy and paste this link into your browser:</p>
  <p style="color: #666; word-break: break-all;">{{.Link}}</p>
  <p style="color: #999; font-size: 12px;">This link will expire in 24 hours.</p>
  <p style="color: #999; font-size: 12px;">If you didn't request this, please ignore this email.</p>
</div>`))

func renderVerification(name, link string) (string, error) {
	var buf bytes.Buffer
	err := verificationTmpl.Execute(&buf, struct{ Name, Link string }{name, link})
	return buf.String(), err
}

type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *SMTPMailer) Delivers() bool { return true }

func (m *SMTPMailer) SendVerification(ctx context.Context, to, name, link string) error {
	body, err := renderVerification(name, link)
	if err != nil {
		return fmt.Errorf("render verification mail: %w", err)
	}

	from := m.From
	if from == "" {
		from = m.Username
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	msg.Subject("Verify Your Email - QuizNerds")
	msg.SetBodyString(mail.TypeTextHTML, body)

	client, err := mail.NewClient(m.Host,
		mail.WithPort(m.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.Username),
		mail.WithPassword(m.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}

// LogMailer stands in when SMTP is not configured; the link is logged
// and handlers hand the token back to the caller instead.
type LogMailer struct{}

func (LogMailer) Delivers() bool { return false }

func (LogMailer) SendVerification(_ context.Context, to, _, link string) error {
	slog.Info("email not configured, verification link", "to", to, "url", link)
	return nil
}
