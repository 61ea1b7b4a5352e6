// Package mailer delivers auth-related email. The core only mints tokens;
// getting them to the user is this package's problem.
package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/sitework/backend/internal/config"
	"github.com/sitework/backend/pkg/logger"
)

type Mailer interface {
	SendPasswordReset(to, resetURL string) error
}

type smtpMailer struct {
	host     string
	port     string
	from     string
	username string
	password string
}

func NewSMTPMailer(cfg config.SMTPConfig) Mailer {
	return &smtpMailer{
		host:     cfg.Host,
		port:     cfg.Port,
		from:     cfg.From,
		username: cfg.Username,
		password: cfg.Password,
	}
}

func (m *smtpMailer) SendPasswordReset(to, resetURL string) error {
	subject := "Reset your password"
	body := fmt.Sprintf("A password reset was requested for your account.\r\n\r\n%s\r\n\r\nThe link expires in one hour. If you did not request this, ignore this email.", resetURL)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg))
}

// NoopMailer is used when SMTP is not configured; it records that a reset
// was requested without the link ever leaving the process.
type NoopMailer struct{}

func (NoopMailer) SendPasswordReset(to, _ string) error {
	logger.Info("password_reset_email_skipped", map[string]interface{}{"to": to})
	return nil
}
