// Package mailer delivers password reset links.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// Mailer sends a reset link to an address.
type Mailer interface {
	SendReset(ctx context.Context, to, link string) error
}

// LogMailer writes reset links to the log instead of sending mail.
// Meant for development setups without an SMTP relay.
type LogMailer struct {
	log *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(log *zap.Logger) *LogMailer { return &LogMailer{log: log} }

func (m *LogMailer) SendReset(_ context.Context, to, link string) error {
	m.log.Info("password reset link", zap.String("to", to), zap.String("link", link))
	return nil
}

// SMTPConfig holds relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	send sendFunc
}

// NewSMTPMailer constructs an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) SendReset(ctx context.Context, to, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("mailer: bad recipient %q", to)
	}
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.From, []string{to}, resetMessage(m.cfg.From, to, link)); err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}
	return nil
}

func resetMessage(from, to, link string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: Reset your DevDice password\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString("Someone asked to reset the password for this address.\r\n")
	b.WriteString("Open the link below to choose a new one. It expires soon and works once.\r\n\r\n")
	b.WriteString(link + "\r\n\r\n")
	b.WriteString("If it wasn't you, ignore this message.\r\n")
	return []byte(b.String())
}
