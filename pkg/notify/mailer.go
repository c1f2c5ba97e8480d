package notify

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail/v2"
)

// SMTPConfig holds mail relay settings.
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	SkipTLSVerify bool
}

// SMTPMailer sends plain-text email through an SMTP relay using mandatory STARTTLS.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *mail.Dialer
}

// NewSMTPMailer validates relay settings and prepares a dialer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp not configured (host and from are required)")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify, //nolint:gosec
	}
	return &SMTPMailer{cfg: cfg, dialer: d}, nil
}

// Channel implements Sender.
func (m *SMTPMailer) Channel() string { return "email" }

// Send implements Sender. Recipients without an email address are ignored.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To.Email == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(m.build(msg)); err != nil {
		return fmt.Errorf("send email to %s: %w", msg.To.Email, err)
	}
	return nil
}

func (m *SMTPMailer) build(msg Message) *mail.Message {
	out := mail.NewMessage()
	out.SetHeader("From", m.cfg.From)
	if msg.To.Name != "" {
		out.SetAddressHeader("To", msg.To.Email, msg.To.Name)
	} else {
		out.SetHeader("To", msg.To.Email)
	}
	out.SetHeader("Subject", msg.Subject)
	out.SetBody("text/plain", msg.Body)
	return out
}
