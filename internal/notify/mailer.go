package notify

import (
	"context"
	"errors"
	"net"
	"net/smtp"

	"github.com/domodwyer/mailyak/v3"
)

// SMTPConfig describes the outbound mail relay.
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
	FromName string
}

// Mailer delivers messages over SMTP.
type Mailer struct {
	cfg  SMTPConfig
	addr string
	auth smtp.Auth
}

// NewMailer returns a Mailer for cfg.  Auth is only used when a user is
// configured.
func NewMailer(cfg SMTPConfig) *Mailer {
	m := &Mailer{cfg: cfg, addr: net.JoinHostPort(cfg.Host, cfg.Port)}
	if cfg.User != "" {
		m.auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return m
}

// Compose builds the mailyak envelope for msg without sending it.
func (m *Mailer) Compose(msg Message) (*mailyak.MailYak, error) {
	if msg.To == "" {
		return nil, errors.New("message has no recipient")
	}
	mail := mailyak.New(m.addr, m.auth)
	mail.To(msg.To)
	mail.From(m.cfg.From)
	if m.cfg.FromName != "" {
		mail.FromName(m.cfg.FromName)
	}
	mail.Subject(msg.Subject)
	mail.HTML().Set(msg.HTMLBody)
	mail.AddHeader("X-Message-Id", msg.ID)
	return mail, nil
}

// Notify implements Notifier by sending msg immediately.
func (m *Mailer) Notify(_ context.Context, msg Message) error {
	mail, err := m.Compose(msg)
	if err != nil {
		return err
	}
	return mail.Send()
}
