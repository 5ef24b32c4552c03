// Package mailer sends outreach email over SMTP.
package mailer

import (
	"context"

	"github.com/rotisserie/eris"
	"gopkg.in/gomail.v2"
)

// Sender delivers a single email message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is an outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// SSL selects implicit TLS (port 465). Off means STARTTLS.
	SSL bool
}

type smtpSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates a Sender that delivers via the configured SMTP relay.
func NewSMTPSender(cfg SMTPConfig) Sender {
	return &smtpSender{cfg: cfg}
}

// Send implements Sender. gomail has no context support, so delivery
// runs in a goroutine and the result is collected under ctx.
func (s *smtpSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return eris.New("mailer: no recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.SSL = s.cfg.SSL

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "mailer: send")
	case err := <-done:
		if err != nil {
			return eris.Wrap(err, "mailer: send")
		}
		return nil
	}
}
