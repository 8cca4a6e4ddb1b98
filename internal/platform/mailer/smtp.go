// Package mailer delivers email over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	mail "github.com/go-mail/mail"
)

// Attachment is an in-memory file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a single outbound email.
type Message struct {
	To          []string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLSMode is one of "starttls", "ssl" or "none".
	TLSMode string
	Timeout time.Duration
}

// SMTP sends messages through an SMTP relay.
type SMTP struct {
	cfg    Config
	logger *slog.Logger
}

// NewSMTP constructs an SMTP transport.
func NewSMTP(cfg Config, logger *slog.Logger) *SMTP {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTP{cfg: cfg, logger: logger}
}

// Send delivers msg. The SMTP dialogue itself is not cancellable once started.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("mailer: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)
	for _, att := range msg.Attachments {
		data := att.Data
		settings := []mail.FileSetting{
			mail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		}
		if att.ContentType != "" {
			settings = append(settings, mail.SetHeader(map[string][]string{"Content-Type": {att.ContentType}}))
		}
		m.Attach(att.Filename, settings...)
	}

	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.Timeout = s.cfg.Timeout
	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
		d.TLSConfig = &tls.Config{ServerName: s.cfg.Host}
	case "starttls":
		d.TLSConfig = &tls.Config{ServerName: s.cfg.Host}
		d.StartTLSPolicy = mail.MandatoryStartTLS
	default:
		d.StartTLSPolicy = mail.NoStartTLS
	}

	if err := d.DialAndSend(m); err != nil {
		s.logger.Error("smtp send failed", slog.String("host", s.cfg.Host), slog.Any("error", err))
		return fmt.Errorf("mailer: smtp send: %w", err)
	}
	s.logger.Info("email sent", slog.String("subject", msg.Subject), slog.Int("recipients", len(msg.To)))
	return nil
}
