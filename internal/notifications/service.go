package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/mailer"
)

// Transport delivers a rendered email.
type Transport interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Service renders notifications and hands them to the transport.
type Service struct {
	transport   Transport
	frontendURL string
	logger      *slog.Logger
}

// NewService constructs a notification service.
func NewService(transport Transport, frontendURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{transport: transport, frontendURL: frontendURL, logger: logger}
}

// Send renders n and delivers it.
func (s *Service) Send(ctx context.Context, n Notification) error {
	if pr, ok := n.(PasswordRecovery); ok && pr.BaseURL == "" {
		pr.BaseURL = s.frontendURL
		n = pr
	}
	body, err := n.Body()
	if err != nil {
		return err
	}
	msg := mailer.Message{To: n.Recipients(), Subject: n.Subject(), HTMLBody: body}
	if err := s.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("notifications: send %s: %w", n.Kind(), err)
	}
	s.logger.Info("notification sent", slog.String("kind", string(n.Kind())), slog.Int("recipients", len(msg.To)))
	return nil
}

// SendEncoded decodes a queued payload and delivers it.
func (s *Service) SendEncoded(ctx context.Context, kind Kind, payload []byte) error {
	n, err := Decode(kind, payload)
	if err != nil {
		return err
	}
	return s.Send(ctx, n)
}
