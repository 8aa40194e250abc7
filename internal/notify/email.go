// Package notify delivers out-of-band notification channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/straye-as/pipeline-api/internal/config"
	"go.uber.org/zap"
)

// ErrEmailDisabled is returned by the disabled sender
var ErrEmailDisabled = errors.New("email channel disabled")

// Message is one outgoing email
type Message struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

// Sender sends email
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Enabled() bool
}

// SendGridSender sends mail through the SendGrid v3 API
type SendGridSender struct {
	client  *sendgrid.Client
	from    *mail.Email
	sandbox bool
	logger  *zap.Logger
}

// NewSender returns a SendGrid sender when email is enabled and a key is
// configured, and a disabled sender otherwise
func NewSender(cfg *config.EmailConfig, logger *zap.Logger) Sender {
	if !cfg.Enabled || cfg.SendGridKey == "" {
		logger.Info("email channel disabled")
		return DisabledSender{}
	}
	return &SendGridSender{
		client:  sendgrid.NewSendClient(cfg.SendGridKey),
		from:    mail.NewEmail(cfg.FromName, cfg.FromAddress),
		sandbox: cfg.SandboxMode,
		logger:  logger,
	}
}

// Enabled reports true
func (s *SendGridSender) Enabled() bool { return true }

// Send delivers the message; any non-2xx response is an error
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	m := mail.NewSingleEmail(s.from, msg.Subject, to, msg.PlainText, msg.HTML)
	if s.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		m.MailSettings = ms
	}

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}

	s.logger.Debug("email sent", zap.String("subject", msg.Subject), zap.Int("status", resp.StatusCode))
	return nil
}

// DisabledSender drops every message
type DisabledSender struct{}

// Enabled reports false
func (DisabledSender) Enabled() bool { return false }

// Send always returns ErrEmailDisabled
func (DisabledSender) Send(context.Context, Message) error { return ErrEmailDisabled }
