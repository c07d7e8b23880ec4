// Package notify emails guests when their booking is received, confirmed or
// cancelled.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/diagnosis/hanguk-bookings/pkg/config"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
)

type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers one message and returns the provider's message id, if any.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// LogMailer writes messages to the log instead of sending them. Used in
// development.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) (string, error) {
	logger.InfoContext(ctx, "[DEV MAIL] Guest email",
		"to", msg.ToEmail,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return "", nil
}

// NewMailer builds the mailer named by cfg.Provider. It returns nil, nil when
// guest email is disabled.
func NewMailer(cfg config.MailConfig) (Mailer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil
	case "log":
		return LogMailer{}, nil
	case "mailersend":
		if cfg.MailerSendAPIKey == "" || cfg.FromEmail == "" {
			return nil, fmt.Errorf("mailersend requires MAILERSEND_API_KEY and MAILER_FROM")
		}
		return NewMailerSend(cfg.MailerSendAPIKey, cfg.FromName, cfg.FromEmail), nil
	case "smtp":
		if cfg.FromEmail == "" {
			return nil, fmt.Errorf("smtp requires MAILER_FROM")
		}
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.FromEmail, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS), nil
	default:
		return nil, fmt.Errorf("unknown MAIL_PROVIDER %q", cfg.Provider)
	}
}
