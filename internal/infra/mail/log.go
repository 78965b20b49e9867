// Package mail holds the outbound email transports and the resilience
// wrapper they share.
package mail

import (
	"context"

	"github.com/boddenberg/securebank-go/internal/domain"

	"go.uber.org/zap"
)

// LogMailer writes messages to the log instead of sending them. It is the
// default transport for local development; the text body carries the link
// or code a developer needs.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a log-only mailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger.Named("mail")}
}

func (m *LogMailer) Send(_ context.Context, msg *domain.MailMessage) error {
	m.logger.Info("mail (log transport)",
		zap.String("id", msg.ID),
		zap.String("kind", msg.Kind),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.TextBody),
	)
	return nil
}
