package notify

import (
	"context"

	"go.uber.org/zap"
)

// Mailer delivers a single plain text email. Implementations may wait to
// respect rate limits but must give up once ctx is done.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// LogMailer writes emails to the log instead of sending them
type LogMailer struct {
	Logger *zap.Logger
}

func (m *LogMailer) SendEmail(_ context.Context, to, subject, body string) error {
	m.Logger.Info("Email not sent, mail is disabled",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_length", len(body)))
	return nil
}
