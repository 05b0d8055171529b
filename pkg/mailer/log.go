package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes messages to the structured log instead of delivering them.
type LogSender struct {
	from   string
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(from string, logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{from: from, logger: logger}
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.Info("mail",
		zap.String("from", s.from),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text))
	return nil
}
