package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender writes emails to the log. Used in development when no broker is
// configured.
type LogSender struct {
	log *logrus.Logger
}

func NewLogSender(log *logrus.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.log.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
		"body":    body,
	}).Info("Email (log only)")
	return nil
}
