package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// LogSMS records SMS payloads in the application log instead of calling a carrier.
type LogSMS struct {
	prefix string
	logger *zap.Logger
}

// NewLogSMS builds an SMS sender that prefixes every text, e.g. "CBMS: ".
func NewLogSMS(prefix string, logger *zap.Logger) *LogSMS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSMS{prefix: prefix, logger: logger}
}

// Channel implements Sender.
func (s *LogSMS) Channel() string { return "sms" }

// Send implements Sender. Recipients without a phone number are ignored.
func (s *LogSMS) Send(ctx context.Context, msg Message) error {
	if msg.To.Phone == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("sms dispatched",
		zap.String("phone", msg.To.Phone),
		zap.String("text", s.Text(msg)),
	)
	return nil
}

// Text renders the SMS body.
func (s *LogSMS) Text(msg Message) string {
	if s.prefix == "" {
		return msg.Body
	}
	return fmt.Sprintf("%s: %s", s.prefix, msg.Body)
}
