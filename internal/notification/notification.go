package notification

import (
	"context"
	"log/slog"
)

const (
	// KindOTP carries a one-time passcode to the owner of a contact address.
	KindOTP = "otp"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Subject     string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger instead of a mail
// gateway. The body is logged only at debug level since it holds the code.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "subject", message.Subject)
	n.logger.DebugContext(ctx, "notification body", "destination", message.Destination, "body", message.Body)
	return nil
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, message Message) error

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, message Message) error {
	return f(ctx, message)
}
