package notify

import (
	"context"
	"log/slog"
)

// Recipient is an enrolled student.
type Recipient struct {
	StudentID string
	Name      string
	Email     string
}

// Message is one email to one recipient.
type Message struct {
	To      Recipient
	Subject string
	Text    string
	HTML    string
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of sending them. Used when
// no mail provider is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, msg Message) error {
	logger := n.Log
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		slog.String("student_id", msg.To.StudentID),
		slog.String("email", msg.To.Email),
		slog.String("subject", msg.Subject))
	return nil
}

// New returns a SendGrid notifier when apiKey is set and a LogNotifier
// otherwise.
func New(apiKey, appName, fromEmail string, logger *slog.Logger) Notifier {
	if apiKey == "" {
		if logger != nil {
			logger.Info("SENDGRID_API_KEY not set, notifications are logged only")
		}
		return LogNotifier{Log: logger}
	}
	return NewSendgridNotifier(apiKey, appName, fromEmail)
}
