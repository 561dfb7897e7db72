package notify

import (
	"context"
	"errors"
	"log/slog"
)

// ErrUnconfirmed reports that the mailer stopped waiting while a send was
// still in flight. The message may yet be delivered.
var ErrUnconfirmed = errors.New("delivery unconfirmed")

type Message struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}

// Mailer delivers a single message. Failures are returned to the caller,
// which decides whether they matter.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NopMailer stands in when SMTP is not configured.
type NopMailer struct {
	Logger *slog.Logger
}

func (m NopMailer) Send(_ context.Context, msg Message) error {
	if m.Logger != nil {
		m.Logger.Info("email skipped, smtp not configured",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
		)
	}
	return nil
}
