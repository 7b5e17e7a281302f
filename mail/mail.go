// Package mail defines the out-of-band delivery port used for password
// reset codes. Production wiring uses mail/ses; LogSender is for development.
package mail

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrInvalidMessage is returned when a message has no recipient or subject.
var ErrInvalidMessage = errors.New("mail: invalid message")

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Validate reports ErrInvalidMessage for an unaddressed or empty message.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" || strings.TrimSpace(m.Subject) == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogSender writes messages to a logger instead of sending them. The body is
// logged at debug level only since it carries the reset code.
type LogSender struct {
	Logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{Logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.Logger.InfoContext(ctx, "mail: message sent (log sender)", "to", msg.To, "subject", msg.Subject)
	s.Logger.DebugContext(ctx, "mail: message body", "to", msg.To, "body", msg.Body)
	return nil
}
