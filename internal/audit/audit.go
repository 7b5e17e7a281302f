package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LevelCritical sits above slog.LevelError and marks security incidents.
const LevelCritical = slog.Level(12)

// Severity ranks an event by risk.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// Level maps the severity onto a slog level.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityCritical:
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is the canonical domain event.
type Event struct {
	Name      string            `json:"name"`
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// RedactedValue replaces the value of a secret field in log output.
const RedactedValue = "[redacted]"

// secretFields name event fields that carry live credentials. Sinks that
// write to logs never print their values.
var secretFields = map[string]struct{}{
	"token": {},
}

// redactFields returns fields with every secret value replaced. The input map
// is shared with other sinks and is never modified.
func redactFields(fields map[string]string) map[string]string {
	var out map[string]string
	for k := range fields {
		if _, secret := secretFields[k]; !secret {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(fields))
			for name, v := range fields {
				out[name] = v
			}
		}
		out[k] = RedactedValue
	}
	if out == nil {
		return fields
	}
	return out
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line. Secret fields are redacted.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	event.Fields = redactFields(event.Fields)
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// SlogSink logs each event at the level of its severity. Secret fields are
// redacted.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.logger == nil {
		return
	}
	attrs := make([]slog.Attr, 0, 6+len(event.Fields))
	attrs = append(attrs,
		slog.String("event", event.Name),
		slog.String("severity", event.Severity.String()),
	)
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.IP != "" {
		attrs = append(attrs, slog.String("ip", event.IP))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	for k, v := range redactFields(event.Fields) {
		attrs = append(attrs, slog.String(k, v))
	}
	s.logger.LogAttrs(ctx, event.Severity.Level(), "auth event", attrs...)
}
