package userauth

import (
	"context"
	"io"
	"log/slog"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/audit"
	"github.com/VilnaCRM-Org/user-service-sub004/internal/flows"
)

type (
	// Event is a domain event as delivered to an [EventSink].
	Event = audit.Event
	// Severity ranks an event: info for routine lifecycle events, warning
	// for failed authentication and lockout, critical for refresh theft.
	Severity = audit.Severity
	// EventSink receives events from the Engine's dispatcher.
	EventSink = audit.Sink

	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	SlogSink       = audit.SlogSink
)

const (
	SeverityInfo     = audit.SeverityInfo
	SeverityWarning  = audit.SeverityWarning
	SeverityCritical = audit.SeverityCritical
)

// LevelCritical is the slog level used for critical events.
const LevelCritical = audit.LevelCritical

// Event names.
const (
	EventUserSignedIn              = flows.EventUserSignedIn
	EventSignInFailed              = flows.EventSignInFailed
	EventTwoFactorCompleted        = flows.EventTwoFactorCompleted
	EventTwoFactorFailed           = flows.EventTwoFactorFailed
	EventTwoFactorEnabled          = flows.EventTwoFactorEnabled
	EventTwoFactorDisabled         = flows.EventTwoFactorDisabled
	EventRecoveryCodeUsed          = flows.EventRecoveryCodeUsed
	EventRecoveryCodesRegenerated  = flows.EventRecoveryCodesRegenerated
	EventAccountLockedOut          = flows.EventAccountLockedOut
	EventRefreshTokenRotated       = flows.EventRefreshTokenRotated
	EventRefreshTokenTheftDetected = flows.EventRefreshTokenTheftDetected
	EventSessionRevoked            = flows.EventSessionRevoked
	EventAllSessionsRevoked        = flows.EventAllSessionsRevoked
	EventPasswordResetRequested    = flows.EventPasswordResetRequested
	EventPasswordResetConfirmed    = flows.EventPasswordResetConfirmed
	EventPasswordChanged           = flows.EventPasswordChanged
)

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewSlogSink(logger *slog.Logger) *SlogSink { return audit.NewSlogSink(logger) }

// NewJSONWriterSink writes one JSON object per event. Writes are serialised.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

var eventSeverity = map[string]Severity{
	EventSignInFailed:              SeverityWarning,
	EventTwoFactorFailed:           SeverityWarning,
	EventRecoveryCodeUsed:          SeverityWarning,
	EventAccountLockedOut:          SeverityWarning,
	EventRefreshTokenTheftDetected: SeverityCritical,
}

// SeverityOf reports the severity the Engine assigns to an event name.
func SeverityOf(name string) Severity {
	if s, ok := eventSeverity[name]; ok {
		return s
	}
	return SeverityInfo
}

func (e *Engine) emitEvent(ctx context.Context, ev flows.Event) {
	if e == nil || e.events == nil {
		return
	}
	e.events.Emit(ctx, Event{
		Name:      ev.Name,
		Severity:  SeverityOf(ev.Name),
		Timestamp: e.now().UTC(),
		UserID:    ev.UserID,
		SessionID: ev.SessionID,
		IP:        ev.IP,
		UserAgent: ev.UserAgent,
		Fields:    ev.Fields,
	})
}
