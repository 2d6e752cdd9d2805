package authclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the authentication state of a Session.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusChecking        Status = "checking"
	StatusAuthenticated   Status = "authenticated"
	// StatusError is never stored by the Manager. Adapters derive it from
	// Session.Err through Session.DisplayStatus.
	StatusError Status = "error"
)

// Session is an immutable snapshot of the session state.
type Session struct {
	Status    Status
	Token     string
	Profile   *Profile
	Err       error
	UpdatedAt time.Time
}

// IsAuthenticated reports whether both token and profile are resolved.
func (s Session) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.Token != "" && s.Profile != nil
}

// HasToken reports whether a token is held.
func (s Session) HasToken() bool {
	return s.Token != ""
}

// DisplayStatus layers the error side channel on top of Status.
func (s Session) DisplayStatus() Status {
	if s.Err != nil && s.Status != StatusAuthenticated {
		return StatusError
	}
	return s.Status
}

func (s Session) clone() Session {
	s.Profile = s.Profile.clone()
	return s
}

// String never prints the token.
func (s Session) String() string {
	subject := "<nil>"
	if s.Profile != nil {
		subject = s.Profile.Subject
	}
	return fmt.Sprintf("status=%s token=%t sub=%s err=%v", s.Status, s.Token != "", subject, s.Err)
}

// SessionEventType enumerates the transitions published by the Manager.
type SessionEventType string

const (
	EventBootstrapped  SessionEventType = "session.bootstrap"
	EventLoginStarted  SessionEventType = "session.login.started"
	EventRetryStarted  SessionEventType = "session.retry.started"
	EventResolved      SessionEventType = "session.resolved"
	EventResolveFailed SessionEventType = "session.resolve.failed"
	EventEvicted       SessionEventType = "session.evicted"
	EventLoggedOut     SessionEventType = "session.logout"
)

// SessionEvent describes one applied transition. Err is the error side
// channel: it is set when the transition was caused by a failure.
type SessionEvent struct {
	ID         uuid.UUID
	Type       SessionEventType
	From       Status
	To         Status
	Session    Session
	Err        error
	OccurredAt time.Time
}

// SessionListener observes session events. Listeners run in transition order.
type SessionListener func(SessionEvent)

// EventSink records session events for auditing. Sinks run best effort,
// errors are logged.
type EventSink interface {
	Record(ctx context.Context, event SessionEvent) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event SessionEvent) error

// Record implements EventSink.
func (f EventSinkFunc) Record(ctx context.Context, event SessionEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopEventSink struct{}

func (noopEventSink) Record(context.Context, SessionEvent) error {
	return nil
}

func normalizeEventSink(s EventSink) EventSink {
	if s == nil {
		return noopEventSink{}
	}
	return s
}
