package auth

import (
	"context"
	"time"
)

// ActivityEventType is the action tag recorded in the audit trail.
type ActivityEventType string

const (
	ActivityEventLogin                ActivityEventType = "LOGIN"
	ActivityEventLoginFailed          ActivityEventType = "LOGIN_FAILED"
	ActivityEventSSOUserCreated       ActivityEventType = "SSO_USER_CREATED"
	ActivityEventSSOLogin             ActivityEventType = "SSO_LOGIN"
	ActivityEventSSOLoginFailed       ActivityEventType = "SSO_LOGIN_FAILED"
	ActivityEventInvitationSent       ActivityEventType = "INVITATION_SENT"
	ActivityEventInvitationAccepted   ActivityEventType = "INVITATION_ACCEPTED"
	ActivityEventProfileUpdate        ActivityEventType = "PROFILE_UPDATE"
	ActivityEventAccountCreated       ActivityEventType = "ACCOUNT_CREATED"
	ActivityEventAccountStatusChanged ActivityEventType = "ACCOUNT_STATUS_CHANGED"
)

// Entity types referenced by activity events.
const (
	EntityTypeUser       = "USER"
	EntityTypeInvitation = "INVITATION"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

const (
	ActorTypeAccount   = "account"
	ActorTypeSystem    = "system"
	ActorTypeAnonymous = "anonymous"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	EntityType string
	EntityID   string
	FromStatus AccountStatus
	ToStatus   AccountStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans an event out to every sink and returns the first error.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// EmitActivity records the event and only logs sink failures. A nil sink
// or logger is allowed.
func EmitActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: ActorTypeSystem}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		normalizeLogger(logger).Warn("activity sink error for %s: %v", event.EventType, err)
	}
}

func accountActor(id string) ActorRef {
	if id == "" {
		return ActorRef{Type: ActorTypeAnonymous}
	}
	return ActorRef{ID: id, Type: ActorTypeAccount}
}
