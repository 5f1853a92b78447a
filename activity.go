package session

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventStateChanged      ActivityEventType = "session.state.changed"
	ActivityEventSyncSoftFailure   ActivityEventType = "session.sync.soft_failure"
	ActivityEventStaleDiscarded    ActivityEventType = "session.sync.stale_discarded"
	ActivityEventRoleChanged       ActivityEventType = "profile.role.changed"
	ActivityEventProfileUpdated    ActivityEventType = "profile.updated"
	ActivityEventRecoveryRequested ActivityEventType = "recovery.password_reset.requested"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	IdentityID string
	FromState  StoreState
	ToState    StoreState
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
