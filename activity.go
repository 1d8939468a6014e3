package auth

import (
	"context"
	"time"
)

// ActivityEventType names a client side action worth recording
type ActivityEventType string

const (
	ActivityEventLoginSuccess    ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure    ActivityEventType = "auth.login.failure"
	ActivityEventRegisterSuccess ActivityEventType = "auth.register.success"
	ActivityEventRegisterFailure ActivityEventType = "auth.register.failure"
	ActivityEventLogout          ActivityEventType = "auth.logout"
	ActivityEventSessionCleared  ActivityEventType = "auth.session.cleared"
	ActivityEventAccessGranted   ActivityEventType = "resource.access.granted"
	ActivityEventAccessRejected  ActivityEventType = "resource.access.rejected"
	ActivityEventGuardTransition ActivityEventType = "route.guard.transition"
)

// ActivityEvent is one session, guard or content access action. Username is
// empty for anonymous content access.
type ActivityEvent struct {
	EventType  ActivityEventType
	Username   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink receives activity events. A failing sink only produces a
// warning in the log; the action that raised the event still completes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc lets a plain function act as a sink
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

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

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		normalizeLogger(logger).Warn("activity sink error: %v", err)
	}
}
