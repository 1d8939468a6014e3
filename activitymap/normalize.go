// Package activitymap flattens client activity events into a record shape
// that log shippers and audit stores can ingest without knowing the
// library types.
package activitymap

import (
	"context"
	"fmt"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-client"
)

const (
	// MetadataKeyKind holds the content kind for resource events
	MetadataKeyKind = "kind"
	// MetadataKeyID holds the content id for resource events
	MetadataKeyID = "id"
)

const (
	defaultChannel = "blog-client"
	defaultActorID = "anonymous"

	objectTypeSession = "session"
	objectTypeRoute   = "route"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
	now           func() time.Time
}

// Normalize converts an auth.ActivityEvent into the normalized shape.
// Resource events use the content kind and id as their object; session
// and guard events use fixed object types.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	objectType, objectID := resolveObject(event)

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Username), options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    options.channel,
		Metadata:   cloneMap(event.Metadata),
		OccurredAt: occurredAt,
	}
}

// Sink returns an ActivitySink that hands each normalized record to emit
func Sink(emit func(Normalized) error, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		return emit(Normalize(event, opts...))
	})
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if channel = strings.TrimSpace(channel); channel != "" {
			opts.channel = channel
		}
	}
}

// WithActorFallback sets the actor id used when the event has no username.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			opts.actorFallback = actorID
		}
	}
}

// WithClock sets the time used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func resolveObject(event auth.ActivityEvent) (string, string) {
	switch event.EventType {
	case auth.ActivityEventAccessGranted, auth.ActivityEventAccessRejected:
		kind, _ := event.Metadata[MetadataKeyKind].(string)
		id := ""
		if raw, ok := event.Metadata[MetadataKeyID]; ok && raw != nil {
			id = fmt.Sprint(raw)
		}
		return kind, id
	case auth.ActivityEventGuardTransition:
		level, _ := event.Metadata["level"].(string)
		return objectTypeRoute, level
	default:
		return objectTypeSession, strings.TrimSpace(event.Username)
	}
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
