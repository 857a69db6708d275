package activitymap

import (
	"strings"
	"time"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

const (
	// MetadataKeyFromStatus stores the source account status for lifecycle transitions.
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the target account status for lifecycle transitions.
	MetadataKeyToStatus = "to_status"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = auth.EntityTypeUser
)

// Normalized is the audit row shape shared by every sink.
type Normalized struct {
	ActorID    string         `json:"actorId,omitempty"`
	ActorType  string         `json:"actorType"`
	Verb       string         `json:"action"`
	ObjectType string         `json:"entityType"`
	ObjectID   string         `json:"entityId,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"createdAt"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel    string
	objectType string
	now        func() time.Time
}

// Normalize converts an auth.ActivityEvent into the audit shape.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorType := strings.TrimSpace(event.Actor.Type)
	if actorType == "" {
		actorType = auth.ActorTypeSystem
	}

	objectType := firstNonEmpty(strings.TrimSpace(event.EntityType), options.objectType)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now()
	}

	return Normalized{
		ActorID:    strings.TrimSpace(event.Actor.ID),
		ActorType:  actorType,
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   strings.TrimSpace(event.EntityID),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt.UTC(),
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType is used when the event carries no entity type.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithClock sets the timestamp used for events without OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:    defaultChannel,
		objectType: defaultObjectType,
		now:        time.Now,
	}
}

func normalizeMetadata(event auth.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	if event.FromStatus != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeyFromStatus] = string(event.FromStatus)
	}

	if event.ToStatus != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeyToStatus] = string(event.ToStatus)
	}

	return metadata
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
