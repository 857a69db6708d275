package activitymap_test

import (
	"testing"
	"time"

	auth "github.com/Small-Group-Org/prd-proto-hub"
	"github.com/Small-Group-Org/prd-proto-hub/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType:  auth.ActivityEventAccountStatusChanged,
		Actor:      auth.ActorRef{ID: "admin-42", Type: auth.ActorTypeAccount},
		EntityType: auth.EntityTypeUser,
		EntityID:   "user-100",
		FromStatus: auth.AccountStatusActive,
		ToStatus:   auth.AccountStatusSuspended,
		Metadata: map[string]any{
			"reason": "SEC-204",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "admin-42" {
		t.Fatalf("expected actor id admin-42, got %q", out.ActorID)
	}
	if out.ActorType != auth.ActorTypeAccount {
		t.Fatalf("expected actor type account, got %q", out.ActorType)
	}
	if out.Verb != string(auth.ActivityEventAccountStatusChanged) {
		t.Fatalf("expected verb %q, got %q", auth.ActivityEventAccountStatusChanged, out.Verb)
	}
	if out.ObjectType != auth.EntityTypeUser {
		t.Fatalf("expected object type USER, got %q", out.ObjectType)
	}
	if out.ObjectID != "user-100" {
		t.Fatalf("expected object id user-100, got %q", out.ObjectID)
	}
	if out.Channel != "auth" {
		t.Fatalf("expected channel auth, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["reason"] != "SEC-204" {
		t.Fatalf("expected metadata reason SEC-204, got %#v", out.Metadata["reason"])
	}
	if out.Metadata[activitymap.MetadataKeyFromStatus] != string(auth.AccountStatusActive) {
		t.Fatalf("expected from_status ACTIVE, got %#v", out.Metadata[activitymap.MetadataKeyFromStatus])
	}
	if out.Metadata[activitymap.MetadataKeyToStatus] != string(auth.AccountStatusSuspended) {
		t.Fatalf("expected to_status SUSPENDED, got %#v", out.Metadata[activitymap.MetadataKeyToStatus])
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType: auth.ActivityEventLoginFailed,
		Metadata:  map[string]any{"email": "who@example.com"},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType(auth.EntityTypeInvitation),
		activitymap.WithClock(func() time.Time { return fixed }),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != auth.EntityTypeInvitation {
		t.Fatalf("expected fallback object type, got %q", out.ObjectType)
	}
	if out.ActorType != auth.ActorTypeSystem {
		t.Fatalf("expected system actor for empty actor, got %q", out.ActorType)
	}
	if out.ActorID != "" {
		t.Fatalf("expected empty actor id, got %q", out.ActorID)
	}
	if !out.OccurredAt.Equal(fixed) {
		t.Fatalf("expected clock timestamp, got %v", out.OccurredAt)
	}
}

func TestNormalizeNilMetadata(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(auth.ActivityEvent{EventType: auth.ActivityEventLogin})
	if out.Metadata != nil {
		t.Fatalf("expected nil metadata, got %#v", out.Metadata)
	}
}
