package repository

import (
	"context"

	auth "github.com/Small-Group-Org/prd-proto-hub"
	"github.com/Small-Group-Org/prd-proto-hub/activitymap"
)

// AuditSink writes activity events to the audit_logs table.
type AuditSink struct {
	logs *AuditLogs
	opts []activitymap.Option
}

var _ auth.ActivitySink = (*AuditSink)(nil)

func NewAuditSink(logs *AuditLogs, opts ...activitymap.Option) *AuditSink {
	return &AuditSink{logs: logs, opts: opts}
}

// Record implements auth.ActivitySink.
func (s *AuditSink) Record(ctx context.Context, event auth.ActivityEvent) error {
	n := activitymap.Normalize(event, s.opts...)

	return s.logs.Append(ctx, &AuditLog{
		Action:     n.Verb,
		EntityType: n.ObjectType,
		EntityID:   n.ObjectID,
		ActorID:    n.ActorID,
		ActorType:  n.ActorType,
		Details:    n.Metadata,
		CreatedAt:  n.OccurredAt,
	})
}
