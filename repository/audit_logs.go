package repository

import (
	"context"
	mathrand "math/rand"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// DefaultListLimit caps audit reads when no limit is given.
const DefaultListLimit = 100

// AuditLog is one append-only audit row.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID         string         `bun:"id,pk" json:"id"`
	Action     string         `bun:"action,notnull" json:"action"`
	EntityType string         `bun:"entity_type,notnull" json:"entityType"`
	EntityID   string         `bun:"entity_id,notnull" json:"entityId"`
	ActorID    string         `bun:"actor_id,notnull" json:"actorId"`
	ActorType  string         `bun:"actor_type,notnull" json:"actorType"`
	Details    map[string]any `bun:"details,nullzero" json:"details,omitempty"`
	CreatedAt  time.Time      `bun:"created_at,notnull" json:"createdAt"`
}

// AuditLogs persists audit rows. There is no update or delete.
type AuditLogs struct {
	db bun.IDB
}

func NewAuditLogs(db bun.IDB) *AuditLogs {
	return &AuditLogs{db: db}
}

// Append inserts the row, assigning a ULID and timestamp when missing.
func (r *AuditLogs) Append(ctx context.Context, record *AuditLog) error {
	if record == nil {
		return goerrors.New("audit record must not be nil", goerrors.CategoryBadInput)
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if record.ID == "" {
		record.ID = NewULID(record.CreatedAt)
	}

	if _, err := r.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to append audit log").
			WithMetadata(map[string]any{"action": record.Action})
	}
	return nil
}

// ListByEntity returns the newest rows for an entity first.
func (r *AuditLogs) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]AuditLog, error) {
	rows := []AuditLog{}
	err := r.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.entity_type = ?", entityType).
		Where("?TableAlias.entity_id = ?", entityID).
		Order("created_at DESC", "id DESC").
		Limit(listLimit(limit)).
		Scan(ctx)
	return rows, err
}

// ListByActor returns the newest rows recorded for an actor first.
func (r *AuditLogs) ListByActor(ctx context.Context, actorID string, limit int) ([]AuditLog, error) {
	rows := []AuditLog{}
	err := r.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.actor_id = ?", actorID).
		Order("created_at DESC", "id DESC").
		Limit(listLimit(limit)).
		Scan(ctx)
	return rows, err
}

func listLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewULID returns a lexicographically sortable id stamped with t.
func NewULID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
