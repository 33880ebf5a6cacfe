package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditLog captures one ledger action for the audit trail.
type AuditLog struct {
	ID       string         `json:"id"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// AuditPort abstracts audit persistence.
type AuditPort interface {
	Record(ctx context.Context, log AuditLog) error
}

// NewAuditLog assigns the entry identity and timestamp.
func NewAuditLog(actorID int64, action, entity, entityID string, meta map[string]any) AuditLog {
	return AuditLog{
		ID:       uuid.NewString(),
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       time.Now().UTC(),
	}
}
