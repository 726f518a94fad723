package ledger

import (
	"time"

	"github.com/google/uuid"
)

// AuditKind identifies a state-changing action
type AuditKind string

const (
	AuditKindUpload AuditKind = "upload"
	AuditKindSeal   AuditKind = "seal"
	AuditKindAlta   AuditKind = "alta"
)

// AuditEvent is an append-only record of a state change. It is never
// mutated or deleted.
type AuditEvent struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Reference string    `json:"reference"`
	Kind      AuditKind `json:"kind"`
	Details   string    `json:"details"`
	At        time.Time `json:"at"`
}

// NewAuditEvent creates an audit event stamped now
func NewAuditEvent(ownerID uuid.UUID, reference string, kind AuditKind, details string) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Reference: reference,
		Kind:      kind,
		Details:   details,
		At:        time.Now().UTC(),
	}
}
