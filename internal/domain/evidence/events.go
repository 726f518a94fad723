package evidence

import (
	"fmt"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Event types
const (
	EventTypeDocumentIngested = "DocumentIngested"
	EventTypeBatchSealed      = "BatchSealed"
)

// DocumentIngestedEvent is raised when a document joins an open batch
type DocumentIngestedEvent struct {
	shared.BaseDomainEvent
	DocumentID uuid.UUID     `json:"document_id"`
	Position   int           `json:"position"`
	Filename   string        `json:"filename"`
	Digest     ledger.Digest `json:"digest"`
}

// NewDocumentIngestedEvent creates a DocumentIngestedEvent
func NewDocumentIngestedEvent(b *Batch, doc *Document) *DocumentIngestedEvent {
	return &DocumentIngestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentIngested, b.ID, b.OwnerID),
		DocumentID:      doc.ID,
		Position:        doc.Position,
		Filename:        doc.Filename,
		Digest:          doc.Digest,
	}
}

// BatchSealedEvent is raised when a batch is sealed
type BatchSealedEvent struct {
	shared.BaseDomainEvent
	ManifestDigest    ledger.Digest `json:"manifest_digest"`
	SignedManifestRef string        `json:"signed_manifest_ref"`
	DocumentCount     int           `json:"document_count"`
}

// NewBatchSealedEvent creates a BatchSealedEvent
func NewBatchSealedEvent(b *Batch) *BatchSealedEvent {
	return &BatchSealedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeBatchSealed, b.ID, b.OwnerID),
		ManifestDigest:    b.ManifestDigest,
		SignedManifestRef: b.SignedManifestRef,
		DocumentCount:     b.DocumentCount,
	}
}

// AuditEventFor maps a batch domain event to its audit log entry.
// Returns nil for events that are not audited.
func AuditEventFor(event shared.DomainEvent) *ledger.AuditEvent {
	switch e := event.(type) {
	case *DocumentIngestedEvent:
		details := fmt.Sprintf("position=%d digest=%s filename=%s", e.Position, e.Digest.Hex(), e.Filename)
		a := ledger.NewAuditEvent(e.OwnerID(), e.AggregateID().String(), ledger.AuditKindUpload, details)
		a.At = e.OccurredAt()
		return a
	case *BatchSealedEvent:
		details := fmt.Sprintf("chain_digest=%s documents=%d", e.ManifestDigest.Hex(), e.DocumentCount)
		a := ledger.NewAuditEvent(e.OwnerID(), e.AggregateID().String(), ledger.AuditKindSeal, details)
		a.At = e.OccurredAt()
		return a
	}
	return nil
}
