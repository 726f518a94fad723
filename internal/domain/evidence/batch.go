package evidence

import (
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of a batch
type BatchStatus string

const (
	BatchStatusOpen   BatchStatus = "open"
	BatchStatusSealed BatchStatus = "sealed"
)

// IsValid checks if the BatchStatus is a valid value
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusOpen, BatchStatusSealed:
		return true
	}
	return false
}

// CanTransitionTo checks whether the status may move to target.
// Sealed is terminal.
func (s BatchStatus) CanTransitionTo(target BatchStatus) bool {
	return s == BatchStatusOpen && target == BatchStatusSealed
}

// Batch is the aggregate root of the evidence context
type Batch struct {
	shared.OwnedAggregateRoot
	Status            BatchStatus
	DocumentCount     int
	ManifestDigest    ledger.Digest
	ManifestRef       string
	SignedManifestRef string
	SealedAt          *time.Time
}

// NewBatch opens an empty batch
func NewBatch(ownerID uuid.UUID) *Batch {
	return &Batch{
		OwnedAggregateRoot: shared.NewOwnedAggregateRoot(ownerID),
		Status:             BatchStatusOpen,
	}
}

// IsSealed reports whether the document set is frozen
func (b *Batch) IsSealed() bool {
	return b.Status == BatchStatusSealed
}

// EnsureOpen returns ErrBatchSealed unless documents may still be added
func (b *Batch) EnsureOpen() error {
	if b.Status != BatchStatusOpen {
		return ErrBatchSealed
	}
	return nil
}

// RecordIngest notes a document accepted at position
func (b *Batch) RecordIngest(doc *Document) error {
	if err := b.EnsureOpen(); err != nil {
		return err
	}
	if doc.Position > b.DocumentCount {
		b.DocumentCount = doc.Position
	}
	b.UpdatedAt = time.Now().UTC()
	b.AddDomainEvent(NewDocumentIngestedEvent(b, doc))
	return nil
}

// Seal freezes the batch behind its manifest
func (b *Batch) Seal(manifestDigest ledger.Digest, manifestRef, signedManifestRef string) error {
	if !b.Status.CanTransitionTo(BatchStatusSealed) {
		return ErrBatchSealed
	}
	if b.DocumentCount == 0 {
		return ErrEmptyBatch
	}
	if manifestRef == "" || signedManifestRef == "" {
		return shared.ErrInvalidInput.WithCause(fmt.Errorf("sealed batch needs both manifest refs"))
	}
	now := time.Now().UTC()
	b.Status = BatchStatusSealed
	b.ManifestDigest = manifestDigest
	b.ManifestRef = manifestRef
	b.SignedManifestRef = signedManifestRef
	b.SealedAt = &now
	b.UpdatedAt = now
	b.AddDomainEvent(NewBatchSealedEvent(b))
	return nil
}

// Reference is the audit reference of the batch
func (b *Batch) Reference() string {
	return b.ID.String()
}
