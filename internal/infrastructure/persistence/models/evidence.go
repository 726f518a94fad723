package models

import (
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/evidence"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
)

// DocumentBatchModel is the persistence model for the Batch aggregate
type DocumentBatchModel struct {
	OwnedModel
	Status            evidence.BatchStatus `gorm:"type:varchar(10);not null;default:'open'"`
	DocumentCount     int                  `gorm:"not null;default:0"`
	ManifestDigest    string               `gorm:"type:varchar(64);not null;default:''"`
	ManifestRef       string               `gorm:"type:varchar(500);not null;default:''"`
	SignedManifestRef string               `gorm:"type:varchar(500);not null;default:''"`
	SealedAt          *time.Time
}

// TableName returns the table name for GORM
func (DocumentBatchModel) TableName() string {
	return "document_batches"
}

// ToDomain converts the persistence model to a domain Batch
func (m *DocumentBatchModel) ToDomain() (*evidence.Batch, error) {
	b := &evidence.Batch{
		Status:            m.Status,
		DocumentCount:     m.DocumentCount,
		ManifestRef:       m.ManifestRef,
		SignedManifestRef: m.SignedManifestRef,
		SealedAt:          m.SealedAt,
	}
	m.PopulateOwnedAggregateRoot(&b.OwnedAggregateRoot)
	if m.ManifestDigest != "" {
		d, err := ledger.ParseDigest(m.ManifestDigest)
		if err != nil {
			return nil, fmt.Errorf("corrupt manifest digest on batch %s: %w", m.ID, err)
		}
		b.ManifestDigest = d
	}
	return b, nil
}

// DocumentBatchModelFromDomain converts a domain Batch to its model
func DocumentBatchModelFromDomain(b *evidence.Batch) *DocumentBatchModel {
	m := &DocumentBatchModel{
		Status:            b.Status,
		DocumentCount:     b.DocumentCount,
		ManifestRef:       b.ManifestRef,
		SignedManifestRef: b.SignedManifestRef,
		SealedAt:          b.SealedAt,
	}
	m.FromDomainOwnedAggregateRoot(b.OwnedAggregateRoot)
	if !b.ManifestDigest.IsZero() {
		m.ManifestDigest = b.ManifestDigest.Hex()
	}
	return m
}

// BatchDocumentModel is one stored document of a batch
type BatchDocumentModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null;index"`
	BatchID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_batch_documents_position,priority:1"`
	Position    int       `gorm:"not null;uniqueIndex:idx_batch_documents_position,priority:2"`
	Filename    string    `gorm:"type:varchar(200);not null"`
	ContentType string    `gorm:"type:varchar(100);not null"`
	Size        int64     `gorm:"not null"`
	Digest      string    `gorm:"type:varchar(64);not null"`
	ObjectRef   string    `gorm:"type:varchar(500);not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BatchDocumentModel) TableName() string {
	return "batch_documents"
}

// ToDomain converts the persistence model to a domain Document
func (m *BatchDocumentModel) ToDomain() (*evidence.Document, error) {
	d, err := ledger.ParseDigest(m.Digest)
	if err != nil {
		return nil, fmt.Errorf("corrupt digest on document %s: %w", m.ID, err)
	}
	return &evidence.Document{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		BatchID:     m.BatchID,
		Position:    m.Position,
		Filename:    m.Filename,
		ContentType: m.ContentType,
		Size:        m.Size,
		Digest:      d,
		ObjectRef:   m.ObjectRef,
		CreatedAt:   m.CreatedAt,
	}, nil
}

// BatchDocumentModelFromDomain converts a domain Document to its model
func BatchDocumentModelFromDomain(d *evidence.Document) *BatchDocumentModel {
	return &BatchDocumentModel{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		BatchID:     d.BatchID,
		Position:    d.Position,
		Filename:    d.Filename,
		ContentType: d.ContentType,
		Size:        d.Size,
		Digest:      d.Digest.Hex(),
		ObjectRef:   d.ObjectRef,
		CreatedAt:   d.CreatedAt,
	}
}

// AllModels lists every table model, in creation order
func AllModels() []any {
	return []any{
		&SequenceCounterModel{},
		&SeriesConfigModel{},
		&ChainHeadModel{},
		&LedgerRecordModel{},
		&AuditEventModel{},
		&DocumentBatchModel{},
		&BatchDocumentModel{},
	}
}
