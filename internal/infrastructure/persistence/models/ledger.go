package models

import (
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
)

// SequenceCounterModel holds the next number to issue for a counter key
type SequenceCounterModel struct {
	OwnerID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Series    string    `gorm:"type:varchar(40);primaryKey"`
	Period    string    `gorm:"type:varchar(8);primaryKey"`
	NextValue int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SequenceCounterModel) TableName() string {
	return "sequence_counters"
}

// SeriesConfigModel is the persistence model for SeriesConfig
type SeriesConfigModel struct {
	OwnerID     uuid.UUID          `gorm:"type:uuid;primaryKey"`
	Series      string             `gorm:"type:varchar(40);primaryKey"`
	ResetPolicy ledger.ResetPolicy `gorm:"type:varchar(10);not null"`
	IssuerID    string             `gorm:"type:varchar(64);not null;default:''"`
	CreatedAt   time.Time          `gorm:"not null"`
	UpdatedAt   time.Time          `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SeriesConfigModel) TableName() string {
	return "series_configs"
}

// ToDomain converts the persistence model to a domain SeriesConfig
func (m *SeriesConfigModel) ToDomain() *ledger.SeriesConfig {
	return &ledger.SeriesConfig{
		OwnerID:     m.OwnerID,
		Series:      m.Series,
		ResetPolicy: m.ResetPolicy,
		IssuerID:    m.IssuerID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// SeriesConfigModelFromDomain converts a domain SeriesConfig to its model
func SeriesConfigModelFromDomain(c *ledger.SeriesConfig) *SeriesConfigModel {
	return &SeriesConfigModel{
		OwnerID:     c.OwnerID,
		Series:      c.Series,
		ResetPolicy: c.ResetPolicy,
		IssuerID:    c.IssuerID,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// ChainHeadModel stores the last accepted hash of a chain. An empty
// LastHash is the genesis head.
type ChainHeadModel struct {
	OwnerID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Series    string    `gorm:"type:varchar(40);primaryKey"`
	LastHash  string    `gorm:"type:varchar(64);not null;default:''"`
	LinkCount int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ChainHeadModel) TableName() string {
	return "chain_heads"
}

// ToDomain converts the persistence model to a domain ChainHead
func (m *ChainHeadModel) ToDomain() (ledger.ChainHead, error) {
	last, err := ledger.ParseChainHash(m.LastHash)
	if err != nil {
		return ledger.ChainHead{}, fmt.Errorf("corrupt head of %s/%s: %w", m.OwnerID, m.Series, err)
	}
	return ledger.ChainHead{
		OwnerID:   m.OwnerID,
		Series:    m.Series,
		LastHash:  last,
		Length:    m.LinkCount,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

// LedgerRecordModel is one immutable chain link
type LedgerRecordModel struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey"`
	OwnerID           uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_records_position,priority:1"`
	Series            string            `gorm:"type:varchar(40);not null;uniqueIndex:idx_ledger_records_position,priority:2"`
	Position          int64             `gorm:"not null;uniqueIndex:idx_ledger_records_position,priority:3"`
	Kind              ledger.RecordKind `gorm:"type:varchar(20);not null"`
	Reference         string            `gorm:"type:varchar(200);not null;index"`
	PayloadDigest     string            `gorm:"type:varchar(64);not null"`
	PrevHash          string            `gorm:"type:varchar(64);not null;default:''"`
	Hash              string            `gorm:"type:varchar(64);not null"`
	IssuerID          string            `gorm:"type:varchar(64);not null;default:''"`
	SignedArtifactRef string            `gorm:"type:varchar(500);not null;default:''"`
	CreatedAt         time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LedgerRecordModel) TableName() string {
	return "ledger_records"
}

// ToDomain converts the persistence model to a domain Record
func (m *LedgerRecordModel) ToDomain() (*ledger.Record, error) {
	payload, err := ledger.ParseDigest(m.PayloadDigest)
	if err != nil {
		return nil, fmt.Errorf("corrupt payload digest on record %s: %w", m.ID, err)
	}
	prev, err := ledger.ParseChainHash(m.PrevHash)
	if err != nil {
		return nil, fmt.Errorf("corrupt prev hash on record %s: %w", m.ID, err)
	}
	hash, err := ledger.ParseChainHash(m.Hash)
	if err != nil {
		return nil, fmt.Errorf("corrupt hash on record %s: %w", m.ID, err)
	}
	return &ledger.Record{
		ID:                m.ID,
		OwnerID:           m.OwnerID,
		Series:            m.Series,
		Position:          m.Position,
		Kind:              m.Kind,
		Reference:         m.Reference,
		PayloadDigest:     payload,
		PrevHash:          prev,
		Hash:              hash,
		IssuerID:          m.IssuerID,
		SignedArtifactRef: m.SignedArtifactRef,
		CreatedAt:         m.CreatedAt,
	}, nil
}

// LedgerRecordModelFromDomain converts a domain Record to its model
func LedgerRecordModelFromDomain(r *ledger.Record) *LedgerRecordModel {
	return &LedgerRecordModel{
		ID:                r.ID,
		OwnerID:           r.OwnerID,
		Series:            r.Series,
		Position:          r.Position,
		Kind:              r.Kind,
		Reference:         r.Reference,
		PayloadDigest:     r.PayloadDigest.Hex(),
		PrevHash:          r.PrevHash.String(),
		Hash:              r.Hash.String(),
		IssuerID:          r.IssuerID,
		SignedArtifactRef: r.SignedArtifactRef,
		CreatedAt:         r.CreatedAt,
	}
}

// AuditEventModel is the append-only audit log row
type AuditEventModel struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey"`
	OwnerID   uuid.UUID        `gorm:"type:uuid;not null;index:idx_audit_events_reference,priority:1"`
	Reference string           `gorm:"type:varchar(200);not null;index:idx_audit_events_reference,priority:2"`
	Kind      ledger.AuditKind `gorm:"type:varchar(20);not null"`
	Details   string           `gorm:"type:text;not null;default:''"`
	At        time.Time        `gorm:"column:occurred_at;not null"`
}

// TableName returns the table name for GORM
func (AuditEventModel) TableName() string {
	return "audit_events"
}

// ToDomain converts the persistence model to a domain AuditEvent
func (m *AuditEventModel) ToDomain() ledger.AuditEvent {
	return ledger.AuditEvent{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Reference: m.Reference,
		Kind:      m.Kind,
		Details:   m.Details,
		At:        m.At,
	}
}

// AuditEventModelFromDomain converts a domain AuditEvent to its model
func AuditEventModelFromDomain(e *ledger.AuditEvent) *AuditEventModel {
	return &AuditEventModel{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		Reference: e.Reference,
		Kind:      e.Kind,
		Details:   e.Details,
		At:        e.At,
	}
}
