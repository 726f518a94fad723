package ledger

import (
	"time"

	"github.com/google/uuid"
)

// RecordKind identifies what a ledger record attests
type RecordKind string

const (
	RecordKindAlta          RecordKind = "alta"
	RecordKindBatchManifest RecordKind = "batch_manifest"
)

// IsValid checks if the RecordKind is a valid value
func (k RecordKind) IsValid() bool {
	switch k {
	case RecordKindAlta, RecordKindBatchManifest:
		return true
	}
	return false
}

// Record is one immutable link of a chain. Corrections are new records.
type Record struct {
	ID                uuid.UUID
	OwnerID           uuid.UUID
	Series            string
	Position          int64
	Kind              RecordKind
	Reference         string
	PayloadDigest     Digest
	PrevHash          ChainHash
	Hash              ChainHash
	IssuerID          string
	SignedArtifactRef string
	CreatedAt         time.Time
}

// NewRecord builds the record that extends head with payloadDigest.
// The hash is computed against head.LastHash; if the head moves before
// the record is stored, build a new record against the fresh head.
func NewRecord(head ChainHead, kind RecordKind, reference string, payloadDigest Digest, issuerID string) *Record {
	return &Record{
		ID:            uuid.New(),
		OwnerID:       head.OwnerID,
		Series:        head.Series,
		Position:      head.Length + 1,
		Kind:          kind,
		Reference:     reference,
		PayloadDigest: payloadDigest,
		PrevHash:      head.LastHash,
		Hash:          ChainedFingerprint(payloadDigest, head.LastHash, issuerID),
		IssuerID:      issuerID,
		CreatedAt:     time.Now().UTC(),
	}
}

// Verify recomputes the record's own hash
func (r *Record) Verify() bool {
	return ChainedFingerprint(r.PayloadDigest, r.PrevHash, r.IssuerID) == r.Hash
}
