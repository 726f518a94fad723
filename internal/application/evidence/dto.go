package evidence

import (
	"time"

	"github.com/erp/ledger/internal/domain/evidence"
	"github.com/google/uuid"
)

// Upload is one document submitted for ingest
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// IngestResult is the outcome of an ingest
type IngestResult struct {
	Document     DocumentResponse `json:"document"`
	BatchID      uuid.UUID        `json:"batch_id"`
	BatchCreated bool             `json:"batch_created"`
}

// SealResult is the outcome of a seal
type SealResult struct {
	ManifestDigest    string `json:"hash_chain_hex"`
	ManifestRef       string `json:"manifest_path"`
	SignedManifestRef string `json:"signed_path"`
	AlreadySealed     bool   `json:"already_sealed"`
}

// ExportResult is a zip archive of one batch
type ExportResult struct {
	Archive  []byte
	Sealed   bool
	Filename string
}

// DocumentResponse represents a batch document in API responses
type DocumentResponse struct {
	ID          uuid.UUID `json:"id"`
	Position    int       `json:"position"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Digest      string    `json:"digest"`
	ObjectRef   string    `json:"object_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

// BatchResponse represents a batch with its documents in API responses
type BatchResponse struct {
	ID                uuid.UUID          `json:"id"`
	Status            string             `json:"status"`
	DocumentCount     int                `json:"document_count"`
	ManifestDigest    string             `json:"manifest_digest,omitempty"`
	ManifestRef       string             `json:"manifest_ref,omitempty"`
	SignedManifestRef string             `json:"signed_manifest_ref,omitempty"`
	SealedAt          *time.Time         `json:"sealed_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	Documents         []DocumentResponse `json:"documents"`
}

// ToDocumentResponse converts a domain Document to DocumentResponse
func ToDocumentResponse(d *evidence.Document) DocumentResponse {
	return DocumentResponse{
		ID:          d.ID,
		Position:    d.Position,
		Filename:    d.Filename,
		ContentType: d.ContentType,
		Size:        d.Size,
		Digest:      d.Digest.Hex(),
		ObjectRef:   d.ObjectRef,
		CreatedAt:   d.CreatedAt,
	}
}

// ToBatchResponse converts a domain Batch and its documents to BatchResponse
func ToBatchResponse(b *evidence.Batch, docs []evidence.Document) BatchResponse {
	resp := BatchResponse{
		ID:                b.ID,
		Status:            string(b.Status),
		DocumentCount:     b.DocumentCount,
		ManifestRef:       b.ManifestRef,
		SignedManifestRef: b.SignedManifestRef,
		SealedAt:          b.SealedAt,
		CreatedAt:         b.CreatedAt,
		Documents:         make([]DocumentResponse, 0, len(docs)),
	}
	if b.IsSealed() {
		resp.ManifestDigest = b.ManifestDigest.Hex()
	}
	for i := range docs {
		resp.Documents = append(resp.Documents, ToDocumentResponse(&docs[i]))
	}
	return resp
}

func sealResultOf(b *evidence.Batch, alreadySealed bool) *SealResult {
	return &SealResult{
		ManifestDigest:    b.ManifestDigest.Hex(),
		ManifestRef:       b.ManifestRef,
		SignedManifestRef: b.SignedManifestRef,
		AlreadySealed:     alreadySealed,
	}
}
