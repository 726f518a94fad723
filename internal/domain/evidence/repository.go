package evidence

import (
	"context"

	"github.com/google/uuid"
)

// BatchRepository defines the interface for batch persistence
type BatchRepository interface {
	// Create stores a new open batch
	Create(ctx context.Context, batch *Batch) error

	// FindByID finds a batch within an owner. Returns ErrBatchNotFound.
	FindByID(ctx context.Context, ownerID, id uuid.UUID) (*Batch, error)

	// ClaimPosition atomically reserves the next document position of an
	// open batch. Returns ErrBatchSealed if the batch is no longer open.
	ClaimPosition(ctx context.Context, ownerID, id uuid.UUID) (int, error)

	// MarkSealed flips an open batch to sealed, provided it still holds
	// exactly expectedCount documents. Returns ErrBatchChanged otherwise.
	MarkSealed(ctx context.Context, batch *Batch, expectedCount int) error
}

// DocumentRepository defines the interface for batch document persistence
type DocumentRepository interface {
	// Create stores a document row
	Create(ctx context.Context, doc *Document) error

	// ListByBatch returns the documents of a batch ordered by position
	ListByBatch(ctx context.Context, ownerID, batchID uuid.UUID) ([]Document, error)
}
