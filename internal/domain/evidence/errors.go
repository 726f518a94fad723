package evidence

import "github.com/erp/ledger/internal/domain/shared"

// Evidence errors
var (
	ErrBatchNotFound = shared.NewDomainError("NOT_FOUND", "Batch not found")

	// ErrBatchSealed is returned when a sealed batch is asked to change
	ErrBatchSealed = shared.NewDomainError("BATCH_SEALED", "Batch is sealed; open a new batch to ingest more documents")

	// ErrEmptyBatch is returned when sealing a batch with no documents
	ErrEmptyBatch = shared.NewDomainError("EMPTY_BATCH", "Cannot seal a batch with no documents")

	// ErrBatchChanged is returned when the batch moved between building the
	// manifest and flipping its status
	ErrBatchChanged = shared.NewRetryableDomainError("BATCH_CHANGED", "Batch changed while sealing; retry the seal")

	ErrEmptyDocument = shared.NewDomainError("INVALID_INPUT", "Document content is empty")
)
