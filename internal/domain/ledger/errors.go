package ledger

import "github.com/erp/ledger/internal/domain/shared"

// Ledger errors
var (
	// ErrChainConflict is returned when the chain head moved between the
	// read and the conditional write. Re-read the head and try again.
	ErrChainConflict = shared.NewRetryableDomainError("CHAIN_CONFLICT",
		"The chain was extended by another writer; re-read the head and retry")

	// ErrAllocation is returned when the sequence store cannot issue a number
	ErrAllocation = shared.NewRetryableDomainError("ALLOCATION_FAILED",
		"Sequence allocation is temporarily unavailable; retry with backoff")

	// ErrInvalidSeries is returned for an empty or malformed series code
	ErrInvalidSeries = shared.NewDomainError("INVALID_SERIES", "Series code is invalid")

	// ErrIssuerMismatch is returned when a payload names a different issuer
	// than the one configured for its series
	ErrIssuerMismatch = shared.NewDomainError("ISSUER_MISMATCH",
		"Issuer does not match the issuer configured for this series")

	// ErrSeriesInUse is returned when a change would move the counter of
	// a series that has already issued numbers
	ErrSeriesInUse = shared.NewDomainError("SERIES_IN_USE",
		"The reset policy of a series cannot change once numbers have been issued")
)

// NewAllocationError wraps a store failure as a retryable allocation error
func NewAllocationError(cause error) error {
	return ErrAllocation.WithCause(cause)
}
