package ledger

import (
	"context"

	"github.com/google/uuid"
)

// SequenceRepository is the atomic counter store
type SequenceRepository interface {
	// ClaimNext increments the counter for key in a single atomic
	// statement and returns the number issued. The counter row is created
	// on first claim.
	ClaimNext(ctx context.Context, key CounterKey) (int64, error)

	// Peek returns the number the next claim on key would issue without
	// consuming it. A key that was never claimed peeks as 1.
	Peek(ctx context.Context, key CounterKey) (int64, error)

	// HasClaims reports whether any counter of the series, in any period,
	// has issued a number
	HasClaims(ctx context.Context, ownerID uuid.UUID, series string) (bool, error)
}

// SeriesConfigRepository stores per-series options
type SeriesConfigRepository interface {
	// Find returns the config, or shared.ErrNotFound
	Find(ctx context.Context, ownerID uuid.UUID, series string) (*SeriesConfig, error)

	// Upsert inserts or updates the config keyed on (owner, series)
	Upsert(ctx context.Context, cfg *SeriesConfig) error
}

// ChainRepository holds chain heads
type ChainRepository interface {
	// ReadHead returns the current head. A chain with no links reads as
	// GenesisHead.
	ReadHead(ctx context.Context, ownerID uuid.UUID, series string) (ChainHead, error)

	// ExtendChain moves the head from expected to next. Returns
	// ErrChainConflict if the stored head is not expected.
	ExtendChain(ctx context.Context, ownerID uuid.UUID, series string, expected, next ChainHash) error
}

// RecordRepository stores chain links
type RecordRepository interface {
	// Append inserts a record; records are never updated
	Append(ctx context.Context, record *Record) error

	// ListBySeries returns all records of a chain in position order
	ListBySeries(ctx context.Context, ownerID uuid.UUID, series string) ([]Record, error)

	// FindByReference returns the record for a reference, or shared.ErrNotFound
	FindByReference(ctx context.Context, ownerID uuid.UUID, series, reference string) (*Record, error)
}

// AuditRepository is the append-only event log
type AuditRepository interface {
	Append(ctx context.Context, event *AuditEvent) error
	ListByReference(ctx context.Context, ownerID uuid.UUID, reference string) ([]AuditEvent, error)
}
