package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers the outcome of requests carrying an
// idempotency key so that a client retry is answered from the stored
// result instead of claiming a second sequence number or chain link.
type IdempotencyStore interface {
	// Reserve marks key as in flight. Returns false if the key is already
	// reserved or completed.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Complete stores the serialized response for key
	Complete(ctx context.Context, key string, response []byte, ttl time.Duration) error

	// Lookup returns the stored response. found is false while the key is
	// only reserved.
	Lookup(ctx context.Context, key string) (response []byte, found bool, err error)

	// Release drops a reservation so the request may be retried
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a completed response is replayed. Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
