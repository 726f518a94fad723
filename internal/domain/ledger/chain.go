package ledger

import (
	"time"

	"github.com/google/uuid"
)

// ChainHead is the most recently accepted hash of an (owner, series) chain
type ChainHead struct {
	OwnerID   uuid.UUID
	Series    string
	LastHash  ChainHash
	Length    int64
	UpdatedAt time.Time
}

// GenesisHead returns the head of a chain with no links
func GenesisHead(ownerID uuid.UUID, series string) ChainHead {
	return ChainHead{
		OwnerID:  ownerID,
		Series:   series,
		LastHash: GenesisHash,
	}
}

// IsStarted reports whether at least one link was accepted
func (h ChainHead) IsStarted() bool {
	return !h.LastHash.IsGenesis()
}
