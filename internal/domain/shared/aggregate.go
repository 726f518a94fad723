package shared

import (
	"github.com/google/uuid"
)

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// OwnedAggregateRoot is an aggregate root scoped to a single owner.
// Owners partition every ledger table; nothing crosses owners.
type OwnedAggregateRoot struct {
	BaseEntity
	OwnerID      uuid.UUID
	domainEvents []DomainEvent
}

// AddDomainEvent adds a domain event to be recorded
func (a *OwnedAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (a *OwnedAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (a *OwnedAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// NewOwnedAggregateRoot creates a new owner-scoped aggregate root
func NewOwnedAggregateRoot(ownerID uuid.UUID) OwnedAggregateRoot {
	return OwnedAggregateRoot{
		BaseEntity: NewBaseEntity(),
		OwnerID:    ownerID,
	}
}
