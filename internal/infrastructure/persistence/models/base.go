package models

import (
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for entity tables.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// OwnedModel adds the owner column every ledger table is scoped by
type OwnedModel struct {
	BaseModel
	OwnerID uuid.UUID `gorm:"type:uuid;not null;index"`
}

// FromDomainOwnedAggregateRoot populates OwnedModel from an owned aggregate
func (m *OwnedModel) FromDomainOwnedAggregateRoot(a shared.OwnedAggregateRoot) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.OwnerID = a.OwnerID
}

// PopulateOwnedAggregateRoot copies the persisted fields into a domain aggregate
func (m *OwnedModel) PopulateOwnedAggregateRoot(a *shared.OwnedAggregateRoot) {
	a.ID = m.ID
	a.CreatedAt = m.CreatedAt
	a.UpdatedAt = m.UpdatedAt
	a.OwnerID = m.OwnerID
}
