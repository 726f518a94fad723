package persistence

import (
	"context"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAuditRepository implements AuditRepository using GORM.
// It only inserts and reads.
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append inserts an audit event
func (r *GormAuditRepository) Append(ctx context.Context, event *ledger.AuditEvent) error {
	return r.db.WithContext(ctx).Create(models.AuditEventModelFromDomain(event)).Error
}

// ListByReference returns the events of a batch or invoice, oldest first
func (r *GormAuditRepository) ListByReference(ctx context.Context, ownerID uuid.UUID, reference string) ([]ledger.AuditEvent, error) {
	var rows []models.AuditEventModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND reference = ?", ownerID, reference).
		Order("occurred_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	events := make([]ledger.AuditEvent, len(rows))
	for i := range rows {
		events[i] = rows[i].ToDomain()
	}
	return events, nil
}

// Ensure GormAuditRepository implements AuditRepository
var _ ledger.AuditRepository = (*GormAuditRepository)(nil)
