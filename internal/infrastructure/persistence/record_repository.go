package persistence

import (
	"context"
	"errors"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRecordRepository implements RecordRepository using GORM
type GormRecordRepository struct {
	db *gorm.DB
}

// NewGormRecordRepository creates a new GormRecordRepository
func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: db}
}

// Append inserts a new chain link
func (r *GormRecordRepository) Append(ctx context.Context, record *ledger.Record) error {
	return r.db.WithContext(ctx).Create(models.LedgerRecordModelFromDomain(record)).Error
}

// ListBySeries returns every link of a chain in position order
func (r *GormRecordRepository) ListBySeries(ctx context.Context, ownerID uuid.UUID, series string) ([]ledger.Record, error) {
	var rows []models.LedgerRecordModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND series = ?", ownerID, series).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	records := make([]ledger.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// FindByReference returns the latest link for reference in a series
func (r *GormRecordRepository) FindByReference(ctx context.Context, ownerID uuid.UUID, series, reference string) (*ledger.Record, error) {
	var model models.LedgerRecordModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND series = ? AND reference = ?", ownerID, series, reference).
		Order("position DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// Ensure GormRecordRepository implements RecordRepository
var _ ledger.RecordRepository = (*GormRecordRepository)(nil)
