package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// claimNextSQL creates the counter at 2 (issuing 1) or bumps it, and
// returns the issued number in the same statement. Postgres and sqlite
// both accept this form.
const claimNextSQL = `INSERT INTO sequence_counters (owner_id, series, period, next_value, created_at, updated_at)
VALUES (?, ?, ?, 2, ?, ?)
ON CONFLICT (owner_id, series, period)
DO UPDATE SET next_value = sequence_counters.next_value + 1, updated_at = ?
RETURNING next_value - 1`

// GormSequenceRepository implements SequenceRepository using GORM
type GormSequenceRepository struct {
	db *gorm.DB
}

// NewGormSequenceRepository creates a new GormSequenceRepository
func NewGormSequenceRepository(db *gorm.DB) *GormSequenceRepository {
	return &GormSequenceRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormSequenceRepository) WithTx(tx *gorm.DB) *GormSequenceRepository {
	return &GormSequenceRepository{db: tx}
}

// ClaimNext issues the next number for key. Any store failure is an
// AllocationError; no number is consumed when the statement fails.
func (r *GormSequenceRepository) ClaimNext(ctx context.Context, key ledger.CounterKey) (int64, error) {
	now := time.Now().UTC()
	var issued int64
	row := r.db.WithContext(ctx).Raw(claimNextSQL, key.OwnerID, key.Series, key.Period, now, now, now).Row()
	if err := row.Scan(&issued); err != nil {
		return 0, ledger.NewAllocationError(err)
	}
	return issued, nil
}

// Peek reads the stored next value of key; an absent counter issues 1
func (r *GormSequenceRepository) Peek(ctx context.Context, key ledger.CounterKey) (int64, error) {
	var model models.SequenceCounterModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND series = ? AND period = ?", key.OwnerID, key.Series, key.Period).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, ledger.NewAllocationError(err)
	}
	return model.NextValue, nil
}

// HasClaims reports whether any period counter of the series exists
func (r *GormSequenceRepository) HasClaims(ctx context.Context, ownerID uuid.UUID, series string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SequenceCounterModel{}).
		Where("owner_id = ? AND series = ?", ownerID, series).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Ensure GormSequenceRepository implements SequenceRepository
var _ ledger.SequenceRepository = (*GormSequenceRepository)(nil)
