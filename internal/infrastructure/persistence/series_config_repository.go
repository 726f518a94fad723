package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSeriesConfigRepository implements SeriesConfigRepository using GORM
type GormSeriesConfigRepository struct {
	db *gorm.DB
}

// NewGormSeriesConfigRepository creates a new GormSeriesConfigRepository
func NewGormSeriesConfigRepository(db *gorm.DB) *GormSeriesConfigRepository {
	return &GormSeriesConfigRepository{db: db}
}

// Find returns the config of a series, or shared.ErrNotFound
func (r *GormSeriesConfigRepository) Find(ctx context.Context, ownerID uuid.UUID, series string) (*ledger.SeriesConfig, error) {
	var model models.SeriesConfigModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND series = ?", ownerID, series).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert updates the config in place, or inserts it when absent. The
// insert ignores a conflicting row so that a concurrent creator wins
// the race and this call then updates over it. CreatedAt of an existing
// row is preserved.
func (r *GormSeriesConfigRepository) Upsert(ctx context.Context, cfg *ledger.SeriesConfig) error {
	db := r.db.WithContext(ctx)
	now := time.Now().UTC()

	update := func() (int64, error) {
		result := db.Model(&models.SeriesConfigModel{}).
			Where("owner_id = ? AND series = ?", cfg.OwnerID, cfg.Series).
			Updates(map[string]any{
				"reset_policy": cfg.ResetPolicy,
				"issuer_id":    cfg.IssuerID,
				"updated_at":   now,
			})
		return result.RowsAffected, result.Error
	}

	updated, err := update()
	if err != nil {
		return fmt.Errorf("failed to update series config: %w", err)
	}
	if updated > 0 {
		return nil
	}

	model := models.SeriesConfigModelFromDomain(cfg)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	model.UpdatedAt = now
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "series"}},
		DoNothing: true,
	}).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to insert series config: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// lost the insert race; the row exists now
	if _, err := update(); err != nil {
		return fmt.Errorf("failed to update series config: %w", err)
	}
	return nil
}

// Ensure GormSeriesConfigRepository implements SeriesConfigRepository
var _ ledger.SeriesConfigRepository = (*GormSeriesConfigRepository)(nil)
