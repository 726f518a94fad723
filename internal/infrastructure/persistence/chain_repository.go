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

// GormChainRepository implements ChainRepository using GORM
type GormChainRepository struct {
	db *gorm.DB
}

// NewGormChainRepository creates a new GormChainRepository
func NewGormChainRepository(db *gorm.DB) *GormChainRepository {
	return &GormChainRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormChainRepository) WithTx(tx *gorm.DB) *GormChainRepository {
	return &GormChainRepository{db: tx}
}

// ReadHead returns the current head; a missing row is the genesis head
func (r *GormChainRepository) ReadHead(ctx context.Context, ownerID uuid.UUID, series string) (ledger.ChainHead, error) {
	var model models.ChainHeadModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND series = ?", ownerID, series).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.GenesisHead(ownerID, series), nil
		}
		return ledger.ChainHead{}, fmt.Errorf("failed to read chain head: %w", err)
	}
	return model.ToDomain()
}

// ExtendChain moves the head from expected to next with a conditional
// update. Zero affected rows means another writer moved the head first.
func (r *GormChainRepository) ExtendChain(ctx context.Context, ownerID uuid.UUID, series string, expected, next ledger.ChainHash) error {
	if next.IsGenesis() {
		return shared.ErrInvalidInput.WithCause(errors.New("a chain cannot be extended to genesis"))
	}
	db := r.db.WithContext(ctx)
	now := time.Now().UTC()

	if expected.IsGenesis() {
		head := &models.ChainHeadModel{OwnerID: ownerID, Series: series, UpdatedAt: now}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "series"}},
			DoNothing: true,
		}).Create(head).Error
		if err != nil {
			return fmt.Errorf("failed to create chain head: %w", err)
		}
	}

	result := db.Model(&models.ChainHeadModel{}).
		Where("owner_id = ? AND series = ? AND last_hash = ?", ownerID, series, expected.String()).
		Updates(map[string]any{
			"last_hash":  next.String(),
			"link_count": gorm.Expr("link_count + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to extend chain: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ledger.ErrChainConflict
	}
	return nil
}

// Ensure GormChainRepository implements ChainRepository
var _ ledger.ChainRepository = (*GormChainRepository)(nil)
