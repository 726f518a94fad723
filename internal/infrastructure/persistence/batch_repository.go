package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/evidence"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const claimPositionSQL = `UPDATE document_batches
SET document_count = document_count + 1, updated_at = ?
WHERE id = ? AND owner_id = ? AND status = ?
RETURNING document_count`

// GormBatchRepository implements BatchRepository using GORM
type GormBatchRepository struct {
	db *gorm.DB
}

// NewGormBatchRepository creates a new GormBatchRepository
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormBatchRepository) WithTx(tx *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: tx}
}

// Create stores a new batch
func (r *GormBatchRepository) Create(ctx context.Context, batch *evidence.Batch) error {
	return r.db.WithContext(ctx).Create(models.DocumentBatchModelFromDomain(batch)).Error
}

// FindByID finds a batch of an owner
func (r *GormBatchRepository) FindByID(ctx context.Context, ownerID, id uuid.UUID) (*evidence.Batch, error) {
	var model models.DocumentBatchModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, evidence.ErrBatchNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// ClaimPosition bumps the document count of an open batch and returns
// the position the new document takes
func (r *GormBatchRepository) ClaimPosition(ctx context.Context, ownerID, id uuid.UUID) (int, error) {
	var position int
	row := r.db.WithContext(ctx).
		Raw(claimPositionSQL, time.Now().UTC(), id, ownerID, evidence.BatchStatusOpen).
		Row()
	if err := row.Scan(&position); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, r.closedReason(ctx, ownerID, id)
		}
		return 0, fmt.Errorf("failed to claim document position: %w", err)
	}
	return position, nil
}

// MarkSealed flips the batch to sealed only if it is still open with
// expectedCount documents
func (r *GormBatchRepository) MarkSealed(ctx context.Context, batch *evidence.Batch, expectedCount int) error {
	model := models.DocumentBatchModelFromDomain(batch)
	result := r.db.WithContext(ctx).
		Model(&models.DocumentBatchModel{}).
		Where("id = ? AND owner_id = ? AND status = ? AND document_count = ?",
			batch.ID, batch.OwnerID, evidence.BatchStatusOpen, expectedCount).
		Updates(map[string]any{
			"status":              evidence.BatchStatusSealed,
			"manifest_digest":     model.ManifestDigest,
			"manifest_ref":        model.ManifestRef,
			"signed_manifest_ref": model.SignedManifestRef,
			"sealed_at":           model.SealedAt,
			"updated_at":          model.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to seal batch: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return r.closedReason(ctx, batch.OwnerID, batch.ID)
	}
	return nil
}

// closedReason explains why a conditional update on a batch matched nothing
func (r *GormBatchRepository) closedReason(ctx context.Context, ownerID, id uuid.UUID) error {
	current, err := r.FindByID(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if current.IsSealed() {
		return evidence.ErrBatchSealed
	}
	return evidence.ErrBatchChanged
}

// Ensure GormBatchRepository implements BatchRepository
var _ evidence.BatchRepository = (*GormBatchRepository)(nil)
