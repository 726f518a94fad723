package persistence

import (
	"context"

	"github.com/erp/ledger/internal/domain/evidence"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDocumentRepository implements DocumentRepository using GORM
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

// Create stores a document row
func (r *GormDocumentRepository) Create(ctx context.Context, doc *evidence.Document) error {
	return r.db.WithContext(ctx).Create(models.BatchDocumentModelFromDomain(doc)).Error
}

// ListByBatch returns the documents of a batch ordered by position
func (r *GormDocumentRepository) ListByBatch(ctx context.Context, ownerID, batchID uuid.UUID) ([]evidence.Document, error) {
	var rows []models.BatchDocumentModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND batch_id = ?", ownerID, batchID).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	docs := make([]evidence.Document, 0, len(rows))
	for i := range rows {
		doc, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// Ensure GormDocumentRepository implements DocumentRepository
var _ evidence.DocumentRepository = (*GormDocumentRepository)(nil)
