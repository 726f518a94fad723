package persistence

import (
	"context"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/evidence"
	"github.com/erp/ledger/internal/domain/ledger"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction. An error from fn rolls
// the transaction back; otherwise it is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appledger.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// SequenceRepo returns the sequence repository scoped to the current transaction.
func (r *gormTransactionalRepositories) SequenceRepo() ledger.SequenceRepository {
	return NewGormSequenceRepository(r.tx)
}

// ChainRepo returns the chain repository scoped to the current transaction.
func (r *gormTransactionalRepositories) ChainRepo() ledger.ChainRepository {
	return NewGormChainRepository(r.tx)
}

// RecordRepo returns the record repository scoped to the current transaction.
func (r *gormTransactionalRepositories) RecordRepo() ledger.RecordRepository {
	return NewGormRecordRepository(r.tx)
}

// AuditRepo returns the audit repository scoped to the current transaction.
func (r *gormTransactionalRepositories) AuditRepo() ledger.AuditRepository {
	return NewGormAuditRepository(r.tx)
}

// BatchRepo returns the batch repository scoped to the current transaction.
func (r *gormTransactionalRepositories) BatchRepo() evidence.BatchRepository {
	return NewGormBatchRepository(r.tx)
}

// DocumentRepo returns the document repository scoped to the current transaction.
func (r *gormTransactionalRepositories) DocumentRepo() evidence.DocumentRepository {
	return NewGormDocumentRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appledger.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appledger.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
