package ledger

import (
	"context"

	"github.com/erp/ledger/internal/domain/evidence"
	"github.com/erp/ledger/internal/domain/ledger"
)

// TransactionScope runs repository work atomically. Either every write
// made through the repositories handed to fn is committed, or none is.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories gives access to the repositories that share
// one transaction
type TransactionalRepositories interface {
	SequenceRepo() ledger.SequenceRepository
	ChainRepo() ledger.ChainRepository
	RecordRepo() ledger.RecordRepository
	AuditRepo() ledger.AuditRepository
	BatchRepo() evidence.BatchRepository
	DocumentRepo() evidence.DocumentRepository
}

// NoOpTransactionScope hands fn fixed repositories without a transaction.
// Used in tests with mocked repositories.
type NoOpTransactionScope struct {
	Sequences ledger.SequenceRepository
	Chains    ledger.ChainRepository
	Records   ledger.RecordRepository
	Audit     ledger.AuditRepository
	Batches   evidence.BatchRepository
	Documents evidence.DocumentRepository
}

// Execute runs fn against the fixed repositories
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// SequenceRepo returns the sequence repository
func (s *NoOpTransactionScope) SequenceRepo() ledger.SequenceRepository { return s.Sequences }

// ChainRepo returns the chain repository
func (s *NoOpTransactionScope) ChainRepo() ledger.ChainRepository { return s.Chains }

// RecordRepo returns the record repository
func (s *NoOpTransactionScope) RecordRepo() ledger.RecordRepository { return s.Records }

// AuditRepo returns the audit repository
func (s *NoOpTransactionScope) AuditRepo() ledger.AuditRepository { return s.Audit }

// BatchRepo returns the batch repository
func (s *NoOpTransactionScope) BatchRepo() evidence.BatchRepository { return s.Batches }

// DocumentRepo returns the document repository
func (s *NoOpTransactionScope) DocumentRepo() evidence.DocumentRepository { return s.Documents }

var (
	_ TransactionScope          = (*NoOpTransactionScope)(nil)
	_ TransactionalRepositories = (*NoOpTransactionScope)(nil)
)
