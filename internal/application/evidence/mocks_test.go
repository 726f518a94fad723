package evidence

import (
	"context"
	"time"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/evidence"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/signing"
	"github.com/erp/ledger/internal/infrastructure/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

var testOwner = uuid.MustParse("00000000-0000-0000-0000-000000000001")

const testEvidenceSeries = "EVIDENCE"

// MockBatchRepository is a mock implementation of evidence.BatchRepository
type MockBatchRepository struct {
	mock.Mock
}

func (m *MockBatchRepository) Create(ctx context.Context, batch *evidence.Batch) error {
	return m.Called(ctx, batch).Error(0)
}

func (m *MockBatchRepository) FindByID(ctx context.Context, ownerID, id uuid.UUID) (*evidence.Batch, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*evidence.Batch), args.Error(1)
}

func (m *MockBatchRepository) ClaimPosition(ctx context.Context, ownerID, id uuid.UUID) (int, error) {
	args := m.Called(ctx, ownerID, id)
	return args.Int(0), args.Error(1)
}

func (m *MockBatchRepository) MarkSealed(ctx context.Context, batch *evidence.Batch, expectedCount int) error {
	return m.Called(ctx, batch, expectedCount).Error(0)
}

// MockDocumentRepository is a mock implementation of evidence.DocumentRepository
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, doc *evidence.Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *MockDocumentRepository) ListByBatch(ctx context.Context, ownerID, batchID uuid.UUID) ([]evidence.Document, error) {
	args := m.Called(ctx, ownerID, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]evidence.Document), args.Error(1)
}

// MockChainRepository is a mock implementation of ledger.ChainRepository
type MockChainRepository struct {
	mock.Mock
}

func (m *MockChainRepository) ReadHead(ctx context.Context, ownerID uuid.UUID, series string) (ledger.ChainHead, error) {
	args := m.Called(ctx, ownerID, series)
	return args.Get(0).(ledger.ChainHead), args.Error(1)
}

func (m *MockChainRepository) ExtendChain(ctx context.Context, ownerID uuid.UUID, series string, expected, next ledger.ChainHash) error {
	return m.Called(ctx, ownerID, series, expected, next).Error(0)
}

// MockRecordRepository is a mock implementation of ledger.RecordRepository
type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) Append(ctx context.Context, record *ledger.Record) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockRecordRepository) ListBySeries(ctx context.Context, ownerID uuid.UUID, series string) ([]ledger.Record, error) {
	args := m.Called(ctx, ownerID, series)
	return args.Get(0).([]ledger.Record), args.Error(1)
}

func (m *MockRecordRepository) FindByReference(ctx context.Context, ownerID uuid.UUID, series, reference string) (*ledger.Record, error) {
	args := m.Called(ctx, ownerID, series, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Record), args.Error(1)
}

// MockAuditRepository is a mock implementation of ledger.AuditRepository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, event *ledger.AuditEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockAuditRepository) ListByReference(ctx context.Context, ownerID uuid.UUID, reference string) ([]ledger.AuditEvent, error) {
	args := m.Called(ctx, ownerID, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.AuditEvent), args.Error(1)
}

// MockSigner is a mock implementation of signing.Signer
type MockSigner struct {
	mock.Mock
}

func (m *MockSigner) Sign(ctx context.Context, content []byte) (*signing.Artifact, error) {
	args := m.Called(ctx, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*signing.Artifact), args.Error(1)
}

// batchFixture wires a BatchService over mocks and in-memory storage
type batchFixture struct {
	batches   *MockBatchRepository
	documents *MockDocumentRepository
	chains    *MockChainRepository
	records   *MockRecordRepository
	audit     *MockAuditRepository
	signer    *MockSigner
	objects   *storage.MemoryObjectStorage
	service   *BatchService
}

func newBatchFixture() *batchFixture {
	f := &batchFixture{
		batches:   new(MockBatchRepository),
		documents: new(MockDocumentRepository),
		chains:    new(MockChainRepository),
		records:   new(MockRecordRepository),
		audit:     new(MockAuditRepository),
		signer:    new(MockSigner),
		objects:   storage.NewMemoryObjectStorage(),
	}
	scope := &appledger.NoOpTransactionScope{
		Chains:    f.chains,
		Records:   f.records,
		Audit:     f.audit,
		Batches:   f.batches,
		Documents: f.documents,
	}
	retry := appledger.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	chainSvc := appledger.NewChainService(f.chains, f.records, scope, retry)

	svc, err := NewBatchService(f.batches, f.documents, scope, chainSvc, f.signer, f.objects, testEvidenceSeries)
	if err != nil {
		panic(err)
	}
	f.service = svc
	return f
}

func (f *batchFixture) assertExpectations(t mock.TestingT) {
	f.batches.AssertExpectations(t)
	f.documents.AssertExpectations(t)
	f.chains.AssertExpectations(t)
	f.records.AssertExpectations(t)
	f.audit.AssertExpectations(t)
	f.signer.AssertExpectations(t)
}
