package ledger

import (
	"context"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/signing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

var testOwner = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

// MockSequenceRepository is a mock implementation of ledger.SequenceRepository
type MockSequenceRepository struct {
	mock.Mock
}

func (m *MockSequenceRepository) ClaimNext(ctx context.Context, key ledger.CounterKey) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSequenceRepository) Peek(ctx context.Context, key ledger.CounterKey) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSequenceRepository) HasClaims(ctx context.Context, ownerID uuid.UUID, series string) (bool, error) {
	args := m.Called(ctx, ownerID, series)
	return args.Bool(0), args.Error(1)
}

// MockSeriesConfigRepository is a mock implementation of ledger.SeriesConfigRepository
type MockSeriesConfigRepository struct {
	mock.Mock
}

func (m *MockSeriesConfigRepository) Find(ctx context.Context, ownerID uuid.UUID, series string) (*ledger.SeriesConfig, error) {
	args := m.Called(ctx, ownerID, series)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.SeriesConfig), args.Error(1)
}

func (m *MockSeriesConfigRepository) Upsert(ctx context.Context, cfg *ledger.SeriesConfig) error {
	return m.Called(ctx, cfg).Error(0)
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

// chainFixture wires a ChainService over mocks
type chainFixture struct {
	seq     *MockSequenceRepository
	chains  *MockChainRepository
	records *MockRecordRepository
	audit   *MockAuditRepository
	service *ChainService
}

func newChainFixture(attempts int) *chainFixture {
	f := &chainFixture{
		seq:     new(MockSequenceRepository),
		chains:  new(MockChainRepository),
		records: new(MockRecordRepository),
		audit:   new(MockAuditRepository),
	}
	scope := &NoOpTransactionScope{Sequences: f.seq, Chains: f.chains, Records: f.records, Audit: f.audit}
	f.service = NewChainService(f.chains, f.records, scope, fastRetry(attempts))
	return f
}
