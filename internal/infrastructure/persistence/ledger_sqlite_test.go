package persistence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/evidence"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSequence_YearlyResetPerPeriod(t *testing.T) {
	db := newSQLiteDatabase(t)
	repo := NewGormSequenceRepository(db.DB)
	ctx := context.Background()
	owner := uuid.New()

	claim := func(period string) int64 {
		n, err := repo.ClaimNext(ctx, ledger.CounterKey{OwnerID: owner, Series: "FAC", Period: period})
		require.NoError(t, err)
		return n
	}

	assert.Equal(t, int64(1), claim("2024"))
	assert.Equal(t, int64(2), claim("2024"))
	assert.Equal(t, int64(1), claim("2025"))
	assert.Equal(t, int64(3), claim("2024"))

	// another owner has its own counter
	n, err := repo.ClaimNext(ctx, ledger.CounterKey{OwnerID: uuid.New(), Series: "FAC", Period: "2024"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSequence_ConcurrentClaimsAreGapless(t *testing.T) {
	db := newSQLiteDatabase(t)
	repo := NewGormSequenceRepository(db.DB)
	key := ledger.CounterKey{OwnerID: uuid.New(), Series: "FAC", Period: ledger.NoPeriod}

	const writers = 40
	var (
		mu     sync.Mutex
		issued []int64
	)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			n, err := repo.ClaimNext(ctx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			issued = append(issued, n)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sort.Slice(issued, func(i, j int) bool { return issued[i] < issued[j] })
	for i, n := range issued {
		assert.Equal(t, int64(i+1), n)
	}
}

func TestSeriesConfig_Upsert(t *testing.T) {
	db := newSQLiteDatabase(t)
	repo := NewGormSeriesConfigRepository(db.DB)
	ctx := context.Background()
	owner := uuid.New()

	_, err := repo.Find(ctx, owner, "FAC")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	cfg, err := ledger.NewSeriesConfig(owner, "FAC", ledger.ResetYearly, "B12345678")
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, cfg))

	cfg.ResetPolicy = ledger.ResetNever
	require.NoError(t, repo.Upsert(ctx, cfg))

	got, err := repo.Find(ctx, owner, "FAC")
	require.NoError(t, err)
	assert.Equal(t, ledger.ResetNever, got.ResetPolicy)
	assert.Equal(t, "B12345678", got.IssuerID)
}

func TestChain_SecondWriterOnSameHeadConflicts(t *testing.T) {
	db := newSQLiteDatabase(t)
	repo := NewGormChainRepository(db.DB)
	ctx := context.Background()
	owner := uuid.New()

	head, err := repo.ReadHead(ctx, owner, "FAC")
	require.NoError(t, err)
	require.False(t, head.IsStarted())

	a := ledger.NewRecord(head, ledger.RecordKindAlta, "FAC-1", ledger.Fingerprint([]byte("a")), "B1")
	b := ledger.NewRecord(head, ledger.RecordKindAlta, "FAC-1", ledger.Fingerprint([]byte("b")), "B1")

	require.NoError(t, repo.ExtendChain(ctx, owner, "FAC", head.LastHash, a.Hash))
	err = repo.ExtendChain(ctx, owner, "FAC", head.LastHash, b.Hash)
	assert.ErrorIs(t, err, ledger.ErrChainConflict)

	moved, err := repo.ReadHead(ctx, owner, "FAC")
	require.NoError(t, err)
	assert.Equal(t, a.Hash, moved.LastHash)
	assert.Equal(t, int64(1), moved.Length)

	// the loser rebuilt against the fresh head succeeds
	b = ledger.NewRecord(moved, ledger.RecordKindAlta, "FAC-2", ledger.Fingerprint([]byte("b")), "B1")
	require.NoError(t, repo.ExtendChain(ctx, owner, "FAC", moved.LastHash, b.Hash))
	assert.Equal(t, a.Hash, b.PrevHash)
}

func TestTransactionScope_AppendAndVerify(t *testing.T) {
	db := newSQLiteDatabase(t)
	scope := NewGormTransactionScope(db.DB)
	chains := NewGormChainRepository(db.DB)
	records := NewGormRecordRepository(db.DB)
	ctx := context.Background()
	owner := uuid.New()

	for i := 0; i < 3; i++ {
		head, err := chains.ReadHead(ctx, owner, "FAC")
		require.NoError(t, err)
		rec := ledger.NewRecord(head, ledger.RecordKindAlta, uuid.NewString(), ledger.Fingerprint([]byte{byte(i)}), "B1")
		err = scope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
			if err := repos.ChainRepo().ExtendChain(ctx, owner, "FAC", head.LastHash, rec.Hash); err != nil {
				return err
			}
			if err := repos.RecordRepo().Append(ctx, rec); err != nil {
				return err
			}
			return repos.AuditRepo().Append(ctx, ledger.NewAuditEvent(owner, rec.Reference, ledger.AuditKindAlta, rec.Hash.String()))
		})
		require.NoError(t, err)
	}

	head, err := chains.ReadHead(ctx, owner, "FAC")
	require.NoError(t, err)
	list, err := records.ListBySeries(ctx, owner, "FAC")
	require.NoError(t, err)
	require.Len(t, list, 3)

	report := ledger.VerifyChain(list, head)
	assert.True(t, report.Valid, report.Reason)
	assert.Equal(t, 3, report.Links)
}

func TestTransactionScope_RollsBackOnError(t *testing.T) {
	db := newSQLiteDatabase(t)
	scope := NewGormTransactionScope(db.DB)
	ctx := context.Background()
	owner := uuid.New()

	head := ledger.GenesisHead(owner, "FAC")
	rec := ledger.NewRecord(head, ledger.RecordKindAlta, "FAC-1", ledger.Fingerprint([]byte("x")), "")
	boom := errors.New("boom")

	err := scope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
		if err := repos.ChainRepo().ExtendChain(ctx, owner, "FAC", head.LastHash, rec.Hash); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	after, err := NewGormChainRepository(db.DB).ReadHead(ctx, owner, "FAC")
	require.NoError(t, err)
	assert.False(t, after.IsStarted())
}

func TestBatch_ClaimAndSeal(t *testing.T) {
	db := newSQLiteDatabase(t)
	batches := NewGormBatchRepository(db.DB)
	docs := NewGormDocumentRepository(db.DB)
	ctx := context.Background()
	owner := uuid.New()

	batch := evidence.NewBatch(owner)
	require.NoError(t, batches.Create(ctx, batch))

	for _, name := range []string{"a.pdf", "b.pdf"} {
		doc, err := evidence.NewDocument(batch, name, "application/pdf", []byte(name))
		require.NoError(t, err)
		doc.Position, err = batches.ClaimPosition(ctx, owner, batch.ID)
		require.NoError(t, err)
		require.NoError(t, docs.Create(ctx, doc))
	}

	stored, err := docs.ListByBatch(ctx, owner, batch.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 1, stored[0].Position)
	assert.Equal(t, "b.pdf", stored[1].Filename)

	loaded, err := batches.FindByID(ctx, owner, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.DocumentCount)

	// a stale count loses
	require.NoError(t, loaded.Seal(ledger.Fingerprint([]byte("m")), "m.xml", "m.signed"))
	assert.ErrorIs(t, batches.MarkSealed(ctx, loaded, 1), evidence.ErrBatchChanged)

	require.NoError(t, batches.MarkSealed(ctx, loaded, 2))
	assert.ErrorIs(t, batches.MarkSealed(ctx, loaded, 2), evidence.ErrBatchSealed)

	_, err = batches.ClaimPosition(ctx, owner, batch.ID)
	assert.ErrorIs(t, err, evidence.ErrBatchSealed)

	sealed, err := batches.FindByID(ctx, owner, batch.ID)
	require.NoError(t, err)
	assert.True(t, sealed.IsSealed())
	assert.Equal(t, loaded.ManifestDigest, sealed.ManifestDigest)
	require.NotNil(t, sealed.SealedAt)
	assert.WithinDuration(t, time.Now(), *sealed.SealedAt, time.Minute)

	_, err = batches.FindByID(ctx, uuid.New(), batch.ID)
	assert.ErrorIs(t, err, evidence.ErrBatchNotFound)
}

func TestAudit_ListByReference(t *testing.T) {
	db := newSQLiteDatabase(t)
	repo := NewGormAuditRepository(db.DB)
	ctx := context.Background()
	owner := uuid.New()

	first := ledger.NewAuditEvent(owner, "batch-1", ledger.AuditKindUpload, "position=1")
	second := ledger.NewAuditEvent(owner, "batch-1", ledger.AuditKindSeal, "documents=1")
	second.At = first.At.Add(time.Second)
	require.NoError(t, repo.Append(ctx, first))
	require.NoError(t, repo.Append(ctx, second))
	require.NoError(t, repo.Append(ctx, ledger.NewAuditEvent(owner, "batch-2", ledger.AuditKindUpload, "")))

	events, err := repo.ListByReference(ctx, owner, "batch-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ledger.AuditKindUpload, events[0].Kind)
	assert.Equal(t, ledger.AuditKindSeal, events[1].Kind)
}
