package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/ledger/internal/domain/evidence"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormSequenceRepository_ClaimNext(t *testing.T) {
	key := ledger.CounterKey{OwnerID: uuid.New(), Series: "FAC", Period: ledger.NoPeriod}

	t.Run("returns the issued number from a single upsert", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()

		mock.ExpectQuery(`INSERT INTO sequence_counters .* ON CONFLICT \(owner_id, series, period\)\s+DO UPDATE SET next_value = sequence_counters.next_value \+ 1.* RETURNING next_value - 1`).
			WithArgs(key.OwnerID, "FAC", ledger.NoPeriod, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(7)))

		n, err := NewGormSequenceRepository(db).ClaimNext(context.Background(), key)

		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("store failure is a retryable allocation error", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()

		mock.ExpectQuery(`INSERT INTO sequence_counters`).
			WillReturnError(errors.New("connection reset"))

		_, err := NewGormSequenceRepository(db).ClaimNext(context.Background(), key)

		require.Error(t, err)
		assert.True(t, errors.Is(err, ledger.ErrAllocation))
		assert.True(t, shared.IsRetryable(err))
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestGormChainRepository_ExtendChain(t *testing.T) {
	owner := uuid.New()
	prev := ledger.NewChainHash(ledger.Fingerprint([]byte("prev")))
	next := ledger.NewChainHash(ledger.Fingerprint([]byte("next")))

	t.Run("moves the head when it still matches", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "chain_heads" SET .* WHERE owner_id = \$\d+ AND series = \$\d+ AND last_hash = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := NewGormChainRepository(db).ExtendChain(context.Background(), owner, "FAC", prev, next)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale expected hash is a chain conflict", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "chain_heads" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := NewGormChainRepository(db).ExtendChain(context.Background(), owner, "FAC", prev, next)

		assert.ErrorIs(t, err, ledger.ErrChainConflict)
		assert.True(t, shared.IsRetryable(err))
	})

	t.Run("database error is not a conflict", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "chain_heads" SET`).
			WillReturnError(errors.New("disk full"))

		err := NewGormChainRepository(db).ExtendChain(context.Background(), owner, "FAC", prev, next)

		require.Error(t, err)
		assert.False(t, errors.Is(err, ledger.ErrChainConflict))
	})

	t.Run("rejects genesis as the new head", func(t *testing.T) {
		db, _, mockDB := newMockGormDB(t)
		defer mockDB.Close()

		err := NewGormChainRepository(db).ExtendChain(context.Background(), owner, "FAC", prev, ledger.GenesisHash)

		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestGormChainRepository_ReadHead_Missing(t *testing.T) {
	db, mock, mockDB := newMockGormDB(t)
	defer mockDB.Close()
	owner := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "chain_heads" WHERE owner_id = \$1 AND series = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "series", "last_hash", "link_count", "updated_at"}))

	head, err := NewGormChainRepository(db).ReadHead(context.Background(), owner, "FAC")

	require.NoError(t, err)
	assert.False(t, head.IsStarted())
	assert.Equal(t, int64(0), head.Length)
	assert.Equal(t, owner, head.OwnerID)
}

func TestGormBatchRepository_ClaimPosition(t *testing.T) {
	owner, batchID := uuid.New(), uuid.New()

	t.Run("returns the bumped count", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()

		mock.ExpectQuery(`UPDATE document_batches\s+SET document_count = document_count \+ 1.*WHERE id = \$2 AND owner_id = \$3 AND status = \$4\s+RETURNING document_count`).
			WithArgs(sqlmock.AnyArg(), batchID, owner, evidence.BatchStatusOpen).
			WillReturnRows(sqlmock.NewRows([]string{"document_count"}).AddRow(3))

		pos, err := NewGormBatchRepository(db).ClaimPosition(context.Background(), owner, batchID)

		require.NoError(t, err)
		assert.Equal(t, 3, pos)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sealed batch is rejected", func(t *testing.T) {
		db, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()

		mock.ExpectQuery(`UPDATE document_batches`).
			WillReturnRows(sqlmock.NewRows([]string{"document_count"}))
		mock.ExpectQuery(`SELECT \* FROM "document_batches" WHERE id = \$1 AND owner_id = \$2`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "status", "document_count", "created_at", "updated_at"}).
				AddRow(batchID, owner, "sealed", 2, time.Now(), time.Now()))

		_, err := NewGormBatchRepository(db).ClaimPosition(context.Background(), owner, batchID)

		assert.ErrorIs(t, err, evidence.ErrBatchSealed)
	})
}
