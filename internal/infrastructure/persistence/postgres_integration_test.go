//go:build integration

package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/migration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

// newPostgresDatabase starts a PostgreSQL container and applies the
// embedded migrations to it
func newPostgresDatabase(t *testing.T) *Database {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := NewDatabase(&config.DatabaseConfig{
		Driver:       "postgres",
		Host:         host,
		Port:         port.Int(),
		User:         "postgres",
		Password:     "postgres",
		DBName:       "ledger_test",
		SSLMode:      "disable",
		MaxOpenConns: 20,
		MaxIdleConns: 5,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	m, err := migration.New(sqlDB, "postgres", nil)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	version, dirty, err := m.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.NotZero(t, version)

	return db
}

func TestPostgres_ConcurrentClaimsAreGapless(t *testing.T) {
	db := newPostgresDatabase(t)
	repo := NewGormSequenceRepository(db.DB)
	key := ledger.CounterKey{OwnerID: uuid.New(), Series: "FAC", Period: "2025"}

	const writers = 50
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
	require.Len(t, issued, writers)
	for i, n := range issued {
		assert.Equal(t, int64(i+1), n)
	}
}

func TestPostgres_ConcurrentAppendsKeepChainValid(t *testing.T) {
	db := newPostgresDatabase(t)
	chains := NewGormChainRepository(db.DB)
	records := NewGormRecordRepository(db.DB)
	service := appledger.NewChainService(chains, records, NewGormTransactionScope(db.DB), appledger.RetryPolicy{
		MaxAttempts:     100,
		InitialInterval: time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	})
	owner := uuid.New()

	const writers = 20
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < writers; i++ {
		reference := fmt.Sprintf("FAC-%d", i+1)
		g.Go(func() error {
			_, err := service.Append(ctx, owner, "FAC", func(_ context.Context, head ledger.ChainHead) (*appledger.Link, error) {
				rec := ledger.NewRecord(head, ledger.RecordKindAlta, reference, ledger.Fingerprint([]byte(reference)), "B12345678")
				return &appledger.Link{Record: rec}, nil
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	report, err := service.Verify(context.Background(), owner, "FAC")
	require.NoError(t, err)
	assert.True(t, report.Valid, report.Reason)
	assert.Equal(t, writers, report.Links)
}
