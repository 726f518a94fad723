package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Link is one record ready to extend a chain
type Link struct {
	Record *ledger.Record
	// Within runs in the same transaction after the record is stored.
	// Optional.
	Within func(ctx context.Context, repos TransactionalRepositories) error
}

// LinkBuilder builds the link that extends head. It is called again with
// the fresh head every time the chain moved underneath, so it must not
// keep state from a previous call.
type LinkBuilder func(ctx context.Context, head ledger.ChainHead) (*Link, error)

// ChainService appends to and verifies hash chains
type ChainService struct {
	chains  ledger.ChainRepository
	records ledger.RecordRepository
	txScope TransactionScope
	retry   RetryPolicy
	metrics *telemetry.LedgerMetrics
}

// NewChainService creates a ChainService
func NewChainService(
	chains ledger.ChainRepository,
	records ledger.RecordRepository,
	txScope TransactionScope,
	retry RetryPolicy,
) *ChainService {
	return &ChainService{
		chains:  chains,
		records: records,
		txScope: txScope,
		retry:   retry,
		metrics: telemetry.NewNoopLedgerMetrics(),
	}
}

// SetMetrics sets the ledger metrics
func (s *ChainService) SetMetrics(m *telemetry.LedgerMetrics) {
	if m != nil {
		s.metrics = m
	}
}

// ReadHead returns the current head of a chain
func (s *ChainService) ReadHead(ctx context.Context, ownerID uuid.UUID, series string) (ledger.ChainHead, error) {
	series = strings.TrimSpace(series)
	if err := ledger.ValidateSeries(series); err != nil {
		return ledger.ChainHead{}, err
	}
	return s.chains.ReadHead(ctx, ownerID, series)
}

// Append reads the head, builds a link against it and moves the head
// with a conditional update. When another writer got there first the
// whole read-build-write cycle is repeated with backoff. Once the
// attempts are spent the caller gets ledger.ErrChainConflict.
func (s *ChainService) Append(ctx context.Context, ownerID uuid.UUID, series string, build LinkBuilder) (*ledger.Record, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "chain", "append",
		telemetry.SpanAttrOwnerID, ownerID, telemetry.SpanAttrSeries, series)
	defer span.End()

	attempt := 0
	record, err := backoff.Retry(ctx, func() (*ledger.Record, error) {
		attempt++
		rec, err := s.tryAppend(ctx, ownerID, series, build)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ledger.ErrChainConflict) {
			s.metrics.RecordChainConflict(ctx, series)
			telemetry.AddEvent(span, "chain_conflict", telemetry.SpanAttrAttempt, attempt)
			logger.L(ctx).Info("Chain head moved, rebuilding link",
				zap.String("series", series),
				zap.Int("attempt", attempt),
			)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, s.retry.options()...)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordChainAppend(ctx, series)
	telemetry.SetAttributes(span, telemetry.SpanAttrPosition, record.Position, telemetry.SpanAttrAttempt, attempt)
	return record, nil
}

func (s *ChainService) tryAppend(ctx context.Context, ownerID uuid.UUID, series string, build LinkBuilder) (*ledger.Record, error) {
	head, err := s.chains.ReadHead(ctx, ownerID, series)
	if err != nil {
		return nil, fmt.Errorf("read chain head: %w", err)
	}

	link, err := build(ctx, head)
	if err != nil {
		return nil, err
	}
	rec := link.Record
	if rec == nil || rec.PrevHash != head.LastHash || rec.Position != head.Length+1 {
		return nil, fmt.Errorf("link builder returned a record that does not extend the head of %s", series)
	}

	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.ChainRepo().ExtendChain(ctx, ownerID, series, head.LastHash, rec.Hash); err != nil {
			return err
		}
		if err := repos.RecordRepo().Append(ctx, rec); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
		if link.Within != nil {
			return link.Within(ctx, repos)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Verify recomputes every stored link of a chain and reports the first
// one that does not match
func (s *ChainService) Verify(ctx context.Context, ownerID uuid.UUID, series string) (ledger.VerificationReport, error) {
	series = strings.TrimSpace(series)
	if err := ledger.ValidateSeries(series); err != nil {
		return ledger.VerificationReport{}, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "chain", "verify", telemetry.SpanAttrSeries, series)
	defer span.End()

	head, err := s.chains.ReadHead(ctx, ownerID, series)
	if err != nil {
		return ledger.VerificationReport{}, fmt.Errorf("read chain head: %w", err)
	}
	records, err := s.records.ListBySeries(ctx, ownerID, series)
	if err != nil {
		return ledger.VerificationReport{}, fmt.Errorf("list chain records: %w", err)
	}

	report := ledger.VerifyChain(records, head)
	if !report.Valid {
		logger.L(ctx).Warn("Chain verification failed",
			zap.String("series", series),
			zap.Int64p("broken_at", report.BrokenAt),
			zap.String("reason", report.Reason),
		)
	}
	return report, nil
}
