package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SequenceService issues invoice numbers
type SequenceService struct {
	sequences     ledger.SequenceRepository
	seriesConfigs ledger.SeriesConfigRepository
	defaultPolicy ledger.ResetPolicy
	retry         RetryPolicy
	metrics       *telemetry.LedgerMetrics
}

// NewSequenceService creates a SequenceService. Series without a stored
// configuration use defaultPolicy.
func NewSequenceService(
	sequences ledger.SequenceRepository,
	seriesConfigs ledger.SeriesConfigRepository,
	defaultPolicy ledger.ResetPolicy,
	retry RetryPolicy,
) *SequenceService {
	if !defaultPolicy.IsValid() {
		defaultPolicy = ledger.ResetNever
	}
	return &SequenceService{
		sequences:     sequences,
		seriesConfigs: seriesConfigs,
		defaultPolicy: defaultPolicy,
		retry:         retry,
		metrics:       telemetry.NewNoopLedgerMetrics(),
	}
}

// SetMetrics sets the ledger metrics
func (s *SequenceService) SetMetrics(m *telemetry.LedgerMetrics) {
	if m != nil {
		s.metrics = m
	}
}

// ClaimNext returns the next number of series for the period issueDate
// falls in. Store failures are retried with backoff and surface as
// ledger.ErrAllocation once the attempts are spent.
func (s *SequenceService) ClaimNext(ctx context.Context, ownerID uuid.UUID, series string, issueDate time.Time) (ledger.Allocation, error) {
	series = strings.TrimSpace(series)
	if err := ledger.ValidateSeries(series); err != nil {
		return ledger.Allocation{}, err
	}
	if issueDate.IsZero() {
		return ledger.Allocation{}, shared.ErrInvalidInput.WithDetail("field", "issue_date")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "sequence", "claim",
		telemetry.SpanAttrOwnerID, ownerID, telemetry.SpanAttrSeries, series)
	defer span.End()

	key, err := s.counterKey(ctx, ownerID, series, issueDate)
	if err != nil {
		telemetry.RecordError(span, err)
		return ledger.Allocation{}, err
	}

	attempt := 0
	number, err := backoff.Retry(ctx, func() (int64, error) {
		attempt++
		n, err := s.sequences.ClaimNext(ctx, key)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, ledger.ErrAllocation) {
			logger.L(ctx).Warn("Sequence claim failed, retrying",
				zap.String("series", series),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return 0, err
		}
		return 0, backoff.Permanent(err)
	}, s.retry.options()...)

	s.metrics.RecordClaim(ctx, series, err)
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ledger.Allocation{}, err
		}
		if !errors.Is(err, ledger.ErrAllocation) {
			err = ledger.NewAllocationError(err)
		}
		return ledger.Allocation{}, err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrNumber, number)
	return ledger.Allocation{Series: series, Number: number, Period: key.Period}, nil
}

// counterKey resolves the counter an issue date of series claims from
func (s *SequenceService) counterKey(ctx context.Context, ownerID uuid.UUID, series string, issueDate time.Time) (ledger.CounterKey, error) {
	policy, err := s.policyFor(ctx, ownerID, series)
	if err != nil {
		return ledger.CounterKey{}, err
	}
	return ledger.CounterKey{OwnerID: ownerID, Series: series, Period: policy.PeriodFor(issueDate)}, nil
}

// peek returns the number the next claim on key would issue
func (s *SequenceService) peek(ctx context.Context, key ledger.CounterKey) (int64, error) {
	n, err := s.sequences.Peek(ctx, key)
	if err != nil && !errors.Is(err, ledger.ErrAllocation) {
		err = ledger.NewAllocationError(err)
	}
	return n, err
}

func (s *SequenceService) policyFor(ctx context.Context, ownerID uuid.UUID, series string) (ledger.ResetPolicy, error) {
	cfg, err := s.seriesConfigs.Find(ctx, ownerID, series)
	if errors.Is(err, shared.ErrNotFound) {
		return s.defaultPolicy, nil
	}
	if err != nil {
		return "", ledger.NewAllocationError(err)
	}
	return cfg.ResetPolicy, nil
}
