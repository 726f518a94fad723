package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Claim, chain and seal outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeNoop    = "noop"
)

// LedgerMetrics counts the state changes of the ledger
type LedgerMetrics struct {
	claims          *Counter
	chainAppends    *Counter
	chainConflicts  *Counter
	seals           *Counter
	signingFailures *Counter
	signingDuration *Histogram
}

// NewLedgerMetrics registers the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, errors.New("telemetry: meter cannot be nil")
	}

	var (
		m   LedgerMetrics
		err error
	)
	if m.claims, err = NewCounter(meter, "ledger_sequence_claims_total",
		"Sequence numbers claimed, by outcome", "{claim}"); err != nil {
		return nil, err
	}
	if m.chainAppends, err = NewCounter(meter, "ledger_chain_appends_total",
		"Links appended to a chain", "{link}"); err != nil {
		return nil, err
	}
	if m.chainConflicts, err = NewCounter(meter, "ledger_chain_conflicts_total",
		"Conditional chain updates that lost to another writer", "{conflict}"); err != nil {
		return nil, err
	}
	if m.seals, err = NewCounter(meter, "ledger_batch_seals_total",
		"Batch seal attempts, by outcome", "{seal}"); err != nil {
		return nil, err
	}
	if m.signingFailures, err = NewCounter(meter, "ledger_signing_failures_total",
		"Failed calls to the signing authority, by error code", "{call}"); err != nil {
		return nil, err
	}
	if m.signingDuration, err = NewHistogram(meter, "ledger_signing_duration_seconds",
		"Signing authority latency", "s", SigningDurationBuckets); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewNoopLedgerMetrics returns metrics that record nothing
func NewNoopLedgerMetrics() *LedgerMetrics {
	m, _ := NewLedgerMetrics(noop.NewMeterProvider().Meter(TracerName))
	return m
}

// RecordClaim counts one sequence claim
func (m *LedgerMetrics) RecordClaim(ctx context.Context, series string, err error) {
	m.claims.Inc(ctx, AttrSeries.String(series), AttrOutcome.String(outcome(err)))
}

// RecordChainAppend counts one accepted link
func (m *LedgerMetrics) RecordChainAppend(ctx context.Context, series string) {
	m.chainAppends.Inc(ctx, AttrSeries.String(series))
}

// RecordChainConflict counts one lost CAS
func (m *LedgerMetrics) RecordChainConflict(ctx context.Context, series string) {
	m.chainConflicts.Inc(ctx, AttrSeries.String(series))
}

// RecordSeal counts one seal attempt. alreadySealed marks a no-op re-seal.
func (m *LedgerMetrics) RecordSeal(ctx context.Context, alreadySealed bool, err error) {
	o := outcome(err)
	if err == nil && alreadySealed {
		o = OutcomeNoop
	}
	m.seals.Inc(ctx, AttrOutcome.String(o))
}

// RecordSigning records the latency of one signing call and counts failures
func (m *LedgerMetrics) RecordSigning(ctx context.Context, d time.Duration, err error) {
	m.signingDuration.RecordDuration(ctx, d, AttrOutcome.String(outcome(err)))
	if err != nil {
		m.signingFailures.Inc(ctx, AttrErrorCode.String(errorCode(err)))
	}
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func errorCode(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	if errors.Is(err, context.Canceled) {
		return "CANCELED"
	}
	return "UNKNOWN"
}
