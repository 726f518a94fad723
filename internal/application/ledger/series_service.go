package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// SeriesService manages per-series configuration
type SeriesService struct {
	configs       ledger.SeriesConfigRepository
	sequences     ledger.SequenceRepository
	defaultPolicy ledger.ResetPolicy
}

// NewSeriesService creates a SeriesService
func NewSeriesService(
	configs ledger.SeriesConfigRepository,
	sequences ledger.SequenceRepository,
	defaultPolicy ledger.ResetPolicy,
) *SeriesService {
	if !defaultPolicy.IsValid() {
		defaultPolicy = ledger.ResetNever
	}
	return &SeriesService{configs: configs, sequences: sequences, defaultPolicy: defaultPolicy}
}

// Configure creates or replaces the configuration of series. An omitted
// reset policy keeps the one in effect. The policy decides which counter
// a claim lands on, so it may only change while the series has not
// issued any number.
func (s *SeriesService) Configure(ctx context.Context, ownerID uuid.UUID, series string, cmd SeriesConfigCommand) (*ledger.SeriesConfig, error) {
	series = strings.TrimSpace(series)
	if err := ledger.ValidateSeries(series); err != nil {
		return nil, err
	}

	current, _, err := s.Get(ctx, ownerID, series)
	if err != nil {
		return nil, err
	}

	policy := ledger.ResetPolicy(strings.TrimSpace(cmd.ResetPolicy))
	if policy == "" {
		policy = current.ResetPolicy
	}
	if policy != current.ResetPolicy {
		if !policy.IsValid() {
			return nil, ledger.ErrInvalidSeries.WithDetail("reset_policy", string(policy))
		}
		used, err := s.sequences.HasClaims(ctx, ownerID, series)
		if err != nil {
			return nil, fmt.Errorf("check series counters: %w", err)
		}
		if used {
			return nil, ledger.ErrSeriesInUse.
				WithDetail("series", series).
				WithDetail("reset_policy", current.ResetPolicy.String())
		}
	}

	cfg, err := ledger.NewSeriesConfig(ownerID, series, policy, cmd.IssuerID)
	if err != nil {
		return nil, err
	}
	if err := s.configs.Upsert(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get returns the configuration of series. An unconfigured series
// reports the defaults with configured=false.
func (s *SeriesService) Get(ctx context.Context, ownerID uuid.UUID, series string) (*ledger.SeriesConfig, bool, error) {
	series = strings.TrimSpace(series)
	if err := ledger.ValidateSeries(series); err != nil {
		return nil, false, err
	}
	cfg, err := s.configs.Find(ctx, ownerID, series)
	if errors.Is(err, shared.ErrNotFound) {
		return &ledger.SeriesConfig{OwnerID: ownerID, Series: series, ResetPolicy: s.defaultPolicy}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}
