package telemetry

import (
	"context"
	"errors"

	"github.com/erp/ledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Telemetry bundles the providers and the ledger instruments
type Telemetry struct {
	Tracer  *TracerProvider
	Meter   *MeterProvider
	Metrics *LedgerMetrics
}

// Setup builds tracer and meter providers from configuration and registers
// the ledger metrics on the resulting meter
func Setup(ctx context.Context, cfg *config.TelemetryConfig, logger *zap.Logger) (*Telemetry, error) {
	tp, err := NewTracerProvider(ctx, Config{
		Enabled:           cfg.Enabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		SamplingRatio:     cfg.SamplingRatio,
		ServiceName:       cfg.ServiceName,
		Insecure:          cfg.Insecure,
	}, logger)
	if err != nil {
		return nil, err
	}

	mp, err := NewMeterProvider(ctx, MetricsConfig{
		Enabled:           cfg.Enabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		ExportInterval:    cfg.MetricsInterval,
		ServiceName:       cfg.ServiceName,
		Insecure:          cfg.Insecure,
	}, logger)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	metrics, err := NewLedgerMetrics(mp.Meter(TracerName))
	if err != nil {
		_ = mp.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	return &Telemetry{Tracer: tp, Meter: mp, Metrics: metrics}, nil
}

// Shutdown flushes both providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.Meter.Shutdown(ctx), t.Tracer.Shutdown(ctx))
}
