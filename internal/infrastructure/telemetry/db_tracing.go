package telemetry

import (
	"errors"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled    bool
	LogFullSQL bool   // include query variables in spans; dev only
	DBSystem   string // postgres or sqlite
}

// RegisterOtelGorm installs the otelgorm plugin on db plus a callback
// that tags spans with the affected row count. A no-op when disabled.
func RegisterOtelGorm(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	// Rows affected matters for the conditional updates: a zero on
	// chain_heads or document_batches is a lost race, not an error.
	cb := db.Callback()
	if err := cb.Update().After("gorm:update").Before("otel:after_update").Register("ledger:rows_affected_update", tagRowsAffected); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Before("otel:after_raw").Register("ledger:rows_affected_raw", tagRowsAffected); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Before("otel:after_create").Register("ledger:rows_affected_create", tagRowsAffected); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.String("db_system", cfg.DBSystem),
	)
	return nil
}

func tagRowsAffected(db *gorm.DB) {
	if db.Statement == nil || db.Statement.Context == nil {
		return
	}
	span := trace.SpanFromContext(db.Statement.Context)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetAttributes(attribute.Bool("db.error", true))
	}
}
