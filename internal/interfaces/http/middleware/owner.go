package middleware

import (
	"net/http"

	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Owner context keys and header
const (
	OwnerIDKey     = "owner_id"
	OwnerHeaderKey = "X-Tenant-ID"
)

// DevelopmentOwnerID is used when no owner header is sent and a default
// owner is allowed
var DevelopmentOwnerID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// OwnerConfig holds configuration for the owner middleware
type OwnerConfig struct {
	// Required rejects requests without an owner header instead of
	// falling back to Default
	Required bool
	Default  uuid.UUID
}

// OwnerConfigForEnv requires the owner header in production and falls
// back to the development owner elsewhere
func OwnerConfigForEnv(env string) OwnerConfig {
	if env == "production" {
		return OwnerConfig{Required: true}
	}
	return OwnerConfig{Default: DevelopmentOwnerID}
}

// Owner resolves the owner every ledger table is partitioned by from the
// X-Tenant-ID header
func Owner(cfg OwnerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(OwnerHeaderKey)

		var ownerID uuid.UUID
		switch {
		case raw != "":
			id, err := uuid.Parse(raw)
			if err != nil || id == uuid.Nil {
				abortOwner(c, "X-Tenant-ID must be a UUID")
				return
			}
			ownerID = id
		case cfg.Required || cfg.Default == uuid.Nil:
			abortOwner(c, "X-Tenant-ID header is required")
			return
		default:
			ownerID = cfg.Default
		}

		c.Set(OwnerIDKey, ownerID)
		ctx := logger.WithOwnerID(c.Request.Context(), ownerID.String())
		c.Request = c.Request.WithContext(ctx)
		logger.L(ctx).Debug("Owner resolved", zap.Bool("from_header", raw != ""))
		c.Next()
	}
}

func abortOwner(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeBadRequest, message, GetRequestID(c),
	))
}

// GetOwnerID retrieves the owner set by Owner. ok is false when the
// middleware did not run.
func GetOwnerID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(OwnerIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
