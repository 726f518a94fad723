package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader carries the client chosen key of a mutating request
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from the idempotency store
	ReplayedHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLength = 255
)

// storedResponse is what the idempotency store keeps per key
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// captureWriter tees the response body so it can be stored
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a request whose
// Idempotency-Key was already served. Keys are scoped per owner, method
// and route. Requests without the header pass through. Server errors and
// conflicts release the key so the client can retry.
func Idempotency(store shared.IdempotencyStore, cfg shared.IdempotencyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if !cfg.Enabled || store == nil || key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeBadRequest, "Idempotency-Key is too long", GetRequestID(c)))
			return
		}

		ctx := c.Request.Context()
		scoped := idempotencyScope(c, key)

		reserved, err := store.Reserve(ctx, scoped, cfg.TTL)
		if err != nil {
			storeUnavailable(c, err)
			return
		}
		if !reserved {
			replay(c, store, scoped)
			return
		}

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		if !cacheable(status) {
			if err := store.Release(ctx, scoped); err != nil {
				logger.L(ctx).Warn("Failed to release idempotency key", zap.Error(err))
			}
			return
		}
		payload, err := json.Marshal(storedResponse{
			Status:      status,
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.body.Bytes(),
		})
		if err == nil {
			err = store.Complete(ctx, scoped, payload, cfg.TTL)
		}
		if err != nil {
			// The response is already out; a retry will see a pending key
			// until the reservation expires.
			logger.L(ctx).Error("Failed to store idempotent response", zap.Error(err))
		}
	}
}

func idempotencyScope(c *gin.Context, key string) string {
	owner := "anonymous"
	if id, ok := GetOwnerID(c); ok {
		owner = id.String()
	}
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return owner + ":" + c.Request.Method + ":" + route + ":" + key
}

func cacheable(status int) bool {
	return status < http.StatusInternalServerError &&
		status != http.StatusConflict &&
		status != http.StatusTooManyRequests
}

func replay(c *gin.Context, store shared.IdempotencyStore, key string) {
	data, found, err := store.Lookup(c.Request.Context(), key)
	if err != nil {
		storeUnavailable(c, err)
		return
	}
	if !found {
		c.AbortWithStatusJSON(http.StatusConflict, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeIdempotencyPending, shared.ErrIdempotencyPending.Message, GetRequestID(c)))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal(data, &stored); err != nil {
		storeUnavailable(c, err)
		return
	}
	c.Header(ReplayedHeader, "true")
	c.Data(stored.Status, stored.ContentType, stored.Body)
	c.Abort()
}

func storeUnavailable(c *gin.Context, err error) {
	logger.L(c.Request.Context()).Error("Idempotency store unavailable", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeIdempotencyStore, "Idempotency store unavailable", GetRequestID(c)))
}
