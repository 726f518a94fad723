package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/ledger/internal/domain/evidence"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveError(t *testing.T, err error) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	h := &BaseHandler{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set(middleware.RequestIDKey, "req-42")

	h.HandleDomainError(c, err)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestHandleDomainError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, "NOT_FOUND", false},
		{"allocation", ledger.NewAllocationError(errors.New("db down")), http.StatusServiceUnavailable, "ALLOCATION_FAILED", true},
		{"chain conflict", ledger.ErrChainConflict, http.StatusConflict, "CHAIN_CONFLICT", true},
		{"batch sealed", evidence.ErrBatchSealed, http.StatusUnprocessableEntity, "BATCH_SEALED", false},
		{"wrapped", fmt.Errorf("seal: %w", evidence.ErrEmptyBatch), http.StatusUnprocessableEntity, "EMPTY_BATCH", false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "REQUEST_TIMEOUT", false},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := serveError(t, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
			assert.Equal(t, "req-42", resp.Error.RequestID)
		})
	}
}

func TestHandleDomainError_Details(t *testing.T) {
	_, resp := serveError(t, shared.ErrInvalidInput.WithDetail("field", "issue_date"))

	require.NotNil(t, resp.Error)
	assert.Equal(t, "issue_date", resp.Error.Context["field"])
}

func TestHandleDomainError_InternalMessageHidden(t *testing.T) {
	_, resp := serveError(t, errors.New("pq: password authentication failed"))

	assert.NotContains(t, resp.Error.Message, "password")
}

type stubPinger struct{ err error }

func (p stubPinger) Ping() error { return p.err }

func TestSystemHandler_Health(t *testing.T) {
	tests := []struct {
		name     string
		pinger   stubPinger
		status   int
		database string
	}{
		{"healthy", stubPinger{}, http.StatusOK, "ok"},
		{"database down", stubPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/health", NewSystemHandler(tt.pinger, "ledger", "1.0.0").Health)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.status, w.Code)
			health := decode[HealthResponse](t, w)
			assert.Equal(t, tt.database, health.Database)
			assert.Equal(t, "1.0.0", health.Version)
		})
	}
}
