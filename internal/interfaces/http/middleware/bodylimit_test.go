package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bodyLimitRouter(limit int64) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), BodyLimit(limit))
	router.POST("/evidence/batches/documents", func(c *gin.Context) {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "read: %v", err)
			return
		}
		c.String(http.StatusCreated, "%d", len(data))
	})
	return router
}

func TestBodyLimit(t *testing.T) {
	tests := []struct {
		name          string
		size          int
		contentLength int64
		wantStatus    int
	}{
		{"document within limit", 64, 64, http.StatusCreated},
		{"document at limit", 128, 128, http.StatusCreated},
		{"declared length over limit", 256, 256, http.StatusRequestEntityTooLarge},
		{"chunked upload over limit", 256, -1, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := bodyLimitRouter(128)

			req := httptest.NewRequest(http.MethodPost, "/evidence/batches/documents", strings.NewReader(strings.Repeat("%", tt.size)))
			req.ContentLength = tt.contentLength
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestBodyLimit_ErrorCarriesRequestID(t *testing.T) {
	router := bodyLimitRouter(8)

	req := httptest.NewRequest(http.MethodPost, "/evidence/batches/documents", strings.NewReader("0123456789"))
	req.Header.Set(RequestIDHeader, "upload-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "REQUEST_TOO_LARGE")
	assert.Contains(t, w.Body.String(), "upload-42")
}
