package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type altaInput struct {
	Series    string `json:"series" binding:"required,max=10"`
	IssueDate string `json:"issue_date" binding:"required,datetime=2006-01-02"`
	Kind      string `json:"kind" binding:"omitempty,oneof=F1 F2 R1"`
}

func validationRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req altaInput
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func postJSON(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupValidator(t *testing.T) {
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestHandleValidationError(t *testing.T) {
	router := validationRouter()

	t.Run("reports each failing field by json name", func(t *testing.T) {
		w := postJSON(router, `{"series":"ABCDEFGHIJKL","issue_date":"03/01/2024","kind":"X9"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.Equal(t, w.Header().Get(RequestIDHeader), resp.Error.RequestID)

		messages := map[string]string{}
		for _, d := range resp.Error.Details {
			messages[d.Field] = d.Message
		}
		assert.Equal(t, "Must be at most 10 characters", messages["series"])
		assert.Equal(t, "Must be a date in the format 2006-01-02", messages["issue_date"])
		assert.Equal(t, "Must be one of: F1 F2 R1", messages["kind"])
	})

	t.Run("required field", func(t *testing.T) {
		w := postJSON(router, `{}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "This field is required")
	})

	t.Run("malformed json has no details", func(t *testing.T) {
		w := postJSON(router, `{"series":`)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Empty(t, resp.Error.Details)
	})

	t.Run("valid input passes", func(t *testing.T) {
		w := postJSON(router, `{"series":"FAC","issue_date":"2024-03-01","kind":"F1"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
