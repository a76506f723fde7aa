package httputil

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	return c, w
}

func TestRespondWithErrorMapsStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unauthorized", errors.Unauthorized("", nil), http.StatusUnauthorized},
		{"forbidden", errors.Forbidden("", nil), http.StatusForbidden},
		{"not found", errors.NotFound("appointment", nil), http.StatusNotFound},
		{"conflict", errors.Conflict("slot taken", nil), http.StatusConflict},
		{"bad request", errors.BadRequest("bad", nil), http.StatusBadRequest},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newContext()
			RespondWithError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.status, resp.Error.Code)
		})
	}
}

func TestRespondWithErrorHidesInternalText(t *testing.T) {
	c, w := newContext()
	RespondWithError(c, stderrors.New("pq: connection refused"))
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestRespondWithPagination(t *testing.T) {
	c, w := newContext()
	RespondWithPagination(c, []int{1, 2}, 2, 20, 41)

	var resp struct {
		Data PaginatedResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Data.Pagination.TotalPage)
	assert.Equal(t, 41, resp.Data.Pagination.Total)
}
