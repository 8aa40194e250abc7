package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrUserContextRequired, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrCustomerNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", service.ErrApprovalPending), http.StatusConflict},
		{&domain.StageBlockedError{Stage: "Offer", IncompleteTasks: []string{"Sign"}}, http.StatusUnprocessableEntity},
		{domain.ErrEmptyPipeline, http.StatusBadRequest},
		{fmt.Errorf("db is gone"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestRespondServiceError(t *testing.T) {
	t.Run("blocked stage lists open tasks", func(t *testing.T) {
		w := httptest.NewRecorder()
		respondServiceError(w, zap.NewNop(), &domain.StageBlockedError{
			Stage:           "Offer",
			IncompleteTasks: []string{"Measure roof", "Send offer"},
		}, "advance stage")

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

		var body domain.APIError
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, []string{"Measure roof", "Send offer"}, body.Blocking)
	})

	t.Run("internal errors are hidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		respondServiceError(w, zap.NewNop(), fmt.Errorf("pq: connection refused"), "list customers")

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body domain.APIError
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "Failed to list customers", body.Detail)
		assert.NotContains(t, w.Body.String(), "pq:")
	})
}

func TestDecodeJSON(t *testing.T) {
	t.Run("validation errors are keyed by json field", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope"}`))
		var req domain.CreateCustomerRequest

		assert.False(t, decodeJSON(w, r, &req))
		require.Equal(t, http.StatusBadRequest, w.Code)

		var body domain.APIError
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Contains(t, body.Errors, "name")
		assert.Contains(t, body.Errors, "email")
	})

	t.Run("malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		var req domain.CreateCustomerRequest
		assert.False(t, decodeJSON(w, r, &req))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPagination(t *testing.T) {
	page, size := pagination(httptest.NewRequest(http.MethodGet, "/?page=3&pageSize=50", nil))
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, size)

	// unparsable values fall through as zero for the service to default
	page, size = pagination(httptest.NewRequest(http.MethodGet, "/?page=x", nil))
	assert.Zero(t, page)
	assert.Zero(t, size)
}
