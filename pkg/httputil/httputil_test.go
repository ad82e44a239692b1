package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/prakyath/spree-commerse/pkg/errors"
	"github.com/prakyath/spree-commerse/pkg/logger"
	"github.com/prakyath/spree-commerse/pkg/validator"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

type stubFieldErrors struct{ fields map[string]string }

func (e stubFieldErrors) Error() string             { return "quantity: selected quantity not available" }
func (e stubFieldErrors) Fields() map[string]string { return e.fields }
func (e stubFieldErrors) Unwrap() error             { return apperrors.ErrUnprocessable }

// --- WriteJSON ---

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, Response{Data: map[string]string{"id": "li-1"}})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"li-1"}}`, rec.Body.String())
}

// --- WriteError ---

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"app error", apperrors.NotFound("line item", "li-1"), http.StatusNotFound, "NOT_FOUND"},
		{"wrapped not found", fmt.Errorf("get: %w", apperrors.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"invalid input", apperrors.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
		{"conflict", apperrors.ErrConflict, http.StatusConflict, "CONFLICT"},
		{"unavailable", fmt.Errorf("stock: %w", apperrors.ErrServiceUnavail), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, testLogger(&bytes.Buffer{}))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode(t, rec).Error.Code)
		})
	}
}

func TestWriteError_FieldErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	err := stubFieldErrors{fields: map[string]string{"quantity": "selected quantity not available"}}

	WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err, testLogger(&bytes.Buffer{}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "UNPROCESSABLE", resp.Error.Code)
	assert.Equal(t, "selected quantity not available", resp.Error.Fields["quantity"])
}

func TestWriteError_RequestValidation(t *testing.T) {
	type body struct {
		VariantID string `json:"variant_id" validate:"required"`
	}
	valErr := validator.Validate(body{})
	require.Error(t, valErr)

	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), valErr, testLogger(&bytes.Buffer{}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "is required", decode(t, rec).Error.Fields["variant_id"])
}

func TestWriteError_LogsInternalErrors(t *testing.T) {
	var buf bytes.Buffer
	rec := httptest.NewRecorder()

	WriteError(rec, httptest.NewRequest(http.MethodGet, "/api/v1/line_items/x", nil), errors.New("db down"), testLogger(&buf))

	assert.Contains(t, buf.String(), "db down")
	assert.Contains(t, buf.String(), "/api/v1/line_items/x")
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "req-42")
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	WriteError(rec, req, apperrors.NotFound("line item", "1"), testLogger(&bytes.Buffer{}))

	assert.Equal(t, "req-42", decode(t, rec).Error.RequestID)
}

// --- WriteValidationError ---

func TestWriteValidationError_DecodeError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteValidationError(rec, errors.New("decode request body: unexpected EOF"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, rec).Error.Code)
}

// --- ParseUUID ---

func TestParseUUID(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := ParseUUID(rec, "550e8400-e29b-41d4-a716-446655440000")
	assert.True(t, ok)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", id.String())

	rec = httptest.NewRecorder()
	_, ok = ParseUUID(rec, "nope")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", decode(t, rec).Error.Code)
}
