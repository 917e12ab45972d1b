package common

import (
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodeOf(t *testing.T) {
	cause := fmt.Errorf("boom")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrNotFound("snapshot"), http.StatusNotFound},
		{"validation", ErrValidationFailed("confidence"), http.StatusBadRequest},
		{"out of range", NewAppError(ErrCodeOutOfRange, "limit"), http.StatusBadRequest},
		{"corrupt snapshot", ErrCorruptSnapshot(cause), http.StatusBadRequest},
		{"insufficient data", ErrInsufficientData(4, 10), http.StatusUnprocessableEntity},
		{"timeout", NewAppError(ErrCodeTimeout, "batch"), http.StatusRequestTimeout},
		{"unavailable", NewAppError(ErrCodeServiceUnavailable, "redis"), http.StatusServiceUnavailable},
		{"external", ErrExternalService("kafka", cause), http.StatusServiceUnavailable},
		{"database query", ErrDatabaseQuery("find", cause), http.StatusInternalServerError},
		{"plain error", cause, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCodeOf(tt.err))
		})
	}
}

func TestWrapError_PreservesAppError(t *testing.T) {
	original := ErrInsufficientData(3, 10)
	wrapped := pkgerrors.Wrap(original, "retrain")

	assert.True(t, HasErrorCode(wrapped, ErrCodeInsufficientData))
	assert.Same(t, original, WrapError(wrapped, ErrCodeInternal, "ignored"))
	assert.Nil(t, WrapError(nil, ErrCodeInternal, "nothing"))

	cause := fmt.Errorf("dial tcp: refused")
	appErr := WrapError(cause, ErrCodeDatabaseConnection, "mongodb")
	require.NotNil(t, appErr)
	assert.ErrorIs(t, appErr, cause)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.StatusCode)
	assert.Equal(t, "INSUFFICIENT_DATA: insufficient training data (have 3 samples, need at least 10)", original.Error())
}
