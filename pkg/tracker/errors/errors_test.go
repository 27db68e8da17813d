package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeConfiguration, "user id missing", nil)

	assert.NotNil(t, err)
	assert.Equal(t, ErrCodeConfiguration, err.Code)
	assert.Equal(t, "user id missing", err.Message)
	assert.Nil(t, err.Cause)
}

func TestAppError_Error_WithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := New(ErrCodeDelivery, "event post failed", cause)

	errorString := err.Error()
	assert.Contains(t, errorString, ErrCodeDelivery)
	assert.Contains(t, errorString, "event post failed")
	assert.Contains(t, errorString, "connection refused")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := New(ErrCodeDelivery, "event post failed", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestNewDelivery_CarriesStatus(t *testing.T) {
	err := NewDelivery(503, "collector unavailable", nil)

	assert.Equal(t, ErrCodeDelivery, err.Code)
	assert.Equal(t, 503, err.HTTPStatus)
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"app error", New(ErrCodeDetection, "detect failed", nil), ErrCodeDetection},
		{"wrapped app error", fmt.Errorf("outer: %w", New(ErrCodeDelivery, "post failed", nil)), ErrCodeDelivery},
		{"foreign error", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeDelivery, "post failed", nil)))
	assert.True(t, IsRetryable(New(ErrCodeDetection, "detect failed", nil)))
	assert.False(t, IsRetryable(New(ErrCodeConfiguration, "user id missing", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestDeliveryStatus(t *testing.T) {
	status, ok := DeliveryStatus(NewDelivery(503, "unavailable", nil))
	assert.True(t, ok)
	assert.Equal(t, 503, status)

	// A detection failure caused by a transport error still reports the
	// delivery layer's status.
	wrapped := New(ErrCodeDetection, "detect failed", NewDelivery(0, "refused", nil))
	status, ok = DeliveryStatus(wrapped)
	assert.True(t, ok)
	assert.Equal(t, 0, status)

	_, ok = DeliveryStatus(New(ErrCodeConfiguration, "user id missing", nil))
	assert.False(t, ok)

	_, ok = DeliveryStatus(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsConfiguration(t *testing.T) {
	assert.True(t, IsConfiguration(New(ErrCodeConfiguration, "user id missing", nil)))
	assert.False(t, IsConfiguration(New(ErrCodeDelivery, "post failed", nil)))
}
