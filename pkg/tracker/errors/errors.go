// Package errors defines the application error taxonomy shared by the
// tracker pipeline. Every pipeline failure is an AppError with a stable
// code so callers can decide between retrying, rejecting, and logging.
package errors

import (
	"errors"
	"fmt"
)

// AppError represents an application-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	// HTTPStatus carries the collector response status for delivery
	// failures; zero when the failure never reached the collector.
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewDelivery creates a delivery error that records the collector's HTTP
// status. status is zero for transport-level failures.
func NewDelivery(status int, message string, cause error) *AppError {
	return &AppError{
		Code:       ErrCodeDelivery,
		Message:    message,
		HTTPStatus: status,
		Cause:      cause,
	}
}

// Code extracts the application error code, or empty for foreign errors.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsConfiguration reports whether err is a configuration error. Configuration
// errors are never retried.
func IsConfiguration(err error) bool {
	return Code(err) == ErrCodeConfiguration
}

// IsRetryable reports whether err should go through the retry queue.
// Delivery and detection failures are retryable; everything else is not.
func IsRetryable(err error) bool {
	switch Code(err) {
	case ErrCodeDelivery, ErrCodeDetection:
		return true
	}
	return false
}

// DeliveryStatus digs the underlying delivery failure out of err and
// returns its HTTP status. ok is false when no delivery error is in the
// chain; status zero with ok true means the collector was never reached.
func DeliveryStatus(err error) (status int, ok bool) {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return 0, false
		}
		if appErr.Code == ErrCodeDelivery {
			return appErr.HTTPStatus, true
		}
		err = appErr.Cause
	}
	return 0, false
}

// Error codes
const (
	ErrCodeConfiguration  = "CONFIGURATION_INVALID"
	ErrCodeDelivery       = "DELIVERY_FAILED"
	ErrCodeDetection      = "DETECTION_FAILED"
	ErrCodeStorage        = "STORAGE_FAILED"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeSessionMissing = "SESSION_NOT_FOUND"
)
