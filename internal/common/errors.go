package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Stable machine-readable error codes surfaced to the client.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeDuplicateAccount = "DUPLICATE_ACCOUNT_NUMBER"
	CodeDuplicateRef     = "DUPLICATE_TRANSACTION_REFERENCE"
	CodeLockTimeout      = "ACCOUNT_LOCK_TIMEOUT"
	CodeSignatureMissing = "SIGNATURE_REQUIRED"
	CodeSignatureFormat  = "INVALID_SIGNATURE_FORMAT"
	CodeSignatureSave    = "SIGNATURE_SAVE_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternal         = "INTERNAL_ERROR"
)

// AppError carries a stable code, one or more human-readable messages and an
// optional cause. Messages keeps the full validation error list so the
// operator can fix everything in one round trip.
type AppError struct {
	Code     string
	Messages []string
	Cause    error
}

func (e *AppError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError builds an AppError with a single message.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Messages: []string{message}, Cause: cause}
}

// ValidationError wraps the collected rule violations.
func ValidationError(messages []string) *AppError {
	return &AppError{Code: CodeValidation, Messages: messages}
}

// AsAppError unwraps err to an *AppError if one is in the chain.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HTTPStatus maps an error code to the response status.
func HTTPStatus(code string) int {
	switch code {
	case CodeValidation, CodeSignatureMissing, CodeSignatureFormat:
		return http.StatusBadRequest
	case CodeDuplicateAccount, CodeDuplicateRef:
		return http.StatusConflict
	case CodeLockTimeout:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
