package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewValidationError flags a malformed inbound payload. Not retried.
func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

// NewTranslationError flags an unexpected shape inside a recognized content
// type. Carries the original message id and type; not retried automatically.
func NewTranslationError(messageID, messageType string, err error) error {
	return &DomainError{
		Code:       "TRANSLATION_FAILED",
		Message:    fmt.Sprintf("failed to translate message %s (type %s)", messageID, messageType),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"message_id": messageID, "message_type": messageType},
		Err:        err,
	}
}

// NewPlatformRejected flags a platform call the platform refused with a
// permanent client error. Re-sending the same payload cannot succeed, so the
// job is not retried.
func NewPlatformRejected(operation string, status int, err error) error {
	return &DomainError{
		Code:       "PLATFORM_REJECTED",
		Message:    fmt.Sprintf("platform rejected %s", operation),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"operation": operation, "status": status},
		Err:        err,
	}
}

// NewPlatformUnavailable flags a platform call that failed after retries.
func NewPlatformUnavailable(operation string, err error) error {
	return &DomainError{
		Code:       "PLATFORM_UNAVAILABLE",
		Message:    fmt.Sprintf("platform call %s failed", operation),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"operation": operation},
		Err:        err,
	}
}

// NewCacheUnavailable flags a cache store failure. Never fatal; callers
// degrade to a cache miss.
func NewCacheUnavailable(err error) error {
	return &DomainError{
		Code:       "CACHE_UNAVAILABLE",
		Message:    "identity cache unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsRetryable reports whether a job failing with err should be requeued.
// Validation and translation failures are data problems, and platform
// rejections are permanent; none of them are transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if HasCode(err, "VALIDATION_FAILED") || HasCode(err, "TRANSLATION_FAILED") ||
		HasCode(err, "PLATFORM_REJECTED") {
		return false
	}
	return true
}

// IsCacheUnavailable reports whether err is a cache store failure.
func IsCacheUnavailable(err error) bool {
	return HasCode(err, "CACHE_UNAVAILABLE")
}
