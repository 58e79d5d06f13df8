package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Stable machine-readable failure codes returned to callers.
const (
	CodeInvalidInput = "INVALID_INPUT"

	// Authentication failures
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInvalidKey         = "INVALID_KEY"
	CodeRevokedKey         = "REVOKED_KEY"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenMalformed     = "TOKEN_MALFORMED"
	CodeBadSignature       = "BAD_SIGNATURE"

	// OAuth flow failures
	CodeUnknownProvider        = "UNKNOWN_PROVIDER"
	CodeProviderInactive       = "PROVIDER_INACTIVE"
	CodeInvalidState           = "INVALID_STATE"
	CodeStateExpired           = "STATE_EXPIRED"
	CodeStateReused            = "STATE_REUSED"
	CodeProviderExchangeFailed = "PROVIDER_EXCHANGE_FAILED"
	CodeRefreshFailed          = "REFRESH_FAILED"

	// Authorization failures
	CodeConnectionRequired      = "CONNECTION_REQUIRED"
	CodeAmbiguousConnection     = "AMBIGUOUS_CONNECTION"
	CodeForbidden               = "FORBIDDEN"
	CodeReauthorizationRequired = "REAUTHORIZATION_REQUIRED"

	// Conflicts
	CodeDuplicateEmail   = "DUPLICATE_EMAIL"
	CodeWeakPassword     = "WEAK_PASSWORD"
	CodeKeyLimitExceeded = "KEY_LIMIT_EXCEEDED"
	CodeConflict         = "CONFLICT"

	CodeNotFound = "NOT_FOUND"
	CodeInternal = "INTERNAL_ERROR"
)

// Error is a typed failure carried from the core services to the transport
// layer. Code is stable; Message is for humans.
type Error struct {
	Code       string
	Message    string
	HTTPStatus int
	RetryAfter int // seconds, only set for RATE_LIMITED
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches typed errors by code so errors.Is works with sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func New(code string, status int, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status}
}

func Wrap(code string, status int, message string, err error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", HTTPStatus: http.StatusInternalServerError, Err: err}
}

// CodeOf extracts the stable code from any error; unknown errors map to
// INTERNAL_ERROR so raw fault text never leaks past the core.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
	TraceID string `json:"trace_id,omitempty"`
}

// WriteError renders a typed failure as the standard JSON error body.
// Internal errors are masked; their detail stays in the logs.
func WriteError(w http.ResponseWriter, traceID string, err error) {
	status := StatusOf(err)
	code := CodeOf(err)

	message := "internal error"
	var e *Error
	if errors.As(err, &e) && e.Code != CodeInternal {
		message = e.Message
		if e.RetryAfter > 0 {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", e.RetryAfter))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		TraceID: traceID,
	})
}
