package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers MUST use these instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationTitle          ErrorCode = "validation_invalid_title"
	ErrCodeValidationMessage        ErrorCode = "validation_invalid_message"
	ErrCodeValidationAlertType      ErrorCode = "validation_invalid_alert_type"
	ErrCodeValidationPriority       ErrorCode = "validation_invalid_priority"
	ErrCodeValidationRecipients     ErrorCode = "validation_invalid_recipients"
	ErrCodeValidationChannel        ErrorCode = "validation_invalid_channel"
	ErrCodeValidationRule           ErrorCode = "validation_invalid_weather_rule"
	ErrCodeValidationInvalidLat     ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon     ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationPhone          ErrorCode = "validation_invalid_phone_number"
	ErrCodeValidationRole           ErrorCode = "validation_invalid_role"
	ErrCodeValidationQuestion       ErrorCode = "validation_invalid_question"
	ErrCodeValidationAnswer         ErrorCode = "validation_invalid_answer"
	ErrCodeValidationRequestBody    ErrorCode = "validation_invalid_request_body"
	ErrCodeValidationInvalidID      ErrorCode = "validation_invalid_id"
	ErrCodeValidationSelfDemotion   ErrorCode = "validation_self_role_change"
	ErrCodeValidationEventType      ErrorCode = "validation_invalid_event_type"
	ErrCodeValidationPageSize       ErrorCode = "validation_invalid_page_size"

	// Auth (401)
	ErrCodeAuthRequired     ErrorCode = "auth_required"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"
	ErrCodeAuthTokenExpired ErrorCode = "auth_token_expired"

	// Permission (403)
	ErrCodePermissionRole ErrorCode = "permission_role_insufficient"

	// Limits (429)
	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundAlert     ErrorCode = "not_found_alert"
	ErrCodeNotFoundUser      ErrorCode = "not_found_user"
	ErrCodeNotFoundRule      ErrorCode = "not_found_weather_rule"
	ErrCodeNotFoundQuestion  ErrorCode = "not_found_question"
	ErrCodeNotFoundRecipient ErrorCode = "not_found_recipient"

	// Conflict (409)
	ErrCodeConflictDuplicate ErrorCode = "conflict_duplicate"

	// Partial fan-out: the alert committed but only some recipients did.
	// Never returned to HTTP callers; used for diagnostics.
	ErrCodePartialFanout ErrorCode = "partial_fanout"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamWeather     ErrorCode = "upstream_weather_unavailable"
	ErrCodeUpstreamDelivery    ErrorCode = "upstream_delivery_unavailable"
	ErrCodeUpstreamQueue       ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamStorage     ErrorCode = "upstream_storage_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"

	// ErrCodeDeliveryRejected marks a provider refusal that retrying cannot
	// fix (invalid number, suppressed address, unregistered device).
	ErrCodeDeliveryRejected ErrorCode = "upstream_delivery_rejected"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden
	case s == string(ErrCodeRateLimit):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Domain and handler errors
// are expressed as AppError so the API layer can format them consistently.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
