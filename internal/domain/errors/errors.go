package errors

import (
	"fmt"
	"net/http"
)

// AppError is a custom error type for application errors
type AppError struct {
	Code       string
	Message    string
	StatusCode int // Same rule as HTTP status codes
	Err        error
	Details    map[string]interface{}
}

// Sentinels for errors.Is. Matching is by Code only.
var (
	ErrValidation        = AppError{Code: CodeValidation}
	ErrNotFound          = AppError{Code: CodeNotFound}
	ErrConflict          = AppError{Code: CodeConflict}
	ErrInternal          = AppError{Code: CodeInternal}
	ErrParse             = AppError{Code: CodeParse}
	ErrGateway           = AppError{Code: CodeGateway}
	ErrAmountDivergence  = AppError{Code: CodeAmountDivergence}
	ErrAggregateMismatch = AppError{Code: CodeAggregateMismatch}
	ErrCommit            = AppError{Code: CodeCommit}
	ErrAssistedMatch     = AppError{Code: CodeAssistedMatch}
	ErrSourceUnavailable = AppError{Code: CodeSourceUnavailable}
	ErrInvalidState      = AppError{Code: CodeInvalidState}
	ErrTenant            = AppError{Code: CodeTenant}
)

const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL_ERROR"
	CodeTenant            = "TENANT_ERROR"
	CodeParse             = "PARSE_ERROR"
	CodeGateway           = "GATEWAY_ERROR"
	CodeAmountDivergence  = "AMOUNT_DIVERGENCE"
	CodeAggregateMismatch = "AGGREGATE_MISMATCH"
	CodeCommit            = "COMMIT_ERROR"
	CodeAssistedMatch     = "ASSISTED_MATCH_ERROR"
	CodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	CodeInvalidState      = "INVALID_STATE"
)

// Error returns a string representation of the error
func (e AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is implements the errors.Is interface
func (e AppError) Is(target error) bool {
	if target, ok := target.(AppError); ok {
		return target.Code == e.Code
	}
	return false
}

// Unwrap returns the underlying error
func (e AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error
func (e AppError) WithDetails(details map[string]interface{}) AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error
func (e AppError) WithDetail(key string, value interface{}) AppError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	e.Details = details
	return e
}

// Retryable reports whether the caller may safely repeat the failed operation.
func (e AppError) Retryable() bool {
	switch e.Code {
	case CodeCommit, CodeGateway, CodeAssistedMatch:
		return true
	}
	return false
}

// NewValidationError creates a new validation error
func NewValidationError(message string) AppError {
	return AppError{
		Code:       CodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewInvalidInputError creates a new invalid input error
func NewInvalidInputError(message string, err error) AppError {
	return AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) AppError {
	return AppError{
		Code:       CodeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) AppError {
	return AppError{
		Code:       CodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) AppError {
	return AppError{
		Code:       CodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewTenantError creates a new tenant-related error
func NewTenantError(message string) AppError {
	return AppError{
		Code:       CodeTenant,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewParseError is returned when a statement cannot be read or yields no transactions.
func NewParseError(message string, err error) AppError {
	return AppError{
		Code:       CodeParse,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

// NewGatewayError wraps a failed ledger fetch.
func NewGatewayError(message string, err error) AppError {
	return AppError{
		Code:       CodeGateway,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

// NewAmountDivergenceError blocks a manual pair whose amounts differ until the operator accepts it.
func NewAmountDivergenceError(message string) AppError {
	return AppError{
		Code:       CodeAmountDivergence,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewAggregateMismatchError blocks an aggregate pairing whose sum does not reach the statement amount.
func NewAggregateMismatchError(message string) AppError {
	return AppError{
		Code:       CodeAggregateMismatch,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewCommitError reports a failed confirmation step. Partial application is possible.
func NewCommitError(message string, err error) AppError {
	return AppError{
		Code:       CodeCommit,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewAssistedMatchError wraps a failure of the external matching collaborator.
func NewAssistedMatchError(message string, err error) AppError {
	return AppError{
		Code:       CodeAssistedMatch,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

// NewSourceUnavailableError is returned when the raw statement is gone before confirmation.
func NewSourceUnavailableError(message string) AppError {
	return AppError{
		Code:       CodeSourceUnavailable,
		Message:    message,
		StatusCode: http.StatusPreconditionFailed,
	}
}

// NewInvalidStateError is returned when an operation does not apply to the session's current state.
func NewInvalidStateError(message string) AppError {
	return AppError{
		Code:       CodeInvalidState,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}
