package dto

import "net/http"

// Error codes returned in ErrorInfo.Code. Domain errors keep the code they
// were raised with, so the table below lists the domain codes verbatim.

// General error codes
const (
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeTooLarge   = "REQUEST_TOO_LARGE"
	ErrCodeTimeout    = "REQUEST_TIMEOUT"
)

// Domain error codes
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeInvalidState       = "INVALID_STATE"
	ErrCodeInvalidSeries      = "INVALID_SERIES"
	ErrCodeIssuerMismatch     = "ISSUER_MISMATCH"
	ErrCodeSeriesInUse        = "SERIES_IN_USE"
	ErrCodeEncoding           = "ENCODING_ERROR"
	ErrCodeAllocation         = "ALLOCATION_FAILED"
	ErrCodeChainConflict      = "CHAIN_CONFLICT"
	ErrCodeSigningTimeout     = "SIGNING_TIMEOUT"
	ErrCodeSigningUpstream    = "SIGNING_UPSTREAM"
	ErrCodeBatchSealed        = "BATCH_SEALED"
	ErrCodeEmptyBatch         = "EMPTY_BATCH"
	ErrCodeBatchChanged       = "BATCH_CHANGED"
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
	ErrCodeIdempotencyPending = "IDEMPOTENCY_PENDING"
	ErrCodeIdempotencyStore   = "IDEMPOTENCY_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeValidation: http.StatusBadRequest,
	ErrCodeTooLarge:   http.StatusRequestEntityTooLarge,
	ErrCodeTimeout:    http.StatusGatewayTimeout,

	// Input errors -> 400 Bad Request
	ErrCodeInvalidInput:   http.StatusBadRequest,
	ErrCodeInvalidSeries:  http.StatusBadRequest,
	ErrCodeEncoding:       http.StatusBadRequest,
	ErrCodeIssuerMismatch: http.StatusUnprocessableEntity,

	ErrCodeNotFound: http.StatusNotFound,

	// State errors -> 409 or 422
	ErrCodeChainConflict:      http.StatusConflict,
	ErrCodeBatchChanged:       http.StatusConflict,
	ErrCodeSeriesInUse:        http.StatusConflict,
	ErrCodeIdempotencyPending: http.StatusConflict,
	ErrCodeInvalidState:       http.StatusUnprocessableEntity,
	ErrCodeBatchSealed:        http.StatusUnprocessableEntity,
	ErrCodeEmptyBatch:         http.StatusUnprocessableEntity,

	// Dependency errors
	ErrCodeAllocation:       http.StatusServiceUnavailable,
	ErrCodeIdempotencyStore: http.StatusServiceUnavailable,
	ErrCodeSigningTimeout:   http.StatusGatewayTimeout,
	ErrCodeSigningUpstream:  http.StatusBadGateway,
	ErrCodeConfiguration:    http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
