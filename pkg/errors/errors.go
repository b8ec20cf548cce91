// Package errors provides structured error handling for the snail market
// service. It defines the stable error taxonomy the API exposes, plus helpers
// for adding context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
)

// MarketError is the structured error type for the service. Every failure
// that crosses a package boundary is one of these; the Code is stable and is
// what clients should dispatch on.
type MarketError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for the caller
	Cause      error             // Underlying error
	HTTPStatus int               // HTTP status the API layer maps this to
}

func (e *MarketError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *MarketError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for MarketError.
func (e *MarketError) Is(target error) bool {
	var t *MarketError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors. These form the stable taxonomy: request validation,
// chain read failures, and the terminal outcomes of the write path.
var (
	ErrInvalidRequest = &MarketError{
		Code:       "INVALID_REQUEST",
		Message:    "invalid request",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrItemNotFound = &MarketError{
		Code:       "ITEM_NOT_FOUND",
		Message:    "snail not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInvalidAmount = &MarketError{
		Code:       "INVALID_AMOUNT",
		Message:    "invalid amount format",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidAddress = &MarketError{
		Code:       "INVALID_ADDRESS",
		Message:    "invalid Ethereum address format",
		HTTPStatus: http.StatusBadRequest,
	}

	// Write-path terminal failures.
	ErrGasEstimationFailed = &MarketError{
		Code:       "GAS_ESTIMATION_FAILED",
		Message:    "gas estimation failed - the call would revert on-chain",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrSubmissionRejected = &MarketError{
		Code:       "SUBMISSION_REJECTED",
		Message:    "transaction rejected by the node at admission",
		HTTPStatus: http.StatusConflict,
	}

	ErrExecutionReverted = &MarketError{
		Code:       "EXECUTION_REVERTED",
		Message:    "transaction was included but reverted on-chain",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrConfirmationTimeout = &MarketError{
		Code:       "CONFIRMATION_TIMEOUT",
		Message:    "transaction not confirmed within the timeout - it may still be mined",
		HTTPStatus: http.StatusGatewayTimeout,
	}

	// Node and protocol failures.
	ErrUpstreamRead = &MarketError{
		Code:       "UPSTREAM_READ_ERROR",
		Message:    "malformed or inconsistent response from the chain",
		HTTPStatus: http.StatusBadGateway,
	}

	ErrNodeUnavailable = &MarketError{
		Code:       "NODE_UNAVAILABLE",
		Message:    "blockchain node is unreachable",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	// Configuration and credential errors (startup-time, never client-facing).
	ErrConfigInvalid = &MarketError{
		Code:       "CONFIG_INVALID",
		Message:    "configuration is invalid",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrCredentialNotFound = &MarketError{
		Code:       "CREDENTIAL_NOT_FOUND",
		Message:    "signing credential not configured",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrDecryptionFailed = &MarketError{
		Code:       "DECRYPTION_FAILED",
		Message:    "key file decryption failed - wrong passphrase or corrupted file",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrInvalidMnemonic = &MarketError{
		Code:       "INVALID_MNEMONIC",
		Message:    "invalid mnemonic phrase",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrArtifactInvalid = &MarketError{
		Code:       "ARTIFACT_INVALID",
		Message:    "contract build artifact is invalid",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// New creates a new MarketError with the given code and message.
func New(code, message string) *MarketError {
	return &MarketError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context. The taxonomy code of a wrapped
// MarketError is preserved so classification survives wrapping.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var me *MarketError
	if errors.As(err, &me) {
		return &MarketError{
			Code:       me.Code,
			Message:    fmt.Sprintf("%s: %s", msg, me.Message),
			Details:    me.Details,
			Suggestion: me.Suggestion,
			Cause:      err,
			HTTPStatus: me.HTTPStatus,
		}
	}

	return &MarketError{
		Code:       "GENERAL_ERROR",
		Message:    msg,
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var me *MarketError
	if errors.As(err, &me) {
		return &MarketError{
			Code:       me.Code,
			Message:    me.Message,
			Details:    details,
			Suggestion: me.Suggestion,
			Cause:      me.Cause,
			HTTPStatus: me.HTTPStatus,
		}
	}

	return &MarketError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Details:    details,
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var me *MarketError
	if errors.As(err, &me) {
		return &MarketError{
			Code:       me.Code,
			Message:    me.Message,
			Details:    me.Details,
			Suggestion: suggestion,
			Cause:      me.Cause,
			HTTPStatus: me.HTTPStatus,
		}
	}

	return &MarketError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// WithCause attaches an underlying error to a sentinel without losing the
// sentinel's code. Used to preserve node error text for diagnostics.
func WithCause(err *MarketError, cause error) error {
	if cause == nil {
		return err
	}
	return &MarketError{
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
		Suggestion: err.Suggestion,
		Cause:      cause,
		HTTPStatus: err.HTTPStatus,
	}
}

// HTTPStatus returns the HTTP status code for an error.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var me *MarketError
	if errors.As(err, &me) {
		return me.HTTPStatus
	}

	return http.StatusInternalServerError
}

// Code returns the stable taxonomy code for an error, or GENERAL_ERROR for
// errors that never got classified.
func Code(err error) string {
	if err == nil {
		return ""
	}

	var me *MarketError
	if errors.As(err, &me) {
		return me.Code
	}

	return "GENERAL_ERROR"
}
