// Package domainerrors defines coded errors for ledger business failures.
// Callers branch on the code, never on message text. Infrastructure facts
// (record missing, backend down) use pkg/platform/sentinel instead; services
// translate sentinels into these codes at the boundary.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain failure.
type Code string

const (
	// Accounting failures.
	CodeInsufficientBalance               Code = "insufficient_balance"
	CodeInsufficientDefaultTrancheBalance Code = "insufficient_default_tranche_balance"
	CodeInvalidAmount                     Code = "invalid_amount"

	// Authorization failures.
	CodeNotAuthorized       Code = "not_authorized"
	CodeForbiddenRevocation Code = "forbidden_revocation"

	// Issuance lifecycle.
	CodeIssuanceFinalized Code = "issuance_finalized"
	CodeAlreadyFinalized  Code = "already_finalized"

	// Transfer restrictions surfaced by validation.
	CodeSenderNotEligible    Code = "sender_not_eligible"
	CodeReceiverNotEligible  Code = "receiver_not_eligible"
	CodeIdentityRestriction  Code = "identity_restriction"
	CodeTokenRestriction     Code = "token_restriction"
	CodeLockupNotEnded       Code = "lockup_not_ended"
	CodeGranularityViolation Code = "granularity_violation"

	// Transport-facing codes.
	CodeBadRequest Code = "bad_request"
	CodeNotFound   Code = "not_found"
	CodeInternal   Code = "internal"
)

// LedgerError is a domain error with a programmatically checkable code.
type LedgerError struct {
	Code    Code
	Message string
	cause   error
}

// New builds a LedgerError with the given code and message.
func New(code Code, message string) *LedgerError {
	return &LedgerError{Code: code, Message: message}
}

// Wrap builds a LedgerError that preserves the underlying cause for
// errors.Is/As chains.
func Wrap(code Code, message string, cause error) *LedgerError {
	return &LedgerError{Code: code, Message: message, cause: cause}
}

func (e *LedgerError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error {
	return e.cause
}

// Is matches two LedgerErrors by code, so errors.Is(err, New(code, ""))
// works regardless of message.
func (e *LedgerError) Is(target error) bool {
	var le *LedgerError
	if errors.As(target, &le) {
		return e.Code == le.Code
	}
	return false
}

// CodeOf extracts the domain code from an error chain, or CodeInternal when
// the chain carries none.
func CodeOf(err error) Code {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code
	}
	return CodeInternal
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// ToHTTPStatus maps a domain code to an HTTP status for transport handlers.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidAmount, CodeGranularityViolation:
		return http.StatusBadRequest
	case CodeNotAuthorized:
		return http.StatusForbidden
	case CodeForbiddenRevocation:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInsufficientBalance, CodeInsufficientDefaultTrancheBalance:
		return http.StatusUnprocessableEntity
	case CodeIssuanceFinalized, CodeAlreadyFinalized:
		return http.StatusConflict
	case CodeSenderNotEligible, CodeReceiverNotEligible, CodeIdentityRestriction,
		CodeTokenRestriction, CodeLockupNotEnded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
