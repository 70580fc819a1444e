package model

import "errors"

// ErrorCode is a stable identifier the external HTTP transport maps to a
// status code (spec §7), kept out of string-matching territory.
type ErrorCode string

const (
	ErrCodeInvalidMetric       ErrorCode = "invalid_metric"
	ErrCodeInvalidBatchSize    ErrorCode = "invalid_batch_size"
	ErrCodeBatchSizeExceedsCap ErrorCode = "batch_size_exceeds_cap"
	ErrCodeNoDefaultTestSet    ErrorCode = "no_default_test_set"
	ErrCodeTokenUnknownOrDead  ErrorCode = "token_unknown_or_expired"
	ErrCodeMalformedToken      ErrorCode = "malformed_token"
	ErrCodeSamplesNotFound     ErrorCode = "samples_not_found"
	ErrCodeRanksInvalid        ErrorCode = "ranks_invalid"
	ErrCodeTestSetMismatch     ErrorCode = "test_set_mismatch"
	ErrCodeForbidden           ErrorCode = "forbidden"
)

// DomainError is a typed validation/lifecycle/referential/authorization
// error surfaced by the core subsystem. The HTTP transport (an external
// collaborator boundary per spec §1) maps Code to a status code instead of
// matching on message text.
type DomainError struct {
	Code ErrorCode
	msg  string
}

func (e *DomainError) Error() string { return e.msg }

func newDomainError(code ErrorCode, msg string) *DomainError {
	return &DomainError{Code: code, msg: msg}
}

// Sentinel errors for the core subsystem. Use errors.Is against these, or
// errors.As against *DomainError to recover the Code.
var (
	ErrInvalidMetric       = newDomainError(ErrCodeInvalidMetric, "selector: unknown metric")
	ErrInvalidBatchSize    = newDomainError(ErrCodeInvalidBatchSize, "selector: batch size must be positive")
	ErrBatchSizeExceedsCap = newDomainError(ErrCodeBatchSizeExceedsCap, "selector: batch size exceeds cap")
	ErrNoDefaultTestSet    = newDomainError(ErrCodeNoDefaultTestSet, "selector: no default test set for voter category")
	ErrTokenUnknownOrDead = newDomainError(ErrCodeTokenUnknownOrDead, "vote: token unknown or expired")
	ErrMalformedToken     = newDomainError(ErrCodeMalformedToken, "vote: token payload malformed")
	ErrSamplesNotFound    = newDomainError(ErrCodeSamplesNotFound, "vote: one or both samples no longer exist")
	ErrRanksInvalid       = newDomainError(ErrCodeRanksInvalid, "vote: ranks do not match the token's samples")
	ErrTestSetMismatch    = newDomainError(ErrCodeTestSetMismatch, "vote: samples do not share a test set")
	ErrForbidden          = newDomainError(ErrCodeForbidden, "vote: identity lacks vote permission")
)

// CodeOf extracts the ErrorCode from err if it is (or wraps) a *DomainError.
func CodeOf(err error) (ErrorCode, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}
