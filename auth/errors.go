package auth

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a machine-readable rejection code, stable across the API boundary.
type Code string

const (
	CodeInputInvalid       Code = "INPUT_INVALID"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeEmailNotVerified   Code = "EMAIL_NOT_VERIFIED"
	CodeTwoFactorRequired  Code = "2FA_REQUIRED"
	CodeInvalidTwoFactor   Code = "INVALID_2FA_CODE"
	CodeUnauthorizedAccess Code = "UNAUTHORIZED_ACCESS"
	CodeTenantNotFound     Code = "TENANT_NOT_FOUND"
	CodeTenantInactive     Code = "TENANT_INACTIVE"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeNoContextSwitch    Code = "NO_CONTEXT_SWITCH"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Internal audit reasons. These never leave the server: credential rejections
// share the single external CodeInvalidCredentials so responses don't reveal
// whether an account exists.
const (
	reasonUserNotFound    = "USER_NOT_FOUND"
	reasonUserInactive    = "USER_INACTIVE"
	reasonInvalidPassword = "INVALID_PASSWORD"
	reasonNoPasswordSet   = "NO_PASSWORD_SET"
	reasonCodeNoRecord    = "NO_RECORD"
	reasonCodeMismatch    = "MISMATCH"
	reasonCodeAlreadyUsed = "ALREADY_USED"
)

// RejectionError is a deliberate, audited refusal of an operation, as opposed
// to an unexpected internal failure.
type RejectionError struct {
	Code   Code
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Reject builds a RejectionError.
func Reject(code Code, reason string) *RejectionError {
	return &RejectionError{Code: code, Reason: reason}
}

// CodeOf extracts the rejection code from an error chain, or CodeInternal for
// anything unanticipated.
func CodeOf(err error) Code {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection.Code
	}
	return CodeInternal
}

// IsRejection reports whether err is a deliberate rejection rather than an
// internal failure.
func IsRejection(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection)
}
