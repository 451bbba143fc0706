/*
Package auth
File: errors.go
Description:
    Provider error codes and the user-facing message table.
*/

package auth

import (
	"errors"
	"fmt"
)

// Provider error codes. They mirror the identity provider's codes so the
// client can keep one message table.
const (
	CodePopupClosed          = "auth/popup-closed-by-user"
	CodePopupBlocked         = "auth/popup-blocked"
	CodeCancelledPopup       = "auth/cancelled-popup-request"
	CodeAccountExists        = "auth/account-exists-with-different-credential"
	CodeInvalidCredential    = "auth/invalid-credential"
	CodeOperationNotAllowed  = "auth/operation-not-allowed"
	CodeUnauthorizedDomain   = "auth/unauthorized-domain"
	CodeNetworkRequestFailed = "auth/network-request-failed"
	CodeDomainConfigRequired = "auth/auth-domain-config-required"
)

// Sentinel causes wrapped by Error.
var (
	ErrRevoked      = errors.New("token revoked")
	ErrNoCredential = errors.New("no credential in result")
)

// Error is an identity failure carrying a provider code.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "auth: " + e.Code
	}
	return fmt.Sprintf("auth: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

var messages = map[string]string{
	CodePopupClosed:          "Sign-in popup was closed. Please try again.",
	CodePopupBlocked:         "Popup was blocked by your browser. Please allow popups for this site.",
	CodeCancelledPopup:       "Only one popup request is allowed at a time. Please try again.",
	CodeAccountExists:        "An account already exists with this email using a different sign-in method.",
	CodeInvalidCredential:    "Invalid credentials. Please try again.",
	CodeOperationNotAllowed:  "Google sign-in is not enabled. Please check your server configuration.",
	CodeUnauthorizedDomain:   "This domain is not authorized for OAuth operations. Please check your server configuration.",
	CodeNetworkRequestFailed: "Network error. Please check your internet connection and try again.",
	CodeDomainConfigRequired: "Authentication domain is not configured. Please check your server configuration.",
}

// Message maps err to the user-facing text shown by the client.
func Message(err error) string {
	var authErr *Error
	if !errors.As(err, &authErr) {
		return "An unexpected error occurred. Please try again."
	}
	if msg, ok := messages[authErr.Code]; ok {
		return msg
	}
	detail := "Unknown error occurred"
	if authErr.Err != nil {
		detail = authErr.Err.Error()
	}
	return "Authentication error: " + detail
}

// Code returns the provider code of err, or "" when err is not an *Error.
func Code(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}
