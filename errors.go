package auth

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMissingExpiry = "TOKEN_MISSING_EXPIRY"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeUnauthorized       = "UNAUTHORIZED"
	TextCodeAccessDenied       = "RESOURCE_ACCESS_DENIED"
	TextCodeResourceNotFound   = "RESOURCE_NOT_FOUND"
	TextCodeInvalidResponse    = "INVALID_BACKEND_RESPONSE"
	TextCodeTransport          = "BACKEND_UNREACHABLE"
	TextCodeStorage            = "TOKEN_STORAGE_FAILURE"
)

// ErrTokenMalformed is returned when a token does not decode into claims
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when the exp claim is not in the future
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMissingExpiry is returned when a decoded token has no exp claim
var ErrTokenMissingExpiry = errors.New("token has no expiry claim", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMissingExpiry).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidCredentials is returned when login or registration is rejected.
// The backend message replaces the default message on each occurrence.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthorized is returned when the backend rejects the session credential
var ErrUnauthorized = errors.New("session is not authorized", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(errors.CodeUnauthorized)

// ErrAccessDenied is returned when a protected resource stays locked
var ErrAccessDenied = errors.New("access to resource denied", errors.CategoryAuthz).
	WithTextCode(TextCodeAccessDenied).
	WithCode(errors.CodeForbidden)

// ErrResourceNotFound is returned when the backend has no such resource
var ErrResourceNotFound = errors.New("resource not found", errors.CategoryNotFound).
	WithTextCode(TextCodeResourceNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidResponse is returned when a backend payload is incomplete or undecodable
var ErrInvalidResponse = errors.New("invalid backend response", errors.CategoryInternal).
	WithTextCode(TextCodeInvalidResponse).
	WithCode(errors.CodeInternal)

// IsInvalidCredentialsError reports whether err is a rejected login/registration
func IsInvalidCredentialsError(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

// IsUnauthorizedError reports whether err is a 401 on an authenticated call
func IsUnauthorizedError(err error) bool {
	return hasTextCode(err, TextCodeUnauthorized)
}

// IsAccessDeniedError reports whether err is a locked resource
func IsAccessDeniedError(err error) bool {
	return hasTextCode(err, TextCodeAccessDenied)
}

// IsNotFoundError reports whether err is a missing resource
func IsNotFoundError(err error) bool {
	return hasTextCode(err, TextCodeResourceNotFound)
}

// IsInvalidResponseError reports whether the backend sent a body the client
// could not use
func IsInvalidResponseError(err error) bool {
	return hasTextCode(err, TextCodeInvalidResponse)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsMalformedError will check for undecodable tokens
func IsMalformedError(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed) || hasTextCode(err, TextCodeTokenMissingExpiry)
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.Code
	}
	return 0
}

// ErrorMessage returns the message meant for a user facing form
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	return err.Error()
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

func withMessage(base *errors.Error, message string, meta map[string]any) *errors.Error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	if message != "" {
		clone.Message = message
	}
	clone.Source = base
	if len(meta) > 0 {
		return clone.WithMetadata(meta)
	}
	return clone
}
