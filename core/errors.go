package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput            = "ACCESS_BAD_INPUT"
	ErrorUnauthorized        = "ACCESS_UNAUTHORIZED"
	ErrorNotFound            = "ACCESS_NOT_FOUND"
	ErrorRateLimited         = "ACCESS_RATE_LIMITED"
	ErrorPlatformUnavailable = "ACCESS_PLATFORM_UNAVAILABLE"
	ErrorUserSyncFailed      = "ACCESS_USER_SYNC_FAILED"
	ErrorPassCreationFailed  = "ACCESS_PASS_CREATION_FAILED"
	ErrorTokenIssueFailed    = "ACCESS_TOKEN_ISSUE_FAILED"
	ErrorInvalidTransition   = "ACCESS_INVALID_TRANSITION"
	ErrorMalformedEvent      = "ACCESS_MALFORMED_EVENT"
	ErrorInternal            = "ACCESS_INTERNAL_ERROR"
)

// NewError builds the module's error envelope: category, HTTP status
// code, text code, and optional metadata. Metadata is redacted before
// attachment so secrets cannot leak through error chains.
func NewError(message string, category goerrors.Category, textCode string, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(httpStatusFor(category)).
		WithTextCode(ensureTextCode(textCode, category))
	if len(metadata) > 0 {
		err.WithMetadata(RedactSensitiveMap(metadata))
	}
	return err
}

// WrapError wraps a source error in the module envelope.
func WrapError(source error, category goerrors.Category, message string, textCode string, metadata map[string]any) error {
	if source == nil {
		return NewError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(httpStatusFor(category)).
		WithTextCode(ensureTextCode(textCode, category))
	if len(metadata) > 0 {
		err.WithMetadata(RedactSensitiveMap(metadata))
	}
	return err
}

// TextCode extracts the envelope text code from an error chain, or ""
// when the error never passed through the envelope helpers.
func TextCode(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return strings.TrimSpace(richErr.TextCode)
	}
	return ""
}

// IsTransient reports whether an error represents a retryable
// infrastructure failure rather than a caller or logic error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryExternal, goerrors.CategoryRateLimit:
			return true
		}
	}
	return false
}

func ensureTextCode(textCode string, category goerrors.Category) string {
	if strings.TrimSpace(textCode) != "" {
		return textCode
	}
	return defaultTextCode(category)
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryConflict:
		return ErrorInvalidTransition
	case goerrors.CategoryExternal:
		return ErrorPlatformUnavailable
	default:
		return ErrorInternal
	}
}

func httpStatusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
