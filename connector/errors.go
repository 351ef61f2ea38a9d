package connector

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-connector-cache/entity"
)

// Text codes carried by normalized errors.
const (
	TextCodeNetwork         = "NETWORK_ERROR"
	TextCodeRemote          = "REMOTE_ERROR"
	TextCodeValidation      = "VALIDATION_ERROR"
	TextCodeUnsupportedKind = "UNSUPPORTED_KIND"
)

// DefaultNetworkRetryDelay is the hint attached to network errors.
const DefaultNetworkRetryDelay = time.Second

// NetworkError wraps a failure where no response reached the caller.
func NetworkError(source error, message string) *goerrors.RetryableError {
	if message == "" {
		message = "connector unreachable"
	}
	if source == nil {
		source = fmt.Errorf("%s", message)
	}
	return goerrors.WrapRetryable(source, goerrors.CategoryExternal, message).
		WithTextCode(TextCodeNetwork).
		WithRetryDelay(DefaultNetworkRetryDelay)
}

// RemoteError is a non success response from the connector. Details end up
// in the error metadata.
func RemoteError(code int, message string, details map[string]any) *goerrors.Error {
	if message == "" {
		message = http.StatusText(code)
	}
	if message == "" {
		message = "remote request failed"
	}
	err := goerrors.New(message, categoryForStatus(code)).
		WithCode(code).
		WithTextCode(TextCodeRemote)
	if len(details) > 0 {
		err = err.WithMetadata(details)
	}
	return err
}

// ValidationError rejects a request before it is dispatched.
func ValidationError(message string, details map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryValidation).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeValidation)
	if len(details) > 0 {
		err = err.WithMetadata(details)
	}
	return err
}

// NotFound is the normalized 404 for a missing entity.
func NotFound(kind entity.Kind, id string) *goerrors.Error {
	return RemoteError(http.StatusNotFound, fmt.Sprintf("%s %q not found", kind, id), map[string]any{
		"kind": kind.String(),
		"id":   id,
	})
}

// UnsupportedKind is returned when a backend has no API for a kind.
func UnsupportedKind(kind entity.Kind) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("no connector api for kind %q", kind), goerrors.CategoryBadInput).
		WithTextCode(TextCodeUnsupportedKind)
}

// Normalize turns any error into the normalized shape. Errors already
// produced by this package pass through untouched.
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	var retryable *goerrors.RetryableError
	if goerrors.As(err, &retryable) {
		return err
	}
	var normalized *goerrors.Error
	if goerrors.As(err, &normalized) {
		return err
	}

	if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
		return NetworkError(err, "request aborted before a response arrived")
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) {
		return NetworkError(err, "network request failed")
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "connector request failed").
		WithTextCode(TextCodeRemote)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var retryable *goerrors.RetryableError
	if goerrors.As(err, &retryable) && retryable.BaseError != nil {
		return retryable.BaseError.TextCode == TextCodeNetwork
	}
	return false
}

// IsTransient reports whether a read may be retried: network failures,
// retryable errors, throttling and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsNetwork(err) || goerrors.IsRetryableError(err) {
		return true
	}
	var retryable *goerrors.RetryableError
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	code := StatusCode(err)
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// StatusCode extracts the remote status code, or 0.
func StatusCode(err error) int {
	var retryable *goerrors.RetryableError
	if goerrors.As(err, &retryable) && retryable.BaseError != nil {
		return retryable.BaseError.Code
	}
	var normalized *goerrors.Error
	if goerrors.As(err, &normalized) {
		return normalized.Code
	}
	return 0
}

func categoryForStatus(code int) goerrors.Category {
	switch {
	case code == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case code == http.StatusConflict:
		return goerrors.CategoryConflict
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return goerrors.CategoryBadInput
	case code == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case code == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case code == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case code >= http.StatusInternalServerError:
		return goerrors.CategoryExternal
	default:
		return goerrors.CategoryOperation
	}
}
