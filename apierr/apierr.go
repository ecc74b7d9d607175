// Package apierr defines the error taxonomy shared by services, repositories
// and HTTP handlers.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthMissing      = errors.New("authorization token missing")
	ErrAuthInvalid      = errors.New("authorization token invalid")
	ErrAuthUnavailable  = errors.New("token verification unavailable")
	ErrBadRequest       = errors.New("bad request")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("document store unavailable")
	ErrDetectorFailure  = errors.New("detector failure")
	ErrArtifactCleanup  = errors.New("artifact cleanup failed")
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Wrap attaches a sentinel to a cause so errors.Is matches the sentinel while
// the message keeps the underlying detail for logs.
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// From classifies err into an *Error carrying the HTTP status and a stable code.
// Unknown errors become 500 internal_error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, ErrAuthMissing):
		return New(http.StatusUnauthorized, "auth_missing", err)
	case errors.Is(err, ErrAuthInvalid):
		return New(http.StatusUnauthorized, "auth_invalid", err)
	case errors.Is(err, ErrAuthUnavailable):
		return New(http.StatusServiceUnavailable, "auth_unavailable", err)
	case errors.Is(err, ErrBadRequest):
		return New(http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrNotFound):
		return New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrStoreUnavailable):
		return New(http.StatusServiceUnavailable, "store_unavailable", err)
	case errors.Is(err, ErrDetectorFailure):
		return New(http.StatusInternalServerError, "detector_failure", err)
	case errors.Is(err, ErrArtifactCleanup):
		return New(http.StatusInternalServerError, "artifact_cleanup_failed", err)
	default:
		return New(http.StatusInternalServerError, "internal_error", err)
	}
}
