// Package portal provides an HTTP client for the file-processing portal
// backend: bearer-authenticated requests with a single refresh-and-retry,
// typed file and summary operations, and best-effort report fetching.
package portal

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for failure classification.
// Use errors.Is(err, portal.ErrDuplicateFile) to check.
var (
	// ErrAuthenticationFailed means the session cannot be used any more:
	// a 401 without the expired-access-token signature, a failed refresh,
	// or a 401 on the retried request. Callers should log the user out.
	ErrAuthenticationFailed = errors.New("portal: authentication failed")
	ErrUnauthorized         = errors.New("portal: unauthorized")
	ErrDuplicateFile        = errors.New("portal: file already processed recently")
	ErrBadRequest           = errors.New("portal: bad request")
	ErrRequestFailed        = errors.New("portal: request failed")
	ErrFileTooLarge         = errors.New("portal: file too large")
	ErrUploadSizeChanged    = errors.New("portal: file size changed during upload")
)

// APIError wraps a sentinel error with the HTTP status code and the
// server-provided message.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (HTTP %d)", e.Err, e.StatusCode)
	}

	return fmt.Sprintf("%v (HTTP %d): %s", e.Err, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx status on a resource operation to a
// sentinel. 400 is only distinguished on upload, see classifyUpload.
func classifyStatus(code int) error {
	if code == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	return ErrRequestFailed
}

// isSuccess reports whether code is 2xx.
func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
