package qwen

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// APIError is a failed DashScope call: either a non-2xx status or an error
// code inside a 200 body.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("qwen: %s (%s)", e.Message, e.Code)
	case e.Message != "":
		return fmt.Sprintf("qwen: status %d: %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("qwen: status %d", e.Status)
	}
}

// Temporary reports whether the same request may succeed on a second try.
// Rate limiting is not temporary at this timescale.
func (e *APIError) Temporary() bool {
	if e.Status >= http.StatusInternalServerError {
		return true
	}
	for _, prefix := range []string{"InternalError", "SystemError", "RequestTimeOut"} {
		if strings.HasPrefix(e.Code, prefix) {
			return true
		}
	}
	return false
}

// Unauthorized reports a rejected or missing API key.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden || e.Code == "InvalidApiKey"
}

// IsTransient reports whether err is worth one more attempt. Errors that did
// not come from this package are judged by their text.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"internalerror", "internal error", "service unavailable", "timeout"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// IsUnauthorized reports whether err means the key was missing or rejected.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrMissingAPIKey) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Unauthorized()
	}
	msg := strings.ToLower(fmt.Sprint(err))
	return strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden")
}
