package identity

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrNoSession is returned when no session is stored.
	ErrNoSession = errors.New("identity: no active session")
	// ErrSessionExpired is returned when the stored session expired and could not be refreshed.
	ErrSessionExpired = errors.New("identity: session expired")
	// ErrNotConfigured is returned when the auth section of the configuration is incomplete.
	ErrNotConfigured = errors.New("identity: authentication is not configured")
)

// Error describes a failure reported by the hosted authentication service.
type Error struct {
	// Code is the platform error code, for example NotAuthorizedException.
	Code string `json:"code,omitempty"`
	// Message is the human readable description returned by the platform.
	Message string `json:"message"`
	// Retryable indicates whether a retry might succeed without user action.
	Retryable bool `json:"retryable"`
	// HTTPStatus records the HTTP status of the failed call.
	HTTPStatus int `json:"http_status,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// StatusCode returns the HTTP status of the failed call.
func (e *Error) StatusCode() int {
	if e == nil {
		return 0
	}
	return e.HTTPStatus
}

// parseErrorBody maps a platform error payload into an Error. Both the OAuth2 form
// (error, error_description) and the service form (__type, message) are understood.
func parseErrorBody(status int, body []byte) *Error {
	out := &Error{HTTPStatus: status, Retryable: status == http.StatusTooManyRequests || status >= 500}
	if !gjson.ValidBytes(body) {
		out.Message = strings.TrimSpace(string(body))
		if out.Message == "" {
			out.Message = http.StatusText(status)
		}
		return out
	}
	parsed := gjson.ParseBytes(body)
	for _, path := range []string{"__type", "code", "error"} {
		if v := parsed.Get(path); v.Type == gjson.String && v.String() != "" {
			out.Code = v.String()
			break
		}
	}
	// __type may carry a namespace prefix ("aws.cognito#UsernameExistsException").
	if idx := strings.LastIndex(out.Code, "#"); idx >= 0 {
		out.Code = out.Code[idx+1:]
	}
	for _, path := range []string{"message", "Message", "error_description"} {
		if v := parsed.Get(path); v.String() != "" {
			out.Message = v.String()
			break
		}
	}
	if out.Message == "" {
		out.Message = http.StatusText(status)
	}
	return out
}

// IsCode reports whether err is an Error carrying code.
func IsCode(err error, code string) bool {
	var authErr *Error
	if errors.As(err, &authErr) {
		return strings.EqualFold(authErr.Code, code)
	}
	return false
}
