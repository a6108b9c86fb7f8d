// Package apierr defines the Command API's error taxonomy: a fixed set of
// code strings, each mapped to an HTTP status, carried as a typed error so
// handlers can return it directly and the router serializes it uniformly.
package apierr

import "net/http"

// Error is the shape returned to clients as {code, message, details}.
type Error struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`

	// RetryAfterSeconds, when non-zero, is surfaced as a Retry-After
	// header by writeError. Set only on RATE_LIMITED and SHUTTING_DOWN.
	RetryAfterSeconds int `json:"-"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func newErr(code string, status int, msg string) *Error {
	return &Error{Code: code, Message: msg, HTTPStatus: status}
}

// MissingAuth is returned when a mutation carries no bearer token.
func MissingAuth() *Error { return newErr("MISSING_AUTH", http.StatusUnauthorized, "bearer token required") }

// InvalidAuth is returned when the presented token does not match.
func InvalidAuth() *Error { return newErr("INVALID_AUTH", http.StatusUnauthorized, "bearer token does not match") }

// NoAuthConfigured is returned when the daemon started without a token.
func NoAuthConfigured() *Error {
	return newErr("NO_AUTH_CONFIGURED", http.StatusServiceUnavailable, "daemon has no auth token configured")
}

// NotFound is returned when a referenced entity is missing.
func NotFound(what string) *Error {
	return newErr("NOT_FOUND", http.StatusNotFound, what+" not found")
}

// InvalidInput is returned for validation failures: shape, size, URL
// scheme, path escape.
func InvalidInput(msg string) *Error {
	return newErr("INVALID_INPUT", http.StatusBadRequest, msg)
}

// NameTaken is returned on a unique-channel-name violation.
func NameTaken(name string) *Error {
	return newErr("NAME_TAKEN", http.StatusConflict, "channel name already in use: "+name)
}

// VersionConflict is returned when an optimistic lock fails; details.current
// carries the row's actual current version.
func VersionConflict(current int) *Error {
	e := newErr("VERSION_CONFLICT", http.StatusConflict, "expected_version does not match current version")
	e.Details = map[string]any{"current": current}
	return e
}

// AlreadyDeleted is returned when the target message is tombstoned.
func AlreadyDeleted() *Error {
	return newErr("ALREADY_DELETED", http.StatusConflict, "message is already deleted")
}

// CrossChannelMove is returned when a move would change the message's channel.
func CrossChannelMove() *Error {
	return newErr("CROSS_CHANNEL_MOVE", http.StatusBadRequest, "destination topic belongs to a different channel")
}

// PayloadTooLarge is returned when a request body exceeds its category bound.
func PayloadTooLarge(category string) *Error {
	return newErr("PAYLOAD_TOO_LARGE", http.StatusRequestEntityTooLarge, category+" exceeds the size limit")
}

// RateLimited is returned when a client address exceeds its rate limit;
// there is no global (all-clients) limit.
// RetryAfterSeconds carries the retry hint spec.md §4.3 requires; writeError
// surfaces it as a Retry-After header.
func RateLimited() *Error {
	e := newErr("RATE_LIMITED", http.StatusTooManyRequests, "rate limit exceeded")
	e.RetryAfterSeconds = 1
	return e
}

// ShuttingDown is returned while the daemon drains in-flight requests.
func ShuttingDown() *Error {
	e := newErr("SHUTTING_DOWN", http.StatusServiceUnavailable, "daemon is shutting down")
	e.RetryAfterSeconds = 5
	return e
}

// Internal wraps an unexpected failure; the underlying error is logged, not
// echoed to the client.
func Internal() *Error {
	return newErr("INTERNAL", http.StatusInternalServerError, "internal error")
}

// SearchUnavailable is returned when a search query arrives but the
// full-text index was never built, per spec.md's "search queries fail
// with a typed error when the index is not present."
func SearchUnavailable() *Error {
	return newErr("SEARCH_UNAVAILABLE", http.StatusServiceUnavailable, "full-text search index is not enabled")
}
