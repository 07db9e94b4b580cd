package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a remote store failure so callers can react without
// parsing messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindNotFound
	KindConflict
	KindTimeout
	KindUnreachable
	KindPathMismatch
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "authentication failed"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "network unreachable"
	case KindPathMismatch:
		return "path kind mismatch"
	default:
		return "remote error"
	}
}

// hint returns the remedial message surfaced with each kind.
func (k Kind) hint() string {
	switch k {
	case KindAuth:
		return "check your credentials"
	case KindNotFound:
		return "the path does not exist on the server"
	case KindConflict:
		return "the path already exists or conflicts with the operation"
	case KindTimeout:
		return "the server did not answer in time, retry or check connectivity"
	case KindUnreachable:
		return "check the server URL and your network connection"
	case KindPathMismatch:
		return "expected a file but found a directory, or the reverse"
	default:
		return ""
	}
}

// Error is a classified remote store failure.
type Error struct {
	Kind   Kind
	Op     string
	Path   string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
	if hint := e.Kind.hint(); hint != "" {
		msg += " (" + hint + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotConnected is returned by every operation before a successful
// Connect.
var ErrNotConnected = errors.New("not connected to a remote store")

// AsError extracts the classified error from a chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, k Kind) bool {
	if e, ok := AsError(err); ok {
		return e.Kind == k
	}
	return false
}

func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }
func IsAuth(err error) bool     { return IsKind(err, KindAuth) }
func IsConflict(err error) bool { return IsKind(err, KindConflict) }
func IsTimeout(err error) bool  { return IsKind(err, KindTimeout) }
func IsMismatch(err error) bool { return IsKind(err, KindPathMismatch) }

// IsTransient reports whether err is worth retrying at a caller's
// discretion: timeouts and unreachable networks.
func IsTransient(err error) bool {
	return IsKind(err, KindTimeout) || IsKind(err, KindUnreachable)
}

// classifyStatus maps an HTTP status to a classified error.
func classifyStatus(op, path string, status int, body string) *Error {
	kind := KindUnknown
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusConflict || status == http.StatusMethodNotAllowed ||
		status == http.StatusPreconditionFailed:
		kind = KindConflict
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		kind = KindTimeout
	}
	var underlying error
	if body != "" {
		underlying = errors.New(body)
	}
	return &Error{Kind: kind, Op: op, Path: path, Status: status, Err: underlying}
}

// classifyTransport maps request-level failures (DNS, refused
// connections, deadlines) to a classified error.
func classifyTransport(op, path string, err error) *Error {
	kind := KindUnreachable
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindUnknown
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
