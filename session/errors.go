package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/room4-2/livevoice/audio"
)

var (
	// ErrAlreadyStarted is returned by Start on a session that was started before.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrStopped is returned by Start when Stop interrupted it.
	ErrStopped = errors.New("session stopped")
)

// ErrorKind is the user-facing error class of a failed session.
type ErrorKind int

const (
	UnknownProviderError ErrorKind = iota
	PermissionDenied
	DeviceUnavailable
	AuthError
	QuotaExceeded
	NetworkError
)

func (k ErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case DeviceUnavailable:
		return "device_unavailable"
	case AuthError:
		return "auth_error"
	case QuotaExceeded:
		return "quota_exceeded"
	case NetworkError:
		return "network_error"
	}
	return "unknown_provider_error"
}

// Error is a classified session failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Provider error text is matched lowercase.
var (
	authNeedles    = []string{"api key not valid", "api_key_invalid", "invalid api key", "unauthenticated", "permission_denied", "permission denied", "status 401", "status 403"}
	quotaNeedles   = []string{"quota", "resource_exhausted", "rate limit", "too many requests", "status 429"}
	networkNeedles = []string{"network", "connection refused", "connection reset", "no such host", "i/o timeout", "broken pipe", "unexpected eof", "tls handshake"}
)

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Classify maps err into the error taxonomy. Already classified errors are
// returned unchanged; nil yields nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return &Error{Kind: PermissionDenied, Err: err}
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return &Error{Kind: DeviceUnavailable, Err: err}
	}

	msg := strings.ToLower(err.Error())
	var netErr net.Error
	switch {
	case containsAny(msg, authNeedles):
		return &Error{Kind: AuthError, Err: err}
	case containsAny(msg, quotaNeedles):
		return &Error{Kind: QuotaExceeded, Err: err}
	case errors.As(err, &netErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, context.DeadlineExceeded),
		containsAny(msg, networkNeedles):
		return &Error{Kind: NetworkError, Err: err}
	}
	return &Error{Kind: UnknownProviderError, Err: err}
}
