package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed request so callers can react without parsing
// messages.
type Kind int

const (
	// KindTransport: no usable response (network, timeout, undecodable body).
	KindTransport Kind = iota
	// KindUnauthorized: the token is missing, expired or rejected (401).
	KindUnauthorized
	// KindValidation: the backend rejected the input; Message is user-facing.
	KindValidation
	// KindServer: the backend failed (5xx).
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "transport"
	}
}

// Sentinels for errors.Is.
var (
	ErrTransport    = errors.New("transport error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation error")
	ErrServer       = errors.New("server error")
)

// Error is returned by every Client call that fails.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 for transport failures
	Message string // backend-provided text when available
	Err     error  // underlying cause for transport failures
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" && e.Status != 0 {
		msg = http.StatusText(e.Status)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the Kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrServer:
		return e.Kind == KindServer
	}
	return false
}

// UserMessage returns text suitable for showing next to the form or action
// that failed.
func UserMessage(err error) string {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	switch apiErr.Kind {
	case KindUnauthorized:
		return "session expired, run 'storyline login'"
	case KindValidation:
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return "the request was rejected"
	case KindServer:
		return "the server failed to handle the request, try again later"
	default:
		return "could not reach the server"
	}
}

func classify(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}
