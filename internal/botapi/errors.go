// ABOUTME: Error taxonomy of the gateway client.
// ABOUTME: Status errors carry the HTTP code and unwrap to a class sentinel.

package botapi

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrEmptyPayload is returned before any I/O when an action has no fields.
	ErrEmptyPayload = errors.New("botapi: empty payload")

	// ErrInvalidResponse is returned when a 2xx body does not decode to a JSON value.
	ErrInvalidResponse = errors.New("botapi: invalid remote response")

	ErrClient   = errors.New("botapi: client error")
	ErrServer   = errors.New("botapi: server error")
	ErrProtocol = errors.New("botapi: protocol error")
)

// Class is the status family of a failed call.
type Class int

const (
	ClassClient Class = iota + 1
	ClassServer
	ClassProtocol
)

func (c Class) String() string {
	switch c {
	case ClassClient:
		return "client_error"
	case ClassServer:
		return "server_error"
	default:
		return "protocol_error"
	}
}

// StatusError is a non-2xx answer from the remote API.
type StatusError struct {
	Class      Class
	StatusCode int
	Action     string
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("botapi: %s: %s (status %d)", e.Action, e.Class, e.StatusCode)
	if desc := gjson.Get(e.Body, "description"); desc.Exists() {
		msg += ": " + desc.String()
	}
	return msg
}

// Unwrap lets errors.Is match ErrClient, ErrServer or ErrProtocol.
func (e *StatusError) Unwrap() error {
	switch e.Class {
	case ClassClient:
		return ErrClient
	case ClassServer:
		return ErrServer
	default:
		return ErrProtocol
	}
}

func classify(status int) (Class, bool) {
	switch status / 100 {
	case 2:
		return 0, true
	case 4:
		return ClassClient, false
	case 5:
		return ClassServer, false
	default:
		return ClassProtocol, false
	}
}
