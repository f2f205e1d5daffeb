// Package fault defines the error kinds a recording session can end with.
//
// Every kind is terminal for the session that produced it. Callers recover
// the kind with KindOf or errors.As on *Error.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	Unknown Kind = iota
	PermissionDenied
	DeviceUnavailable
	UnsupportedPlatform
	NetworkError
	ServerError
	MalformedResponse
	PlaybackUnsupported
	PlaybackFailed
)

func (k Kind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case DeviceUnavailable:
		return "device_unavailable"
	case UnsupportedPlatform:
		return "unsupported_platform"
	case NetworkError:
		return "network_error"
	case ServerError:
		return "server_error"
	case MalformedResponse:
		return "malformed_response"
	case PlaybackUnsupported:
		return "playback_unsupported"
	case PlaybackFailed:
		return "playback_failed"
	default:
		return "unknown"
	}
}

// Error is a session failure of a known kind. Status and Body are only set
// for ServerError.
type Error struct {
	Kind   Kind
	Msg    string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == ServerError {
		return fmt.Sprintf("failed to process audio: %d - %s", e.Status, e.Msg)
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Server builds a ServerError. msg is the human message; when empty the
// trimmed body is used.
func Server(status int, body, msg string) *Error {
	if msg == "" {
		msg = strings.TrimSpace(body)
	}
	return &Error{Kind: ServerError, Status: status, Body: body, Msg: msg}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Ensure wraps err as kind unless it already carries a kind.
func Ensure(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != Unknown {
		return err
	}
	return Wrap(kind, err, msg)
}
