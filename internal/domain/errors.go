package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured     = errors.New("server credentials not configured")
	ErrEmptyChannel      = errors.New("channel name is required")
	ErrInvalidCode       = errors.New("invalid channel code")
	ErrInvalidLink       = errors.New("invalid link")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidChunkKey   = errors.New("invalid chunk key")
	ErrChannelNotFound   = errors.New("channel not found")
	ErrChannelTaken      = errors.New("channel code already in use")
	ErrCodesExhausted    = errors.New("no free channel code")
	ErrStreamNotFound    = errors.New("stream not found")
	ErrCredentialExpired = errors.New("credential expired")
	ErrBadToken          = errors.New("invalid token")
	ErrInvalidState      = errors.New("invalid session state")
	ErrTransportDown     = errors.New("transport unavailable")
)

// Kind classifies failures by how callers should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindValidation
	KindNotFound
	KindUpstream
	KindTransport
	KindStorage
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindTransport:
		return "transport"
	case KindStorage:
		return "storage"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "unknown"
	}
}

// Error carries a Kind and the failing operation around the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err unless it is nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the outermost Kind in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage maps an error to the text shown to a person holding the device.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidLink):
		return "This stream link is not valid."
	case errors.Is(err, ErrInvalidCode):
		return "Enter a valid 4-digit code."
	case errors.Is(err, ErrChannelNotFound), errors.Is(err, ErrStreamNotFound):
		return "Stream not found. Ask the monitor to share its code again."
	case errors.Is(err, ErrChannelTaken):
		return "This code is already in use. Start monitoring again to get a new one."
	case errors.Is(err, ErrCredentialExpired), errors.Is(err, ErrBadToken):
		return "The session has expired. Join again."
	case errors.Is(err, ErrNotConfigured):
		return "Live audio is not configured on the server."
	}
	switch KindOf(err) {
	case KindTransport:
		return "Could not connect to the live audio stream."
	case KindUpstream:
		return "The server could not be reached. Try again."
	case KindStorage:
		return "Audio could not be stored or fetched."
	case KindInvalidState:
		return "That action is not possible right now."
	}
	return "Something went wrong."
}
