package wsrouter

import (
	"errors"
	"fmt"

	"github.com/luciancaetano/wsrouter/internal/protocol"
)

var (
	// ErrDuplicateOperation is returned when a (direction, type) pair is registered twice.
	ErrDuplicateOperation = errors.New("duplicate operation")
	// ErrUnknownOperation is returned when no operation is registered for a type.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrInvalidOperation is returned for descriptors missing a type, handler or direction.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrRegistryFinalized is returned when registering after the server started serving.
	ErrRegistryFinalized = errors.New("registry is finalized")
	// ErrMalformedEnvelope is returned for frames that are not a {type, payload} object.
	ErrMalformedEnvelope = protocol.ErrMalformedEnvelope
	// ErrPayloadValidation is returned when a payload does not match the operation schema.
	ErrPayloadValidation = errors.New("payload validation failed")
	// ErrInternalFault wraps unexpected handler failures. It closes the connection.
	ErrInternalFault = errors.New("internal fault")
	// ErrAuthFailed is returned when the auth handler rejects a channel or times out.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("connection is closed")
	// ErrReceiveTimeout is returned by a Channel when the receive deadline passes.
	ErrReceiveTimeout = errors.New("receive deadline exceeded")
	// ErrPeerDisconnected is returned by a Channel when the remote side went away.
	ErrPeerDisconnected = errors.New("peer disconnected")
	// ErrMessageTooLarge is returned by a Channel for frames over the read limit.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrBinaryFrame is returned by a Channel for binary frames. The connection
	// stays open and the peer gets a malformed envelope error.
	ErrBinaryFrame = errors.New("binary frames are not supported")
)

// Error is an expected, application-defined handler failure. The dispatcher
// turns it into an error envelope and keeps the connection open.
type Error struct {
	Code   string
	Detail string
}

// NewError creates an application error with the given code and detail.
func NewError(code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Errorf creates an application error with a formatted detail.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}
