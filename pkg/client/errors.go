package client

import (
	"errors"
	"fmt"

	"github.com/snakescriptdev/voice-ninja-client/pkg/wire"
)

// Sentinel errors returned by [Client.Connect] and session operations. Match
// them with errors.Is; the wrapped chain carries the underlying cause.
//
// Capture device failures are reported separately as capture.ErrUnavailable
// by the capture pipeline, since the microphone is opened independently of
// the connection.
var (
	// ErrConnectTimeout is returned when the dial or the server handshake
	// does not complete within the connect timeout.
	ErrConnectTimeout = errors.New("client: connect timed out")

	// ErrConnectFailed is returned when the websocket dial is rejected or
	// the endpoint is unreachable.
	ErrConnectFailed = errors.New("client: connect failed")

	// ErrSessionClosed is returned by operations on a session that has
	// already been closed.
	ErrSessionClosed = errors.New("client: session closed")
)

// DecodeError reports an inbound audio payload that could not be decoded.
// Decode failures are non-fatal: the session drops the payload, surfaces the
// error as an [EventError], and keeps receiving.
type DecodeError struct {
	Mode wire.Mode
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("client: decode %s audio: %v", e.Mode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ProtocolError reports a text message that could not be parsed as a control
// message. Like decode errors it is non-fatal.
type ProtocolError struct {
	// Type is the control message type, when it could be determined.
	Type string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("client: control message %q: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("client: control message: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DisconnectedError reports a connection lost without a deliberate Close.
// The session it belonged to is fully torn down; reconnecting requires a new
// [Client.Connect] call.
type DisconnectedError struct {
	Cause error
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("client: disconnected: %v", e.Cause)
}

func (e *DisconnectedError) Unwrap() error { return e.Cause }
