package client

import "time"

// EventType identifies a session lifecycle event.
type EventType string

const (
	// EventReady fires once per session, when both handshake signals have
	// arrived and the session transitioned to StateReady.
	EventReady EventType = "ready"
	// EventLanguageConfirmed fires when the backend acknowledges the
	// negotiated language. Event.Language carries the confirmed tag.
	EventLanguageConfirmed EventType = "language_confirmed"
	// EventSessionReplaced fires when the backend hands this conversation
	// to a newer connection. The server closes the socket shortly after, so
	// an EventDisconnected follows.
	EventSessionReplaced EventType = "session_replaced"
	// EventDisconnected fires when the connection is lost without a
	// deliberate Close. Event.Err carries a *DisconnectedError.
	EventDisconnected EventType = "disconnected"
	// EventError fires for non-fatal faults: server error messages, decode
	// failures and unparseable control messages. The session stays up.
	EventError EventType = "error"
)

// Event is a session lifecycle notification delivered on [Session.Events].
type Event struct {
	Type EventType

	// Language and Model are set on EventLanguageConfirmed.
	Language string
	Model    string

	// Err is set on EventError and EventDisconnected.
	Err error
}

// Role identifies the speaker of a transcript line.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Transcript is one line of recognized or generated speech, delivered on
// [Session.Transcripts] in the order the backend produced it.
type Transcript struct {
	Role Role
	Text string
	Time time.Time
}
