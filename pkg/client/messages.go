package client

// ── Protocol message types (outgoing) ─────────────────────────────────────────

// clientMessage is a control message sent to the backend, such as the
// conversation_init handshake or the end-of-conversation signal.
type clientMessage struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

// serverMessage is the decoded form of every text message the backend sends.
// Only the fields relevant to the given Type are populated.
type serverMessage struct {
	Type string `json:"type"`

	// user_transcript / agent_response
	Text string `json:"text,omitempty"`

	// conversation_ready / audio_interface_ready / error
	Message string `json:"message,omitempty"`

	// language_confirmed
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`

	// UID, sent once after the schema-framed endpoint accepts.
	UID string `json:"uid,omitempty"`

	// TS is the server-side timestamp in ISO 8601 form. Informational only;
	// transcript ordering follows message order, not TS.
	TS string `json:"ts,omitempty"`
}
