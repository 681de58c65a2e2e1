package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
	"github.com/snakescriptdev/voice-ninja-client/pkg/audio/capture"
	"github.com/snakescriptdev/voice-ninja-client/pkg/wire"
)

// Session can transmit microphone audio for the capture pipeline.
var _ capture.Sender = (*Session)(nil)

// Session is one live conversation with a backend. It owns the websocket
// connection and a receive goroutine that fans inbound traffic out to the
// Audio, Transcripts and Events channels.
//
// All methods are safe for concurrent use. Callers must drain the channels
// promptly; a full channel stalls the receive loop until the session context
// ends. Call Close when the conversation is over.
type Session struct {
	conn    *websocket.Conn
	codec   wire.Codec
	profile TransportProfile
	log     *slog.Logger

	state atomic.Int32

	audioCh     chan audio.AudioFrame
	transcripts chan Transcript
	events      chan Event

	mu         sync.Mutex
	errVal     error
	convReady  bool
	audioReady bool
	language   string
	model      string
	uid        string
	closed     bool
	teardown   []func()

	// readyCh closes when the session reaches StateReady, done when it is
	// fully torn down.
	readyCh chan struct{}
	done    chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	chanOnce  sync.Once
}

func newSession(conn *websocket.Conn, codec wire.Codec, profile TransportProfile, language, model string, log *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:        conn,
		codec:       codec,
		profile:     profile,
		log:         log,
		audioCh:     make(chan audio.AudioFrame, 64),
		transcripts: make(chan Transcript, 16),
		events:      make(chan Event, 16),
		language:    language,
		model:       model,
		readyCh:     make(chan struct{}),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.state.Store(int32(StateOpen))
	return s
}

// ── Receive loop ───────────────────────────────────────────────────────────────

// receiveLoop reads messages from the websocket and dispatches them. It owns
// audioCh, transcripts and events: it closes all three when it exits.
func (s *Session) receiveLoop() {
	defer s.closeChannels()

	for {
		typ, data, err := s.conn.Read(s.ctx)
		if err != nil {
			s.handleReadError(err)
			return
		}

		msg := wire.Message{Data: data, Binary: typ == websocket.MessageBinary}

		frame, ok, err := s.codec.DecodeAudio(msg)
		if err != nil {
			decErr := &DecodeError{Mode: s.codec.Mode(), Err: err}
			s.log.Warn("dropping undecodable audio payload", "error", decErr)
			s.emit(Event{Type: EventError, Err: decErr})
			continue
		}
		if ok {
			s.deliverAudio(frame)
			continue
		}
		if msg.Binary {
			// A binary message without an audio payload carries nothing the
			// client consumes.
			continue
		}

		var ctrl serverMessage
		if err := json.Unmarshal(data, &ctrl); err != nil {
			protoErr := &ProtocolError{Err: err}
			s.log.Warn("dropping unparseable control message", "error", protoErr)
			s.emit(Event{Type: EventError, Err: protoErr})
			continue
		}
		s.handleControl(&ctrl)
	}
}

func (s *Session) handleControl(msg *serverMessage) {
	switch msg.Type {
	case "conversation_ready":
		s.markHandshake(true, false)

	case "audio_interface_ready":
		s.markHandshake(false, true)

	case "language_confirmed":
		s.mu.Lock()
		if msg.Language != "" {
			s.language = msg.Language
		}
		if msg.Model != "" {
			s.model = msg.Model
		}
		s.mu.Unlock()
		s.log.Info("language confirmed", "language", msg.Language, "model", msg.Model)
		s.emit(Event{Type: EventLanguageConfirmed, Language: msg.Language, Model: msg.Model})

	case "user_transcript":
		s.deliverTranscript(Transcript{Role: RoleUser, Text: msg.Text, Time: time.Now()})

	case "agent_response":
		s.deliverTranscript(Transcript{Role: RoleAgent, Text: msg.Text, Time: time.Now()})

	case "session_replaced":
		// The backend moved this conversation to a newer connection; it
		// closes our socket right after, which surfaces as a disconnect.
		s.log.Info("conversation taken over by a newer connection")
		s.emit(Event{Type: EventSessionReplaced})

	case "error":
		text := msg.Message
		if text == "" {
			text = "unknown error"
		}
		s.log.Warn("server reported an error", "message", text)
		s.emit(Event{Type: EventError, Err: fmt.Errorf("client: server: %s", text)})

	case "UID":
		s.mu.Lock()
		s.uid = msg.UID
		s.mu.Unlock()
		s.log.Debug("session id assigned", "uid", msg.UID)

	default:
		s.log.Debug("ignoring unknown control message", "type", msg.Type)
	}
}

// markHandshake records handshake progress. The session becomes Ready once
// both the conversation and the audio interface have reported in, in either
// order.
func (s *Session) markHandshake(conversation, audioInterface bool) {
	s.mu.Lock()
	if conversation {
		s.convReady = true
	}
	if audioInterface {
		s.audioReady = true
	}
	ready := s.convReady && s.audioReady
	s.mu.Unlock()

	if !ready {
		return
	}
	if s.state.CompareAndSwap(int32(StateOpen), int32(StateReady)) {
		close(s.readyCh)
		s.emit(Event{Type: EventReady})
	}
}

// handleReadError classifies the error that ended the receive loop. Errors
// caused by our own Close are expected and silent; everything else is a lost
// connection and tears the session down.
func (s *Session) handleReadError(err error) {
	if s.ctx.Err() != nil || s.isClosed() {
		return
	}

	final := StateError
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		final = StateClosed
	}
	cause := &DisconnectedError{Cause: err}
	s.log.Warn("connection lost", "error", err)

	// Emit before shutdown cancels the session context, or the event would
	// be dropped.
	s.emit(Event{Type: EventDisconnected, Err: cause})
	s.shutdown(final, cause)
}

func (s *Session) deliverAudio(frame audio.AudioFrame) {
	select {
	case s.audioCh <- frame:
	case <-s.ctx.Done():
	}
}

func (s *Session) deliverTranscript(tr Transcript) {
	select {
	case s.transcripts <- tr:
	case <-s.ctx.Done():
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Session) closeChannels() {
	s.chanOnce.Do(func() {
		close(s.audioCh)
		close(s.transcripts)
		close(s.events)
	})
}

// ── Keepalive ──────────────────────────────────────────────────────────────────

// keepaliveLoop pings the backend so NAT mappings and idle timeouts do not
// drop a quiet conversation.
func (s *Session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.log.Warn("keepalive ping failed", "error", err)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// ── Shutdown ───────────────────────────────────────────────────────────────────

// shutdown tears the session down exactly once. cause is nil for a
// deliberate Close and the disconnect error otherwise.
func (s *Session) shutdown(final SessionState, cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if cause != nil && s.errVal == nil {
			s.errVal = cause
		}
		hooks := slices.Clone(s.teardown)
		s.mu.Unlock()

		// Teardown hooks stop capture and playback before the socket goes
		// away, so Close returns with no audio flowing in either direction.
		for _, hook := range hooks {
			hook()
		}

		if cause == nil && s.codec.Mode() == wire.ModeBase64JSON {
			s.sendEnd()
		}

		s.state.Store(int32(final))
		s.cancel()
		close(s.done)

		if cause == nil {
			s.conn.Close(websocket.StatusNormalClosure, "conversation ended")
		} else {
			s.conn.Close(websocket.StatusInternalError, "connection lost")
		}
	})
}

// sendEnd tells the backend to leave its conversation loop. Best effort on a
// short budget independent of the session context, which is about to be
// cancelled.
func (s *Session) sendEnd() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	data, err := json.Marshal(clientMessage{Type: "end"})
	if err != nil {
		return
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.log.Debug("end message not delivered", "error", err)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) writeControl(ctx context.Context, msg clientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("client: marshal control message: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// ── Session API ────────────────────────────────────────────────────────────────

// SendAudio transmits one encoded microphone chunk. Before the session is
// ready the chunk is dropped silently, since the backend discards audio it
// receives ahead of the handshake anyway. After Close it returns
// ErrSessionClosed.
func (s *Session) SendAudio(msg wire.Message) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if SessionState(s.state.Load()) != StateReady {
		return nil
	}

	typ := websocket.MessageText
	if msg.Binary {
		typ = websocket.MessageBinary
	}
	if err := s.conn.Write(s.ctx, typ, msg.Data); err != nil {
		return fmt.Errorf("client: send audio: %w", err)
	}
	return nil
}

// Audio returns the channel on which decoded agent audio arrives, in receive
// order. The channel is closed when the session ends.
func (s *Session) Audio() <-chan audio.AudioFrame { return s.audioCh }

// Transcripts returns the channel on which transcript lines arrive, in
// receive order. The channel is closed when the session ends.
func (s *Session) Transcripts() <-chan Transcript { return s.transcripts }

// Events returns the channel on which lifecycle events arrive. The channel
// is closed when the session ends.
func (s *Session) Events() <-chan Event { return s.events }

// Err returns the error that ended the session, or nil while it is live or
// after a deliberate Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Ready reports whether the session has completed the handshake and may
// carry audio.
func (s *Session) Ready() bool { return s.State() == StateReady }

// WaitReady blocks until the session is ready, the session ends, or ctx
// expires. Once the session has been ready it always returns nil, even
// after Close.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	default:
	}
	select {
	case <-s.readyCh:
		return nil
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ID returns the backend-assigned session id, when the transport provides
// one. Empty until the backend sends it.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uid
}

// Language returns the session language, updated if the backend confirms a
// different one.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Model returns the negotiated model, updated if the backend confirms a
// different one.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Codec returns the frame codec the session speaks. The capture pipeline
// shares it so both directions agree on the encoding.
func (s *Session) Codec() wire.Codec { return s.codec }

// Format returns the session audio format.
func (s *Session) Format() audio.Format { return s.profile.Format() }

// OnTeardown registers fn to run during Close or disconnect teardown, before
// the websocket is released. Hooks run in registration order. Registering
// after the session ended runs fn immediately.
func (s *Session) OnTeardown(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.teardown = append(s.teardown, fn)
	s.mu.Unlock()
}

// Close ends the session: teardown hooks run, the backend is told the
// conversation is over, and the connection is released. Calling Close more
// than once is safe and returns nil.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.shutdown(StateClosed, nil)
	return nil
}
