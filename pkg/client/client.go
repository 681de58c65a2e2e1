// Package client implements the websocket voice session against Voice Ninja
// backends.
//
// A [Client] dials one of the two backend endpoints, negotiates language and
// model, and hands back a [Session] once the server reports the conversation
// ready. The session multiplexes decoded agent audio, transcripts and
// lifecycle events onto channels and accepts encoded microphone chunks via
// [Session.SendAudio], which makes it the transport half of the capture
// pipeline.
//
// A client owns at most one live session. Dialing again retires the previous
// session first; a lost connection tears the session down completely and is
// reported as an [EventDisconnected], never retried behind the caller's back.
package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/snakescriptdev/voice-ninja-client/pkg/audio"
	"github.com/snakescriptdev/voice-ninja-client/pkg/wire"
)

const (
	// DefaultConnectTimeout bounds the dial plus the server handshake.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultVoice is applied by the schema-framed endpoint when the caller
	// requests no specific voice.
	DefaultVoice = "Charon"

	keepaliveInterval = 20 * time.Second

	// maxMessageSize raises the websocket read limit; agent audio chunks
	// outgrow the library default of 32 KiB.
	maxMessageSize = 1 << 20
)

// TransportProfile describes the wire encoding and audio format a backend
// speaks. Both directions of a session use the same profile.
type TransportProfile struct {
	Mode       wire.Mode
	SampleRate int
}

// Format returns the session audio format. Voice traffic is mono.
func (p TransportProfile) Format() audio.Format {
	return audio.Format{SampleRate: p.SampleRate, Channels: 1}
}

// DefaultProfile returns the profile of the widget backend: base64 JSON
// envelopes carrying 16 kHz mono PCM.
func DefaultProfile() TransportProfile {
	return TransportProfile{Mode: wire.ModeBase64JSON, SampleRate: 16000}
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithConnectTimeout bounds Connect, covering dial and handshake together.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithLanguage sets the conversation language tag, for example "en" or "de".
func WithLanguage(tag string) Option {
	return func(c *Client) { c.language = tag }
}

// WithModel requests a specific model. The request is normalized against the
// language before the handshake, see [NormalizeModel].
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithVoice selects the synthesis voice on the schema-framed endpoint.
func WithVoice(voice string) Option {
	return func(c *Client) { c.voice = voice }
}

// WithBasicAuth sets the credentials the schema-framed endpoint requires.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithHTTPHeader adds headers to the websocket handshake request.
func WithHTTPHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

// WithLogger sets the logger for the client and its sessions.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Client dials backend voice sessions. It is safe for concurrent use, but
// holds at most one live session at a time.
type Client struct {
	baseURL string
	agentID string
	profile TransportProfile

	connectTimeout time.Duration
	language       string
	model          string
	voice          string
	username       string
	password       string
	header         http.Header
	log            *slog.Logger

	mu         sync.Mutex
	session    *Session
	connecting bool
}

// New creates a Client for the backend at baseURL. agentID selects the agent
// on the widget backend and may be empty for the schema-framed one.
func New(baseURL, agentID string, profile TransportProfile, opts ...Option) (*Client, error) {
	if !profile.Mode.IsValid() {
		return nil, fmt.Errorf("client: unknown transport mode %q", profile.Mode)
	}
	if profile.SampleRate <= 0 {
		return nil, fmt.Errorf("client: invalid sample rate %d", profile.SampleRate)
	}
	if profile.Mode == wire.ModeBase64JSON && agentID == "" {
		return nil, errors.New("client: agent id required for the base64 JSON transport")
	}

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		agentID:        agentID,
		profile:        profile,
		connectTimeout: DefaultConnectTimeout,
		language:       DefaultLanguage,
		log:            slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Profile returns the transport profile the client dials with.
func (c *Client) Profile() TransportProfile { return c.profile }

// Session returns the current session, or nil when none is live.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// State reports the client lifecycle state: Idle before any session exists,
// Connecting while a dial is in flight, and the session state otherwise.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connecting {
		return StateConnecting
	}
	if c.session == nil {
		return StateIdle
	}
	return c.session.State()
}

// Connect dials the backend and blocks until the session is ready or the
// connect timeout expires. A previous session is closed before the new dial.
//
// On failure the returned error matches ErrConnectTimeout or
// ErrConnectFailed via errors.Is.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		return nil, errors.New("client: connect already in progress")
	}
	c.connecting = true
	prev := c.session
	c.session = nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
	}()

	// One live session per client.
	if prev != nil {
		prev.Close()
	}

	wsURL, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	c.log.Debug("dialing", "url", c.baseURL, "mode", string(c.profile.Mode))
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		HTTPHeader: c.header,
	})
	if err != nil {
		if dialCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s: %v", ErrConnectTimeout, c.connectTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	conn.SetReadLimit(maxMessageSize)

	codec, err := wire.NewCodec(c.profile.Mode, c.profile.Format())
	if err != nil {
		conn.Close(websocket.StatusInternalError, "codec unavailable")
		return nil, err
	}

	model := NormalizeModel(c.language, c.model)
	sess := newSession(conn, codec, c.profile, c.language, model, c.log)
	go sess.receiveLoop()
	go sess.keepaliveLoop()

	switch c.profile.Mode {
	case wire.ModeBase64JSON:
		init := clientMessage{Type: "conversation_init", Language: c.language, Model: model}
		if err := sess.writeControl(dialCtx, init); err != nil {
			sess.Close()
			return nil, fmt.Errorf("%w: conversation_init: %v", ErrConnectFailed, err)
		}
	case wire.ModeSchemaFramed:
		// The schema endpoint streams as soon as the socket is accepted;
		// there is no handshake to wait for.
		sess.markHandshake(true, true)
	}

	if err := sess.WaitReady(dialCtx); err != nil {
		sess.Close()
		if dialCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s: handshake incomplete", ErrConnectTimeout, c.connectTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	c.log.Info("session ready",
		"mode", string(c.profile.Mode),
		"language", sess.Language(),
		"model", sess.Model())
	return sess, nil
}

// Close ends the current session, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.mu.Unlock()

	if sess != nil {
		return sess.Close()
	}
	return nil
}

// endpoint builds the websocket URL for the configured transport mode.
func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("client: parse base url: %w", err)
	}

	switch c.profile.Mode {
	case wire.ModeBase64JSON:
		u = u.JoinPath("api", "v2", "web-agent", "ws", c.agentID)

	case wire.ModeSchemaFramed:
		u = u.JoinPath("ws")
		q := u.Query()
		voice := c.voice
		if voice == "" {
			voice = DefaultVoice
		}
		q.Set("voice", voice)
		if c.username != "" {
			cred := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
			q.Set("authorization", "Basic "+cred)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
