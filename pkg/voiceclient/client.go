// Package voiceclient implements the WebSocket voice client: microphone
// capture, recording session control, bidirectional messaging with the
// voice server, reply playback, and form state driven by server-issued
// function calls.
package voiceclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voiceform/go-voiceform/pkg/capture"
	"github.com/voiceform/go-voiceform/pkg/form"
	"github.com/voiceform/go-voiceform/pkg/pcm"
	"github.com/voiceform/go-voiceform/pkg/playback"
	"github.com/voiceform/go-voiceform/pkg/protocol"
)

// ConnectionState represents the WebSocket connection state.
type ConnectionState int

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates connection is being established.
	StateConnecting
	// StateConnected indicates an active connection.
	StateConnected
)

// String returns a human-readable state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Client is the voice client. It owns one WebSocket connection, at most
// one recording session and one playback session at a time, and the
// local form state the server's function calls mutate.
type Client struct {
	cfg      *Config
	logger   *slog.Logger
	clientID string

	mu       sync.RWMutex
	conn     *websocket.Conn
	state    ConnectionState
	closing  bool
	attempts int

	// writeMu serializes writes to the connection.
	writeMu sync.Mutex

	queue *playback.Queue
	rec   *recorder
	form  *form.State

	// Active capture session, nil when not recording.
	captureMu sync.Mutex
	source    capture.Source
	acc       *capture.Accumulator
	pumpDone  chan struct{}

	// Callbacks.
	onConnState    func(state ConnectionState)
	onTranscript   func(text string)
	onFunctionCall func(call protocol.FunctionCall, changed []string)
	onAudio        func(data []byte, format pcm.Format)
	onPlayback     func(playing bool)
	onError        func(err error)

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
}

// New creates a voice client.
//
//	client, err := voiceclient.New(
//	    voiceclient.WithServerURL("ws://localhost:8000"),
//	    voiceclient.WithAIRole("butler"),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = newClientID()
	}

	sinks := cfg.sinkFactory
	if sinks == nil {
		var err error
		sinks, err = playback.NewSinkFactory(playback.Backend(cfg.PlaybackBackend))
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "voiceclient"),
		clientID: cfg.ClientID,
		state:    StateDisconnected,
		form:     form.NewState(),
	}

	c.queue = playback.NewQueue(playback.QueueConfig{
		SampleRate: cfg.SampleRate,
		Sinks:      sinks,
		Logger:     cfg.Logger,
	})
	c.queue.OnError(c.emitError)
	c.queue.OnStateChange(c.emitPlayback)

	c.rec = newRecorder(cfg, c.Send)

	return c, nil
}

// newClientID builds a unique client identifier from the current time
// and a random suffix.
func newClientID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// voiceURL builds the per-client WebSocket endpoint.
func voiceURL(serverURL, clientID string) string {
	return strings.TrimSuffix(serverURL, "/") + "/voice/" + url.PathEscape(clientID)
}

// ClientID returns the identifier sent to the server.
func (c *Client) ClientID() string {
	return c.clientID
}

// Endpoint returns the per-client WebSocket URL this client dials.
func (c *Client) Endpoint() string {
	return voiceURL(c.cfg.ServerURL, c.clientID)
}

// Form returns the client's form state.
func (c *Client) Form() *form.State {
	return c.form
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected returns true if connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect establishes the WebSocket connection and announces the
// configured persona. Reconnection after an unexpected drop is
// automatic; Disconnect suppresses it.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.closing = false
	c.mu.Unlock()
	c.emitConnState(StateConnecting)

	endpoint := voiceURL(c.cfg.ServerURL, c.clientID)
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.Timeout,
	}

	c.logger.Info("connecting to voice server",
		"url", endpoint,
		"client_id", c.clientID)

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.emitConnState(StateDisconnected)
		if resp != nil {
			return NewConnectionError(
				fmt.Sprintf("dial failed with status %d", resp.StatusCode),
				err,
				resp.StatusCode >= 500,
			)
		}
		return NewConnectionError("dial failed", err, true)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	go c.readLoop(conn)

	c.logger.Info("connected to voice server")
	c.emitConnState(StateConnected)

	if c.cfg.AIRole != "" {
		if err := c.SendRoleChange(c.cfg.AIRole); err != nil {
			c.logger.Warn("role announcement failed", "error", err)
		}
	}

	return nil
}

// Disconnect closes the connection intentionally. Active recording is
// aborted, playback is hard-stopped, and no reconnection is attempted.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state == StateDisconnected && c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.abortCapture()
	c.queue.StopAllNow()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		conn.Close()
	}

	c.logger.Info("disconnected from voice server")
	c.emitConnState(StateDisconnected)
	return nil
}

// Close is an alias for Disconnect, satisfying io.Closer.
func (c *Client) Close() error {
	return c.Disconnect()
}

// Send delivers one outbound message. When disconnected it logs a
// warning and drops the message instead of failing, so callers driven
// by live audio do not have to special-case transport gaps.
func (c *Client) Send(msg protocol.Outbound) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != StateConnected || conn == nil {
		c.logger.Warn("dropping message, not connected",
			"type", fmt.Sprintf("%T", msg))
		return nil
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return NewConnectionError("write failed", err, true)
	}

	c.messagesSent.Add(1)
	return nil
}

// SendText sends a typed chat message.
func (c *Client) SendText(text string) error {
	return c.Send(protocol.TextMessage{Text: text})
}

// SendFormUpdate publishes the current form snapshot to the server.
func (c *Client) SendFormUpdate() error {
	return c.Send(c.form.UpdateMessage())
}

// SendRoleChange switches the assistant persona.
func (c *Client) SendRoleChange(role string) error {
	return c.Send(protocol.RoleChange{Role: role})
}

// readLoop reads frames until the connection drops.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(conn, err)
			return
		}
		c.messagesReceived.Add(1)
		c.handleInbound(data)
	}
}

// handleReadError tears down a dropped connection and, when the drop
// was not intentional, schedules reconnection.
func (c *Client) handleReadError(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Already torn down by Disconnect or a newer connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	closing := c.closing
	c.mu.Unlock()

	conn.Close()
	c.abortCapture()
	c.queue.StopAllNow()
	c.emitConnState(StateDisconnected)

	if closing || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Info("connection closed")
		return
	}

	c.logger.Warn("connection lost", "error", err)
	c.emitError(NewConnectionError("connection lost", err, true))
	c.scheduleReconnect()
}

// scheduleReconnect arms the next reconnection attempt with exponential
// backoff: base, 2x, 4x, ... up to the configured attempt cap.
func (c *Client) scheduleReconnect() {
	delay, attempt, ok := c.nextReconnect()
	if !ok {
		if attempt > 0 {
			c.logger.Error("reconnect attempts exhausted",
				"attempts", c.cfg.ReconnectAttempts)
			c.emitError(ErrReconnectExhausted)
		}
		return
	}

	c.logger.Info("scheduling reconnect",
		"attempt", attempt,
		"max_attempts", c.cfg.ReconnectAttempts,
		"delay", delay)

	time.AfterFunc(delay, func() {
		c.mu.RLock()
		closing := c.closing
		c.mu.RUnlock()
		if closing {
			return
		}
		if err := c.Connect(context.Background()); err != nil {
			c.logger.Warn("reconnect failed", "error", err)
			c.scheduleReconnect()
		}
	})
}

// nextReconnect claims the next attempt number and returns its delay.
// ok is false when attempts are exhausted or the client is closing.
func (c *Client) nextReconnect() (delay time.Duration, attempt int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return 0, 0, false
	}
	c.attempts++
	if c.attempts > c.cfg.ReconnectAttempts {
		return 0, c.attempts, false
	}
	return backoffDelay(c.cfg.ReconnectDelay, c.attempts), c.attempts, true
}

// backoffDelay returns the delay before the given 1-based attempt:
// base, 2*base, 4*base, ...
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// handleInbound routes one inbound frame by its tag. Malformed or
// unknown frames are logged and dropped, never fatal.
func (c *Client) handleInbound(data []byte) {
	msg, err := protocol.ParseInbound(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			c.logger.Debug("ignoring message", "error", err)
		} else {
			c.logger.Warn("dropping malformed message", "error", err)
		}
		return
	}

	switch m := msg.(type) {
	case protocol.AudioChunkIn:
		format := m.Format
		if format == pcm.FormatAuto {
			format = pcm.Sniff(m.Data)
		}
		c.logger.Debug("reply audio received",
			"bytes", len(m.Data),
			"format", format)
		// New server audio always supersedes whatever is playing.
		c.queue.StopAllNow()
		c.queue.Enqueue(m.Data, format)
		c.emitAudio(m.Data, format)

	case protocol.FunctionCall:
		changed := c.form.Apply(m.Updates)
		c.logger.Info("function call applied",
			"name", m.Name,
			"call_id", m.CallID,
			"updates", len(m.Updates),
			"changed", len(changed))
		c.emitFunctionCall(m, changed)

	case protocol.Transcript:
		c.emitTranscript(m.Text)

	case protocol.ServerError:
		c.logger.Warn("server reported error", "message", m.Message)
		c.emitError(fmt.Errorf("%w: %s", ErrServer, m.Message))
	}
}

// StartRecording opens the capture device and begins a recording
// session. Any active playback is stopped first to prevent the speaker
// feeding the microphone.
func (c *Client) StartRecording(ctx context.Context) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.source != nil {
		return ErrAlreadyRecording
	}

	c.queue.StopAllNow()

	src := c.cfg.captureSource
	if src == nil {
		capCfg := capture.DefaultConfig()
		capCfg.Backend = capture.Backend(c.cfg.CaptureBackend)
		capCfg.SampleRate = c.cfg.SampleRate
		var err error
		src, err = capture.NewSource(capCfg, c.cfg.Logger)
		if err != nil {
			c.emitError(err)
			return err
		}
	}

	if err := c.rec.Start(); err != nil {
		return err
	}

	acc := capture.NewAccumulator(src.Config().ChunkSize())

	if err := src.Start(ctx); err != nil {
		c.rec.Abort()
		c.emitError(err)
		return fmt.Errorf("voiceclient: capture start: %w", err)
	}

	done := make(chan struct{})
	c.source = src
	c.acc = acc
	c.pumpDone = done

	go c.pump(src, acc, done)

	c.logger.Info("recording started",
		"mode", c.cfg.Mode,
		"backend", src.Name())
	return nil
}

// pump moves frames from the source into the accumulator and chunks
// from the accumulator into the recorder. It exits when the source's
// frame channel closes; any chunks still queued at that point are
// drained by StopRecording after the pump is done.
func (c *Client) pump(src capture.Source, acc *capture.Accumulator, done chan struct{}) {
	defer close(done)
	for {
		select {
		case frame, ok := <-src.Frames():
			if !ok {
				return
			}
			acc.Ingest(frame)
		case chunk := <-acc.Chunks():
			c.rec.OnChunk(chunk)
		}
	}
}

// StopRecording ends the session and delivers the audio. The returned
// error may be a quality-gate rejection (see IsQualityGate), meaning
// nothing was sent.
func (c *Client) StopRecording() error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.source == nil {
		return ErrNotRecording
	}

	err := c.teardownCaptureLocked(true)

	if err != nil && !IsQualityGate(err) {
		c.emitError(err)
	}
	return err
}

// CancelRecording ends the session and discards its audio.
func (c *Client) CancelRecording() {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.source == nil {
		return
	}
	_ = c.teardownCaptureLocked(false)
}

// abortCapture discards any active session, used on connection teardown.
func (c *Client) abortCapture() {
	c.CancelRecording()
}

// teardownCaptureLocked stops the capture pipeline, drains it, and
// either finishes the recording session (finish=true) or aborts it.
func (c *Client) teardownCaptureLocked(finish bool) error {
	src := c.source
	acc := c.acc
	done := c.pumpDone
	c.source = nil
	c.acc = nil
	c.pumpDone = nil

	if !finish {
		// Abort first so chunks still in flight are dropped.
		c.rec.Abort()
	}

	if err := src.Stop(); err != nil {
		c.logger.Warn("capture stop failed", "error", err)
	}
	<-done

	// The pump has exited; flush the sub-chunk remainder and hand any
	// chunks still buffered in the channel to the recorder.
	acc.Flush()
	for {
		select {
		case chunk := <-acc.Chunks():
			c.rec.OnChunk(chunk)
			continue
		default:
		}
		break
	}

	if closeErr := src.Close(); closeErr != nil {
		c.logger.Warn("capture close failed", "error", closeErr)
	}

	if !finish {
		c.logger.Info("recording cancelled")
		return nil
	}

	c.logger.Info("recording stopped")
	return c.rec.Stop()
}

// IsRecording reports whether a recording session is active.
func (c *Client) IsRecording() bool {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	return c.source != nil
}

// IsPlaying reports whether reply audio is playing or queued.
func (c *Client) IsPlaying() bool {
	return c.queue.IsPlaying()
}

// StopPlayback hard-stops all current and queued playback.
func (c *Client) StopPlayback() {
	c.queue.StopAllNow()
}

// Metrics returns message counters for the connection.
func (c *Client) Metrics() (sent, received int64) {
	return c.messagesSent.Load(), c.messagesReceived.Load()
}

// OnConnectionState sets the connection state callback.
func (c *Client) OnConnectionState(fn func(state ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnState = fn
}

// OnTranscript sets the transcript callback.
func (c *Client) OnTranscript(fn func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscript = fn
}

// OnFunctionCall sets the function call callback. changed lists the
// form fields the call actually modified.
func (c *Client) OnFunctionCall(fn func(call protocol.FunctionCall, changed []string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFunctionCall = fn
}

// OnAudio sets the raw reply-audio observer. The queue plays the audio
// regardless; this is for taps such as recording replies to disk.
func (c *Client) OnAudio(fn func(data []byte, format pcm.Format)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudio = fn
}

// OnPlaybackState sets the playback state callback.
func (c *Client) OnPlaybackState(fn func(playing bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPlayback = fn
}

// OnError sets the error callback.
func (c *Client) OnError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

func (c *Client) emitConnState(state ConnectionState) {
	c.mu.RLock()
	fn := c.onConnState
	c.mu.RUnlock()
	if fn != nil {
		fn(state)
	}
}

func (c *Client) emitTranscript(text string) {
	c.mu.RLock()
	fn := c.onTranscript
	c.mu.RUnlock()
	if fn != nil {
		fn(text)
	}
}

func (c *Client) emitFunctionCall(call protocol.FunctionCall, changed []string) {
	c.mu.RLock()
	fn := c.onFunctionCall
	c.mu.RUnlock()
	if fn != nil {
		fn(call, changed)
	}
}

func (c *Client) emitAudio(data []byte, format pcm.Format) {
	c.mu.RLock()
	fn := c.onAudio
	c.mu.RUnlock()
	if fn != nil {
		fn(data, format)
	}
}

func (c *Client) emitPlayback(playing bool) {
	c.mu.RLock()
	fn := c.onPlayback
	c.mu.RUnlock()
	if fn != nil {
		fn(playing)
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	fn := c.onError
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
