package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/talktopc/voice-sdk-go/internal/session/fsm"
	"github.com/talktopc/voice-sdk-go/pkg/audio"
	"github.com/talktopc/voice-sdk-go/pkg/common"
)

// Client is one conversational voice session. Audio and message delivery
// happen on the read-loop goroutine; sends may be called from any goroutine.
type Client struct {
	cfg       Config
	logger    *zap.Logger
	listeners *registry
	state     *fsm.Machine

	mu             sync.Mutex
	conn           *websocket.Conn
	negotiated     *audio.Format
	ackSeen        bool
	inflight       *connectAttempt
	reconnectTimer *time.Timer

	writeMu sync.Mutex
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

// NewClient creates an agent client. logger may be nil.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:       cfg.normalize(),
		logger:    logger,
		listeners: &registry{},
		state:     fsm.New(),
	}
}

// Listener registration. Listeners added mid-session take effect on the next
// dispatched event.

// OnAudio registers a listener for raw pass-through audio bytes.
func (c *Client) OnAudio(fn func(data []byte)) {
	c.listeners.addAudio(func(data []byte, _ *audio.Format) { fn(data) })
}

// OnAudioWithFormat registers an audio listener that also receives the
// negotiated format; the format is nil for audio delivered before the server
// acknowledged negotiation.
func (c *Client) OnAudioWithFormat(fn AudioListener) {
	c.listeners.addAudio(fn)
}

// OnFormatNegotiated registers a listener fired when the server confirms the
// output format.
func (c *Client) OnFormatNegotiated(fn func(format audio.Format)) {
	c.listeners.addFormat(fn)
}

// OnMessage registers a listener for the JSON message channel. Every parsed
// text frame is delivered, including the negotiation acknowledgement.
func (c *Client) OnMessage(fn func(message Message)) {
	c.listeners.addMessage(fn)
}

// OnConnected registers a listener fired when the transport opens.
func (c *Client) OnConnected(fn func()) {
	c.listeners.addConnected(fn)
}

// OnDisconnected registers a listener fired once per connection teardown.
func (c *Client) OnDisconnected(fn func()) {
	c.listeners.addDisconnected(fn)
}

// OnError registers a listener for transport and protocol errors.
func (c *Client) OnError(fn func(err error)) {
	c.listeners.addError(fn)
}

// Connect dials the agent endpoint and sends the negotiation hello. It
// returns once the transport is open; negotiation completes asynchronously
// and is reported through OnFormatNegotiated. A concurrent Connect attaches
// to the in-flight attempt instead of opening a second connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		c.logger.Warn("agent connect ignored, already connected")
		return nil
	}
	if c.inflight != nil {
		attempt := c.inflight
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-attempt.done:
			return attempt.err
		}
	}
	if c.state.State() == fsm.StateClosed {
		c.mu.Unlock()
		return common.NewStateError("client is closed")
	}
	attempt := &connectAttempt{done: make(chan struct{})}
	c.inflight = attempt
	_ = c.state.To(fsm.StateConnecting)
	c.mu.Unlock()

	err := c.connectOnce(ctx)

	c.mu.Lock()
	c.inflight = nil
	if err != nil {
		_ = c.state.To(fsm.StateFailed)
	}
	c.mu.Unlock()

	attempt.err = err
	close(attempt.done)
	return err
}

func (c *Client) connectOnce(ctx context.Context) error {
	endpoint, err := c.cfg.endpoint()
	if err != nil || endpoint == "" {
		return common.NewValidationError("invalid websocket url %q", c.cfg.WebsocketURL)
	}

	headers := http.Header{}
	headers.Set("Client-Id", c.cfg.ClientID)
	if c.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	c.logger.Info("agent connecting",
		zap.String("endpoint", endpoint),
		zap.String("client_id", c.cfg.ClientID),
		zap.Int("protocol_version", c.cfg.ProtocolVersion),
	)

	dialer := websocket.Dialer{}
	conn, resp, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		status := -1
		if resp != nil {
			status = resp.StatusCode
		}
		dialErr := common.NewTransportError(status, "agent dial failed: "+err.Error(), err)
		c.listeners.notifyError(dialErr)
		return dialErr
	}

	c.mu.Lock()
	if c.state.State() == fsm.StateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return common.NewStateError("client closed during connect")
	}
	c.conn = conn
	c.negotiated = nil
	c.ackSeen = false
	_ = c.state.To(fsm.StateNegotiating)
	c.mu.Unlock()

	c.listeners.notifyConnected()

	// A hello that cannot be written means the transport is unusable: tear
	// it down so the failed Connect leaves no half-open session behind.
	if err := c.sendHello(); err != nil {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
		c.listeners.notifyError(err)
		return err
	}

	go c.readLoop(conn)
	return nil
}

func (c *Client) sendHello() error {
	hello := helloMessage(c.cfg)
	c.logger.Info("agent hello sent",
		zap.String("input_format", c.cfg.InputFormat.String()),
		zap.String("requested_output_format", c.cfg.OutputFormat.String()),
		zap.Int("frame_duration_ms", c.cfg.FrameDurationMs),
	)
	return c.writeJSON(hello)
}

// SendAudio transmits one audio frame in the configured input format. When
// the session is not connected the frame is dropped with a warning; racing a
// send against connection setup is never an error.
func (c *Client) SendAudio(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.logger.Warn("agent send audio skipped, not connected")
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		sendErr := common.NewTransportError(-1, "send audio: "+err.Error(), err)
		c.listeners.notifyError(sendErr)
		return sendErr
	}
	return nil
}

// SendMessage transmits one JSON application message. Like SendAudio it is a
// warn-and-noop when the session is not connected.
func (c *Client) SendMessage(payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.logger.Warn("agent send message skipped, not connected")
		return nil
	}
	if err := c.writeJSON(payload); err != nil {
		c.listeners.notifyError(err)
		return err
	}
	return nil
}

func (c *Client) writeJSON(payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return common.NewStateError("agent connection not ready")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(payload); err != nil {
		return common.NewTransportError(-1, "send message: "+err.Error(), err)
	}
	return nil
}

// NegotiatedFormat returns the server-confirmed output format, or nil before
// the acknowledgement arrives.
func (c *Client) NegotiatedFormat() *audio.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiated
}

// IsConnected reports whether the transport is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears down the session. It is idempotent, cancels any pending
// reconnect attempt, and no events fire after the teardown completes.
func (c *Client) Close() {
	if !c.state.Close() {
		return
	}
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	c.logger.Info("agent client closed")
}

func (c *Client) readLoop(conn *websocket.Conn) {
	var readErr error
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		switch msgType {
		case websocket.BinaryMessage:
			c.handleAudioFrame(data)
		case websocket.TextMessage:
			c.handleTextMessage(data)
		}
	}
	c.handleDisconnect(conn, readErr)
}

// handleAudioFrame delivers audio exactly as received. Frames arriving
// before the hello acknowledgement carry a nil format and are never dropped.
func (c *Client) handleAudioFrame(data []byte) {
	if len(data) == 0 {
		return
	}
	c.mu.Lock()
	format := c.negotiated
	c.mu.Unlock()
	_ = c.state.To(fsm.StateStreaming)
	c.listeners.notifyAudio(data, format)
}

func (c *Client) handleTextMessage(data []byte) {
	var envelope struct {
		T string `json:"t"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.listeners.notifyError(common.NewProtocolError("malformed agent message", err))
		return
	}

	if envelope.T == "hello_ack" {
		c.handleHelloAck(data)
	}

	c.listeners.notifyMessage(Message{T: envelope.T, Raw: json.RawMessage(data)})
}

func (c *Client) handleHelloAck(data []byte) {
	var ack wireHelloAck
	if err := json.Unmarshal(data, &ack); err != nil {
		c.listeners.notifyError(common.NewProtocolError("malformed hello_ack", err))
		return
	}
	if ack.OutputAudioFormat == nil {
		c.listeners.notifyError(common.NewProtocolError("hello_ack missing outputAudioFormat", nil))
		return
	}

	format := audio.Format{
		Container:  audio.NormalizeContainer(ack.OutputAudioFormat.Container),
		Encoding:   audio.NormalizeEncoding(ack.OutputAudioFormat.Encoding),
		SampleRate: ack.OutputAudioFormat.SampleRate,
		BitDepth:   ack.OutputAudioFormat.BitDepth,
		Channels:   ack.OutputAudioFormat.Channels,
	}
	if err := format.Validate(); err != nil {
		c.listeners.notifyError(common.NewProtocolError("hello_ack format invalid: "+err.Error(), err))
		return
	}

	c.mu.Lock()
	first := !c.ackSeen
	c.ackSeen = true
	c.negotiated = &format
	_ = c.state.To(fsm.StateStreaming)
	c.mu.Unlock()

	c.logger.Info("agent format negotiated", zap.String("output_format", format.String()))
	if first {
		c.listeners.notifyFormat(format)
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn == conn {
		_ = c.conn.Close()
		c.conn = nil
	}
	closed := c.state.State() == fsm.StateClosed
	c.mu.Unlock()

	c.listeners.notifyDisconnected()

	if closed {
		return
	}

	normal := websocket.IsCloseError(err, websocket.CloseNormalClosure)
	if normal {
		c.logger.Info("agent connection closed normally")
		return
	}

	_ = c.state.To(fsm.StateFailed)
	c.logger.Warn("agent connection lost", zap.Error(err))
	c.listeners.notifyError(common.NewTransportError(-1, "connection lost: "+err.Error(), err))

	if c.cfg.AutoReconnect {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms a single fixed-delay reconnect attempt. A later
// abnormal close schedules the next one, so attempts chain without a retry
// ceiling; Close cancels whatever is pending.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.State() == fsm.StateClosed || c.reconnectTimer != nil {
		return
	}
	c.logger.Info("agent auto-reconnect scheduled", zap.Duration("delay", c.cfg.ReconnectDelay))
	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		closed := c.state.State() == fsm.StateClosed
		c.mu.Unlock()
		if closed {
			return
		}
		if err := c.Connect(context.Background()); err != nil {
			c.logger.Warn("agent auto-reconnect failed", zap.Error(err))
		}
	})
}
