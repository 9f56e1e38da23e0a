package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/talktopc/voice-sdk-go/internal/session/fsm"
	"github.com/talktopc/voice-sdk-go/pkg/common"
)

const wsStreamPath = "/api/v1/tts/stream/"

// WSCallbacks receives websocket stream events. Callbacks run on the read
// loop goroutine, in the order messages arrive.
type WSCallbacks struct {
	OnChunk    func(chunk []byte)
	OnComplete func(metadata StreamMetadata)
	OnError    func(err error)
}

// WSClient streams synthesis over a websocket connected to
// /api/v1/tts/stream/{voiceId}. Binary frames are raw audio passed through
// untouched; text frames carry JSON control messages.
type WSClient struct {
	cfg       common.Config
	logger    *zap.Logger
	callbacks WSCallbacks
	state     *fsm.Machine

	mu        sync.Mutex
	conn      *websocket.Conn
	voiceID   string
	completed bool
	inflight  *connectAttempt

	writeMu sync.Mutex
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

// NewWSClient creates a websocket client. logger may be nil.
func NewWSClient(cfg common.Config, callbacks WSCallbacks, logger *zap.Logger) *WSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSClient{
		cfg:       cfg.Normalize(),
		logger:    logger,
		callbacks: callbacks,
		state:     fsm.New(),
	}
}

// Connect dials the stream endpoint for voiceID and starts the read loop.
// It returns once the transport is open. A concurrent Connect while an
// attempt is in flight attaches to that attempt instead of dialing twice.
func (c *WSClient) Connect(ctx context.Context, voiceID string) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
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
	c.voiceID = voiceID
	c.completed = false
	_ = c.state.To(fsm.StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx, voiceID)

	c.mu.Lock()
	c.inflight = nil
	if err != nil {
		_ = c.state.To(fsm.StateFailed)
		attempt.err = err
		c.mu.Unlock()
		close(attempt.done)
		return err
	}
	if c.state.State() == fsm.StateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		attempt.err = common.NewStateError("client closed during connect")
		close(attempt.done)
		return attempt.err
	}
	// The session stays in connecting until the first audio-bearing message.
	c.conn = conn
	c.mu.Unlock()

	close(attempt.done)
	c.logger.Info("tts websocket connected", zap.String("voice_id", voiceID))
	go c.readLoop(conn)
	return nil
}

func (c *WSClient) dial(ctx context.Context, voiceID string) (*websocket.Conn, error) {
	url := c.cfg.WebsocketBaseURL() + wsStreamPath + voiceID

	headers := http.Header{}
	if c.cfg.APIKey != "" {
		headers.Set("Authorization", c.cfg.AuthHeader())
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		status := -1
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, common.NewTransportError(status, "websocket dial failed: "+err.Error(), err)
	}
	return conn, nil
}

// Synthesize sends the synthesis request on the open connection. The voiceId
// travels in the URL, so the payload carries only text and format fields. It
// is a state error to call Synthesize before Connect.
func (c *WSClient) Synthesize(request Request) error {
	c.mu.Lock()
	conn := c.conn
	voiceID := c.voiceID
	c.mu.Unlock()

	if conn == nil {
		return common.NewStateError("websocket not connected")
	}
	if request.VoiceID != voiceID {
		return common.NewValidationError("voice id mismatch: connected with %q, request has %q", voiceID, request.VoiceID)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(request.wire(false)); err != nil {
		return common.NewTransportError(-1, "send synthesize request: "+err.Error(), err)
	}
	return nil
}

// ConnectAndSynthesize connects for the request's voice and sends the
// request in one call.
func (c *WSClient) ConnectAndSynthesize(ctx context.Context, request Request) error {
	if err := c.Connect(ctx, request.VoiceID); err != nil {
		return err
	}
	return c.Synthesize(request)
}

// IsConnected reports whether the transport is currently open.
func (c *WSClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears down the connection. It is idempotent and safe from any state;
// no callbacks fire after it returns.
func (c *WSClient) Close() {
	if !c.state.Close() {
		return
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(conn, err)
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			_ = c.state.To(fsm.StateStreaming)
			if c.callbacks.OnChunk != nil {
				c.callbacks.OnChunk(data)
			}
		case websocket.TextMessage:
			c.handleTextMessage(data)
		}
	}
}

func (c *WSClient) handleReadError(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn == conn {
		_ = c.conn.Close()
		c.conn = nil
	}
	closed := c.state.State() == fsm.StateClosed
	c.mu.Unlock()

	if closed {
		return
	}
	// A normal closure is the expected end of stream after the done message.
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return
	}
	_ = c.state.To(fsm.StateFailed)
	c.logger.Warn("tts websocket closed abnormally", zap.Error(err))
	c.reportError(common.NewTransportError(-1, "websocket closed: "+err.Error(), err))
}

// handleTextMessage decodes one JSON control frame. Unknown types are
// ignored; malformed payloads become protocol errors without ending the
// stream.
func (c *WSClient) handleTextMessage(data []byte) {
	var wire wireStreamEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		c.reportError(common.NewProtocolError("malformed websocket message", err))
		return
	}

	switch wire.Type {
	case "audio_chunk":
		if wire.Chunk == "" {
			c.reportError(common.NewProtocolError("audio_chunk message missing chunk field", nil))
			return
		}
		chunk, err := base64.StdEncoding.DecodeString(wire.Chunk)
		if err != nil {
			c.reportError(common.NewProtocolError("audio chunk is not valid base64", err))
			return
		}
		_ = c.state.To(fsm.StateStreaming)
		if c.callbacks.OnChunk != nil {
			c.callbacks.OnChunk(chunk)
		}
	case "done":
		c.mu.Lock()
		already := c.completed
		c.completed = true
		c.mu.Unlock()
		if already {
			return
		}
		// A done with no preceding audio still passes through streaming.
		_ = c.state.To(fsm.StateStreaming)
		_ = c.state.To(fsm.StateCompleted)
		metadata := wire.metadata()
		c.logger.Info("tts websocket stream completed",
			zap.String("conversation_id", metadata.ConversationID),
			zap.Int64("total_bytes", metadata.TotalBytes),
		)
		if c.callbacks.OnComplete != nil {
			c.callbacks.OnComplete(metadata)
		}
	case "error":
		message := wire.Error
		if message == "" {
			message = "unknown error"
		}
		c.reportError(common.NewProtocolError(message, nil))
	}
}

func (c *WSClient) reportError(err error) {
	if c.state.State() == fsm.StateClosed {
		return
	}
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(err)
	}
}
