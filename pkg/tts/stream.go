package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/talktopc/voice-sdk-go/internal/transport/sse"
	"github.com/talktopc/voice-sdk-go/pkg/common"
)

const streamPath = "/api/v1/tts/stream"

// StreamCallbacks receives the event sequence of one streaming synthesis:
// zero or more chunks, then exactly one completion or error. Callbacks run on
// the goroutine driving the stream.
type StreamCallbacks struct {
	OnChunk    func(chunk []byte)
	OnComplete func(metadata StreamMetadata)
	OnError    func(err error)
}

func (cb StreamCallbacks) reportError(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// StreamClient streams audio chunks via server-sent events from
// POST /api/v1/tts/stream.
type StreamClient struct {
	cfg    common.Config
	client *http.Client
	logger *zap.Logger
}

// NewStreamClient creates an SSE streaming client. logger may be nil.
func NewStreamClient(cfg common.Config, logger *zap.Logger) *StreamClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.Normalize()
	// No Client.Timeout here: that is a whole-exchange deadline and would
	// cut live streams off mid-flow. Connect and response-header waits are
	// bounded; reading the body is not, so a synthesis may stream for as
	// long as it needs.
	return &StreamClient{
		cfg: cfg,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
				ResponseHeaderTimeout: cfg.ReadTimeout,
			},
		},
		logger: logger,
	}
}

// Stream synthesizes request and delivers audio chunks as they arrive. The
// call blocks for the lifetime of the stream; run it on its own goroutine
// for non-blocking behavior. Structural failures (connection error,
// non-success status, unreadable stream) are returned; a malformed
// individual record is reported through OnError and the stream continues.
func (c *StreamClient) Stream(ctx context.Context, request Request, callbacks StreamCallbacks) error {
	body, err := json.Marshal(request.wire(true))
	if err != nil {
		return common.NewProtocolError("encode stream request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+streamPath, bytes.NewReader(body))
	if err != nil {
		return common.NewTransportError(-1, "build stream request: "+err.Error(), err)
	}
	httpReq.Header.Set("Authorization", c.cfg.AuthHeader())
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return common.NewTransportError(-1, "stream request failed: "+err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return decodeErrorBody(resp.StatusCode, errBody)
	}

	c.logger.Debug("tts stream opened", zap.String("voice_id", request.VoiceID))
	return c.consume(resp.Body, callbacks)
}

// consume drives the SSE decode loop until the stream ends.
func (c *StreamClient) consume(stream io.Reader, callbacks StreamCallbacks) error {
	reader := sse.NewReader(stream)
	chunks := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			c.logger.Debug("tts stream ended", zap.Int("chunks", chunks))
			return nil
		}
		if err != nil {
			return common.NewTransportError(-1, "read stream: "+err.Error(), err)
		}

		switch event.Name {
		case "audio":
			chunk, err := decodeAudioEvent(event.Data)
			if err != nil {
				callbacks.reportError(err)
				continue
			}
			chunks++
			if callbacks.OnChunk != nil {
				callbacks.OnChunk(chunk)
			}
		case "done":
			var wire wireStreamEvent
			if err := json.Unmarshal([]byte(event.Data), &wire); err != nil {
				callbacks.reportError(common.NewProtocolError("malformed done event", err))
				continue
			}
			metadata := wire.metadata()
			c.logger.Info("tts stream completed",
				zap.String("conversation_id", metadata.ConversationID),
				zap.Int64("total_chunks", metadata.TotalChunks),
				zap.Int64("total_bytes", metadata.TotalBytes),
			)
			if callbacks.OnComplete != nil {
				callbacks.OnComplete(metadata)
			}
		case "error":
			var wire wireStreamEvent
			message := event.Data
			if err := json.Unmarshal([]byte(event.Data), &wire); err == nil && wire.Error != "" {
				message = wire.Error
			}
			callbacks.reportError(common.NewProtocolError(message, nil))
		default:
			// Unknown event names never fail the stream.
		}
	}
}

func decodeAudioEvent(data string) ([]byte, error) {
	var wire wireStreamEvent
	if err := json.Unmarshal([]byte(data), &wire); err != nil {
		return nil, common.NewProtocolError("malformed audio event", err)
	}
	if wire.Chunk == "" {
		return nil, common.NewProtocolError("audio event missing chunk field", nil)
	}
	chunk, err := base64.StdEncoding.DecodeString(wire.Chunk)
	if err != nil {
		return nil, common.NewProtocolError("audio chunk is not valid base64", err)
	}
	return chunk, nil
}
