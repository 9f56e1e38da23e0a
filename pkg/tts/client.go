package tts

import (
	"context"

	"go.uber.org/zap"

	"github.com/talktopc/voice-sdk-go/pkg/common"
)

// Client bundles the three TTS transports behind one configuration.
type Client struct {
	cfg    common.Config
	logger *zap.Logger
	rest   *RestClient
	stream *StreamClient
}

// NewClient creates a TTS client. logger may be nil.
func NewClient(cfg common.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.Normalize()
	return &Client{
		cfg:    cfg,
		logger: logger,
		rest:   NewRestClient(cfg, logger),
		stream: NewStreamClient(cfg, logger),
	}
}

// Synthesize performs a blocking REST synthesis and returns the full
// response with metadata.
func (c *Client) Synthesize(ctx context.Context, request Request) (*Response, error) {
	return c.rest.Synthesize(ctx, request)
}

// TextToSpeech is the simplest call: synthesize text with a voice and return
// the complete audio bytes.
func (c *Client) TextToSpeech(ctx context.Context, text string, voiceID string) ([]byte, error) {
	request, err := NewRequest(text, voiceID)
	if err != nil {
		return nil, err
	}
	response, err := c.rest.Synthesize(ctx, request)
	if err != nil {
		return nil, err
	}
	return response.Audio, nil
}

// Stream performs an SSE synthesis, delivering chunks through callbacks. It
// blocks until the stream ends.
func (c *Client) Stream(ctx context.Context, request Request, callbacks StreamCallbacks) error {
	return c.stream.Stream(ctx, request, callbacks)
}

// NewWebSocket returns a websocket streaming client sharing this client's
// configuration. Each websocket client owns one connection.
func (c *Client) NewWebSocket(callbacks WSCallbacks) *WSClient {
	return NewWSClient(c.cfg, callbacks, c.logger)
}

// SynthesizeWebSocket connects a fresh websocket for the request's voice,
// sends the request and returns the client so the caller can Close it when
// the completion callback fires.
func (c *Client) SynthesizeWebSocket(ctx context.Context, request Request, callbacks WSCallbacks) (*WSClient, error) {
	client := c.NewWebSocket(callbacks)
	if err := client.ConnectAndSynthesize(ctx, request); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
