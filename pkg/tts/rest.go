package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/talktopc/voice-sdk-go/pkg/common"
)

const synthesizePath = "/api/v1/tts/synthesize"

// RestClient performs blocking whole-audio synthesis via
// POST /api/v1/tts/synthesize.
type RestClient struct {
	cfg    common.Config
	client *http.Client
	logger *zap.Logger
}

// NewRestClient creates a REST client. logger may be nil.
func NewRestClient(cfg common.Config, logger *zap.Logger) *RestClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.Normalize()
	return &RestClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.ReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		},
		logger: logger,
	}
}

// Synthesize converts text to speech and returns the complete audio with its
// metadata. The call blocks for the duration of the remote synthesis.
func (c *RestClient) Synthesize(ctx context.Context, request Request) (*Response, error) {
	body, err := json.Marshal(request.wire(true))
	if err != nil {
		return nil, common.NewProtocolError("encode synthesize request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+synthesizePath, bytes.NewReader(body))
	if err != nil {
		return nil, common.NewTransportError(-1, "build synthesize request: "+err.Error(), err)
	}
	httpReq.Header.Set("Authorization", c.cfg.AuthHeader())
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("tts synthesize request",
		zap.String("voice_id", request.VoiceID),
		zap.Int("text_len", len(request.Text)),
		zap.String("output_format", request.Output.String()),
	)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, common.NewTransportError(-1, "synthesize request failed: "+err.Error(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.NewTransportError(-1, "read synthesize response: "+err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := decodeErrorBody(resp.StatusCode, respBody)
		c.logger.Warn("tts synthesize failed",
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return nil, apiErr
	}

	response, err := decodeSynthesizeResponse(respBody)
	if err != nil {
		return nil, err
	}

	c.logger.Info("tts synthesize completed",
		zap.String("conversation_id", response.ConversationID),
		zap.Int("audio_bytes", len(response.Audio)),
		zap.Int64("duration_ms", response.DurationMs),
	)
	return response, nil
}
