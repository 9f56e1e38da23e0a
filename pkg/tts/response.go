package tts

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/talktopc/voice-sdk-go/pkg/common"
)

// Response is the result of a blocking REST synthesis: the full audio plus
// the metadata scalars that accompany it.
type Response struct {
	Audio          []byte
	SampleRate     int
	DurationMs     int64
	AudioSizeBytes int64
	CreditsUsed    float64
	ConversationID string
}

func (r *Response) String() string {
	return fmt.Sprintf("Response{sampleRate=%d, duration=%dms, size=%d bytes, credits=%.2f}",
		r.SampleRate, r.DurationMs, r.AudioSizeBytes, r.CreditsUsed)
}

// StreamMetadata is delivered exactly once when a streaming synthesis
// finishes. Absent numeric fields default to zero, an absent conversation id
// to the empty string.
type StreamMetadata struct {
	ConversationID string
	TotalChunks    int64
	TotalBytes     int64
	DurationMs     int64
	CreditsUsed    float64
}

func (m StreamMetadata) String() string {
	return fmt.Sprintf("StreamMetadata{conversationId=%q, chunks=%d, bytes=%d, duration=%dms, credits=%.2f}",
		m.ConversationID, m.TotalChunks, m.TotalBytes, m.DurationMs, m.CreditsUsed)
}

type wireSynthesizeResponse struct {
	Audio          string  `json:"audio"`
	SampleRate     int     `json:"sampleRate"`
	DurationMs     int64   `json:"durationMs"`
	AudioSizeBytes int64   `json:"audioSizeBytes"`
	CreditsUsed    float64 `json:"creditsUsed"`
	ConversationID string  `json:"conversationId"`
}

// wireStreamEvent covers the JSON payloads of SSE records and websocket text
// frames; each message uses the subset of fields its type names.
type wireStreamEvent struct {
	Type           string  `json:"type"`
	Chunk          string  `json:"chunk"`
	Error          string  `json:"error"`
	ConversationID string  `json:"conversationId"`
	TotalChunks    int64   `json:"totalChunks"`
	TotalBytes     int64   `json:"totalBytes"`
	DurationMs     int64   `json:"durationMs"`
	CreditsUsed    float64 `json:"creditsUsed"`
}

func (e wireStreamEvent) metadata() StreamMetadata {
	return StreamMetadata{
		ConversationID: e.ConversationID,
		TotalChunks:    e.TotalChunks,
		TotalBytes:     e.TotalBytes,
		DurationMs:     e.DurationMs,
		CreditsUsed:    e.CreditsUsed,
	}
}

func decodeSynthesizeResponse(body []byte) (*Response, error) {
	var wire wireSynthesizeResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, common.NewProtocolError("malformed synthesize response", err)
	}
	if wire.Audio == "" {
		return nil, common.NewProtocolError("synthesize response missing audio field", nil)
	}
	decoded, err := base64.StdEncoding.DecodeString(wire.Audio)
	if err != nil {
		return nil, common.NewProtocolError("synthesize response audio is not valid base64", err)
	}
	return &Response{
		Audio:          decoded,
		SampleRate:     wire.SampleRate,
		DurationMs:     wire.DurationMs,
		AudioSizeBytes: wire.AudioSizeBytes,
		CreditsUsed:    wire.CreditsUsed,
		ConversationID: wire.ConversationID,
	}, nil
}

// decodeErrorBody turns a non-success HTTP response into the uniform error
// shape, falling back to the raw body when it is not the documented
// {"error": ...} object.
func decodeErrorBody(statusCode int, body []byte) *common.Error {
	var wire struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != "" {
		return common.NewTransportError(statusCode, wire.Error, nil)
	}
	return common.NewTransportError(statusCode, string(body), nil)
}
