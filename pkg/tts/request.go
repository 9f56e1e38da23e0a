// Package tts is the text-to-speech client for the TalkToPC API. It exposes
// the same synthesis request over three transports: a blocking REST call, a
// server-sent-events stream and a websocket stream. Audio is always
// delivered exactly as the remote encoder produced it.
package tts

import (
	"strings"

	"github.com/talktopc/voice-sdk-go/pkg/audio"
	"github.com/talktopc/voice-sdk-go/pkg/common"
)

const (
	minSpeed = 0.1
	maxSpeed = 3.0

	defaultFrameDurationMs = 600
)

// Request is a validated synthesis request. Construct it with NewRequest;
// instances are immutable and safe to reuse across transports and retries.
type Request struct {
	Text            string
	VoiceID         string
	Speed           float64
	Output          audio.Format
	FrameDurationMs int
}

// Option adjusts a request before validation.
type Option func(*Request)

// WithSpeed sets the voice speed. Valid range is [0.1, 3.0].
func WithSpeed(speed float64) Option {
	return func(r *Request) { r.Speed = speed }
}

// WithOutputFormat sets the requested output format.
func WithOutputFormat(format audio.Format) Option {
	return func(r *Request) { r.Output = format }
}

// WithFrameDuration sets the streaming frame-duration hint in milliseconds.
func WithFrameDuration(ms int) Option {
	return func(r *Request) { r.FrameDurationMs = ms }
}

// PhoneSystem requests raw 8 kHz mono mu-law in 20 ms frames, the common
// VoIP/telephony configuration.
func PhoneSystem() Option {
	return func(r *Request) {
		r.Output = audio.Telephony()
		r.FrameDurationMs = 20
	}
}

// HighQuality requests WAV-wrapped 44.1 kHz linear PCM.
func HighQuality() Option {
	return func(r *Request) {
		r.Output = audio.Format{
			Container:  audio.ContainerWAV,
			Encoding:   audio.EncodingPCM,
			SampleRate: 44100,
			BitDepth:   16,
			Channels:   1,
		}
	}
}

// StandardQuality requests raw 22.05 kHz linear PCM.
func StandardQuality() Option {
	return func(r *Request) {
		r.Output = audio.Format{
			Container:  audio.ContainerRaw,
			Encoding:   audio.EncodingPCM,
			SampleRate: 22050,
			BitDepth:   16,
			Channels:   1,
		}
	}
}

// NewRequest builds a synthesis request and validates it before any network
// I/O. Defaults: speed 1.0, raw/pcm/16000/16/1 output, 600 ms frames.
func NewRequest(text string, voiceID string, opts ...Option) (Request, error) {
	request := Request{
		Text:            text,
		VoiceID:         voiceID,
		Speed:           1.0,
		Output:          audio.DefaultOutput(),
		FrameDurationMs: defaultFrameDurationMs,
	}
	for _, opt := range opts {
		opt(&request)
	}

	if strings.TrimSpace(request.Text) == "" {
		return Request{}, common.NewValidationError("text is required")
	}
	if strings.TrimSpace(request.VoiceID) == "" {
		return Request{}, common.NewValidationError("voice id is required")
	}
	if request.Speed < minSpeed || request.Speed > maxSpeed {
		return Request{}, common.NewValidationError("speed %.2f out of range [%.1f, %.1f]", request.Speed, minSpeed, maxSpeed)
	}
	if err := request.Output.Validate(); err != nil {
		return Request{}, common.NewValidationError("output format: %v", err)
	}
	if request.FrameDurationMs <= 0 {
		return Request{}, common.NewValidationError("frame duration must be positive, got %d", request.FrameDurationMs)
	}
	return request, nil
}

type wireVoiceSettings struct {
	Speed float64 `json:"speed"`
}

// wireRequest is the JSON body shared by all three transports. The websocket
// transport omits voiceId because it is embedded in the URL path.
type wireRequest struct {
	Text                  string             `json:"text"`
	VoiceID               string             `json:"voiceId,omitempty"`
	VoiceSettings         *wireVoiceSettings `json:"voiceSettings,omitempty"`
	OutputContainer       string             `json:"outputContainer,omitempty"`
	OutputEncoding        string             `json:"outputEncoding,omitempty"`
	OutputSampleRate      int                `json:"outputSampleRate,omitempty"`
	OutputBitDepth        int                `json:"outputBitDepth,omitempty"`
	OutputChannels        int                `json:"outputChannels,omitempty"`
	OutputFrameDurationMs int                `json:"outputFrameDurationMs,omitempty"`
}

func (r Request) wire(includeVoiceID bool) wireRequest {
	payload := wireRequest{
		Text:                  r.Text,
		OutputContainer:       string(r.Output.Container),
		OutputEncoding:        string(r.Output.Encoding),
		OutputSampleRate:      r.Output.SampleRate,
		OutputBitDepth:        r.Output.BitDepth,
		OutputChannels:        r.Output.Channels,
		OutputFrameDurationMs: r.FrameDurationMs,
	}
	if includeVoiceID {
		payload.VoiceID = r.VoiceID
	}
	// The server assumes speed 1.0; the field is sent only when it differs.
	if r.Speed != 1.0 {
		payload.VoiceSettings = &wireVoiceSettings{Speed: r.Speed}
	}
	return payload
}
