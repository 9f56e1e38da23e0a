// Package agent is the conversational voice client: a websocket session that
// negotiates an audio format with the remote agent, streams pass-through
// audio in both directions and carries a parallel JSON message channel.
// Received audio is never decoded; PCMU/PCMA telephony bytes are handed to
// the caller exactly as the server sent them.
package agent

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talktopc/voice-sdk-go/pkg/audio"
)

const (
	defaultProtocolVersion = 2
	defaultFrameDurationMs = 600
	defaultReconnectDelay  = 3 * time.Second
)

// Config carries the websocket endpoint, credentials and the format pair
// offered during negotiation.
type Config struct {
	// WebsocketURL is the full ws/wss endpoint. AgentID and AppID are added
	// as query parameters when set.
	WebsocketURL string
	AgentID      string
	AppID        string
	APIKey       string
	// ClientID identifies this client instance; a random id is generated
	// when empty.
	ClientID string

	// InputFormat is what this client will send; OutputFormat is what it
	// asks the server to deliver.
	InputFormat     audio.Format
	OutputFormat    audio.Format
	FrameDurationMs int

	ProtocolVersion int

	// AutoReconnect schedules a single reconnect attempt after
	// ReconnectDelay when the connection closes abnormally. Attempts chain:
	// there is no retry ceiling and no backoff growth.
	AutoReconnect  bool
	ReconnectDelay time.Duration
}

func (c Config) normalize() Config {
	if strings.TrimSpace(c.ClientID) == "" {
		c.ClientID = uuid.NewString()
	}
	if c.InputFormat == (audio.Format{}) {
		c.InputFormat = audio.DefaultOutput()
	}
	if c.OutputFormat == (audio.Format{}) {
		c.OutputFormat = audio.DefaultOutput()
	}
	if c.FrameDurationMs <= 0 {
		c.FrameDurationMs = defaultFrameDurationMs
	}
	if c.ProtocolVersion <= 0 {
		c.ProtocolVersion = defaultProtocolVersion
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	return c
}

func (c Config) endpoint() (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(c.WebsocketURL))
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	if c.AgentID != "" {
		query.Set("agentId", c.AgentID)
	}
	if c.AppID != "" {
		query.Set("appId", c.AppID)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// Message is one JSON frame from the server's message channel, tagged by its
// `t` discriminator. Raw holds the complete payload.
type Message struct {
	T   string
	Raw json.RawMessage
}

// wireFormat is the format object exchanged during negotiation. The input
// side omits container.
type wireFormat struct {
	Container  string `json:"container,omitempty"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	BitDepth   int    `json:"bitDepth"`
	Channels   int    `json:"channels"`
}

type wireHello struct {
	T                     string     `json:"t"`
	V                     int        `json:"v"`
	InputFormat           wireFormat `json:"inputFormat"`
	RequestedOutputFormat wireFormat `json:"requestedOutputFormat"`
	OutputFrameDurationMs int        `json:"outputFrameDurationMs"`
}

func helloMessage(cfg Config) wireHello {
	return wireHello{
		T: "hello",
		V: cfg.ProtocolVersion,
		InputFormat: wireFormat{
			Encoding:   string(cfg.InputFormat.Encoding),
			SampleRate: cfg.InputFormat.SampleRate,
			BitDepth:   cfg.InputFormat.BitDepth,
			Channels:   cfg.InputFormat.Channels,
		},
		RequestedOutputFormat: wireFormat{
			Container:  string(cfg.OutputFormat.Container),
			Encoding:   string(cfg.OutputFormat.Encoding),
			SampleRate: cfg.OutputFormat.SampleRate,
			BitDepth:   cfg.OutputFormat.BitDepth,
			Channels:   cfg.OutputFormat.Channels,
		},
		OutputFrameDurationMs: cfg.FrameDurationMs,
	}
}

type wireHelloAck struct {
	T                 string      `json:"t"`
	OutputAudioFormat *wireFormat `json:"outputAudioFormat"`
}
