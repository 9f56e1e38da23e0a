// Package common holds the configuration and error types shared by the TTS
// and agent clients.
package common

import (
	"strings"
	"time"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultReadTimeout    = 120 * time.Second
)

// Config carries API credentials and connection settings.
type Config struct {
	APIKey         string
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Normalize fills unset timeouts and strips a trailing slash from the base
// URL.
func (c Config) Normalize() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	return c
}

// AuthHeader returns the Authorization header value for the configured key.
func (c Config) AuthHeader() string {
	return "Bearer " + c.APIKey
}

// WebsocketBaseURL returns the base URL with the scheme swapped to ws/wss.
func (c Config) WebsocketBaseURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
