// Package config loads the voicectl configuration: built-in defaults, an
// optional yaml file and TTP_-prefixed environment variables, in that order.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/talktopc/voice-sdk-go/internal/logger"
	"github.com/talktopc/voice-sdk-go/pkg/agent"
	"github.com/talktopc/voice-sdk-go/pkg/common"
)

// VoiceConfig selects the default voice and delivery shape for TTS commands.
type VoiceConfig struct {
	ID              string  `mapstructure:"id"`
	Speed           float64 `mapstructure:"speed"`
	Profile         string  `mapstructure:"profile"`
	FrameDurationMs int     `mapstructure:"frame_duration_ms"`
}

// AgentConfig carries the conversational session settings.
type AgentConfig struct {
	WebsocketURL      string `mapstructure:"websocket_url"`
	AgentID           string `mapstructure:"agent_id"`
	AppID             string `mapstructure:"app_id"`
	InputProfile      string `mapstructure:"input_profile"`
	OutputProfile     string `mapstructure:"output_profile"`
	FrameDurationMs   int    `mapstructure:"frame_duration_ms"`
	AutoReconnect     bool   `mapstructure:"auto_reconnect"`
	ReconnectDelaySec int    `mapstructure:"reconnect_delay_sec"`
}

// Config is the full voicectl configuration tree.
type Config struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	ConnectTimeoutSec int           `mapstructure:"connect_timeout_sec"`
	ReadTimeoutSec    int           `mapstructure:"read_timeout_sec"`
	ProfilesPath      string        `mapstructure:"profiles_path"`
	OutputDir         string        `mapstructure:"output_dir"`
	Voice             VoiceConfig   `mapstructure:"voice"`
	Agent             AgentConfig   `mapstructure:"agent"`
	Log               logger.Config `mapstructure:"log"`
}

// Load reads configuration. configPath may be empty, in which case
// voicectl.yaml is looked up in the working directory and
// ~/.config/voicectl/; a missing file is not an error.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("ttp")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := strings.TrimSpace(configPath)
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, err
		}
		v.SetConfigFile(absPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	} else {
		v.SetConfigName("voicectl")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "voicectl"))
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "https://api.talktopc.com")
	v.SetDefault("connect_timeout_sec", 30)
	v.SetDefault("read_timeout_sec", 120)
	v.SetDefault("profiles_path", "")
	v.SetDefault("output_dir", "./data/audio")
	v.SetDefault("voice.id", "")
	v.SetDefault("voice.speed", 1.0)
	v.SetDefault("voice.profile", "")
	v.SetDefault("voice.frame_duration_ms", 0)
	v.SetDefault("agent.websocket_url", "")
	v.SetDefault("agent.agent_id", "")
	v.SetDefault("agent.app_id", "")
	v.SetDefault("agent.input_profile", "")
	v.SetDefault("agent.output_profile", "")
	v.SetDefault("agent.frame_duration_ms", 0)
	v.SetDefault("agent.auto_reconnect", true)
	v.SetDefault("agent.reconnect_delay_sec", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.name", "voicectl.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)
}

// ClientConfig maps the loaded tree onto the SDK client configuration.
func (c Config) ClientConfig() common.Config {
	return common.Config{
		APIKey:         c.APIKey,
		BaseURL:        c.BaseURL,
		ConnectTimeout: time.Duration(c.ConnectTimeoutSec) * time.Second,
		ReadTimeout:    time.Duration(c.ReadTimeoutSec) * time.Second,
	}
}

// AgentClientConfig maps the agent section onto the SDK agent configuration.
// Format profiles are resolved by the caller and filled in afterwards.
func (c Config) AgentClientConfig() agent.Config {
	return agent.Config{
		WebsocketURL:    c.Agent.WebsocketURL,
		AgentID:         c.Agent.AgentID,
		AppID:           c.Agent.AppID,
		APIKey:          c.APIKey,
		FrameDurationMs: c.Agent.FrameDurationMs,
		AutoReconnect:   c.Agent.AutoReconnect,
		ReconnectDelay:  time.Duration(c.Agent.ReconnectDelaySec) * time.Second,
	}
}
