package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talktopc/voice-sdk-go/pkg/audio"
)

// Profile is one named output-format entry from the profiles file.
type Profile struct {
	Container       string `yaml:"container"`
	Encoding        string `yaml:"encoding"`
	SampleRate      int    `yaml:"sample_rate"`
	BitDepth        int    `yaml:"bit_depth"`
	Channels        int    `yaml:"channels"`
	FrameDurationMs int    `yaml:"frame_duration_ms"`
}

type profilesFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// Format converts the profile into a validated audio format.
func (p Profile) Format() (audio.Format, error) {
	format := audio.Format{
		Container:  audio.NormalizeContainer(p.Container),
		Encoding:   audio.NormalizeEncoding(p.Encoding),
		SampleRate: p.SampleRate,
		BitDepth:   p.BitDepth,
		Channels:   p.Channels,
	}
	if format.BitDepth == 0 {
		format.BitDepth = 16
	}
	if format.Channels == 0 {
		format.Channels = 1
	}
	if err := format.Validate(); err != nil {
		return audio.Format{}, err
	}
	return format, nil
}

// LoadProfiles reads named format profiles from a yaml file. An empty path
// yields only the built-in profiles.
func LoadProfiles(path string) (map[string]Profile, error) {
	profiles := builtinProfiles()
	if path == "" {
		return profiles, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var payload profilesFile
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}
	// File entries shadow built-ins of the same name.
	for name, profile := range payload.Profiles {
		profiles[name] = profile
	}
	return profiles, nil
}

// ResolveProfile finds a profile by name and returns its format and frame
// duration hint.
func ResolveProfile(profiles map[string]Profile, name string) (audio.Format, int, error) {
	profile, ok := profiles[name]
	if !ok {
		return audio.Format{}, 0, fmt.Errorf("unknown format profile %q", name)
	}
	format, err := profile.Format()
	if err != nil {
		return audio.Format{}, 0, fmt.Errorf("profile %q: %w", name, err)
	}
	return format, profile.FrameDurationMs, nil
}

func builtinProfiles() map[string]Profile {
	return map[string]Profile{
		"default": {
			Container: "raw", Encoding: "pcm", SampleRate: 16000,
			BitDepth: 16, Channels: 1, FrameDurationMs: 600,
		},
		"phone": {
			Container: "raw", Encoding: "pcmu", SampleRate: 8000,
			BitDepth: 16, Channels: 1, FrameDurationMs: 20,
		},
		"high": {
			Container: "wav", Encoding: "pcm", SampleRate: 44100,
			BitDepth: 16, Channels: 1, FrameDurationMs: 600,
		},
		"standard": {
			Container: "raw", Encoding: "pcm", SampleRate: 22050,
			BitDepth: 16, Channels: 1, FrameDurationMs: 600,
		},
	}
}
