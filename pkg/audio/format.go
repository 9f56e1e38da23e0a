// Package audio defines the audio format descriptor shared by the TTS and
// agent clients. Formats are negotiated with the remote service and carried
// alongside pass-through audio; no decoding happens in this SDK.
package audio

import (
	"fmt"
	"strings"
)

// Container describes the outer audio wrapping.
type Container string

const (
	// ContainerRaw is a headerless sample stream.
	ContainerRaw Container = "raw"
	// ContainerWAV wraps samples in a WAV header.
	ContainerWAV Container = "wav"
)

// Encoding describes the sample representation.
type Encoding string

const (
	// EncodingPCM is linear 16/24-bit PCM.
	EncodingPCM Encoding = "pcm"
	// EncodingPCMU is G.711 mu-law, one byte per sample.
	EncodingPCMU Encoding = "pcmu"
	// EncodingPCMA is G.711 A-law, one byte per sample.
	EncodingPCMA Encoding = "pcma"
)

// Format is an immutable audio format descriptor. The zero value is not a
// valid format; use DefaultOutput or construct all fields together.
type Format struct {
	Container  Container `json:"container"`
	Encoding   Encoding  `json:"encoding"`
	SampleRate int       `json:"sampleRate"`
	BitDepth   int       `json:"bitDepth"`
	Channels   int       `json:"channels"`
}

// DefaultOutput returns the format requested when the caller does not pick
// one: raw 16 kHz mono 16-bit linear PCM.
func DefaultOutput() Format {
	return Format{
		Container:  ContainerRaw,
		Encoding:   EncodingPCM,
		SampleRate: 16000,
		BitDepth:   16,
		Channels:   1,
	}
}

// Telephony returns the format used by VoIP/phone systems: raw 8 kHz mono
// mu-law.
func Telephony() Format {
	return Format{
		Container:  ContainerRaw,
		Encoding:   EncodingPCMU,
		SampleRate: 8000,
		BitDepth:   16,
		Channels:   1,
	}
}

// Validate reports whether all fields form a usable format.
func (f Format) Validate() error {
	switch f.Container {
	case ContainerRaw, ContainerWAV:
	default:
		return fmt.Errorf("invalid container %q", f.Container)
	}
	switch f.Encoding {
	case EncodingPCM, EncodingPCMU, EncodingPCMA:
	default:
		return fmt.Errorf("invalid encoding %q", f.Encoding)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	switch f.BitDepth {
	case 8, 16, 24:
	default:
		return fmt.Errorf("invalid bit depth %d", f.BitDepth)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	return nil
}

// BytesPerFrame returns the expected byte size of one frame of frameMs
// milliseconds. Companded encodings carry one byte per sample regardless of
// bit depth. The value is a streaming hint, not an enforced chunk boundary.
func (f Format) BytesPerFrame(frameMs int) int {
	if frameMs <= 0 || f.SampleRate <= 0 {
		return 0
	}
	samples := f.SampleRate * frameMs / 1000
	bytesPerSample := f.BitDepth / 8
	switch f.Encoding {
	case EncodingPCMU, EncodingPCMA:
		bytesPerSample = 1
	}
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}
	return samples * bytesPerSample * channels
}

// String returns a stable single-line representation for logs.
func (f Format) String() string {
	return fmt.Sprintf("%s/%s %dHz %dbit %dch",
		f.Container, f.Encoding, f.SampleRate, f.BitDepth, f.Channels)
}

// NormalizeEncoding maps loose encoding spellings onto the canonical values.
// Unknown values are lowercased and passed through so new server-side
// encodings do not break parsing.
func NormalizeEncoding(raw string) Encoding {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "pcm", "pcm16", "pcm_s16le":
		return EncodingPCM
	case "pcmu", "ulaw", "mulaw":
		return EncodingPCMU
	case "pcma", "alaw":
		return EncodingPCMA
	default:
		return Encoding(strings.TrimSpace(strings.ToLower(raw)))
	}
}

// NormalizeContainer maps loose container spellings onto canonical values,
// defaulting to raw.
func NormalizeContainer(raw string) Container {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "wav", "wave":
		return ContainerWAV
	case "", "raw":
		return ContainerRaw
	default:
		return Container(strings.TrimSpace(strings.ToLower(raw)))
	}
}
