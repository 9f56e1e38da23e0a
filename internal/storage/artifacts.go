// Package storage persists synthesized audio for the CLI: one raw audio file
// plus a JSON sidecar with the format and synthesis metadata per artifact.
package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talktopc/voice-sdk-go/pkg/audio"
)

// Artifact describes one saved synthesis result.
type Artifact struct {
	UID            string       `json:"uid"`
	VoiceID        string       `json:"voice_id"`
	Format         audio.Format `json:"format"`
	SizeBytes      int          `json:"size_bytes"`
	DurationMs     int64        `json:"duration_ms,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	CreatedAt      string       `json:"created_at"`
}

var safeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)

// Store writes artifacts under a base directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("artifact dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Save writes the audio bytes and their metadata sidecar, returning the
// stored artifact. UIDs are timestamped so a directory listing sorts
// chronologically.
func (s *Store) Save(voiceID string, format audio.Format, data []byte, durationMs int64, conversationID string) (Artifact, error) {
	uid := time.Now().Format("2006-01-02_15-04-05") + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	artifact := Artifact{
		UID:            uid,
		VoiceID:        voiceID,
		Format:         format,
		SizeBytes:      len(data),
		DurationMs:     durationMs,
		ConversationID: conversationID,
		CreatedAt:      time.Now().Format(time.RFC3339),
	}

	if err := os.WriteFile(s.audioPath(uid, format), data, 0o644); err != nil {
		return Artifact{}, err
	}
	meta, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return Artifact{}, err
	}
	if err := os.WriteFile(s.metaPath(uid), meta, 0o644); err != nil {
		return Artifact{}, err
	}
	return artifact, nil
}

// AudioPath returns the on-disk location of an artifact's audio file.
func (s *Store) AudioPath(artifact Artifact) string {
	return s.audioPath(artifact.UID, artifact.Format)
}

// List returns all stored artifacts, newest first. Unreadable sidecars are
// skipped.
func (s *Store) List() []Artifact {
	artifacts := []Artifact{}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return artifacts
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var artifact Artifact
		if err := json.Unmarshal(data, &artifact); err != nil {
			continue
		}
		artifacts = append(artifacts, artifact)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].UID > artifacts[j].UID
	})
	return artifacts
}

// Delete removes an artifact and its sidecar. It reports whether anything
// was removed.
func (s *Store) Delete(uid string) bool {
	if !safeNamePattern.MatchString(uid) {
		return false
	}
	data, err := os.ReadFile(s.metaPath(uid))
	if err != nil {
		return false
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return false
	}
	removed := os.Remove(s.audioPath(uid, artifact.Format)) == nil
	removed = os.Remove(s.metaPath(uid)) == nil || removed
	return removed
}

func (s *Store) audioPath(uid string, format audio.Format) string {
	ext := ".raw"
	if format.Container == audio.ContainerWAV {
		ext = ".wav"
	}
	return filepath.Join(s.dir, uid+ext)
}

func (s *Store) metaPath(uid string) string {
	return filepath.Join(s.dir, uid+".json")
}
