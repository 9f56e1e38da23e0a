package tts

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/talktopc/voice-sdk-go/pkg/common"
)

func TestStreamDeliversChunksAndMetadata(t *testing.T) {
	stream := "event: audio\ndata: {\"chunk\":\"AQID\"}\n\n" +
		"event: done\ndata: {\"conversationId\":\"x\",\"totalChunks\":1,\"totalBytes\":3,\"durationMs\":100,\"creditsUsed\":0.05}\n\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept=%q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(stream))
	}))
	defer server.Close()

	var chunks [][]byte
	var completions []StreamMetadata
	client := NewStreamClient(common.Config{APIKey: "k", BaseURL: server.URL}, nil)
	err := client.Stream(context.Background(), newTestRequest(t), StreamCallbacks{
		OnChunk:    func(chunk []byte) { chunks = append(chunks, chunk) },
		OnComplete: func(metadata StreamMetadata) { completions = append(completions, metadata) },
		OnError:    func(err error) { t.Errorf("unexpected stream error: %v", err) },
	})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}

	if len(chunks) != 1 || !bytes.Equal(chunks[0], []byte{1, 2, 3}) {
		t.Fatalf("chunks=%v, want one [1 2 3]", chunks)
	}
	if len(completions) != 1 {
		t.Fatalf("completions=%d, want 1", len(completions))
	}
	metadata := completions[0]
	if metadata.ConversationID != "x" || metadata.TotalChunks != 1 || metadata.TotalBytes != 3 ||
		metadata.DurationMs != 100 || metadata.CreditsUsed != 0.05 {
		t.Fatalf("metadata=%+v", metadata)
	}
}

func TestStreamErrorEvent(t *testing.T) {
	stream := "event: error\ndata: {\"error\":\"bad voice\"}\n\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(stream))
	}))
	defer server.Close()

	var streamErrs []error
	client := NewStreamClient(common.Config{APIKey: "k", BaseURL: server.URL}, nil)
	err := client.Stream(context.Background(), newTestRequest(t), StreamCallbacks{
		OnError: func(err error) { streamErrs = append(streamErrs, err) },
	})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	if len(streamErrs) != 1 {
		t.Fatalf("errors=%d, want 1", len(streamErrs))
	}
	var structured *common.Error
	if !errors.As(streamErrs[0], &structured) || structured.Message != "bad voice" {
		t.Fatalf("error=%v, want message 'bad voice'", streamErrs[0])
	}
}

func TestStreamIgnoresUnknownEvents(t *testing.T) {
	stream := "event: heartbeat\ndata: {}\n\n" +
		"event: audio\ndata: {\"chunk\":\"AQ==\"}\n\n" +
		"event: done\ndata: {}\n\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(stream))
	}))
	defer server.Close()

	chunks := 0
	client := NewStreamClient(common.Config{APIKey: "k", BaseURL: server.URL}, nil)
	err := client.Stream(context.Background(), newTestRequest(t), StreamCallbacks{
		OnChunk: func([]byte) { chunks++ },
		OnError: func(err error) { t.Errorf("unexpected error: %v", err) },
	})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	if chunks != 1 {
		t.Fatalf("chunks=%d, want 1", chunks)
	}
}

func TestStreamMalformedRecordDoesNotEndStream(t *testing.T) {
	stream := "event: audio\ndata: not-json\n\n" +
		"event: audio\ndata: {\"chunk\":\"AQ==\"}\n\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(stream))
	}))
	defer server.Close()

	chunks := 0
	streamErrs := 0
	client := NewStreamClient(common.Config{APIKey: "k", BaseURL: server.URL}, nil)
	err := client.Stream(context.Background(), newTestRequest(t), StreamCallbacks{
		OnChunk: func([]byte) { chunks++ },
		OnError: func(error) { streamErrs++ },
	})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	if streamErrs != 1 {
		t.Fatalf("errors=%d, want 1", streamErrs)
	}
	if chunks != 1 {
		t.Fatalf("chunks=%d, want 1 after recoverable error", chunks)
	}
}

func TestStreamOutlivesReadTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer is not a flusher")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher.Flush()
		for i := 0; i < 6; i++ {
			_, _ = w.Write([]byte("event: audio\ndata: {\"chunk\":\"AQ==\"}\n\n"))
			flusher.Flush()
			time.Sleep(60 * time.Millisecond)
		}
		_, _ = w.Write([]byte("event: done\ndata: {\"totalChunks\":6,\"totalBytes\":6}\n\n"))
		flusher.Flush()
	}))
	defer server.Close()

	chunks := 0
	completions := 0
	// The stream runs well past ReadTimeout; only the wait for response
	// headers is bounded by it, so every chunk and the completion arrive.
	client := NewStreamClient(common.Config{APIKey: "k", BaseURL: server.URL, ReadTimeout: 100 * time.Millisecond}, nil)
	err := client.Stream(context.Background(), newTestRequest(t), StreamCallbacks{
		OnChunk:    func([]byte) { chunks++ },
		OnComplete: func(StreamMetadata) { completions++ },
		OnError:    func(err error) { t.Errorf("unexpected error: %v", err) },
	})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	if chunks != 6 {
		t.Fatalf("chunks=%d, want 6", chunks)
	}
	if completions != 1 {
		t.Fatalf("completions=%d, want 1", completions)
	}
}

func TestStreamNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	client := NewStreamClient(common.Config{APIKey: "k", BaseURL: server.URL}, nil)
	err := client.Stream(context.Background(), newTestRequest(t), StreamCallbacks{})
	var structured *common.Error
	if !errors.As(err, &structured) {
		t.Fatalf("error=%T, want *common.Error", err)
	}
	if structured.StatusCode != http.StatusUnauthorized || structured.Message != "bad key" {
		t.Fatalf("error=%+v", structured)
	}
}

func TestStreamDoneDefaultsAbsentFields(t *testing.T) {
	stream := "event: done\ndata: {}\n\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(stream))
	}))
	defer server.Close()

	var got StreamMetadata
	client := NewStreamClient(common.Config{APIKey: "k", BaseURL: server.URL}, nil)
	err := client.Stream(context.Background(), newTestRequest(t), StreamCallbacks{
		OnComplete: func(metadata StreamMetadata) { got = metadata },
	})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	if got.ConversationID != "" || got.TotalChunks != 0 || got.CreditsUsed != 0 {
		t.Fatalf("metadata=%+v, want zero defaults", got)
	}
	if !strings.Contains(got.String(), "chunks=0") {
		t.Fatalf("String()=%q", got.String())
	}
}
