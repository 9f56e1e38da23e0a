package tts

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talktopc/voice-sdk-go/internal/session/fsm"
	"github.com/talktopc/voice-sdk-go/pkg/common"
)

func TestHandleTextMessageError(t *testing.T) {
	var chunks, errs int
	var message string
	client := NewWSClient(common.Config{}, WSCallbacks{
		OnChunk: func([]byte) { chunks++ },
		OnError: func(err error) {
			errs++
			var structured *common.Error
			if errors.As(err, &structured) {
				message = structured.Message
			}
		},
	}, nil)

	client.handleTextMessage([]byte(`{"type":"error","error":"bad voice"}`))

	if errs != 1 {
		t.Fatalf("errors=%d, want 1", errs)
	}
	if message != "bad voice" {
		t.Fatalf("message=%q, want 'bad voice'", message)
	}
	if chunks != 0 {
		t.Fatalf("chunks=%d, want 0", chunks)
	}
}

func TestHandleTextMessageAudioChunk(t *testing.T) {
	var got []byte
	client := NewWSClient(common.Config{}, WSCallbacks{
		OnChunk: func(chunk []byte) { got = chunk },
	}, nil)

	client.handleTextMessage([]byte(`{"type":"audio_chunk","chunk":"AQID"}`))
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("chunk=%v, want [1 2 3]", got)
	}
}

func TestHandleTextMessageDoneOnce(t *testing.T) {
	completions := 0
	client := NewWSClient(common.Config{}, WSCallbacks{
		OnComplete: func(StreamMetadata) { completions++ },
	}, nil)

	done := []byte(`{"type":"done","conversationId":"c","totalChunks":2,"totalBytes":6,"durationMs":50,"creditsUsed":0.01}`)
	client.handleTextMessage(done)
	client.handleTextMessage(done)

	if completions != 1 {
		t.Fatalf("completions=%d, want 1", completions)
	}
}

func TestHandleTextMessageUnknownTypeIgnored(t *testing.T) {
	client := NewWSClient(common.Config{}, WSCallbacks{
		OnError: func(err error) { t.Errorf("unexpected error: %v", err) },
	}, nil)
	client.handleTextMessage([]byte(`{"type":"progress","percent":50}`))
}

func TestHandleTextMessageMalformedJSON(t *testing.T) {
	errs := 0
	client := NewWSClient(common.Config{}, WSCallbacks{
		OnError: func(error) { errs++ },
	}, nil)
	client.handleTextMessage([]byte(`{not json`))
	if errs != 1 {
		t.Fatalf("errors=%d, want 1", errs)
	}
}

// newWSTestServer upgrades incoming connections and hands them to handle on
// a fresh goroutine.
func newWSTestServer(t *testing.T, handle func(conn *websocket.Conn, path string)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		handle(conn, r.URL.Path)
	}))
}

func wsConfig(server *httptest.Server) common.Config {
	return common.Config{APIKey: "k", BaseURL: server.URL}
}

func TestWSClientStreamsAudioAndCompletes(t *testing.T) {
	server := newWSTestServer(t, func(conn *websocket.Conn, path string) {
		defer conn.Close()
		if path != "/api/v1/tts/stream/mamre" {
			t.Errorf("path=%q", path)
			return
		}
		var payload wireRequest
		if err := conn.ReadJSON(&payload); err != nil {
			t.Errorf("read request: %v", err)
			return
		}
		if payload.VoiceID != "" {
			t.Errorf("voiceId=%q in websocket payload, want empty", payload.VoiceID)
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"done","conversationId":"c","totalChunks":1,"totalBytes":3}`))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})
	defer server.Close()

	chunkCh := make(chan []byte, 4)
	doneCh := make(chan StreamMetadata, 1)
	client := NewWSClient(wsConfig(server), WSCallbacks{
		OnChunk:    func(chunk []byte) { chunkCh <- chunk },
		OnComplete: func(metadata StreamMetadata) { doneCh <- metadata },
		OnError:    func(err error) { t.Errorf("unexpected error: %v", err) },
	}, nil)
	defer client.Close()

	request := newTestRequest(t)
	if err := client.ConnectAndSynthesize(context.Background(), request); err != nil {
		t.Fatalf("ConnectAndSynthesize error: %v", err)
	}

	select {
	case chunk := <-chunkCh:
		if !bytes.Equal(chunk, []byte{1, 2, 3}) {
			t.Fatalf("chunk=%v", chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk")
	}

	select {
	case metadata := <-doneCh:
		if metadata.ConversationID != "c" || metadata.TotalBytes != 3 {
			t.Fatalf("metadata=%+v", metadata)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestWSClientStateFollowsAudio(t *testing.T) {
	sendAudio := make(chan struct{})
	sendDone := make(chan struct{})
	server := newWSTestServer(t, func(conn *websocket.Conn, _ string) {
		defer conn.Close()
		<-sendAudio
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1})
		<-sendDone
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"done"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	chunkCh := make(chan struct{}, 1)
	doneCh := make(chan struct{}, 1)
	client := NewWSClient(wsConfig(server), WSCallbacks{
		OnChunk:    func([]byte) { chunkCh <- struct{}{} },
		OnComplete: func(StreamMetadata) { doneCh <- struct{}{} },
	}, nil)
	defer client.Close()

	if err := client.Connect(context.Background(), "mamre"); err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	if got := client.state.State(); got != fsm.StateConnecting {
		t.Fatalf("state after connect=%s, want connecting", got)
	}

	close(sendAudio)
	select {
	case <-chunkCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk")
	}
	if got := client.state.State(); got != fsm.StateStreaming {
		t.Fatalf("state after first audio=%s, want streaming", got)
	}

	close(sendDone)
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
	if got := client.state.State(); got != fsm.StateCompleted {
		t.Fatalf("state after done=%s, want completed", got)
	}
}

func TestWSClientSynthesizeBeforeConnect(t *testing.T) {
	client := NewWSClient(common.Config{BaseURL: "http://localhost:1"}, WSCallbacks{}, nil)
	err := client.Synthesize(newTestRequest(t))
	var structured *common.Error
	if !errors.As(err, &structured) || structured.Kind != common.KindState {
		t.Fatalf("error=%v, want state error", err)
	}
}

func TestWSClientVoiceIDMismatch(t *testing.T) {
	server := newWSTestServer(t, func(conn *websocket.Conn, _ string) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewWSClient(wsConfig(server), WSCallbacks{}, nil)
	defer client.Close()
	if err := client.Connect(context.Background(), "mamre"); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	other, err := NewRequest("hi", "other-voice")
	if err != nil {
		t.Fatalf("NewRequest error: %v", err)
	}
	sendErr := client.Synthesize(other)
	var structured *common.Error
	if !errors.As(sendErr, &structured) || structured.Kind != common.KindValidation {
		t.Fatalf("error=%v, want validation error", sendErr)
	}
}

func TestWSClientDuplicateConnectSharesConnection(t *testing.T) {
	var upgrades atomic.Int32
	server := newWSTestServer(t, func(conn *websocket.Conn, _ string) {
		upgrades.Add(1)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewWSClient(wsConfig(server), WSCallbacks{}, nil)
	defer client.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Connect(context.Background(), "mamre"); err != nil {
				t.Errorf("Connect error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := upgrades.Load(); got != 1 {
		t.Fatalf("upgrades=%d, want 1", got)
	}
}

func TestWSClientCloseIdempotent(t *testing.T) {
	server := newWSTestServer(t, func(conn *websocket.Conn, _ string) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewWSClient(wsConfig(server), WSCallbacks{
		OnError: func(err error) { t.Errorf("error after close: %v", err) },
	}, nil)
	if err := client.Connect(context.Background(), "mamre"); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	client.Close()
	client.Close()

	if client.IsConnected() {
		t.Fatal("IsConnected=true after Close")
	}
	// Give the read loop a moment to observe the closed connection; OnError
	// firing would be reported by the callback above.
	time.Sleep(50 * time.Millisecond)
}

func TestWSClientAbnormalCloseReportsTransportError(t *testing.T) {
	server := newWSTestServer(t, func(conn *websocket.Conn, _ string) {
		// Drop the TCP connection without a close handshake.
		_ = conn.UnderlyingConn().Close()
	})
	defer server.Close()

	errCh := make(chan error, 1)
	client := NewWSClient(wsConfig(server), WSCallbacks{
		OnError: func(err error) { errCh <- err },
	}, nil)
	defer client.Close()

	if err := client.Connect(context.Background(), "mamre"); err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	select {
	case err := <-errCh:
		var structured *common.Error
		if !errors.As(err, &structured) || structured.Kind != common.KindTransport {
			t.Fatalf("error=%v, want transport error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport error")
	}
}
