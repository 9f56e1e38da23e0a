package agent

import (
	"sync"

	"github.com/talktopc/voice-sdk-go/pkg/audio"
)

// AudioListener receives pass-through audio. format is the negotiated output
// format, or nil for audio that arrives before negotiation completes.
type AudioListener func(data []byte, format *audio.Format)

// registry holds caller-registered listeners. Dispatch iterates a snapshot
// taken under the lock, so registering a listener while another is being
// invoked neither corrupts nor reorders in-flight dispatch. Listeners run in
// registration order on the delivery goroutine.
type registry struct {
	mu           sync.Mutex
	audio        []AudioListener
	format       []func(audio.Format)
	message      []func(Message)
	connected    []func()
	disconnected []func()
	errs         []func(error)
}

func (r *registry) addAudio(fn AudioListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, fn)
}

func (r *registry) addFormat(fn func(audio.Format)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.format = append(r.format, fn)
}

func (r *registry) addMessage(fn func(Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.message = append(r.message, fn)
}

func (r *registry) addConnected(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, fn)
}

func (r *registry) addDisconnected(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, fn)
}

func (r *registry) addError(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, fn)
}

func (r *registry) notifyAudio(data []byte, format *audio.Format) {
	r.mu.Lock()
	snapshot := make([]AudioListener, len(r.audio))
	copy(snapshot, r.audio)
	r.mu.Unlock()
	for _, fn := range snapshot {
		fn(data, format)
	}
}

func (r *registry) notifyFormat(format audio.Format) {
	r.mu.Lock()
	snapshot := make([]func(audio.Format), len(r.format))
	copy(snapshot, r.format)
	r.mu.Unlock()
	for _, fn := range snapshot {
		fn(format)
	}
}

func (r *registry) notifyMessage(message Message) {
	r.mu.Lock()
	snapshot := make([]func(Message), len(r.message))
	copy(snapshot, r.message)
	r.mu.Unlock()
	for _, fn := range snapshot {
		fn(message)
	}
}

func (r *registry) notifyConnected() {
	r.mu.Lock()
	snapshot := make([]func(), len(r.connected))
	copy(snapshot, r.connected)
	r.mu.Unlock()
	for _, fn := range snapshot {
		fn()
	}
}

func (r *registry) notifyDisconnected() {
	r.mu.Lock()
	snapshot := make([]func(), len(r.disconnected))
	copy(snapshot, r.disconnected)
	r.mu.Unlock()
	for _, fn := range snapshot {
		fn()
	}
}

func (r *registry) notifyError(err error) {
	r.mu.Lock()
	snapshot := make([]func(error), len(r.errs))
	copy(snapshot, r.errs)
	r.mu.Unlock()
	for _, fn := range snapshot {
		fn(err)
	}
}
