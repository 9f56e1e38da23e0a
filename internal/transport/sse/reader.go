// Package sse implements incremental parsing of text/event-stream responses.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Event is one dispatched server-sent record.
type Event struct {
	Name string
	Data string
}

// Reader parses events from a stream. It keeps the current event name and an
// accumulated data buffer; a blank line dispatches the record and resets the
// parser state. Lines other than event:/data: are ignored.
type Reader struct {
	scanner *bufio.Scanner
	event   string
	data    bytes.Buffer
}

// NewReader wraps r for event parsing.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	return &Reader{scanner: scanner}
}

// Next returns the next complete event, or io.EOF when the stream ends. A
// record is dispatched only if an event name was seen.
func (r *Reader) Next() (Event, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			r.event = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			r.data.WriteString(strings.TrimSpace(line[len("data:"):]))
		case line == "" && r.event != "":
			event := Event{Name: r.event, Data: r.data.String()}
			r.reset()
			return event, nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

func (r *Reader) reset() {
	r.event = ""
	r.data.Reset()
}
