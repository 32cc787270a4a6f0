// Package stream provides the server-to-client progress channel for saga
// runs. Events are delivered as Server-Sent Events and flushed immediately so
// the agent's browser observes progress in near-real time.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Event names on the wire.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// ProgressPayload is the body of a progress event.
type ProgressPayload struct {
	Step       string `json:"step"`
	Percentage int    `json:"percentage"`
}

// CompletePayload is the body of the terminal complete event.
type CompletePayload struct {
	QuoteURL        string `json:"quoteUrl"`
	ContactRedirect string `json:"contactRedirect"`
}

// ErrorPayload is the body of the terminal error event. Kind is a
// machine-readable tag so clients can branch on recoverable vs fatal failures.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Sink is the write-only progress channel the orchestrator emits into.
// Implementations must tolerate events after a terminal event by dropping
// them: every run produces exactly one terminal event.
type Sink interface {
	Progress(step string, percentage int)
	Complete(quoteURL, contactRedirect string)
	Fail(kind, message string)
}

// SSE writes labeled text records to an HTTP response stream. Safe for use
// from a single producer; the mutex guards against the handler racing a late
// emit during shutdown.
type SSE struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu       sync.Mutex
	lastPct  int
	terminal bool
}

// NewSSE prepares the response for event streaming and returns the sink.
// The status is fixed at 200 once the stream opens; failures travel as
// in-stream error events, never as HTTP status codes.
func NewSSE(w http.ResponseWriter) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSE{w: w, flusher: flusher}, nil
}

// Progress emits a progress event. Percentages are non-decreasing within a
// run; a lower value is clamped to the last one emitted.
func (s *SSE) Progress(step string, percentage int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return
	}
	if percentage < s.lastPct {
		percentage = s.lastPct
	}
	s.lastPct = percentage
	s.write(EventProgress, ProgressPayload{Step: step, Percentage: percentage})
}

// Complete emits the terminal complete event and seals the stream.
func (s *SSE) Complete(quoteURL, contactRedirect string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return
	}
	s.terminal = true
	s.write(EventComplete, CompletePayload{QuoteURL: quoteURL, ContactRedirect: contactRedirect})
}

// Fail emits the terminal error event and seals the stream.
func (s *SSE) Fail(kind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return
	}
	s.terminal = true
	s.write(EventError, ErrorPayload{Kind: kind, Message: message})
}

// Terminated reports whether a terminal event has been emitted.
func (s *SSE) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

func (s *SSE) write(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	s.flusher.Flush()
}
