package monitor

import (
	"context"
	"sync"
)

// RecorderSink keeps everything it receives in memory. It backs the CLI
// dry run and tests.
type RecorderSink struct {
	mu        sync.Mutex
	events    []Event
	spans     []Span
	flushes   int
	shutdowns int
}

// NewRecorderSink returns an empty RecorderSink.
func NewRecorderSink() *RecorderSink { return &RecorderSink{} }

// Name implements Sink.
func (r *RecorderSink) Name() string { return "recorder" }

// RecordEvent implements Sink.
func (r *RecorderSink) RecordEvent(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// RecordSpan implements Sink.
func (r *RecorderSink) RecordSpan(_ context.Context, s Span) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, s.Clone())
	return nil
}

// Flush implements Sink.
func (r *RecorderSink) Flush(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

// Shutdown implements Sink.
func (r *RecorderSink) Shutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdowns++
	return nil
}

// Events returns a copy of the recorded events.
func (r *RecorderSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// EventsOfType returns the recorded events whose type is eventType.
func (r *RecorderSink) EventsOfType(eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Spans returns a copy of the recorded spans.
func (r *RecorderSink) Spans() []Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Span(nil), r.spans...)
}

// Flushes returns how often Flush was called.
func (r *RecorderSink) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

// Shutdowns returns how often Shutdown was called.
func (r *RecorderSink) Shutdowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdowns
}

// Reset drops everything recorded so far.
func (r *RecorderSink) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events, r.spans = nil, nil
	r.flushes, r.shutdowns = 0, 0
}
