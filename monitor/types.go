package monitor

import (
	"context"
	"maps"
	"time"

	"github.com/Laisky/errors/v2"
)

// Event types recorded for Bedrock calls.
const (
	// BedrockEvent is one request message of an invocation.
	BedrockEvent = "BedrockEvent"
	// BedrockSummary is the outcome of one invocation.
	BedrockSummary = "BedrockSummary"
	// BedrockEmbedding is the outcome of one embedding invocation.
	BedrockEmbedding = "BedrockEmbedding"
)

// Attributes added to every recorded event and span.
const (
	AttrApplicationName         = "applicationName"
	AttrProvider                = "provider"
	AttrInstrumentationProvider = "instrumentation.provider"
	AttrName                    = "name"

	ProviderName            = "aws_bedrock"
	InstrumentationProvider = "nr_bedrock_observability_sdk"
)

// ErrMissingLicenseKey is returned by Start when the New Relic sink is
// enabled and no license or insert key could be found.
var ErrMissingLicenseKey = errors.New("license key is required: set Options.LicenseKey, NEW_RELIC_LICENSE_KEY or NEW_RELIC_INSERT_KEY")

// ErrMonitorShutdown is returned by Start once Shutdown has been called.
var ErrMonitorShutdown = errors.New("monitor already shut down")

// Event is one custom event.
type Event struct {
	Type       string
	Timestamp  time.Time
	Attributes map[string]any
}

// Span is one timed operation, exported as a distributed tracing span.
// A Span is not safe for concurrent use.
type Span struct {
	ID       string
	TraceID  string
	ParentID string
	Name     string
	Start    time.Time
	Duration time.Duration

	Attributes map[string]any

	finished bool
}

// Finish records the span duration. Only the first call has an effect.
func (s *Span) Finish() {
	if s.finished {
		return
	}
	s.finished = true
	s.Duration = time.Since(s.Start)
}

// Finished reports whether Finish was called.
func (s *Span) Finished() bool { return s.finished }

// SetAttributes merges attrs into the span attributes.
func (s *Span) SetAttributes(attrs map[string]any) {
	if s.Attributes == nil {
		s.Attributes = make(map[string]any, len(attrs))
	}
	maps.Copy(s.Attributes, attrs)
}

// Clone returns a copy whose attribute map is not shared with s.
func (s Span) Clone() Span {
	s.Attributes = maps.Clone(s.Attributes)
	return s
}

// Sink receives every event and span a Monitor records.
type Sink interface {
	Name() string
	RecordEvent(ctx context.Context, e Event) error
	RecordSpan(ctx context.Context, s Span) error
	Flush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
