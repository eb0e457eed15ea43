package monitor

import (
	"context"

	"github.com/Laisky/errors/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nrbedrock/bedrock-observability/events"
)

const metricsNamespace = "bedrock_monitor"

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// PrometheusSink keeps local counters of the recorded telemetry.
type PrometheusSink struct {
	events       *prometheus.CounterVec
	tokens       *prometheus.CounterVec
	responseTime *prometheus.HistogramVec
	spans        *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors on reg. Collectors that are
// already registered are reused, so several monitors can share a registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "events",
			Name:      "total",
			Help:      "Total number of recorded Bedrock events",
		}, []string{"event_type", "model_provider", "outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tokens",
			Name:      "total",
			Help:      "Total number of estimated tokens by kind",
		}, []string{"model_provider", "kind"}),
		responseTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "response_time_seconds",
			Help:      "Bedrock response time in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"event_type", "model_provider"}),
		spans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "spans",
			Name:      "total",
			Help:      "Total number of recorded spans",
		}, []string{"name"}),
	}

	var err error
	if s.events, err = registerOrReuse(reg, s.events); err != nil {
		return nil, err
	}
	if s.tokens, err = registerOrReuse(reg, s.tokens); err != nil {
		return nil, err
	}
	if s.responseTime, err = registerOrReuse(reg, s.responseTime); err != nil {
		return nil, err
	}
	if s.spans, err = registerOrReuse(reg, s.spans); err != nil {
		return nil, err
	}
	return s, nil
}

func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "register collector")
	}
	return c, nil
}

// Name implements Sink.
func (s *PrometheusSink) Name() string { return "prometheus" }

// RecordEvent implements Sink.
func (s *PrometheusSink) RecordEvent(_ context.Context, e Event) error {
	attrs := events.Attributes(e.Attributes)
	provider := attrs.String(events.AttrModelProvider)
	if provider == "" {
		provider = "unknown"
	}

	outcome := outcomeSuccess
	if _, failed := attrs[events.AttrError]; failed {
		outcome = outcomeError
	}
	s.events.WithLabelValues(e.Type, provider, outcome).Inc()

	// message events repeat the request, only summaries carry token totals
	if _, isMessage := attrs[events.AttrMessageIndex]; isMessage {
		return nil
	}

	for kind, key := range map[string]string{
		"prompt":     events.AttrPromptTokens,
		"completion": events.AttrCompletionTokens,
		"input":      events.AttrInputTextTokens,
	} {
		if n := attrs.Int(key); n > 0 {
			s.tokens.WithLabelValues(provider, kind).Add(float64(n))
		}
	}

	if rt, ok := e.Attributes[events.AttrResponseTime].(float64); ok {
		s.responseTime.WithLabelValues(e.Type, provider).Observe(rt)
	}
	return nil
}

// RecordSpan implements Sink.
func (s *PrometheusSink) RecordSpan(_ context.Context, sp Span) error {
	s.spans.WithLabelValues(sp.Name).Inc()
	return nil
}

// Flush implements Sink.
func (s *PrometheusSink) Flush(context.Context) error { return nil }

// Shutdown implements Sink.
func (s *PrometheusSink) Shutdown(context.Context) error { return nil }
