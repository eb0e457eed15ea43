package monitor

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nrbedrock/bedrock-observability/common/config"
	"github.com/nrbedrock/bedrock-observability/tokens"
)

// Options configures a Monitor. Zero values fall back to the environment.
type Options struct {
	// ApplicationName is attached to every event and span as applicationName.
	ApplicationName string `validate:"required"`
	// LicenseKey authenticates New Relic ingest. Falls back to
	// NEW_RELIC_LICENSE_KEY, then NEW_RELIC_INSERT_KEY.
	LicenseKey string
	// Metadata is merged into every event and span.
	Metadata map[string]any
	// EventClientHost overrides the Event API host, e.g. insights-collector.eu01.nr-data.net.
	EventClientHost string `validate:"omitempty,hostname|hostname_port|url"`
	// SpanClientHost overrides the Trace API host. Both hosts may also be
	// given as a base URL with scheme.
	SpanClientHost string `validate:"omitempty,hostname|hostname_port|url"`

	// ParentSpanIDCallback supplies the parent span id when the call context carries none.
	ParentSpanIDCallback func(ctx context.Context) string
	// MetadataCallback returns extra attributes for each event. Errors and
	// panics are logged and ignored.
	MetadataCallback func(Event) (map[string]any, error)

	// UseLogger sends lifecycle messages to the structured logger instead of stdout.
	UseLogger bool
	// RecordContent keeps prompt and completion text on events. Defaults to
	// BEDROCK_MONITOR_RECORD_CONTENT.
	RecordContent *bool
	// Estimator counts prompt and completion tokens. Defaults to TOKEN_ESTIMATOR.
	Estimator tokens.Estimator

	// Sinks receive events and spans in addition to the built-in sinks.
	Sinks []Sink
	// DisableNewRelic skips the New Relic harvester.
	DisableNewRelic bool
	// HarvestPeriod is the New Relic batch flush cadence.
	HarvestPeriod time.Duration `validate:"gte=0"`

	// OTLPEndpoint enables the OTLP span sink. Defaults to OTEL_EXPORTER_OTLP_ENDPOINT.
	OTLPEndpoint string
	// EnablePrometheus registers the Prometheus sink. Defaults to ENABLE_PROMETHEUS_METRICS.
	EnablePrometheus *bool
	// Registerer receives the Prometheus collectors. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

var validate = validator.New()

// Bool returns a pointer to v, for the optional Options fields.
func Bool(v bool) *bool { return &v }

// withDefaults validates opts and fills unset fields from config.
func (o Options) withDefaults() (Options, error) {
	if err := validate.Struct(o); err != nil {
		return o, errors.Wrap(err, "invalid monitor options")
	}

	o.LicenseKey = config.ResolveLicenseKey(o.LicenseKey)
	o.EventClientHost = config.ResolveEventClientHost(o.EventClientHost)
	o.SpanClientHost = config.ResolveSpanClientHost(o.SpanClientHost)

	if o.Metadata == nil {
		o.Metadata = map[string]any{}
	}
	if o.RecordContent == nil {
		o.RecordContent = Bool(config.RecordContent)
	}
	if o.Estimator == nil {
		o.Estimator = tokens.FromConfig()
	}
	if o.HarvestPeriod == 0 {
		o.HarvestPeriod = config.HarvestPeriod
	}
	if o.OTLPEndpoint == "" {
		o.OTLPEndpoint = config.OTLPEndpoint
	}
	if o.EnablePrometheus == nil {
		o.EnablePrometheus = Bool(config.EnablePrometheusMetrics)
	}
	if o.Registerer == nil {
		o.Registerer = prometheus.DefaultRegisterer
	}

	return o, nil
}
