package config

import (
	"strings"
	"time"

	"github.com/nrbedrock/bedrock-observability/common/env"
)

const (
	// DefaultEventClientHost is the New Relic Event API host used when no override is configured.
	DefaultEventClientHost = "insights-collector.newrelic.com"
	// DefaultSpanClientHost is the New Relic Trace API host used when no override is configured.
	DefaultSpanClientHost = "trace-api.newrelic.com"
)

var (
	// Version is stamped at build time via -ldflags.
	Version = "v0.0.0-dev"

	// LicenseKey is the New Relic license key used to authenticate telemetry ingest.
	LicenseKey = strings.TrimSpace(env.String("NEW_RELIC_LICENSE_KEY", ""))
	// InsertKey is the legacy Insights insert key, consulted only when LicenseKey is empty.
	InsertKey = strings.TrimSpace(env.String("NEW_RELIC_INSERT_KEY", ""))

	// EventClientHost overrides the Event API host (EU accounts use insights-collector.eu01.nr-data.net).
	EventClientHost = strings.TrimSpace(env.String("EVENT_CLIENT_HOST", ""))
	// SpanClientHost overrides the Trace API host.
	SpanClientHost = strings.TrimSpace(env.String("SPAN_CLIENT_HOST", ""))

	// HarvestPeriod is how often batched events and spans are flushed to New Relic.
	HarvestPeriod = env.Duration("NEW_RELIC_HARVEST_PERIOD", 5*time.Second)
	// HarvestTimeout bounds a single harvest request.
	HarvestTimeout = env.Duration("NEW_RELIC_HARVEST_TIMEOUT", 15*time.Second)

	// RecordContent controls whether prompt and completion text is attached to telemetry.
	RecordContent = env.Bool("BEDROCK_MONITOR_RECORD_CONTENT", true)
	// TokenEstimator selects the token estimator: "word" or "tiktoken".
	TokenEstimator = strings.ToLower(strings.TrimSpace(env.String("TOKEN_ESTIMATOR", "word")))
	// TiktokenEncoding names the tiktoken encoding used when TokenEstimator is "tiktoken".
	TiktokenEncoding = env.String("TIKTOKEN_ENCODING", "cl100k_base")

	// OTLPEndpoint enables the OTLP span exporter when non-empty (e.g. otlp.nr-data.net:4317).
	OTLPEndpoint = strings.TrimSpace(env.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""))
	// OTLPInsecure disables TLS on the OTLP connection; only meant for local collectors.
	OTLPInsecure = env.Bool("OTEL_EXPORTER_OTLP_INSECURE", false)

	// EnablePrometheusMetrics registers the Prometheus sink on the default registry.
	EnablePrometheusMetrics = env.Bool("ENABLE_PROMETHEUS_METRICS", true)

	// ModelCacheTTL controls how long resolved model ids stay memoized.
	ModelCacheTTL = env.Duration("MODEL_CACHE_TTL", 30*time.Minute)

	// DebugEnabled toggles verbose structured logging when DEBUG=true.
	DebugEnabled = env.Bool("DEBUG", false)

	// OnlyOneLogFile writes every run into a single log file instead of one per day.
	OnlyOneLogFile = env.Bool("ONLY_ONE_LOG_FILE", false)
	// LogRetentionDays determines how many days log files are kept (0 disables cleanup).
	LogRetentionDays = func() int {
		v := env.Int("LOG_RETENTION_DAYS", 0)
		if v < 0 {
			return 0
		}
		return v
	}()

	// LogPushAPI defines the webhook endpoint for escalated log alerts.
	LogPushAPI = env.String("LOG_PUSH_API", "")
	// LogPushType labels outbound log alerts so downstream processors can route them.
	LogPushType = env.String("LOG_PUSH_TYPE", "")
	// LogPushToken authenticates outbound log alert requests.
	LogPushToken = env.String("LOG_PUSH_TOKEN", "")

	// ShutdownTimeoutSec bounds the final drain and flush (seconds).
	ShutdownTimeoutSec = env.Int("SHUTDOWN_TIMEOUT", 30)

	// AWSRegion is the Bedrock runtime region used by the CLI and NewClient.
	AWSRegion = env.String("AWS_REGION", "us-east-1")
	// AWSAccessKeyID and AWSSecretAccessKey, when both set, are used as static credentials.
	AWSAccessKeyID     = env.String("AWS_ACCESS_KEY_ID", "")
	AWSSecretAccessKey = env.String("AWS_SECRET_ACCESS_KEY", "")
	AWSSessionToken    = env.String("AWS_SESSION_TOKEN", "")
)

// ResolveLicenseKey returns explicit when set, otherwise the license key and then the insert key from the environment.
func ResolveLicenseKey(explicit string) string {
	if k := strings.TrimSpace(explicit); k != "" {
		return k
	}
	if LicenseKey != "" {
		return LicenseKey
	}
	return InsertKey
}

// ResolveEventClientHost returns explicit, EVENT_CLIENT_HOST, or the default Event API host.
func ResolveEventClientHost(explicit string) string {
	if h := strings.TrimSpace(explicit); h != "" {
		return h
	}
	if EventClientHost != "" {
		return EventClientHost
	}
	return DefaultEventClientHost
}

// ResolveSpanClientHost returns explicit, SPAN_CLIENT_HOST, or the default Trace API host.
func ResolveSpanClientHost(explicit string) string {
	if h := strings.TrimSpace(explicit); h != "" {
		return h
	}
	if SpanClientHost != "" {
		return SpanClientHost
	}
	return DefaultSpanClientHost
}
