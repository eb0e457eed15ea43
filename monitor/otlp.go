package monitor

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Laisky/errors/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/nrbedrock/bedrock-observability/common/config"
)

const (
	tracerName     = "github.com/nrbedrock/bedrock-observability/monitor"
	eventSpanName  = "bedrock.event"
	attrMonitorSID = "bedrock.monitor.span_id"
)

// OTLPConfig configures NewOTLPSink.
type OTLPConfig struct {
	// Endpoint is host:port of an OTLP/gRPC receiver, e.g. otlp.nr-data.net:4317.
	Endpoint    string
	Insecure    bool
	ServiceName string
	// LicenseKey is sent as the api-key header New Relic's OTLP endpoint expects.
	LicenseKey string
	Headers    map[string]string
}

// OTLPSink exports monitor spans as OpenTelemetry spans. Events become span
// events on a short bedrock.event span.
type OTLPSink struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewOTLPSink dials the OTLP/gRPC exporter and builds a batching tracer provider.
func NewOTLPSink(ctx context.Context, cfg OTLPConfig) (*OTLPSink, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("otlp endpoint is required")
	}

	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	} else {
		clientOpts = append(clientOpts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}

	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.LicenseKey != "" {
		headers["api-key"] = cfg.LicenseKey
	}
	if len(headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(headers))
	}
	clientOpts = append(clientOpts, otlptracegrpc.WithDialOption(
		grpc.WithReturnConnectionError(), //nolint:staticcheck // surfaces dial errors instead of a generic timeout
	))

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exporter, err := otlptrace.New(dialCtx, otlptracegrpc.NewClient(clientOpts...))
	if err != nil {
		return nil, errors.Wrap(err, "create otlp exporter")
	}

	res, err := newResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, errors.Wrap(err, "create resource")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithMaxExportBatchSize(100), sdktrace.WithBatchTimeout(config.HarvestPeriod)),
		sdktrace.WithResource(res),
	)
	return newOTLPSink(provider), nil
}

// NewOTLPSinkWithExporter exports synchronously through exporter.
func NewOTLPSinkWithExporter(ctx context.Context, exporter sdktrace.SpanExporter, serviceName string) (*OTLPSink, error) {
	res, err := newResource(ctx, serviceName)
	if err != nil {
		return nil, errors.Wrap(err, "create resource")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	)
	return newOTLPSink(provider), nil
}

func newResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String(AttrInstrumentationProvider, InstrumentationProvider),
		),
	)
}

func newOTLPSink(provider *sdktrace.TracerProvider) *OTLPSink {
	return &OTLPSink{
		provider: provider,
		tracer:   provider.Tracer(tracerName),
	}
}

// Name implements Sink.
func (s *OTLPSink) Name() string { return "otlp" }

// RecordSpan implements Sink. A valid parent id and trace id make the
// exported span a child of that remote parent.
func (s *OTLPSink) RecordSpan(ctx context.Context, sp Span) error {
	ctx = trace.ContextWithSpanContext(context.WithoutCancel(ctx), trace.SpanContext{})
	if parent, ok := remoteParent(sp); ok {
		ctx = trace.ContextWithRemoteSpanContext(ctx, parent)
	}

	attrs := toOTelAttributes(sp.Attributes)
	attrs = append(attrs, attribute.String(attrMonitorSID, sp.ID))

	_, span := s.tracer.Start(ctx, sp.Name,
		trace.WithTimestamp(sp.Start),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	span.End(trace.WithTimestamp(sp.Start.Add(sp.Duration)))
	return nil
}

// RecordEvent implements Sink.
func (s *OTLPSink) RecordEvent(ctx context.Context, e Event) error {
	_, span := s.tracer.Start(context.WithoutCancel(ctx), eventSpanName,
		trace.WithTimestamp(e.Timestamp),
		trace.WithAttributes(attribute.String("event.type", e.Type)),
	)
	span.AddEvent(e.Type,
		trace.WithTimestamp(e.Timestamp),
		trace.WithAttributes(toOTelAttributes(e.Attributes)...),
	)
	span.End(trace.WithTimestamp(e.Timestamp))
	return nil
}

// Flush implements Sink.
func (s *OTLPSink) Flush(ctx context.Context) error {
	return errors.Wrap(s.provider.ForceFlush(ctx), "force flush")
}

// Shutdown implements Sink.
func (s *OTLPSink) Shutdown(ctx context.Context) error {
	return errors.Wrap(s.provider.Shutdown(ctx), "shutdown tracer provider")
}

func remoteParent(sp Span) (trace.SpanContext, bool) {
	traceID, err := trace.TraceIDFromHex(sp.TraceID)
	if err != nil {
		return trace.SpanContext{}, false
	}
	parentID, err := trace.SpanIDFromHex(sp.ParentID)
	if err != nil {
		return trace.SpanContext{}, false
	}

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     parentID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}), true
}

// toOTelAttributes converts attributes in key order.
func toOTelAttributes(attrs map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := attrs[k].(type) {
		case string:
			out = append(out, attribute.String(k, v))
		case bool:
			out = append(out, attribute.Bool(k, v))
		case int:
			out = append(out, attribute.Int(k, v))
		case int64:
			out = append(out, attribute.Int64(k, v))
		case float64:
			out = append(out, attribute.Float64(k, v))
		case []string:
			out = append(out, attribute.StringSlice(k, v))
		case nil:
			continue
		default:
			out = append(out, attribute.String(k, fmt.Sprint(v)))
		}
	}
	return out
}
