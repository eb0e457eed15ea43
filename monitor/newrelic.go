package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/newrelic/newrelic-telemetry-sdk-go/telemetry"

	"github.com/nrbedrock/bedrock-observability/common/config"
	"github.com/nrbedrock/bedrock-observability/common/logger"
)

// EventsURL returns the Event API endpoint on host.
func EventsURL(host string) string {
	return endpointURL(host, "/v1/accounts/events")
}

// SpansURL returns the Trace API endpoint on host.
func SpansURL(host string) string {
	return endpointURL(host, "/trace/v1")
}

func endpointURL(host, path string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host + path
	}
	return "https://" + host + path
}

// NewRelicConfig configures NewNewRelicSink.
type NewRelicConfig struct {
	APIKey      string
	ServiceName string
	// EventsURL and SpansURL are full ingest endpoints; empty means the SDK default.
	EventsURL      string
	SpansURL       string
	HarvestPeriod  time.Duration
	HarvestTimeout time.Duration
}

// NewRelicSink batches events and spans in a telemetry SDK harvester,
// which posts them to the Event API and the Trace API.
type NewRelicSink struct {
	harvester   *telemetry.Harvester
	serviceName string
}

// NewNewRelicSink creates the harvester. It starts harvesting in the
// background when HarvestPeriod is positive.
func NewNewRelicSink(cfg NewRelicConfig) (*NewRelicSink, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingLicenseKey
	}

	period := cfg.HarvestPeriod
	if period <= 0 {
		period = config.HarvestPeriod
	}

	opts := []func(*telemetry.Config){
		telemetry.ConfigAPIKey(cfg.APIKey),
		telemetry.ConfigHarvestPeriod(period),
		func(c *telemetry.Config) {
			c.ErrorLogger = func(fields map[string]interface{}) {
				logger.Logger.Error("new relic harvester error", zapFields(fields)...)
			}
			if config.DebugEnabled {
				c.DebugLogger = func(fields map[string]interface{}) {
					logger.Logger.Debug("new relic harvester", zapFields(fields)...)
				}
			}
			if cfg.HarvestTimeout > 0 {
				c.HarvestTimeout = cfg.HarvestTimeout
			}
		},
	}
	if cfg.EventsURL != "" {
		opts = append(opts, telemetry.ConfigEventsURLOverride(cfg.EventsURL))
	}
	if cfg.SpansURL != "" {
		opts = append(opts, telemetry.ConfigSpansURLOverride(cfg.SpansURL))
	}

	h, err := telemetry.NewHarvester(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create harvester")
	}

	return &NewRelicSink{harvester: h, serviceName: cfg.ServiceName}, nil
}

func zapFields(fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// Name implements Sink.
func (s *NewRelicSink) Name() string { return "newrelic" }

// RecordEvent implements Sink.
func (s *NewRelicSink) RecordEvent(_ context.Context, e Event) error {
	return errors.Wrap(s.harvester.RecordEvent(telemetry.Event{
		EventType:  e.Type,
		Timestamp:  e.Timestamp,
		Attributes: e.Attributes,
	}), "record event")
}

// RecordSpan implements Sink.
func (s *NewRelicSink) RecordSpan(_ context.Context, sp Span) error {
	return errors.Wrap(s.harvester.RecordSpan(telemetry.Span{
		ID:          sp.ID,
		TraceID:     sp.TraceID,
		Name:        sp.Name,
		ParentID:    sp.ParentID,
		Timestamp:   sp.Start,
		Duration:    sp.Duration,
		ServiceName: s.serviceName,
		Attributes:  sp.Attributes,
	}), "record span")
}

// Flush implements Sink by harvesting immediately.
func (s *NewRelicSink) Flush(ctx context.Context) error {
	s.harvester.HarvestNow(ctx)
	return errors.Wrap(ctx.Err(), "harvest")
}

// Shutdown implements Sink with a final harvest.
func (s *NewRelicSink) Shutdown(ctx context.Context) error {
	return s.Flush(ctx)
}
