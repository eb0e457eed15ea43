// Package monitor records Bedrock telemetry as New Relic custom events and
// distributed tracing spans, and fans it out to any additional sinks.
package monitor

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nrbedrock/bedrock-observability/common/config"
	"github.com/nrbedrock/bedrock-observability/common/ctxkey"
	"github.com/nrbedrock/bedrock-observability/common/logger"
	"github.com/nrbedrock/bedrock-observability/common/random"
	"github.com/nrbedrock/bedrock-observability/events"
)

// Monitor owns the sinks and stamps the application attributes onto every
// event and span.
type Monitor struct {
	opts    Options
	builder *events.Builder

	mu       sync.RWMutex
	started  bool
	shutdown bool
	sinks    []Sink
}

// New validates opts and returns a Monitor that records nothing until Start.
func New(opts Options) (*Monitor, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Monitor{
		opts:    opts,
		builder: events.NewBuilder(opts.Estimator, *opts.RecordContent),
	}, nil
}

// Start builds the sinks. Only the first successful call has an effect,
// and a monitor that was shut down cannot be started again.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return ErrMonitorShutdown
	}
	if m.started {
		return nil
	}

	sinks := make([]Sink, 0, len(m.opts.Sinks)+3)
	if !m.opts.DisableNewRelic {
		if m.opts.LicenseKey == "" {
			return ErrMissingLicenseKey
		}

		nr, err := NewNewRelicSink(NewRelicConfig{
			APIKey:         m.opts.LicenseKey,
			ServiceName:    m.opts.ApplicationName,
			EventsURL:      EventsURL(m.opts.EventClientHost),
			SpansURL:       SpansURL(m.opts.SpanClientHost),
			HarvestPeriod:  m.opts.HarvestPeriod,
			HarvestTimeout: config.HarvestTimeout,
		})
		if err != nil {
			return errors.Wrap(err, "create new relic sink")
		}
		sinks = append(sinks, nr)
	}

	if m.opts.OTLPEndpoint != "" {
		otlp, err := NewOTLPSink(ctx, OTLPConfig{
			Endpoint:    m.opts.OTLPEndpoint,
			Insecure:    config.OTLPInsecure,
			ServiceName: m.opts.ApplicationName,
			LicenseKey:  m.opts.LicenseKey,
		})
		if err != nil {
			closeSinks(ctx, sinks)
			return errors.Wrap(err, "create otlp sink")
		}
		sinks = append(sinks, otlp)
	}

	if *m.opts.EnablePrometheus {
		prom, err := NewPrometheusSink(m.opts.Registerer)
		if err != nil {
			closeSinks(ctx, sinks)
			return errors.Wrap(err, "create prometheus sink")
		}
		sinks = append(sinks, prom)
	}

	sinks = append(sinks, m.opts.Sinks...)
	m.sinks = sinks
	m.started = true

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	m.log(fmt.Sprintf("bedrock monitoring started for %s", m.opts.ApplicationName),
		zap.Strings("sinks", names),
		zap.String("event_host", m.opts.EventClientHost),
		zap.String("span_host", m.opts.SpanClientHost))
	return nil
}

func closeSinks(ctx context.Context, sinks []Sink) {
	for _, s := range sinks {
		if err := s.Shutdown(ctx); err != nil {
			logger.Logger.Warn("shutdown sink", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}

// log writes a lifecycle message to the logger or stdout, depending on UseLogger.
func (m *Monitor) log(msg string, fields ...zap.Field) {
	if m.opts.UseLogger {
		logger.Logger.Info(msg, fields...)
		return
	}
	fmt.Println(msg)
}

// Started reports whether Start succeeded.
func (m *Monitor) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started && !m.shutdown
}

// ApplicationName returns the configured application name.
func (m *Monitor) ApplicationName() string { return m.opts.ApplicationName }

// Builder returns the event builder configured for this monitor.
func (m *Monitor) Builder() *events.Builder { return m.builder }

// Sinks returns the active sinks.
func (m *Monitor) Sinks() []Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Sink(nil), m.sinks...)
}

func (m *Monitor) activeSinks() []Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started || m.shutdown {
		return nil
	}
	return m.sinks
}

// RecordEvent stamps attrs and hands the event to every sink.
func (m *Monitor) RecordEvent(ctx context.Context, eventType string, attrs map[string]any) {
	sinks := m.activeSinks()
	if sinks == nil {
		gmw.GetLogger(ctx).Debug("monitor not running, drop event", zap.String("event_type", eventType))
		return
	}

	merged := make(map[string]any, len(attrs)+len(m.opts.Metadata)+2)
	maps.Copy(merged, attrs)
	merged[AttrApplicationName] = m.opts.ApplicationName
	merged[AttrProvider] = ProviderName
	maps.Copy(merged, m.opts.Metadata)

	e := Event{Type: eventType, Timestamp: time.Now(), Attributes: merged}
	if extra := m.runMetadataCallback(ctx, e); len(extra) > 0 {
		maps.Copy(e.Attributes, extra)
	}

	for _, s := range sinks {
		if err := s.RecordEvent(ctx, e); err != nil {
			gmw.GetLogger(ctx).Warn("sink failed to record event",
				zap.String("sink", s.Name()),
				zap.String("event_type", eventType),
				zap.Error(err))
		}
	}
}

func (m *Monitor) runMetadataCallback(ctx context.Context, e Event) (extra map[string]any) {
	if m.opts.MetadataCallback == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			gmw.GetLogger(ctx).Warn("metadata callback panicked",
				zap.Any("panic", r),
				zap.String("stacktrace", string(debug.Stack())))
			extra = nil
		}
	}()

	extra, err := m.opts.MetadataCallback(e)
	if err != nil {
		gmw.GetLogger(ctx).Warn("failed to run metadata callback", zap.Error(err))
		return nil
	}
	return extra
}

// RecordSpan stamps the span attributes and hands the span to every sink.
func (m *Monitor) RecordSpan(ctx context.Context, span *Span) {
	if span == nil {
		return
	}

	sinks := m.activeSinks()
	if sinks == nil {
		gmw.GetLogger(ctx).Debug("monitor not running, drop span", zap.String("span", span.Name))
		return
	}

	span.Finish()
	s := span.Clone()
	if s.Attributes == nil {
		s.Attributes = make(map[string]any, len(m.opts.Metadata)+3)
	}
	s.Attributes[AttrApplicationName] = m.opts.ApplicationName
	s.Attributes[AttrInstrumentationProvider] = InstrumentationProvider
	s.Attributes[AttrProvider] = ProviderName
	maps.Copy(s.Attributes, m.opts.Metadata)

	for _, sink := range sinks {
		if err := sink.RecordSpan(ctx, s); err != nil {
			gmw.GetLogger(ctx).Warn("sink failed to record span",
				zap.String("sink", sink.Name()),
				zap.String("span", s.Name),
				zap.Error(err))
		}
	}
}

// CreateSpan starts a span. The parent id comes from ctx, then from
// ParentSpanIDCallback. The trace id comes from ctx or is generated.
func (m *Monitor) CreateSpan(ctx context.Context, name string) *Span {
	parentID, ok := ctxkey.ParentSpanID(ctx)
	if !ok && m.opts.ParentSpanIDCallback != nil {
		parentID = m.safeParentSpanID(ctx)
	}

	traceID, ok := ctxkey.TraceID(ctx)
	if !ok {
		traceID = random.GetTraceID()
	}

	return &Span{
		ID:         random.GetSpanID(),
		TraceID:    traceID,
		ParentID:   strings.TrimSpace(parentID),
		Name:       name,
		Start:      time.Now(),
		Attributes: map[string]any{},
	}
}

func (m *Monitor) safeParentSpanID(ctx context.Context) (id string) {
	defer func() {
		if r := recover(); r != nil {
			gmw.GetLogger(ctx).Warn("parent span id callback panicked", zap.Any("panic", r))
			id = ""
		}
	}()
	return m.opts.ParentSpanIDCallback(ctx)
}

// Flush pushes buffered telemetry of every sink concurrently.
func (m *Monitor) Flush(ctx context.Context) error {
	var g errgroup.Group
	for _, s := range m.activeSinks() {
		g.Go(func() error {
			return errors.Wrapf(s.Flush(ctx), "flush %s", s.Name())
		})
	}
	return g.Wait()
}

// Shutdown flushes and closes every sink. Later calls are no-ops and
// nothing is recorded afterwards.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown || !m.started {
		m.shutdown = true
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	sinks := m.sinks
	m.mu.Unlock()

	// every sink gets its chance to flush even if another one fails
	var g errgroup.Group
	for _, s := range sinks {
		g.Go(func() error {
			flushErr := s.Flush(ctx)
			if err := s.Shutdown(ctx); err != nil {
				return errors.Wrapf(err, "shutdown %s", s.Name())
			}
			return errors.Wrapf(flushErr, "flush %s", s.Name())
		})
	}
	err := g.Wait()

	m.log(fmt.Sprintf("bedrock monitoring stopped for %s", m.opts.ApplicationName))
	return err
}
