package monitor

import (
	"context"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
)

// LogSink writes every event and span to the context logger at debug level.
type LogSink struct{}

// NewLogSink returns a LogSink.
func NewLogSink() *LogSink { return &LogSink{} }

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// RecordEvent implements Sink.
func (LogSink) RecordEvent(ctx context.Context, e Event) error {
	gmw.GetLogger(ctx).Debug("record event",
		zap.String("event_type", e.Type),
		zap.Time("timestamp", e.Timestamp),
		zap.Any("attributes", e.Attributes))
	return nil
}

// RecordSpan implements Sink.
func (LogSink) RecordSpan(ctx context.Context, s Span) error {
	gmw.GetLogger(ctx).Debug("record span",
		zap.String("name", s.Name),
		zap.String("span_id", s.ID),
		zap.String("trace_id", s.TraceID),
		zap.String("parent_id", s.ParentID),
		zap.Duration("duration", s.Duration),
		zap.Any("attributes", s.Attributes))
	return nil
}

// Flush implements Sink.
func (LogSink) Flush(context.Context) error { return nil }

// Shutdown implements Sink.
func (LogSink) Shutdown(context.Context) error { return nil }
