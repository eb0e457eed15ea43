package instrument

import (
	"context"
	"maps"
	"net/http"
	"runtime/debug"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/nrbedrock/bedrock-observability/bedrock"
	"github.com/nrbedrock/bedrock-observability/common/ctxkey"
	"github.com/nrbedrock/bedrock-observability/common/graceful"
	"github.com/nrbedrock/bedrock-observability/common/helper"
	"github.com/nrbedrock/bedrock-observability/events"
	"github.com/nrbedrock/bedrock-observability/monitor"
)

type observedKey struct{}

// markObserved flags ctx so a client that is both wrapped and built with
// WithMonitoring records each call once.
func markObserved(ctx context.Context) context.Context {
	return context.WithValue(ctx, observedKey{}, true)
}

func observed(ctx context.Context) bool {
	v, _ := ctx.Value(observedKey{}).(bool)
	return v
}

// headersOf returns the HTTP response headers kept in the call metadata.
func headersOf(md middleware.Metadata) http.Header {
	if raw, ok := awsmiddleware.GetRawResponse(md).(*smithyhttp.Response); ok && raw != nil && raw.Response != nil {
		return raw.Header
	}
	return nil
}

// recorder turns Bedrock calls into monitor events and spans.
type recorder struct {
	mon *monitor.Monitor
}

// safely runs fn and logs instead of propagating a panic, so telemetry
// never breaks the caller.
func (r recorder) safely(ctx context.Context, stage string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			gmw.GetLogger(ctx).Error("panic detected while recording bedrock telemetry",
				zap.String("stage", stage),
				zap.Any("panic", p),
				zap.String("stacktrace", string(debug.Stack())))
		}
	}()
	fn()
}

func summaryType(embedding bool) string {
	if embedding {
		return monitor.BedrockEmbedding
	}
	return monitor.BedrockSummary
}

// withCallAttributes merges the per-call attributes carried by ctx.
func withCallAttributes(ctx context.Context, attrs events.Attributes) events.Attributes {
	extra := ctxkey.Attributes(ctx)
	if len(extra) == 0 {
		return attrs
	}
	out := attrs.Clone()
	maps.Copy(out, extra)
	return out
}

// recordEvents records one BedrockEvent per message, the summary, and the
// span carrying the summary attributes.
func (r recorder) recordEvents(ctx context.Context, span *monitor.Span, evts events.Events) {
	for _, m := range evts.Messages {
		r.mon.RecordEvent(ctx, monitor.BedrockEvent, m)
	}
	r.recordSummary(ctx, span, monitor.BedrockSummary, evts.Completion)
}

func (r recorder) recordSummary(ctx context.Context, span *monitor.Span, eventType string, attrs events.Attributes) {
	attrs = withCallAttributes(ctx, attrs)
	r.mon.RecordEvent(ctx, eventType, attrs)

	span.SetAttributes(attrs)
	span.Attributes[monitor.AttrName] = eventType
	r.mon.RecordSpan(ctx, span)
}

// observeInvoke times call and records the invocation or embedding events.
// The error of call is returned unchanged.
func (r recorder) observeInvoke(ctx context.Context, inv events.Invocation,
	call func(context.Context) ([]byte, http.Header, error)) error {
	defer graceful.BeginInvocation()()

	embedding := bedrock.Resolve(inv.ModelID).Embedding
	span := r.mon.CreateSpan(ctx, summaryType(embedding))

	start := time.Now()
	body, headers, callErr := call(ctx)
	responseTime := helper.ElapsedSeconds(start)
	span.Finish()

	r.safely(ctx, "invoke model", func() {
		b := r.mon.Builder()
		switch {
		case embedding && callErr != nil:
			r.recordSummary(ctx, span, monitor.BedrockEmbedding, b.BuildEmbeddingErrorEvent(ctx, inv, callErr))
		case embedding:
			r.recordSummary(ctx, span, monitor.BedrockEmbedding, b.BuildEmbeddingEvent(ctx, inv, body, headers, responseTime))
		case callErr != nil:
			r.recordEvents(ctx, span, b.BuildInvocationErrorEvents(ctx, inv, callErr))
		default:
			r.recordEvents(ctx, span, b.BuildInvocationEvents(ctx, inv, body, headers, responseTime))
		}
	})

	return callErr
}

// observeStream records a failed stream request at once. A successful one
// is recorded when its event stream ends or is closed.
//
// Streams returned by the SDK are observed through the tap on the response
// body; their reader is already in use by the SDK and is left untouched.
func (r recorder) observeStream(ctx context.Context, inv events.Invocation,
	call func(context.Context) (*bedrockruntime.InvokeModelWithResponseStreamOutput, http.Header, error),
) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error) {
	end := graceful.BeginInvocation()
	span := r.mon.CreateSpan(ctx, monitor.BedrockSummary)

	tap := newStreamTap()
	start := time.Now()
	out, headers, callErr := call(withStreamTap(ctx, tap))
	if callErr != nil {
		span.Finish()
		r.safely(ctx, "invoke model with response stream", func() {
			r.recordEvents(ctx, span, r.mon.Builder().BuildInvocationErrorEvents(ctx, inv, callErr))
		})
		end()
		return out, callErr
	}

	if tap.isAttached() {
		onChunk, finalize := r.streamRecording(ctx, inv, span, start, headers, end)
		tap.bind(onChunk, finalize)
		return out, nil
	}

	var stream *bedrockruntime.InvokeModelWithResponseStreamEventStream
	if out != nil {
		stream = out.GetStream()
	}
	r.attachStream(ctx, inv, span, start, headers, stream, end)
	return out, nil
}

// streamRecording returns the callbacks feeding one StreamAccumulator.
// finalize records the summary, or the error events, and then calls end.
func (r recorder) streamRecording(ctx context.Context, inv events.Invocation, span *monitor.Span,
	start time.Time, headers http.Header, end func()) (onChunk func([]byte), finalize func(error)) {
	ctx = context.WithoutCancel(ctx)
	acc := r.mon.Builder().NewStreamAccumulator(inv, start, headers)

	onChunk = func(chunk []byte) {
		r.safely(ctx, "stream chunk", func() { acc.AddChunk(ctx, chunk) })
	}
	finalize = func(streamErr error) {
		defer end()
		span.Finish()
		r.safely(ctx, "finalize stream", func() {
			if streamErr != nil {
				r.recordEvents(ctx, span, acc.ErrorEvents(ctx, streamErr))
				return
			}
			r.recordEvents(ctx, span, acc.Summary(ctx))
		})
	}
	return onChunk, finalize
}

// attachStream observes a stream that did not come from the SDK
// deserializer, such as one built with NewInvokeModelWithResponseStreamEventStream.
// Nothing else reads such a stream's Reader yet, so it is swapped for one
// that feeds the accumulator.
func (r recorder) attachStream(ctx context.Context, inv events.Invocation, span *monitor.Span,
	start time.Time, headers http.Header,
	stream *bedrockruntime.InvokeModelWithResponseStreamEventStream, end func()) {
	onChunk, finalize := r.streamRecording(ctx, inv, span, start, headers, end)
	if stream == nil || stream.Reader == nil {
		finalize(nil)
		return
	}

	stream.Reader = newObservingReader(stream.Reader, onChunk, finalize)
}

// observeConverse times call and records the Converse events.
func (r recorder) observeConverse(ctx context.Context, in *bedrockruntime.ConverseInput,
	call func(context.Context) (*bedrockruntime.ConverseOutput, http.Header, error),
) (*bedrockruntime.ConverseOutput, error) {
	defer graceful.BeginInvocation()()

	span := r.mon.CreateSpan(ctx, monitor.BedrockSummary)

	start := time.Now()
	out, headers, callErr := call(ctx)
	responseTime := helper.ElapsedSeconds(start)
	span.Finish()

	r.safely(ctx, "converse", func() {
		b := r.mon.Builder()
		if callErr != nil {
			r.recordEvents(ctx, span, b.BuildConverseErrorEvents(conversationFrom(in, nil), callErr))
			return
		}
		r.recordEvents(ctx, span, b.BuildConverseEvents(conversationFrom(in, out), headers, responseTime))
	})

	return out, callErr
}
