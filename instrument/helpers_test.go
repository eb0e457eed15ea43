package instrument

import (
	"context"
	"net/http"
	"sync"
	"testing"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/require"

	"github.com/nrbedrock/bedrock-observability/common/logger"
	"github.com/nrbedrock/bedrock-observability/monitor"
	"github.com/nrbedrock/bedrock-observability/tokens"
)

func testCtx() context.Context {
	return gmw.SetLogger(context.Background(), logger.Logger)
}

func newTestMonitor(t *testing.T, sinks ...monitor.Sink) (*monitor.Monitor, *monitor.RecorderSink) {
	t.Helper()

	rec := monitor.NewRecorderSink()
	mon, err := monitor.New(monitor.Options{
		ApplicationName:  "instrument-test",
		DisableNewRelic:  true,
		EnablePrometheus: monitor.Bool(false),
		RecordContent:    monitor.Bool(true),
		Estimator:        tokens.WordEstimator{},
		Sinks:            append([]monitor.Sink{rec}, sinks...),
	})
	require.NoError(t, err)
	require.NoError(t, mon.Start(testCtx()))
	t.Cleanup(func() { _ = mon.Shutdown(context.Background()) })
	return mon, rec
}

func bedrockHeaders() http.Header {
	h := http.Header{}
	h.Set("x-amzn-requestid", "5f1c0e3a-aws")
	h.Set("x-amzn-bedrock-invocation-latency", "912")
	h.Set("x-amzn-bedrock-input-token-count", "14")
	h.Set("x-amzn-bedrock-output-token-count", "9")
	return h
}

// fakeRuntime is a BedrockRuntimeAPI returning canned results.
type fakeRuntime struct {
	mu    sync.Mutex
	calls int
	ctxs  []context.Context

	invokeOut   *bedrockruntime.InvokeModelOutput
	invokeErr   error
	streamOut   *bedrockruntime.InvokeModelWithResponseStreamOutput
	streamErr   error
	converseOut *bedrockruntime.ConverseOutput
	converseErr error
}

func (f *fakeRuntime) called(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ctxs = append(f.ctxs, ctx)
}

func (f *fakeRuntime) InvokeModel(ctx context.Context, _ *bedrockruntime.InvokeModelInput,
	_ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.called(ctx)
	return f.invokeOut, f.invokeErr
}

func (f *fakeRuntime) InvokeModelWithResponseStream(ctx context.Context, _ *bedrockruntime.InvokeModelWithResponseStreamInput,
	_ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error) {
	f.called(ctx)
	return f.streamOut, f.streamErr
}

func (f *fakeRuntime) Converse(ctx context.Context, _ *bedrockruntime.ConverseInput,
	_ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.called(ctx)
	return f.converseOut, f.converseErr
}

// panickingSink blows up on every event.
type panickingSink struct {
	monitor.RecorderSink
}

func (p *panickingSink) Name() string { return "panicking" }

func (p *panickingSink) RecordEvent(context.Context, monitor.Event) error {
	panic("sink exploded")
}
