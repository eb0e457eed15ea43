package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nrbedrock/bedrock-observability/common/config"
	"github.com/nrbedrock/bedrock-observability/common/logger"
	"github.com/nrbedrock/bedrock-observability/instrument"
	"github.com/nrbedrock/bedrock-observability/monitor"
	"github.com/nrbedrock/bedrock-observability/tokens"
)

func TestSplitList(t *testing.T) {
	cases := map[string][]string{
		"claude":                    {"claude"},
		"claude,titan":              {"claude", "titan"},
		"claude; titan \n stream":   {"claude", "titan", "stream"},
		"  claude  ,  embedding   ": {"claude", "embedding"},
		"claude\n\nconverse":        {"claude", "converse"},
	}

	for input, want := range cases {
		got := splitList(input)
		if len(got) != len(want) {
			t.Fatalf("splitList(%q) length = %d, want %d", input, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("splitList(%q)[%d] = %q, want %q", input, i, got[i], want[i])
			}
		}
	}

	if got := splitList("   "); len(got) != 0 {
		t.Fatalf("splitList blank length = %d, want 0", len(got))
	}
}

func TestDefaultScenariosAreValid(t *testing.T) {
	keys := map[string]bool{}
	for _, s := range defaultScenarios {
		if err := s.validate(); err != nil {
			t.Fatalf("default scenario %q invalid: %v", s.Key, err)
		}
		keys[s.Key] = true
	}
	for _, k := range []string{"claude", "titan", "embedding", "stream", "converse"} {
		if !keys[k] {
			t.Fatalf("default scenario %q missing", k)
		}
	}
}

func TestSelectScenarios(t *testing.T) {
	all, err := selectScenarios(defaultScenarios, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	for _, s := range all {
		require.NotEqual(t, "converse", s.Key)
	}

	got, err := selectScenarios(defaultScenarios, "converse")
	require.NoError(t, err)
	require.Len(t, got, 1)

	// selection keeps the declared order, not the flag order
	got, err = selectScenarios(defaultScenarios, "stream, CLAUDE")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "claude", got[0].Key)
	require.Equal(t, "stream", got[1].Key)

	_, err = selectScenarios(defaultScenarios, "claude,gpt")
	require.ErrorContains(t, err, `unknown scenario "gpt"`)
}

func TestLoadScenarios(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		got, metadata, err := loadScenarios("")
		require.NoError(t, err)
		require.Nil(t, metadata)
		require.Equal(t, defaultScenarios, got)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scenarios.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
metadata:
  environment: staging
scenarios:
  - key: haiku
    model_id: anthropic.claude-3-haiku-20240307-v1:0
    body: '{"anthropic_version":"bedrock-2023-05-31","max_tokens":100,"messages":[{"role":"user","content":"hi"}]}'
    attributes:
      team: search
  - key: chat
    label: Converse chat
    kind: converse
    model_id: amazon.titan-text-express-v1
    prompt: Say hello
    max_tokens: 50
`), 0o600))

		got, metadata, err := loadScenarios(path)
		require.NoError(t, err)
		require.Equal(t, map[string]any{"environment": "staging"}, metadata)
		require.Len(t, got, 2)
		require.Equal(t, kindInvoke, got[0].Kind)
		require.Equal(t, "haiku", got[0].Label)
		require.Equal(t, "search", got[0].Attributes["team"])
		require.Equal(t, kindConverse, got[1].Kind)
		require.Equal(t, int32(50), got[1].MaxTokens)
	})

	t.Run("invalid", func(t *testing.T) {
		cases := map[string]string{
			"bad body":  "scenarios:\n  - key: a\n    model_id: m\n    body: '{'\n",
			"no model":  "scenarios:\n  - key: a\n    body: '{}'\n",
			"bad kind":  "scenarios:\n  - key: a\n    kind: batch\n    model_id: m\n",
			"duplicate": "scenarios:\n  - key: a\n    model_id: m\n    body: '{}'\n  - key: a\n    model_id: m\n    body: '{}'\n",
			"empty":     "metadata: {}\n",
			"no prompt": "scenarios:\n  - key: a\n    kind: converse\n    model_id: m\n",
		}
		for name, content := range cases {
			path := filepath.Join(t.TempDir(), "scenarios.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			_, _, err := loadScenarios(path)
			require.Error(t, err, name)
		}

		_, _, err := loadScenarios(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})
}

// fakeRuntime answers by model id.
type fakeRuntime struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func (f *fakeRuntime) record(modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, modelID)
	return f.errs[modelID]
}

func (f *fakeRuntime) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput,
	_ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	id := aws.ToString(params.ModelId)
	if err := f.record(id); err != nil {
		return nil, err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.bodies[id])}, nil
}

func (f *fakeRuntime) InvokeModelWithResponseStream(_ context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput,
	_ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error) {
	if err := f.record(aws.ToString(params.ModelId)); err != nil {
		return nil, err
	}
	return &bedrockruntime.InvokeModelWithResponseStreamOutput{}, nil
}

func (f *fakeRuntime) Converse(_ context.Context, params *bedrockruntime.ConverseInput,
	_ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	if err := f.record(aws.ToString(params.ModelId)); err != nil {
		return nil, err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "It collects and routes telemetry."}},
		}},
		StopReason: types.StopReasonEndTurn,
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(15),
			OutputTokens: aws.Int32(6),
			TotalTokens:  aws.Int32(21),
		},
	}, nil
}

func newTestMonitor(t *testing.T) (*monitor.Monitor, *monitor.RecorderSink) {
	t.Helper()

	rec := monitor.NewRecorderSink()
	mon, err := monitor.New(monitor.Options{
		ApplicationName:  "cli-test",
		DisableNewRelic:  true,
		EnablePrometheus: monitor.Bool(false),
		Estimator:        tokens.WordEstimator{},
		Sinks:            []monitor.Sink{rec},
	})
	require.NoError(t, err)
	require.NoError(t, mon.Start(testCtx()))
	t.Cleanup(func() { _ = mon.Shutdown(context.Background()) })
	return mon, rec
}

func testCtx() context.Context {
	return gmw.SetLogger(context.Background(), logger.Logger)
}

func TestRunScenarios(t *testing.T) {
	mon, rec := newTestMonitor(t)
	api := &fakeRuntime{
		bodies: map[string]string{
			"anthropic.claude-v2":          `{"completion":" Logs, metrics and traces\n walk into a bar.","stop_reason":"stop_sequence"}`,
			"amazon.titan-embed-text-v1":   `{"embedding":[0.1,0.2,0.3,0.4],"inputTextTokenCount":9}`,
			"amazon.titan-text-express-v1": `{"results":[{"outputText":"unused"}]}`,
		},
		errs: map[string]error{
			"amazon.titan-text-express-v1": &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no model access"},
		},
	}

	selected, err := selectScenarios(defaultScenarios, "claude,titan,embedding,converse")
	require.NoError(t, err)

	results := runScenarios(testCtx(), logger.Logger, instrument.Wrap(api, mon), selected, 2)
	require.Len(t, results, 4)
	require.Len(t, api.calls, 4)

	byKey := map[string]scenarioResult{}
	for _, res := range results {
		byKey[res.Key] = res
	}

	require.True(t, byKey["claude"].Success)
	require.Equal(t, "Logs, metrics and traces walk into a bar.", byKey["claude"].Output)

	require.False(t, byKey["titan"].Success)
	require.Contains(t, byKey["titan"].Error, "AccessDeniedException")

	require.True(t, byKey["embedding"].Success)
	require.Equal(t, "embedding dims=4", byKey["embedding"].Output)

	require.True(t, byKey["converse"].Success)
	require.Equal(t, "It collects and routes telemetry.", byKey["converse"].Output)

	require.Len(t, rec.EventsOfType(monitor.BedrockEmbedding), 1)
	// claude, the failed titan call and converse
	require.Len(t, rec.EventsOfType(monitor.BedrockSummary), 3)

	rep := buildReport(results, rec)
	require.Equal(t, 1, rep.failedCount)
	require.Equal(t, 1, rep.eventCounts[monitor.BedrockEmbedding])
	require.Equal(t, 4, rep.spanCount)
}

func TestRunScenarioAttributes(t *testing.T) {
	mon, rec := newTestMonitor(t)
	api := &fakeRuntime{bodies: map[string]string{"anthropic.claude-v2": `{"completion":"ok"}`}}

	s := defaultScenarios[0]
	s.Attributes = map[string]any{"team": "search"}

	res := runScenario(testCtx(), instrument.Wrap(api, mon), s)
	require.True(t, res.Success)

	summaries := rec.EventsOfType(monitor.BedrockSummary)
	require.Len(t, summaries, 1)
	require.Equal(t, "search", summaries[0].Attributes["llm.team"])
}

func TestStreamWithoutEvents(t *testing.T) {
	api := &fakeRuntime{}
	s := defaultScenarios[3]
	require.Equal(t, kindStream, s.Kind)

	res := runScenario(testCtx(), api, s)
	require.True(t, res.Success)
	require.Empty(t, res.Output)
}

func TestPreview(t *testing.T) {
	require.Equal(t, "a b c", preview("  a\n b\t c "))

	long := strings.Repeat("x", 200)
	got := preview(long)
	require.Len(t, []rune(got), maxPreviewRunes)
	require.True(t, strings.HasSuffix(got, "..."))
}

func TestRenderReport(t *testing.T) {
	rec := monitor.NewRecorderSink()
	ctx := testCtx()
	require.NoError(t, rec.RecordEvent(ctx, monitor.Event{Type: monitor.BedrockSummary}))
	require.NoError(t, rec.RecordEvent(ctx, monitor.Event{Type: monitor.BedrockSummary}))
	require.NoError(t, rec.RecordEvent(ctx, monitor.Event{Type: monitor.BedrockEmbedding}))

	rep := buildReport([]scenarioResult{
		{Key: "claude", Label: "Claude text completion", Kind: kindInvoke, ModelID: "anthropic.claude-v2",
			Success: true, Duration: 1200 * time.Millisecond, Output: "a poem"},
		{Key: "titan", Label: "Titan text", Kind: kindInvoke, ModelID: "amazon.titan-text-express-v1",
			Error: "AccessDeniedException: no model access"},
	}, rec)

	var buf bytes.Buffer
	renderReport(&buf, rep)
	out := buf.String()

	require.Contains(t, out, "Claude text completion")
	require.Contains(t, out, "PASS")
	require.Contains(t, out, "1.20s")
	require.Contains(t, out, "FAIL")
	require.Contains(t, out, "AccessDeniedException")
	require.Contains(t, out, monitor.BedrockSummary)
	require.Contains(t, out, "Scenarios: 2 | Passed: 1 | Failed: 1")

	buf.Reset()
	renderReport(&buf, buildReport(nil, nil))
	require.Equal(t, "no scenarios selected\n", buf.String())
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "cli_test_total", Help: "test counter"})
	registry.MustRegister(counter)
	counter.Inc()

	router := newRouter(registry)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, config.Version, body["version"])
	require.Equal(t, false, body["draining"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "cli_test_total 1")
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, config.Version+"\n", buf.String())
}
