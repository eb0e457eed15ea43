package instrument

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"github.com/nrbedrock/bedrock-observability/common/ctxkey"
	"github.com/nrbedrock/bedrock-observability/common/graceful"
	"github.com/nrbedrock/bedrock-observability/monitor"
)

func claudeTextInput() *bedrockruntime.InvokeModelInput {
	return &bedrockruntime.InvokeModelInput{
		ModelId: aws.String("anthropic.claude-v2"),
		Body:    []byte(`{"prompt":"\n\nHuman: Tell me a joke\n\nAssistant:","max_tokens_to_sample":200}`),
	}
}

func TestWrapIsIdempotent(t *testing.T) {
	mon, _ := newTestMonitor(t)
	api := &fakeRuntime{}

	c := Wrap(api, mon)
	require.Same(t, c, Wrap(c, mon))
	require.Same(t, c, Wrap(c, nil))
	require.Same(t, api, c.Unwrap())
}

func TestNilMonitorPassesThrough(t *testing.T) {
	out := &bedrockruntime.InvokeModelOutput{Body: []byte(`{"completion":"hi"}`)}
	api := &fakeRuntime{invokeOut: out}

	got, err := Wrap(api, nil).InvokeModel(testCtx(), claudeTextInput())
	require.NoError(t, err)
	require.Same(t, out, got)
	require.Equal(t, 1, api.calls)
	require.False(t, observed(api.ctxs[0]))
}

func TestInvokeModelText(t *testing.T) {
	mon, rec := newTestMonitor(t)
	out := &bedrockruntime.InvokeModelOutput{
		Body: []byte(`{"completion":" Why did the chicken cross the road?","stop_reason":"stop_sequence"}`),
	}
	api := &fakeRuntime{invokeOut: out}

	got, err := Wrap(api, mon).InvokeModel(testCtx(), claudeTextInput())
	require.NoError(t, err)
	require.Same(t, out, got)
	require.True(t, observed(api.ctxs[0]))

	require.Empty(t, rec.EventsOfType(monitor.BedrockEvent))
	summaries := rec.EventsOfType(monitor.BedrockSummary)
	require.Len(t, summaries, 1)

	attrs := summaries[0].Attributes
	require.Equal(t, "anthropic.claude-v2", attrs["model_id"])
	require.Equal(t, "anthropic", attrs["model_provider"])
	require.Equal(t, " Why did the chicken cross the road?", attrs["completion"])
	require.Equal(t, 6, attrs["prompt_tokens"])
	require.Equal(t, 7, attrs["completion_tokens"])
	require.Equal(t, 13, attrs["total_tokens"])
	require.Equal(t, "stop_sequence", attrs["stop_reason"])
	// no HTTP response behind a fake, so no header attributes
	require.NotContains(t, attrs, "aws_request_id")
	require.NotContains(t, attrs, "aws_invocation_latency")
	require.Equal(t, "instrument-test", attrs[monitor.AttrApplicationName])
	require.Equal(t, monitor.ProviderName, attrs[monitor.AttrProvider])
	require.IsType(t, float64(0), attrs["response_time"])

	spans := rec.Spans()
	require.Len(t, spans, 1)
	span := spans[0]
	require.Equal(t, monitor.BedrockSummary, span.Name)
	require.Equal(t, monitor.BedrockSummary, span.Attributes[monitor.AttrName])
	require.Equal(t, "anthropic.claude-v2", span.Attributes["model_id"])
	require.Equal(t, monitor.InstrumentationProvider, span.Attributes[monitor.AttrInstrumentationProvider])
	require.True(t, span.Finished())

	require.Zero(t, graceful.InFlight())
}

func TestInvokeModelMessages(t *testing.T) {
	mon, rec := newTestMonitor(t)
	api := &fakeRuntime{invokeOut: &bedrockruntime.InvokeModelOutput{
		Body: []byte(`{"content":[{"type":"text","text":"Paris."}],"stop_reason":"end_turn","usage":{"input_tokens":18,"output_tokens":3}}`),
	}}

	_, err := Wrap(api, mon).InvokeModel(testCtx(), &bedrockruntime.InvokeModelInput{
		ModelId: aws.String("us.anthropic.claude-3-haiku-20240307-v1:0"),
		Body: []byte(`{"anthropic_version":"bedrock-2023-05-31","max_tokens":100,"messages":[` +
			`{"role":"user","content":"Capital of France?"},` +
			`{"role":"assistant","content":"Let me think."},` +
			`{"role":"user","content":[{"type":"text","text":"Just the city"}]}]}`),
	})
	require.NoError(t, err)

	msgs := rec.EventsOfType(monitor.BedrockEvent)
	require.Len(t, msgs, 3)
	require.Equal(t, "user", msgs[0].Attributes["role"])
	require.Equal(t, "Capital of France?", msgs[0].Attributes["content"])
	require.Equal(t, 2, msgs[2].Attributes["message_index"])
	require.Equal(t, "Just the city", msgs[2].Attributes["content"])

	summary := rec.EventsOfType(monitor.BedrockSummary)[0].Attributes
	require.Equal(t, "anthropic", summary["model_provider"])
	require.Equal(t, "Paris.", summary["completion"])
	require.Equal(t, 18, summary["aws_input_token_count"])
	require.Equal(t, 3, summary["aws_output_token_count"])
}

func TestInvokeModelEmbedding(t *testing.T) {
	mon, rec := newTestMonitor(t)
	api := &fakeRuntime{invokeOut: &bedrockruntime.InvokeModelOutput{
		Body: []byte(`{"embedding":[0.1,0.2,0.3,0.4],"inputTextTokenCount":5}`),
	}}

	_, err := Wrap(api, mon).InvokeModel(testCtx(), &bedrockruntime.InvokeModelInput{
		ModelId: aws.String("amazon.titan-embed-text-v1"),
		Body:    []byte(`{"inputText":"the quick brown fox jumps"}`),
	})
	require.NoError(t, err)

	require.Empty(t, rec.EventsOfType(monitor.BedrockSummary))
	embeddings := rec.EventsOfType(monitor.BedrockEmbedding)
	require.Len(t, embeddings, 1)
	attrs := embeddings[0].Attributes
	require.Equal(t, "amazon", attrs["model_provider"])
	require.Equal(t, "the quick brown fox jumps", attrs["input_text"])
	require.Equal(t, 5, attrs["input_text_tokens"])
	require.Equal(t, 4, attrs["embedding_dimensions"])
	require.Equal(t, 5, attrs["aws_input_token_count"])

	spans := rec.Spans()
	require.Len(t, spans, 1)
	require.Equal(t, monitor.BedrockEmbedding, spans[0].Name)
	require.Equal(t, monitor.BedrockEmbedding, spans[0].Attributes[monitor.AttrName])
}

func TestInvokeModelError(t *testing.T) {
	mon, rec := newTestMonitor(t)
	apiErr := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Too many requests"}
	api := &fakeRuntime{invokeErr: apiErr}

	out, err := Wrap(api, mon).InvokeModel(testCtx(), claudeTextInput())
	require.Nil(t, out)
	require.Same(t, apiErr, err)

	summaries := rec.EventsOfType(monitor.BedrockSummary)
	require.Len(t, summaries, 1)
	attrs := summaries[0].Attributes
	require.Equal(t, "ThrottlingException", attrs["error_type"])
	require.Contains(t, attrs["error"], "Too many requests")
	require.NotContains(t, attrs, "response_time")
	require.Contains(t, attrs["prompt"], "Tell me a joke")

	require.Len(t, rec.Spans(), 1)
	require.Equal(t, "ThrottlingException", rec.Spans()[0].Attributes["error_type"])
}

func TestInvokeModelEmbeddingError(t *testing.T) {
	mon, rec := newTestMonitor(t)
	apiErr := &smithy.GenericAPIError{Code: "ValidationException", Message: "bad input"}
	api := &fakeRuntime{invokeErr: apiErr}

	_, err := Wrap(api, mon).InvokeModel(testCtx(), &bedrockruntime.InvokeModelInput{
		ModelId: aws.String("cohere.embed-english-v3"),
		Body:    []byte(`{"texts":["a b","c"],"input_type":"search_document"}`),
	})
	require.Same(t, apiErr, err)

	embeddings := rec.EventsOfType(monitor.BedrockEmbedding)
	require.Len(t, embeddings, 1)
	require.Equal(t, "ValidationException", embeddings[0].Attributes["error_type"])
	require.Equal(t, 2, embeddings[0].Attributes["input_text_count"])
}

func TestCallAttributesAndParentSpan(t *testing.T) {
	mon, rec := newTestMonitor(t)
	api := &fakeRuntime{invokeOut: &bedrockruntime.InvokeModelOutput{Body: []byte(`{"completion":"ok"}`)}}

	ctx := ctxkey.WithAttributes(testCtx(), map[string]any{"conversation_id": "c-42", "llm.user": "u-1"})
	ctx = ctxkey.WithParentSpanID(ctx, "b7ad6b7169203331")

	_, err := Wrap(api, mon).InvokeModel(ctx, claudeTextInput())
	require.NoError(t, err)

	attrs := rec.EventsOfType(monitor.BedrockSummary)[0].Attributes
	require.Equal(t, "c-42", attrs["llm.conversation_id"])
	require.Equal(t, "u-1", attrs["llm.user"])

	span := rec.Spans()[0]
	require.Equal(t, "b7ad6b7169203331", span.ParentID)
	require.Equal(t, "c-42", span.Attributes["llm.conversation_id"])
}

func TestTelemetryPanicDoesNotReachCaller(t *testing.T) {
	mon, _ := newTestMonitor(t, &panickingSink{})
	out := &bedrockruntime.InvokeModelOutput{Body: []byte(`{"completion":"ok"}`)}
	api := &fakeRuntime{invokeOut: out}

	var (
		got *bedrockruntime.InvokeModelOutput
		err error
	)
	require.NotPanics(t, func() {
		got, err = Wrap(api, mon).InvokeModel(testCtx(), claudeTextInput())
	})
	require.NoError(t, err)
	require.Same(t, out, got)
	require.Zero(t, graceful.InFlight())
}

func TestConverse(t *testing.T) {
	mon, rec := newTestMonitor(t)
	out := &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "Eleven"}},
		}},
		StopReason: types.StopReasonEndTurn,
		Usage:      &types.TokenUsage{InputTokens: aws.Int32(21), OutputTokens: aws.Int32(2), TotalTokens: aws.Int32(23)},
		Metrics:    &types.ConverseMetrics{LatencyMs: aws.Int64(640)},
	}
	api := &fakeRuntime{converseOut: out}

	got, err := Wrap(api, mon).Converse(testCtx(), &bedrockruntime.ConverseInput{
		ModelId: aws.String("amazon.nova-lite-v1:0"),
		System:  []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: "You are terse."}},
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "Name a prime above ten"}},
		}},
	})
	require.NoError(t, err)
	require.Same(t, out, got)

	msgs := rec.EventsOfType(monitor.BedrockEvent)
	require.Len(t, msgs, 1)
	require.Equal(t, "user", msgs[0].Attributes["role"])

	attrs := rec.EventsOfType(monitor.BedrockSummary)[0].Attributes
	require.Equal(t, "amazon", attrs["model_provider"])
	require.Equal(t, "Eleven", attrs["completion"])
	require.Equal(t, "end_turn", attrs["stop_reason"])
	require.Equal(t, 21, attrs["aws_input_token_count"])
	require.Equal(t, 2, attrs["aws_output_token_count"])
	require.Equal(t, int64(640), attrs["aws_invocation_latency"])
	require.Len(t, rec.Spans(), 1)
}

func TestConverseError(t *testing.T) {
	mon, rec := newTestMonitor(t)
	apiErr := &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no access"}
	api := &fakeRuntime{converseErr: apiErr}

	_, err := Wrap(api, mon).Converse(testCtx(), &bedrockruntime.ConverseInput{
		ModelId: aws.String("meta.llama3-8b-instruct-v1:0"),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "hi"}},
		}},
	})
	require.Same(t, apiErr, err)

	attrs := rec.EventsOfType(monitor.BedrockSummary)[0].Attributes
	require.Equal(t, "AccessDeniedException", attrs["error_type"])
	require.Equal(t, "meta", attrs["model_provider"])
}

func TestInvokeModelWithResponseStreamError(t *testing.T) {
	mon, rec := newTestMonitor(t)
	apiErr := &smithy.GenericAPIError{Code: "ModelTimeoutException", Message: "timed out"}
	api := &fakeRuntime{streamErr: apiErr}

	_, err := Wrap(api, mon).InvokeModelWithResponseStream(testCtx(), &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId: aws.String("anthropic.claude-v2"),
		Body:    []byte(`{"prompt":"\n\nHuman: hi\n\nAssistant:"}`),
	})
	require.Same(t, apiErr, err)

	attrs := rec.EventsOfType(monitor.BedrockSummary)[0].Attributes
	require.Equal(t, "ModelTimeoutException", attrs["error_type"])
	require.Len(t, rec.Spans(), 1)
	require.Zero(t, graceful.InFlight())
}

func TestInvokeModelWithResponseStreamWithoutStream(t *testing.T) {
	mon, rec := newTestMonitor(t)
	out := &bedrockruntime.InvokeModelWithResponseStreamOutput{}
	api := &fakeRuntime{streamOut: out}

	got, err := Wrap(api, mon).InvokeModelWithResponseStream(testCtx(), &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId: aws.String("anthropic.claude-v2"),
		Body:    []byte(`{"prompt":"\n\nHuman: hi\n\nAssistant:"}`),
	})
	require.NoError(t, err)
	require.Same(t, out, got)

	attrs := rec.EventsOfType(monitor.BedrockSummary)[0].Attributes
	require.Equal(t, true, attrs["stream"])
	require.Equal(t, 0, attrs["chunk_count"])
	require.Zero(t, graceful.InFlight())
}
