package events

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"

	"github.com/nrbedrock/bedrock-observability/bedrock"
	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
)

// StreamAccumulator collects the chunks of one InvokeModelWithResponseStream
// call so the summary can be built once the stream is done.
// It is safe for concurrent use.
type StreamAccumulator struct {
	mu sync.Mutex

	builder *Builder
	inv     Invocation
	info    bedrock.ModelInfo
	headers http.Header

	start        time.Time
	firstChunkAt time.Time
	lastChunkAt  time.Time

	chunks     int
	malformed  int
	text       strings.Builder
	stopReason string
	usage      *utils.Usage
	metrics    *utils.InvocationMetrics
}

// NewStreamAccumulator starts accumulating a stream that was requested at start.
func (b *Builder) NewStreamAccumulator(inv Invocation, start time.Time, headers http.Header) *StreamAccumulator {
	return &StreamAccumulator{
		builder: b,
		inv:     inv,
		info:    bedrock.Resolve(inv.ModelID),
		headers: headers,
		start:   start,
	}
}

// AddChunk feeds the raw bytes of one chunk. Chunks that cannot be parsed
// are counted and otherwise ignored.
func (a *StreamAccumulator) AddChunk(ctx context.Context, body []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if a.chunks == 0 {
		a.firstChunkAt = now
	}
	a.lastChunkAt = now
	a.chunks++

	metrics, err := utils.ParseInvocationMetrics(body)
	if err != nil {
		a.malformed++
		gmw.GetLogger(ctx).Debug("skip malformed stream chunk",
			zap.String("model_id", a.info.ID),
			zap.Int("chunk", a.chunks),
			zap.Error(err))
		return
	}
	if metrics != nil {
		a.metrics = metrics
	}

	chunk, err := a.info.Parser().ParseStreamChunk(body)
	if err != nil {
		a.malformed++
		return
	}

	a.text.WriteString(chunk.Text)
	if chunk.StopReason != "" {
		a.stopReason = chunk.StopReason
	}
	if chunk.Usage != nil {
		a.mergeUsage(chunk.Usage)
	}
}

// mergeUsage keeps the largest count seen per direction; providers report
// input once and output either once or cumulatively.
func (a *StreamAccumulator) mergeUsage(u *utils.Usage) {
	if a.usage == nil {
		a.usage = new(utils.Usage)
	}
	a.usage.InputTokens = max(a.usage.InputTokens, u.InputTokens)
	a.usage.OutputTokens = max(a.usage.OutputTokens, u.OutputTokens)
}

// ChunkCount returns the number of chunks seen so far.
func (a *StreamAccumulator) ChunkCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chunks
}

// Completion returns the text accumulated so far.
func (a *StreamAccumulator) Completion() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text.String()
}

func (a *StreamAccumulator) streamAttributes(attrs Attributes) {
	attrs[AttrStream] = true
	attrs[AttrChunkCount] = a.chunks
	if a.malformed > 0 {
		attrs[AttrMalformedChunks] = a.malformed
	}
	if a.chunks > 0 {
		attrs[AttrTimeToFirstChunk] = a.firstChunkAt.Sub(a.start).Seconds()
	}
}

// Summary builds the message events and the summary of the stream.
func (a *StreamAccumulator) Summary(ctx context.Context) Events {
	a.mu.Lock()
	defer a.mu.Unlock()

	end := a.lastChunkAt
	if end.IsZero() {
		end = time.Now()
	}

	b := a.builder
	common := commonAttributes(a.info)
	common[AttrResponseTime] = end.Sub(a.start).Seconds()

	req := b.parseRequest(ctx, a.info, a.inv.Body)

	completion := common.Clone()
	promptTokens := 0
	if req.HasPrompt {
		completion[AttrPrompt] = req.Prompt
		promptTokens = b.estimator.Count(req.Prompt)
		completion[AttrPromptTokens] = promptTokens
	}

	text := a.text.String()
	completionTokens := b.estimator.Count(text)
	completion[AttrCompletion] = text
	completion[AttrCompletionTokens] = completionTokens
	completion[AttrTotalTokens] = promptTokens + completionTokens
	if a.stopReason != "" {
		completion[AttrStopReason] = a.stopReason
	}
	a.streamAttributes(completion)

	applyHeaders(completion, a.headers)
	if m := a.metrics; m != nil {
		completion[AttrAWSInputTokenCount] = m.InputTokenCount
		completion[AttrAWSOutputTokenCount] = m.OutputTokenCount
		completion[AttrAWSInvocationLatency] = m.InvocationLatency
		completion[AttrAWSFirstByteLatency] = m.FirstByteLatency
	} else if a.usage != nil {
		setIfAbsent(completion, AttrAWSInputTokenCount, a.usage.InputTokens)
		setIfAbsent(completion, AttrAWSOutputTokenCount, a.usage.OutputTokens)
	}

	if !b.recordContent {
		stripContent(completion)
	}

	return Events{
		Messages:   b.messageEvents(common, req.Messages),
		Completion: completion,
	}
}

// ErrorEvents builds the error events of a stream that failed part way.
func (a *StreamAccumulator) ErrorEvents(ctx context.Context, streamErr error) Events {
	evts := a.builder.BuildInvocationErrorEvents(ctx, a.inv, streamErr)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.streamAttributes(evts.Completion)
	return evts
}
