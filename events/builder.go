// Package events builds the attribute sets recorded for Bedrock invocations.
package events

import (
	"context"
	"net/http"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"

	"github.com/nrbedrock/bedrock-observability/bedrock"
	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
	"github.com/nrbedrock/bedrock-observability/common/random"
	"github.com/nrbedrock/bedrock-observability/tokens"
)

// Invocation is the request side of an InvokeModel call.
type Invocation struct {
	ModelID string
	Body    []byte
}

// Builder turns invocations into attribute sets.
type Builder struct {
	estimator     tokens.Estimator
	recordContent bool
}

// NewBuilder returns a Builder. A nil estimator counts words.
func NewBuilder(estimator tokens.Estimator, recordContent bool) *Builder {
	if estimator == nil {
		estimator = tokens.WordEstimator{}
	}
	return &Builder{estimator: estimator, recordContent: recordContent}
}

// RecordContent reports whether raw text is kept on events.
func (b *Builder) RecordContent() bool { return b.recordContent }

// Estimator returns the token estimator in use.
func (b *Builder) Estimator() tokens.Estimator { return b.estimator }

func commonAttributes(info bedrock.ModelInfo) Attributes {
	return Attributes{
		AttrRequestID:     random.GetRequestID(),
		AttrModelID:       info.ID,
		AttrModelProvider: info.Provider,
	}
}

func (b *Builder) parseRequest(ctx context.Context, info bedrock.ModelInfo, body []byte) *utils.Request {
	req, err := info.Parser().ParseRequest(body)
	if err != nil {
		gmw.GetLogger(ctx).Warn("failed to parse request body",
			zap.String("model_id", info.ID),
			zap.Error(err))
		return new(utils.Request)
	}
	return req
}

func (b *Builder) messageEvents(base Attributes, msgs []utils.Message) []Attributes {
	if len(msgs) == 0 {
		return nil
	}

	out := make([]Attributes, 0, len(msgs))
	for i, m := range msgs {
		attrs := base.Clone()
		attrs[AttrMessageIndex] = i
		attrs[AttrRole] = m.Role
		attrs[AttrContent] = m.Content
		if !b.recordContent {
			stripContent(attrs)
		}
		out = append(out, attrs)
	}
	return out
}

// BuildInvocationEvents builds the message events and the summary of a
// successful InvokeModel call. responseTime is in seconds.
func (b *Builder) BuildInvocationEvents(ctx context.Context,
	inv Invocation, respBody []byte, headers http.Header, responseTime float64) Events {
	info := bedrock.Resolve(inv.ModelID)
	req := b.parseRequest(ctx, info, inv.Body)

	resp, err := info.Parser().ParseResponse(respBody)
	if err != nil {
		gmw.GetLogger(ctx).Warn("failed to parse response body",
			zap.String("model_id", info.ID),
			zap.Error(err))
		resp = new(utils.Response)
	}

	return b.invocationEvents(info, req, resp, headers, responseTime)
}

func (b *Builder) invocationEvents(info bedrock.ModelInfo,
	req *utils.Request, resp *utils.Response, headers http.Header, responseTime float64) Events {
	common := commonAttributes(info)
	common[AttrResponseTime] = responseTime

	completion := common.Clone()
	promptTokens, completionTokens := 0, 0
	if req.HasPrompt {
		completion[AttrPrompt] = req.Prompt
		promptTokens = b.estimator.Count(req.Prompt)
		completion[AttrPromptTokens] = promptTokens
	}
	if resp.HasCompletion {
		completion[AttrCompletion] = resp.Completion
		completionTokens = b.estimator.Count(resp.Completion)
		completion[AttrCompletionTokens] = completionTokens
	}
	completion[AttrTotalTokens] = promptTokens + completionTokens
	if resp.StopReason != "" {
		completion[AttrStopReason] = resp.StopReason
	}

	applyHeaders(completion, headers)
	if resp.Usage != nil {
		setIfAbsent(completion, AttrAWSInputTokenCount, resp.Usage.InputTokens)
		setIfAbsent(completion, AttrAWSOutputTokenCount, resp.Usage.OutputTokens)
	}

	if !b.recordContent {
		stripContent(completion)
	}

	return Events{
		Messages:   b.messageEvents(common, req.Messages),
		Completion: completion,
	}
}

// BuildInvocationErrorEvents builds the events of a failed InvokeModel call.
// Message events carry the error attributes too.
func (b *Builder) BuildInvocationErrorEvents(ctx context.Context, inv Invocation, callErr error) Events {
	info := bedrock.Resolve(inv.ModelID)
	return b.invocationErrorEvents(info, b.parseRequest(ctx, info, inv.Body), callErr)
}

func (b *Builder) invocationErrorEvents(info bedrock.ModelInfo, req *utils.Request, callErr error) Events {
	errAttrs := commonAttributes(info)
	errAttrs[AttrError] = errString(callErr)
	errAttrs[AttrErrorType] = ErrorType(callErr)
	if req.HasPrompt {
		errAttrs[AttrPrompt] = req.Prompt
	}

	msgs := b.messageEvents(errAttrs, req.Messages)
	if !b.recordContent {
		stripContent(errAttrs)
	}

	return Events{Messages: msgs, Completion: errAttrs}
}

// BuildEmbeddingEvent builds the event of a successful embedding call.
func (b *Builder) BuildEmbeddingEvent(ctx context.Context,
	inv Invocation, respBody []byte, headers http.Header, responseTime float64) Attributes {
	info := bedrock.Resolve(inv.ModelID)
	attrs := commonAttributes(info)
	attrs[AttrResponseTime] = responseTime

	b.applyEmbeddingInput(ctx, info, attrs, inv.Body)

	resp, err := utils.ParseEmbeddingResponse(respBody)
	if err != nil {
		gmw.GetLogger(ctx).Warn("failed to parse response body",
			zap.String("model_id", info.ID),
			zap.Error(err))
		resp = new(utils.EmbeddingResponse)
	}

	if resp.Embedding != nil {
		attrs[AttrEmbeddingDimensions] = len(resp.Embedding)
	} else {
		vectors, err := resp.Vectors()
		if err != nil {
			gmw.GetLogger(ctx).Warn("failed to parse embeddings",
				zap.String("model_id", info.ID),
				zap.Error(err))
		}
		if len(vectors) > 0 {
			attrs[AttrEmbeddingCount] = len(vectors)
			attrs[AttrEmbeddingDimensions] = len(vectors[0])
		}
	}

	applyHeaders(attrs, headers)
	if resp.InputTextTokenCount != nil {
		setIfAbsent(attrs, AttrAWSInputTokenCount, *resp.InputTextTokenCount)
	}

	if !b.recordContent {
		stripContent(attrs)
	}
	return attrs
}

// BuildEmbeddingErrorEvent builds the event of a failed embedding call.
func (b *Builder) BuildEmbeddingErrorEvent(ctx context.Context, inv Invocation, callErr error) Attributes {
	info := bedrock.Resolve(inv.ModelID)
	attrs := commonAttributes(info)
	attrs[AttrError] = errString(callErr)
	attrs[AttrErrorType] = ErrorType(callErr)

	b.applyEmbeddingInput(ctx, info, attrs, inv.Body)

	if !b.recordContent {
		stripContent(attrs)
	}
	return attrs
}

func (b *Builder) applyEmbeddingInput(ctx context.Context, info bedrock.ModelInfo, attrs Attributes, body []byte) {
	req, err := utils.ParseEmbeddingRequest(body)
	if err != nil {
		gmw.GetLogger(ctx).Warn("failed to parse request body",
			zap.String("model_id", info.ID),
			zap.Error(err))
		return
	}

	switch {
	case req.InputText != nil:
		attrs[AttrInputText] = *req.InputText
		attrs[AttrInputTextTokens] = b.estimator.Count(*req.InputText)
	case req.HasTexts():
		attrs[AttrInputTextCount] = len(req.Texts)
		if len(req.Texts) > 0 {
			attrs[AttrInputText] = req.TextsString()
			attrs[AttrInputTextTokens] = tokens.CountAll(b.estimator, req.Texts)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
