package main

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"golang.org/x/sync/errgroup"

	"github.com/nrbedrock/bedrock-observability/bedrock"
	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
	"github.com/nrbedrock/bedrock-observability/common/ctxkey"
	"github.com/nrbedrock/bedrock-observability/instrument"
)

const maxPreviewRunes = 80

type scenarioResult struct {
	Key      string
	Label    string
	Kind     scenarioKind
	ModelID  string
	Success  bool
	Duration time.Duration
	// Output is a short preview of the completion, or the embedding size.
	Output string
	Error  string
}

// runScenarios executes every scenario against api, at most concurrency at a
// time, and returns the results in scenario order.
func runScenarios(ctx context.Context, logger glog.Logger, api instrument.BedrockRuntimeAPI,
	scenarios []scenario, concurrency int) []scenarioResult {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]scenarioResult, len(scenarios))
	var mu sync.Mutex

	var grp errgroup.Group
	grp.SetLimit(concurrency)
	for i, s := range scenarios {
		grp.Go(func() error {
			res := runScenario(ctx, api, s)

			if res.Success {
				logger.Info("scenario succeeded",
					zap.String("scenario", s.Key),
					zap.String("model", s.ModelID),
					zap.String("kind", string(s.Kind)),
					zap.Duration("duration", res.Duration),
				)
			} else {
				logger.Warn("scenario failed",
					zap.String("scenario", s.Key),
					zap.String("model", s.ModelID),
					zap.String("kind", string(s.Kind)),
					zap.Duration("duration", res.Duration),
					zap.String("error", res.Error),
				)
			}

			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = grp.Wait()

	return results
}

func runScenario(ctx context.Context, api instrument.BedrockRuntimeAPI, s scenario) scenarioResult {
	res := scenarioResult{
		Key:     s.Key,
		Label:   s.Label,
		Kind:    s.Kind,
		ModelID: s.ModelID,
	}
	if len(s.Attributes) > 0 {
		ctx = ctxkey.WithAttributes(ctx, s.Attributes)
	}

	start := time.Now()
	var (
		output string
		err    error
	)
	switch s.Kind {
	case kindInvoke:
		output, err = invoke(ctx, api, s)
	case kindStream:
		output, err = stream(ctx, api, s)
	case kindConverse:
		output, err = converse(ctx, api, s)
	default:
		err = errors.Errorf("unknown kind %q", s.Kind)
	}
	res.Duration = time.Since(start)

	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Output = preview(output)
	return res
}

func invoke(ctx context.Context, api instrument.BedrockRuntimeAPI, s scenario) (string, error) {
	out, err := api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(s.ModelID),
		Body:        []byte(s.Body),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", errors.Wrap(err, "invoke model")
	}

	info := bedrock.Resolve(s.ModelID)
	if info.Embedding {
		resp, err := utils.ParseEmbeddingResponse(out.Body)
		if err != nil {
			return "", errors.Wrap(err, "parse embedding response")
		}
		return embeddingSummary(resp), nil
	}

	resp, err := info.Parser().ParseResponse(out.Body)
	if err != nil {
		return "", errors.Wrap(err, "parse response")
	}
	return resp.Completion, nil
}

func embeddingSummary(resp *utils.EmbeddingResponse) string {
	if len(resp.Embedding) > 0 {
		return "embedding dims=" + strconv.Itoa(len(resp.Embedding))
	}
	vectors, err := resp.Vectors()
	if err != nil || len(vectors) == 0 {
		return "no embeddings"
	}
	return strconv.Itoa(len(vectors)) + " embeddings dims=" + strconv.Itoa(len(vectors[0]))
}

// stream reads the whole response stream, concatenating the chunk text.
func stream(ctx context.Context, api instrument.BedrockRuntimeAPI, s scenario) (string, error) {
	out, err := api.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(s.ModelID),
		Body:        []byte(s.Body),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", errors.Wrap(err, "invoke model with response stream")
	}

	es := out.GetStream()
	if es == nil {
		return "", nil
	}
	defer es.Close()

	parser := bedrock.Resolve(s.ModelID).Parser()
	var sb strings.Builder
	for event := range es.Events() {
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		parsed, err := parser.ParseStreamChunk(chunk.Value.Bytes)
		if err != nil {
			continue
		}
		sb.WriteString(parsed.Text)
	}
	if err := es.Err(); err != nil {
		return sb.String(), errors.Wrap(err, "read response stream")
	}
	return sb.String(), nil
}

func converse(ctx context.Context, api instrument.BedrockRuntimeAPI, s scenario) (string, error) {
	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(s.ModelID),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: s.Prompt}},
		}},
	}
	if s.System != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: s.System}}
	}
	if s.MaxTokens > 0 {
		in.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(s.MaxTokens)}
	}

	out, err := api.Converse(ctx, in)
	if err != nil {
		return "", errors.Wrap(err, "converse")
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", nil
	}
	var parts []string
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			parts = append(parts, text.Value)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// preview collapses whitespace and truncates s for the report.
func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxPreviewRunes {
		return s
	}
	return string(runes[:maxPreviewRunes-3]) + "..."
}
