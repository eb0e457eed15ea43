package instrument

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
	"github.com/nrbedrock/bedrock-observability/events"
)

// conversationFrom maps the typed Converse request, and the response when
// there is one, into events.Conversation.
func conversationFrom(in *bedrockruntime.ConverseInput, out *bedrockruntime.ConverseOutput) events.Conversation {
	conv := events.Conversation{ModelID: aws.ToString(in.ModelId)}

	system := make([]string, 0, len(in.System))
	for _, block := range in.System {
		if text, ok := block.(*types.SystemContentBlockMemberText); ok {
			system = append(system, text.Value)
		}
	}
	conv.System = strings.Join(system, "\n")

	for _, m := range in.Messages {
		conv.Messages = append(conv.Messages, messageFrom(m))
	}

	if out == nil {
		return conv
	}

	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		conv.Output = messageFrom(msg.Value).Content
		conv.HasOutput = true
	}
	conv.StopReason = string(out.StopReason)
	if u := out.Usage; u != nil {
		conv.Usage = &utils.Usage{
			InputTokens:  int(aws.ToInt32(u.InputTokens)),
			OutputTokens: int(aws.ToInt32(u.OutputTokens)),
		}
	}
	if out.Metrics != nil {
		conv.LatencyMs = aws.ToInt64(out.Metrics.LatencyMs)
	}
	return conv
}

// messageFrom keeps the text blocks of m, one per line.
func messageFrom(m types.Message) utils.Message {
	texts := make([]string, 0, len(m.Content))
	for _, block := range m.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			texts = append(texts, text.Value)
		}
	}

	role := string(m.Role)
	if role == "" {
		role = "unknown"
	}
	return utils.Message{Role: role, Content: strings.Join(texts, "\n")}
}
