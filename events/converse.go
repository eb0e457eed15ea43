package events

import (
	"net/http"
	"strings"

	"github.com/nrbedrock/bedrock-observability/bedrock"
	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
)

// Conversation is a Converse call in family-neutral form. The typed
// request and response are mapped by the caller.
type Conversation struct {
	ModelID  string
	System   string
	Messages []utils.Message

	Output     string
	HasOutput  bool
	StopReason string
	Usage      *utils.Usage
	// LatencyMs is the service-reported latency, 0 when unknown.
	LatencyMs int64
}

func (c Conversation) request() *utils.Request {
	req := &utils.Request{System: c.System, Messages: c.Messages}

	parts := make([]string, 0, len(c.Messages)+1)
	if c.System != "" {
		parts = append(parts, c.System)
	}
	for _, m := range c.Messages {
		parts = append(parts, m.Content)
	}
	if len(parts) > 0 {
		req.Prompt = strings.Join(parts, "\n")
		req.HasPrompt = true
	}
	return req
}

// BuildConverseEvents builds the message events and the summary of a
// successful Converse call. The prompt is the system prompt followed by
// every message, one per line.
func (b *Builder) BuildConverseEvents(conv Conversation, headers http.Header, responseTime float64) Events {
	info := bedrock.Resolve(conv.ModelID)
	resp := &utils.Response{
		Completion:    conv.Output,
		HasCompletion: conv.HasOutput,
		StopReason:    conv.StopReason,
		Usage:         conv.Usage,
	}

	evts := b.invocationEvents(info, conv.request(), resp, headers, responseTime)
	if conv.LatencyMs > 0 {
		setIfAbsent(evts.Completion, AttrAWSInvocationLatency, conv.LatencyMs)
	}
	return evts
}

// BuildConverseErrorEvents builds the events of a failed Converse call.
func (b *Builder) BuildConverseErrorEvents(conv Conversation, callErr error) Events {
	return b.invocationErrorEvents(bedrock.Resolve(conv.ModelID), conv.request(), callErr)
}
