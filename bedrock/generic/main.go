// Package generic parses bodies of models without a dedicated parser by
// probing the field names most providers use.
package generic

import (
	"github.com/Laisky/errors/v2"

	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
)

var _ utils.Parser = (*Parser)(nil)

// Parser implements utils.Parser with a field fallback chain.
type Parser struct{}

// ParseRequest implements utils.Parser. prompt wins over inputText.
func (p *Parser) ParseRequest(body []byte) (*utils.Request, error) {
	wire := new(Request)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse generic request")
	}

	req := &utils.Request{
		System:   utils.FlattenContent(wire.System),
		Messages: utils.Flatten(wire.Messages),
	}
	utils.PromptFrom(req, wire.Prompt, wire.InputText)
	return req, nil
}

// ParseResponse implements utils.Parser. completion, generation and
// outputText are tried in that order, then a Nova output message.
func (p *Parser) ParseResponse(body []byte) (*utils.Response, error) {
	wire := new(Response)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse generic response")
	}

	resp := new(utils.Response)
	utils.CompletionFrom(resp, wire.Completion, wire.Generation, wire.OutputText)
	if !resp.HasCompletion && wire.Output != nil && wire.Output.Message != nil {
		content := utils.FlattenContent(wire.Output.Message.Content)
		utils.CompletionFrom(resp, &content)
	}
	if wire.StopReason != nil {
		resp.StopReason = *wire.StopReason
	}
	if wire.Usage != nil {
		resp.Usage = &utils.Usage{
			InputTokens:  wire.Usage.InputTokens,
			OutputTokens: wire.Usage.OutputTokens,
		}
	}
	return resp, nil
}

// ParseStreamChunk implements utils.Parser.
func (p *Parser) ParseStreamChunk(body []byte) (*utils.StreamChunk, error) {
	wire := new(StreamResponse)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse generic stream chunk")
	}

	chunk := new(utils.StreamChunk)
	switch {
	case wire.Completion != nil:
		chunk.Text = *wire.Completion
	case wire.Generation != nil:
		chunk.Text = *wire.Generation
	case wire.OutputText != nil:
		chunk.Text = *wire.OutputText
	case wire.ContentBlockDelta != nil:
		chunk.Text = wire.ContentBlockDelta.Delta.Text
	}
	if wire.MessageStop != nil {
		chunk.StopReason = wire.MessageStop.StopReason
	}
	if wire.Metadata != nil && wire.Metadata.Usage != nil {
		chunk.Usage = &utils.Usage{
			InputTokens:  wire.Metadata.Usage.InputTokens,
			OutputTokens: wire.Metadata.Usage.OutputTokens,
		}
	}
	return chunk, nil
}
