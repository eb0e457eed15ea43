// Package anthropic parses Claude request and response bodies.
package anthropic

import (
	"bytes"

	"github.com/Laisky/errors/v2"

	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
)

var _ utils.Parser = (*Parser)(nil)

// Parser implements utils.Parser for Claude models.
type Parser struct{}

// ParseRequest implements utils.Parser.
func (p *Parser) ParseRequest(body []byte) (*utils.Request, error) {
	wire := new(Request)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse anthropic request")
	}

	req := &utils.Request{
		System:   utils.FlattenContent(wire.System),
		Messages: utils.Flatten(wire.Messages),
	}
	utils.PromptFrom(req, wire.Prompt)
	return req, nil
}

// ParseResponse implements utils.Parser. Content blocks take precedence
// over the legacy completion field.
func (p *Parser) ParseResponse(body []byte) (*utils.Response, error) {
	wire := new(Response)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse anthropic response")
	}

	resp := new(utils.Response)
	if len(bytes.TrimSpace(wire.Content)) > 0 {
		content := utils.FlattenContent(wire.Content)
		utils.CompletionFrom(resp, &content)
	} else {
		utils.CompletionFrom(resp, wire.Completion)
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
		return nil, errors.Wrap(err, "parse anthropic stream chunk")
	}

	chunk := new(utils.StreamChunk)
	switch wire.Type {
	case "message_start":
		if wire.Message != nil && wire.Message.Usage != nil {
			chunk.Usage = &utils.Usage{
				InputTokens:  wire.Message.Usage.InputTokens,
				OutputTokens: wire.Message.Usage.OutputTokens,
			}
		}
	case "content_block_delta":
		if wire.Delta != nil {
			chunk.Text = wire.Delta.Text
		}
	case "message_delta":
		if wire.Delta != nil && wire.Delta.StopReason != nil {
			chunk.StopReason = *wire.Delta.StopReason
		}
		if wire.Usage != nil {
			chunk.Usage = &utils.Usage{OutputTokens: wire.Usage.OutputTokens}
		}
	default:
		// legacy text completions stream
		if wire.Completion != nil {
			chunk.Text = *wire.Completion
		}
		if wire.StopReason != nil {
			chunk.StopReason = *wire.StopReason
		}
	}
	return chunk, nil
}
