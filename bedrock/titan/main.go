// Package titan parses Amazon Titan Text request and response bodies.
package titan

import (
	"github.com/Laisky/errors/v2"

	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
)

var _ utils.Parser = (*Parser)(nil)

// Parser implements utils.Parser for Titan Text models.
type Parser struct{}

// ParseRequest implements utils.Parser.
func (p *Parser) ParseRequest(body []byte) (*utils.Request, error) {
	wire := new(Request)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse titan request")
	}

	req := new(utils.Request)
	utils.PromptFrom(req, wire.InputText)
	return req, nil
}

// ParseResponse implements utils.Parser. Only the first result is read.
func (p *Parser) ParseResponse(body []byte) (*utils.Response, error) {
	wire := new(Response)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse titan response")
	}

	resp := new(utils.Response)
	if len(wire.Results) == 0 {
		return resp, nil
	}

	first := wire.Results[0]
	empty := ""
	utils.CompletionFrom(resp, first.OutputText, &empty)
	resp.StopReason = first.CompletionReason
	if wire.InputTextTokenCount != nil {
		resp.Usage = &utils.Usage{
			InputTokens:  *wire.InputTextTokenCount,
			OutputTokens: first.TokenCount,
		}
	}
	return resp, nil
}

// ParseStreamChunk implements utils.Parser.
func (p *Parser) ParseStreamChunk(body []byte) (*utils.StreamChunk, error) {
	wire := new(StreamResponse)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse titan stream chunk")
	}

	chunk := new(utils.StreamChunk)
	if wire.OutputText != nil {
		chunk.Text = *wire.OutputText
	}
	if wire.CompletionReason != nil {
		chunk.StopReason = *wire.CompletionReason
	}
	if wire.InputTextTokenCount != nil || wire.TotalOutputTextTokenCount != nil {
		chunk.Usage = new(utils.Usage)
		if wire.InputTextTokenCount != nil {
			chunk.Usage.InputTokens = *wire.InputTextTokenCount
		}
		if wire.TotalOutputTextTokenCount != nil {
			chunk.Usage.OutputTokens = *wire.TotalOutputTextTokenCount
		}
	}
	return chunk, nil
}
