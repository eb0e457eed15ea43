// Package llama parses Meta Llama request and response bodies.
package llama

import (
	"github.com/Laisky/errors/v2"

	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
)

var _ utils.Parser = (*Parser)(nil)

// Parser implements utils.Parser for Llama models.
type Parser struct{}

// ParseRequest implements utils.Parser.
func (p *Parser) ParseRequest(body []byte) (*utils.Request, error) {
	wire := new(Request)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse llama request")
	}

	req := new(utils.Request)
	utils.PromptFrom(req, wire.Prompt)
	return req, nil
}

// ParseResponse implements utils.Parser.
func (p *Parser) ParseResponse(body []byte) (*utils.Response, error) {
	wire := new(Response)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse llama response")
	}

	resp := new(utils.Response)
	utils.CompletionFrom(resp, wire.Generation)
	if wire.StopReason != nil {
		resp.StopReason = *wire.StopReason
	}
	resp.Usage = usage(wire)
	return resp, nil
}

// ParseStreamChunk implements utils.Parser.
func (p *Parser) ParseStreamChunk(body []byte) (*utils.StreamChunk, error) {
	wire := new(Response)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse llama stream chunk")
	}

	chunk := new(utils.StreamChunk)
	if wire.Generation != nil {
		chunk.Text = *wire.Generation
	}
	if wire.StopReason != nil {
		chunk.StopReason = *wire.StopReason
	}
	chunk.Usage = usage(wire)
	return chunk, nil
}

func usage(wire *Response) *utils.Usage {
	if wire.PromptTokenCount == nil && wire.GenerationTokenCount == nil {
		return nil
	}

	u := new(utils.Usage)
	if wire.PromptTokenCount != nil {
		u.InputTokens = *wire.PromptTokenCount
	}
	if wire.GenerationTokenCount != nil {
		u.OutputTokens = *wire.GenerationTokenCount
	}
	return u
}
