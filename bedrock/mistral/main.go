// Package mistral parses Mistral request and response bodies.
package mistral

import (
	"github.com/Laisky/errors/v2"

	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
)

var _ utils.Parser = (*Parser)(nil)

// Parser implements utils.Parser for Mistral models.
type Parser struct{}

// ParseRequest implements utils.Parser.
func (p *Parser) ParseRequest(body []byte) (*utils.Request, error) {
	wire := new(Request)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse mistral request")
	}

	req := &utils.Request{Messages: utils.Flatten(wire.Messages)}
	utils.PromptFrom(req, wire.Prompt)
	for _, m := range req.Messages {
		if m.Role == "system" {
			req.System = m.Content
			break
		}
	}
	return req, nil
}

// ParseResponse implements utils.Parser.
func (p *Parser) ParseResponse(body []byte) (*utils.Response, error) {
	wire := new(Response)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse mistral response")
	}

	resp := new(utils.Response)
	switch {
	case len(wire.Outputs) > 0:
		utils.CompletionFrom(resp, &wire.Outputs[0].Text)
		resp.StopReason = wire.Outputs[0].StopReason
	case len(wire.Choices) > 0 && wire.Choices[0].Message != nil:
		utils.CompletionFrom(resp, &wire.Choices[0].Message.Content)
		if wire.Choices[0].StopReason != nil {
			resp.StopReason = *wire.Choices[0].StopReason
		}
	}
	return resp, nil
}

// ParseStreamChunk implements utils.Parser.
func (p *Parser) ParseStreamChunk(body []byte) (*utils.StreamChunk, error) {
	wire := new(Response)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse mistral stream chunk")
	}

	chunk := new(utils.StreamChunk)
	switch {
	case len(wire.Outputs) > 0:
		chunk.Text = wire.Outputs[0].Text
		chunk.StopReason = wire.Outputs[0].StopReason
	case len(wire.Choices) > 0:
		c := wire.Choices[0]
		if c.Delta != nil {
			chunk.Text = c.Delta.Content
		} else if c.Message != nil {
			chunk.Text = c.Message.Content
		}
		if c.StopReason != nil {
			chunk.StopReason = *c.StopReason
		}
	}
	return chunk, nil
}
