// Package cohere parses Cohere Command request and response bodies.
package cohere

import (
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/nrbedrock/bedrock-observability/bedrock/utils"
)

var _ utils.Parser = (*Parser)(nil)

// Parser implements utils.Parser for Cohere Command models.
type Parser struct{}

// ParseRequest implements utils.Parser. Command R chat history becomes
// messages with lower-cased roles, followed by the current message.
func (p *Parser) ParseRequest(body []byte) (*utils.Request, error) {
	wire := new(Request)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse cohere request")
	}

	req := &utils.Request{System: wire.Preamble}
	utils.PromptFrom(req, wire.Prompt, wire.Message)

	if wire.Message != nil {
		for _, m := range wire.ChatHistory {
			role := "unknown"
			if m.Role != nil && *m.Role != "" {
				role = strings.ToLower(*m.Role)
			}
			req.Messages = append(req.Messages, utils.Message{Role: role, Content: m.Message})
		}
		req.Messages = append(req.Messages, utils.Message{Role: "user", Content: *wire.Message})
	}
	return req, nil
}

// ParseResponse implements utils.Parser.
func (p *Parser) ParseResponse(body []byte) (*utils.Response, error) {
	wire := new(Response)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse cohere response")
	}

	resp := new(utils.Response)
	switch {
	case len(wire.Generations) > 0:
		utils.CompletionFrom(resp, &wire.Generations[0].Text)
		resp.StopReason = wire.Generations[0].FinishReason
	case wire.Text != nil:
		utils.CompletionFrom(resp, wire.Text)
		resp.StopReason = wire.FinishReason
	}
	return resp, nil
}

// ParseStreamChunk implements utils.Parser.
func (p *Parser) ParseStreamChunk(body []byte) (*utils.StreamChunk, error) {
	wire := new(StreamResponse)
	if err := utils.Decode(body, wire); err != nil {
		return nil, errors.Wrap(err, "parse cohere stream chunk")
	}

	chunk := new(utils.StreamChunk)
	switch {
	case len(wire.Generations) > 0:
		chunk.Text = wire.Generations[0].Text
	case wire.Text != nil && wire.EventType != "stream-end":
		chunk.Text = *wire.Text
	}
	if wire.FinishReason != nil {
		chunk.StopReason = *wire.FinishReason
	}
	return chunk, nil
}
