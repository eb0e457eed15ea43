package utils

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
)

// EmbeddingRequest covers Titan (inputText) and Cohere (texts) embedding bodies.
type EmbeddingRequest struct {
	InputText *string  `json:"inputText"`
	Texts     []string `json:"texts"`
}

// HasTexts reports whether the body used the multi-text form.
func (r *EmbeddingRequest) HasTexts() bool {
	return r.InputText == nil && r.Texts != nil
}

// TextsString renders the text list as a JSON array.
func (r *EmbeddingRequest) TextsString() string {
	b, err := json.Marshal(r.Texts)
	if err != nil {
		return ""
	}
	return string(b)
}

// EmbeddingResponse covers the single vector and the vector list response shapes.
type EmbeddingResponse struct {
	Embedding           []float64       `json:"embedding"`
	Embeddings          json.RawMessage `json:"embeddings"`
	InputTextTokenCount *int            `json:"inputTextTokenCount"`
}

// Vectors returns the embeddings list. Cohere answers with a map keyed by
// embedding type when embedding_types is set, in which case "float" wins.
func (r *EmbeddingResponse) Vectors() ([][]float64, error) {
	if len(r.Embeddings) == 0 {
		return nil, nil
	}

	var list [][]float64
	if err := json.Unmarshal(r.Embeddings, &list); err == nil {
		return list, nil
	}

	var byType map[string][][]float64
	if err := json.Unmarshal(r.Embeddings, &byType); err != nil {
		return nil, errors.Wrap(err, "unmarshal embeddings")
	}
	if v, ok := byType["float"]; ok {
		return v, nil
	}
	for _, v := range byType {
		return v, nil
	}
	return nil, nil
}

// ParseEmbeddingRequest decodes an embedding request body.
func ParseEmbeddingRequest(body []byte) (*EmbeddingRequest, error) {
	req := new(EmbeddingRequest)
	if err := Decode(body, req); err != nil {
		return nil, errors.Wrap(err, "parse embedding request")
	}
	return req, nil
}

// ParseEmbeddingResponse decodes an embedding response body.
func ParseEmbeddingResponse(body []byte) (*EmbeddingResponse, error) {
	resp := new(EmbeddingResponse)
	if err := Decode(body, resp); err != nil {
		return nil, errors.Wrap(err, "parse embedding response")
	}
	return resp, nil
}
