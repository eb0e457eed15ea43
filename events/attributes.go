package events

import (
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/aws/smithy-go"
)

// Attribute names shared by every event.
const (
	AttrRequestID     = "request_id"
	AttrModelID       = "model_id"
	AttrModelProvider = "model_provider"
	AttrResponseTime  = "response_time"

	AttrPrompt           = "prompt"
	AttrPromptTokens     = "prompt_tokens"
	AttrCompletion       = "completion"
	AttrCompletionTokens = "completion_tokens"
	AttrTotalTokens      = "total_tokens"
	AttrStopReason       = "stop_reason"

	AttrMessageIndex = "message_index"
	AttrRole         = "role"
	AttrContent      = "content"

	AttrError     = "error"
	AttrErrorType = "error_type"

	AttrInputText           = "input_text"
	AttrInputTextTokens     = "input_text_tokens"
	AttrInputTextCount      = "input_text_count"
	AttrEmbeddingDimensions = "embedding_dimensions"
	AttrEmbeddingCount      = "embedding_count"

	// The aws_* values come from the response headers, or from the
	// amazon-bedrock-invocationMetrics of a stream. aws_invocation_latency
	// and aws_first_byte_latency are int64 milliseconds, so the header
	// string is parsed and kept as a string only when it is not a number.
	AttrAWSRequestID         = "aws_request_id"
	AttrAWSInvocationLatency = "aws_invocation_latency"
	AttrAWSInputTokenCount   = "aws_input_token_count"
	AttrAWSOutputTokenCount  = "aws_output_token_count"
	AttrAWSFirstByteLatency  = "aws_first_byte_latency"

	AttrStream           = "stream"
	AttrChunkCount       = "chunk_count"
	AttrTimeToFirstChunk = "time_to_first_chunk"
	AttrMalformedChunks  = "malformed_chunk_count"
)

// Response headers read from Bedrock runtime responses. All of them carry
// decimal strings except the request id.
const (
	HeaderRequestID         = "x-amzn-requestid"
	HeaderInvocationLatency = "x-amzn-bedrock-invocation-latency"
	HeaderInputTokenCount   = "x-amzn-bedrock-input-token-count"
	HeaderOutputTokenCount  = "x-amzn-bedrock-output-token-count"
)

// contentAttrs hold raw text and are dropped when content recording is off.
var contentAttrs = []string{AttrPrompt, AttrCompletion, AttrContent, AttrInputText}

// Attributes is the attribute set of one event.
type Attributes map[string]any

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	return maps.Clone(a)
}

// Int returns the attribute as an int, or 0 when absent or not an int.
func (a Attributes) Int(key string) int {
	v, _ := a[key].(int)
	return v
}

// String returns the attribute as a string, or "" when absent or not a string.
func (a Attributes) String(key string) string {
	v, _ := a[key].(string)
	return v
}

// Events is what one text invocation produces: one attribute set per
// request message plus the summary.
type Events struct {
	Messages   []Attributes
	Completion Attributes
}

// ErrorType names err for the error_type attribute. Service errors use
// their AWS error code, anything else its Go type.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() != "" {
		return apiErr.ErrorCode()
	}

	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}

// applyHeaders copies the Bedrock response headers into attrs. The latency
// header becomes an int64 of milliseconds and the token counts become ints.
func applyHeaders(attrs Attributes, h http.Header) {
	if h == nil {
		return
	}

	if v := h.Get(HeaderRequestID); v != "" {
		attrs[AttrAWSRequestID] = v
	}
	if v := h.Get(HeaderInvocationLatency); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			attrs[AttrAWSInvocationLatency] = ms
		} else {
			attrs[AttrAWSInvocationLatency] = v
		}
	}
	if v := h.Get(HeaderInputTokenCount); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			attrs[AttrAWSInputTokenCount] = n
		}
	}
	if v := h.Get(HeaderOutputTokenCount); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			attrs[AttrAWSOutputTokenCount] = n
		}
	}
}

// setIfAbsent sets attrs[key] unless a value is already present.
func setIfAbsent(attrs Attributes, key string, v any) {
	if _, ok := attrs[key]; !ok {
		attrs[key] = v
	}
}

// stripContent removes the raw text attributes.
func stripContent(attrs Attributes) {
	for _, k := range contentAttrs {
		delete(attrs, k)
	}
}
