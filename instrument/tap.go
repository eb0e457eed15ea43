package instrument

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream/eventstreamapi"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

const (
	// StreamTapID names the Deserialize middleware that observes response streams.
	StreamTapID = "BedrockMonitoringStreamTap"

	eventStreamDeserializerID = "OperationEventStreamDeserializer"

	// prelude (12) + message crc (4)
	minFrameLen = 16
	maxFrameLen = 16<<20 + 128<<10 + minFrameLen
)

type streamTapKey struct{}

func withStreamTap(ctx context.Context, tap *streamTap) context.Context {
	return context.WithValue(ctx, streamTapKey{}, tap)
}

func streamTapFrom(ctx context.Context) *streamTap {
	tap, _ := ctx.Value(streamTapKey{}).(*streamTap)
	return tap
}

// withStreamTapOption registers the stream tap on one call or client.
func withStreamTapOption(o *bedrockruntime.Options) {
	o.APIOptions = append(o.APIOptions, addStreamTap)
}

// addStreamTap places the tap right inside the SDK's event stream
// deserializer, so it wraps the HTTP body before the SDK builds its reader.
// Operations without an event stream are left alone.
func addStreamTap(stack *middleware.Stack) error {
	if _, ok := stack.Deserialize.Get(StreamTapID); ok {
		return nil
	}
	if _, ok := stack.Deserialize.Get(eventStreamDeserializerID); !ok {
		return nil
	}
	return stack.Deserialize.Insert(streamTapMiddleware, eventStreamDeserializerID, middleware.After)
}

var streamTapMiddleware = middleware.DeserializeMiddlewareFunc(StreamTapID, func(ctx context.Context,
	in middleware.DeserializeInput, next middleware.DeserializeHandler,
) (out middleware.DeserializeOutput, md middleware.Metadata, err error) {
	out, md, err = next.HandleDeserialize(ctx, in)
	if err != nil {
		return out, md, err
	}

	tap := streamTapFrom(ctx)
	if tap == nil {
		return out, md, err
	}
	if resp, ok := out.RawResponse.(*smithyhttp.Response); ok && resp != nil && resp.Response != nil && resp.Body != nil {
		resp.Body = tap.attach(resp.Body)
	}
	return out, md, err
})

// streamTap decodes a copy of the event stream bytes the SDK reads and
// reports chunk payloads. Chunks and the end of the stream seen before bind
// are replayed by bind.
type streamTap struct {
	mu       sync.Mutex
	decoder  *eventstream.Decoder
	buf      []byte
	payload  []byte
	attached bool

	pending  [][]byte
	ended    bool
	endErr   error
	onChunk  func([]byte)
	finalize func(error)
}

func newStreamTap() *streamTap {
	return &streamTap{decoder: eventstream.NewDecoder()}
}

func (t *streamTap) attach(body io.ReadCloser) io.ReadCloser {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attached = true
	return &tappedBody{ReadCloser: body, tap: t}
}

func (t *streamTap) isAttached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attached
}

// bind starts delivering chunks to onChunk. finalize runs once, with the
// stream error, when the stream ends or its body is closed.
func (t *streamTap) bind(onChunk func([]byte), finalize func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onChunk, t.finalize = onChunk, finalize
	for _, chunk := range t.pending {
		onChunk(chunk)
	}
	t.pending = nil
	if t.ended {
		finalize(t.endErr)
	}
}

func (t *streamTap) end(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLocked(err)
}

func (t *streamTap) endLocked(err error) {
	if t.ended {
		return
	}
	t.ended, t.endErr = true, err
	t.buf = nil
	if t.finalize != nil {
		t.finalize(err)
	}
}

func (t *streamTap) feed(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return
	}

	t.buf = append(t.buf, p...)
	for len(t.buf) >= 4 {
		n := binary.BigEndian.Uint32(t.buf[:4])
		if n < minFrameLen || n > maxFrameLen {
			t.endLocked(errors.Errorf("invalid event stream frame length %d", n))
			return
		}
		if uint32(len(t.buf)) < n {
			return
		}

		msg, err := t.decoder.Decode(bytes.NewReader(t.buf[:n]), t.payload[:0])
		t.buf = t.buf[n:]
		if err != nil {
			t.endLocked(errors.Wrap(err, "decode event stream message"))
			return
		}
		if err := t.handle(msg); err != nil {
			t.endLocked(err)
			return
		}
		t.payload = msg.Payload
	}
}

func (t *streamTap) handle(msg eventstream.Message) error {
	switch headerString(msg.Headers, eventstreamapi.MessageTypeHeader) {
	case eventstreamapi.EventMessageType:
		if !strings.EqualFold(headerString(msg.Headers, eventstreamapi.EventTypeHeader), "chunk") {
			return nil
		}
		var part struct {
			Bytes []byte `json:"bytes"`
		}
		if err := json.Unmarshal(msg.Payload, &part); err != nil {
			return errors.Wrap(err, "unmarshal stream chunk")
		}
		if t.onChunk != nil {
			t.onChunk(part.Bytes)
		} else {
			t.pending = append(t.pending, part.Bytes)
		}
		return nil

	case eventstreamapi.ExceptionMessageType:
		code := headerString(msg.Headers, eventstreamapi.ExceptionTypeHeader)
		if code != "" {
			code = strings.ToUpper(code[:1]) + code[1:]
		}
		var body struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(msg.Payload, &body)
		return &smithy.GenericAPIError{Code: code, Message: body.Message}

	case eventstreamapi.ErrorMessageType:
		return &smithy.GenericAPIError{
			Code:    headerString(msg.Headers, eventstreamapi.ErrorCodeHeader),
			Message: headerString(msg.Headers, eventstreamapi.ErrorMessageHeader),
		}
	}
	return nil
}

func headerString(h eventstream.Headers, name string) string {
	if v := h.Get(name); v != nil {
		return v.String()
	}
	return ""
}

// tappedBody feeds everything read from the response body to its tap.
type tappedBody struct {
	io.ReadCloser
	tap *streamTap
}

func (b *tappedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.tap.feed(p[:n])
	}
	switch {
	case err == io.EOF:
		b.tap.end(nil)
	case err != nil:
		b.tap.end(err)
	}
	return n, err
}

func (b *tappedBody) Close() error {
	err := b.ReadCloser.Close()
	b.tap.end(nil)
	return err
}
