package instrument

import (
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

var _ bedrockruntime.ResponseStreamReader = (*observingReader)(nil)

// observingReader forwards every event of the wrapped reader unchanged and
// hands chunk payloads to onChunk. finalize runs exactly once, with the
// stream error, after the last event or after Close.
type observingReader struct {
	inner    bedrockruntime.ResponseStreamReader
	onChunk  func([]byte)
	finalize func(error)

	events    chan types.ResponseStream
	done      chan struct{}
	closeOnce sync.Once
	finalOnce sync.Once
}

func newObservingReader(inner bedrockruntime.ResponseStreamReader,
	onChunk func([]byte), finalize func(error)) *observingReader {
	r := &observingReader{
		inner:    inner,
		onChunk:  onChunk,
		finalize: finalize,
		events:   make(chan types.ResponseStream),
		done:     make(chan struct{}),
	}
	go r.pump()
	return r
}

func (r *observingReader) pump() {
	defer close(r.events)
	defer func() { r.finish(r.inner.Err()) }()

	src := r.inner.Events()
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-src:
			if !ok {
				return
			}
			if chunk, isChunk := ev.(*types.ResponseStreamMemberChunk); isChunk {
				r.onChunk(chunk.Value.Bytes)
			}

			select {
			case r.events <- ev:
			case <-r.done:
				return
			}
		}
	}
}

func (r *observingReader) finish(err error) {
	r.finalOnce.Do(func() { r.finalize(err) })
}

// Events implements bedrockruntime.ResponseStreamReader.
func (r *observingReader) Events() <-chan types.ResponseStream {
	return r.events
}

// Close implements bedrockruntime.ResponseStreamReader.
func (r *observingReader) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return r.inner.Close()
}

// Err implements bedrockruntime.ResponseStreamReader.
func (r *observingReader) Err() error {
	return r.inner.Err()
}
