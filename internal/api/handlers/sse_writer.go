package handlers

import (
	"bytes"
	"io"
	"sync"
)

var sseBufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

var (
	sseDataPrefix = []byte("data: ")
	sseSuffix     = []byte("\n\n")
	sseDone       = []byte("data: [DONE]\n\n")
)

// WriteSSEData writes a standard SSE "data" frame.
func WriteSSEData(w io.Writer, data []byte) {
	if w == nil || len(data) == 0 {
		return
	}
	buf := sseBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	buf.Grow(len(sseDataPrefix) + len(data) + len(sseSuffix))
	_, _ = buf.Write(sseDataPrefix)
	_, _ = buf.Write(data)
	_, _ = buf.Write(sseSuffix)
	_, _ = w.Write(buf.Bytes())
	buf.Reset()
	sseBufferPool.Put(buf)
}

// WriteSSEFrame writes a pre-framed event, used for the Anthropic named
// event format where the frame carries its own event line and suffix.
func WriteSSEFrame(w io.Writer, frame []byte) {
	if w == nil || len(frame) == 0 {
		return
	}
	_, _ = w.Write(frame)
}

// WriteSSEDone writes the standard SSE done marker.
func WriteSSEDone(w io.Writer) {
	if w == nil {
		return
	}
	_, _ = w.Write(sseDone)
}
