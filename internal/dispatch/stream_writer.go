package dispatch

import (
	"github.com/gin-gonic/gin"

	"github.com/gateway/multiapi/internal/streaminghub"
)

// streamActivityWriter wraps gin.ResponseWriter so every chunk relayed to
// the client is also recorded against the stream's activity counters,
// mirroring captureWriter's pass-through-and-record shape.
type streamActivityWriter struct {
	gin.ResponseWriter
	stream *streaminghub.Stream
}

func newStreamActivityWriter(w gin.ResponseWriter, stream *streaminghub.Stream) *streamActivityWriter {
	return &streamActivityWriter{ResponseWriter: w, stream: stream}
}

func (w *streamActivityWriter) Write(data []byte) (int, error) {
	n, err := w.ResponseWriter.Write(data)
	w.stream.RecordActivity(n)
	return n, err
}

func (w *streamActivityWriter) WriteString(s string) (int, error) {
	n, err := w.ResponseWriter.WriteString(s)
	w.stream.RecordActivity(n)
	return n, err
}
