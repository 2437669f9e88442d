package dispatch

import (
	"bytes"

	"github.com/gin-gonic/gin"
)

// captureWriter wraps gin.ResponseWriter and records every byte written so
// a cacheable response can be replayed verbatim on a later cache hit.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func newCaptureWriter(w gin.ResponseWriter) *captureWriter {
	return &captureWriter{ResponseWriter: w}
}

func (w *captureWriter) Write(data []byte) (int, error) {
	w.buf.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func (w *captureWriter) Bytes() []byte {
	return w.buf.Bytes()
}
