package dump

import (
	"bufio"
	"io"
	"time"

	socketcan "github.com/lion187chen/socketcan-go/v2"
)

// Writer emits candump log lines. Call Flush when done.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write appends rec as one line.
func (w *Writer) Write(rec Record) error {
	if _, err := w.w.WriteString(rec.String()); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// WriteFrame logs f as received on dev at ts.
func (w *Writer) WriteFrame(ts time.Time, dev string, f socketcan.Frame) error {
	return w.Write(Record{TimestampMicros: uint64(ts.UnixMicro()), Device: dev, Frame: f})
}

func (w *Writer) Flush() error { return w.w.Flush() }
