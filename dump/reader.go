// Package dump reads and writes candump log files, one frame per line:
//
//	(1703800000.123456) vcan0 100#DEADBEEF
package dump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"
	"time"

	socketcan "github.com/lion187chen/socketcan-go/v2"
)

// ErrorKind classifies a ParseError.
type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindUnexpectedEOL
	KindInvalidTimestamp
	KindInvalidDeviceName
	KindInvalidFrame
)

var kindNames = [...]string{
	KindIO:                "i/o error",
	KindUnexpectedEOL:     "unexpected end of line",
	KindInvalidTimestamp:  "invalid timestamp",
	KindInvalidDeviceName: "invalid device name",
	KindInvalidFrame:      "invalid frame",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ParseError reports a record that could not be read. Line is 1-based.
type ParseError struct {
	Kind ErrorKind
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dump: line %d: %s", e.Line, e.Kind)
	}
	return fmt.Sprintf("dump: line %d: %s: %v", e.Line, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// maxDeviceName is IFNAMSIZ without the terminating NUL.
const maxDeviceName = 15

// maxLine bounds a log line. The longest valid record, an FD frame with
// dotted data, is a few hundred bytes.
const maxLine = 4096

// Record is one log line.
type Record struct {
	TimestampMicros uint64
	Device          string
	Frame           socketcan.Frame
}

// Time returns the timestamp as a time.Time.
func (r Record) Time() time.Time { return time.UnixMicro(int64(r.TimestampMicros)) }

// String re-emits the log line, without the newline.
func (r Record) String() string {
	return fmt.Sprintf("(%d.%06d) %s %s", r.TimestampMicros/1e6, r.TimestampMicros%1e6, r.Device, FormatFrame(r.Frame))
}

// Reader yields the records of a log. A record that fails to parse is
// reported and skipped; reading continues with the next line.
type Reader struct {
	br     *bufio.Reader
	closer io.Closer
	line   int
	done   bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, maxLine)}
}

// Open opens the log at path. The caller closes the Reader.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// Close closes the file opened by Open. It is a no-op for NewReader.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Next returns the next record, a *ParseError, or io.EOF once the input is
// exhausted. An I/O error is reported once and ends the log. A line longer
// than maxLine is skipped and reported as an invalid frame.
func (r *Reader) Next() (Record, error) {
	if r.done {
		return Record{}, io.EOF
	}
	line, err := r.readLine()
	switch {
	case err == io.EOF:
		r.done = true
		return Record{}, io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		r.line++
		return Record{}, &ParseError{Kind: KindInvalidFrame, Line: r.line, Err: err}
	case err != nil:
		r.done = true
		return Record{}, &ParseError{Kind: KindIO, Line: r.line + 1, Err: err}
	}
	r.line++
	return parseLine(line, r.line)
}

// readLine returns the next line without its terminator. The rest of an
// over-long line is consumed so reading resumes on the line after it.
func (r *Reader) readLine() (string, error) {
	b, err := r.br.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		for err == bufio.ErrBufferFull {
			_, err = r.br.ReadSlice('\n')
		}
		if err != nil && err != io.EOF {
			return "", err
		}
		return "", bufio.ErrTooLong
	}
	if err == io.EOF && len(b) > 0 {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// Records iterates over the remaining records, including failed ones.
// Breaking out of the loop stops reading.
func (r *Reader) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

func parseLine(line string, n int) (Record, error) {
	fail := func(kind ErrorKind, err error) (Record, error) {
		return Record{}, &ParseError{Kind: kind, Line: n, Err: err}
	}

	fields := strings.Fields(line)
	if len(fields) != 3 {
		return fail(KindUnexpectedEOL, fmt.Errorf("want 3 fields, got %d", len(fields)))
	}

	ts, err := parseTimestamp(fields[0])
	if err != nil {
		return fail(KindInvalidTimestamp, err)
	}
	dev := fields[1]
	if len(dev) > maxDeviceName || strings.ContainsAny(dev, "/:") {
		return fail(KindInvalidDeviceName, fmt.Errorf("%q", dev))
	}
	f, err := ParseFrame(fields[2])
	if err != nil {
		return fail(KindInvalidFrame, err)
	}
	return Record{TimestampMicros: ts, Device: dev, Frame: f}, nil
}

// parseTimestamp reads "(<sec>.<usec>)" into microseconds. Fractions
// shorter than six digits are scaled.
func parseTimestamp(s string) (uint64, error) {
	inner, ok := strings.CutPrefix(s, "(")
	if ok {
		inner, ok = strings.CutSuffix(inner, ")")
	}
	if !ok {
		return 0, fmt.Errorf("%q is not parenthesized", s)
	}
	secStr, usecStr, ok := strings.Cut(inner, ".")
	if !ok || usecStr == "" || len(usecStr) > 6 {
		return 0, fmt.Errorf("%q is not <sec>.<usec>", inner)
	}
	sec, err := strconv.ParseUint(secStr, 10, 64)
	if err != nil {
		return 0, err
	}
	usec, err := strconv.ParseUint(usecStr, 10, 32)
	if err != nil {
		return 0, err
	}
	for i := len(usecStr); i < 6; i++ {
		usec *= 10
	}
	return sec*1e6 + usec, nil
}
