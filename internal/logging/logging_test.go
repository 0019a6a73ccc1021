package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

type recordSink struct {
	records []slog.Record
}

func (s *recordSink) Enabled(context.Context, slog.Level) bool { return true }
func (s *recordSink) Handle(_ context.Context, r slog.Record) error {
	s.records = append(s.records, r.Clone())
	return nil
}
func (s *recordSink) WithAttrs([]slog.Attr) slog.Handler { return s }
func (s *recordSink) WithGroup(string) slog.Handler      { return s }

func TestSet(t *testing.T) {
	prev := L()
	defer Set(prev)

	sink := &recordSink{}
	Set(slog.New(sink))
	Set(nil)

	L().Debug("socket open", "iface", "vcan0")
	if len(sink.records) != 1 || sink.records[0].Message != "socket open" {
		t.Fatalf("expected one record from the installed logger, got %d", len(sink.records))
	}
}

func TestNewNoTime(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Options{Level: slog.LevelInfo, NoTime: true})
	l.Info("hello", "k", 1)
	l.Debug("filtered")

	out := buf.String()
	if strings.Contains(out, "time=") {
		t.Fatalf("time attribute not dropped: %q", out)
	}
	if !strings.Contains(out, "msg=hello") || strings.Contains(out, "filtered") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{Format: "json", Level: slog.LevelDebug}).Debug("x")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected json output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", want: slog.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
