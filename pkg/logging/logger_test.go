package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func bufferLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := &Logger{level: new(slog.LevelVar)}
	l.level.Set(slog.Level(level))
	l.slogger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: l.level}))
	return l, &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"loud":    LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestComponentFields(t *testing.T) {
	l, buf := bufferLogger(LevelInfo)
	l.WithComponent("geocoder").With(String("breaker", "google_maps")).
		Error("geocode failed", errors.New("timeout"), Int("attempt", 2))

	m := decode(t, buf)
	if m["component"] != "geocoder" || m["breaker"] != "google_maps" || m["error"] != "timeout" || m["attempt"] != float64(2) {
		t.Errorf("entry = %v", m)
	}
	if _, ok := m["caller"]; !ok {
		t.Error("error entries should carry the caller")
	}
}

func TestSetLevel(t *testing.T) {
	l, buf := bufferLogger(LevelInfo)
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at info level: %s", buf)
	}
	l.SetLevel(LevelDebug)
	l.Debug("shown")
	if buf.Len() == 0 {
		t.Error("debug not written after SetLevel(debug)")
	}
}

func TestWithContext(t *testing.T) {
	l, buf := bufferLogger(LevelInfo)
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithVerificationID(ctx, "ver-9")
	if RequestIDFrom(ctx) != "req-1" {
		t.Fatalf("RequestIDFrom = %q", RequestIDFrom(ctx))
	}
	l.WithContext(ctx).Info("reviewed")

	m := decode(t, buf)
	if m["request_id"] != "req-1" || m["verification_id"] != "ver-9" {
		t.Errorf("entry = %v", m)
	}
}
