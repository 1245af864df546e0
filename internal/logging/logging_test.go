package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestPreInitLogCallsAreSilentNoOps(t *testing.T) {
	fresh := newNop()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("logging before Init panicked: %v", r)
		}
	}()
	fresh.Info("hello", "k", "v")
	fresh.Error("boom", "only-key")
}

func TestNilReceiverFallsBackToGlobal(t *testing.T) {
	var l *Logger
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("nil-receiver log call panicked: %v", r)
		}
	}()
	l.Info("via nil receiver")
}

func TestInitChangesLevel(t *testing.T) {
	dir := t.TempDir()
	Init("debug", dir)
	defer Init("info", "")

	if L().current().GetLevel().String() != "debug" {
		t.Fatalf("expected debug level after Init, got %s", L().current().GetLevel())
	}
}

func TestOddLengthKVWrapsAsData(t *testing.T) {
	fresh := newNop()
	// Must not panic with an odd-length kv tail.
	fresh.Warn("odd", "a", 1, "trailing")

	var buf bytes.Buffer
	ev := zerolog.New(&buf).Info()
	fields(ev, []any{"a", 1, "trailing"})
	ev.Msg("odd")
	if !strings.Contains(buf.String(), `"data":"trailing"`) {
		t.Fatalf("expected trailing value wrapped as data field, got %s", buf.String())
	}
}
