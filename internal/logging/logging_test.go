package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerIncludesFieldsAndCommandID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx := ContextWithCommandID(context.Background(), "cmd-1")
	log.With(String("component", "dispatcher")).Info(ctx, "applied",
		Int("queued", 3),
		Float64("score", 0.75),
		Err(errors.New("boom")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	for key, want := range map[string]any{
		"msg":        "applied",
		"component":  "dispatcher",
		"command_id": "cmd-1",
		"error":      "boom",
	} {
		if got := entry[key]; got != want {
			t.Fatalf("entry[%q] = %v, want %v", key, got, want)
		}
	}
	if got := entry["queued"]; got != float64(3) {
		t.Fatalf("entry[queued] = %v, want 3", got)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestCommandIDRoundTrip(t *testing.T) {
	if got := CommandIDFromContext(context.Background()); got != "" {
		t.Fatalf("CommandIDFromContext on a bare context = %q, want empty", got)
	}
	id := NewCommandID()
	if id == "" {
		t.Fatalf("NewCommandID returned empty id")
	}
	if got := CommandIDFromContext(ContextWithCommandID(context.Background(), id)); got != id {
		t.Fatalf("CommandIDFromContext = %q, want %q", got, id)
	}
	if NewCommandID() == NewCommandID() {
		t.Fatalf("NewCommandID returned duplicate ids")
	}
}

func TestNoopLoggerIsSilent(t *testing.T) {
	log := Noop().With(String("k", "v"))
	log.Error(context.Background(), "nothing")
}
