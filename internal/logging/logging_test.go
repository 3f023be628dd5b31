package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Output: &buf}).With(String("component", "motor"))
	l.Debug(context.Background(), "retrying", String("command", "stop"), Int("attempt", 2))

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decoding %q: %v", buf.String(), err)
	}
	delete(got, "time")
	want := map[string]any{
		"level":     "DEBUG",
		"msg":       "retrying",
		"component": "motor",
		"command":   "stop",
		"attempt":   float64(2),
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("unexpected record: got(-)/want(+):\n%s", diff)
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})
	l.Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %q", buf.String())
	}
	l.Warn(context.Background(), "kept")
	if buf.Len() == 0 {
		t.Error("warn record not written")
	}
}
