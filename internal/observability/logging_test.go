package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		" error ": slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for name, want := range cases {
		if got := SetLevel(name); got != want {
			t.Fatalf("SetLevel(%q): expected %v, got %v", name, want, got)
		}
	}
}

func TestLoggerFieldsAndLevel(t *testing.T) {
	defer SetLevel("info")

	var buf bytes.Buffer
	logger := WithRoot(WithJob(newLogger(&buf, "bridge"), "Ext_bt1"), "bt1")

	SetLevel("warn")
	logger.Info("dropped", "event", "ignored")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %s", buf.String())
	}

	logger.Warn("dependency cycle truncated", "event", "dependency_cycle")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["component"] != "bridge" || entry["job_id"] != "Ext_bt1" || entry["root_id"] != "bt1" || entry["event"] != "dependency_cycle" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestWithHelpersTolerateEmpty(t *testing.T) {
	if WithJob(nil, "x") != nil || WithRoot(nil, "x") != nil || WithRequest(nil, "x") != nil {
		t.Fatalf("expected nil logger to pass through")
	}
	logger := NewLogger("")
	if WithJob(logger, "") != logger {
		t.Fatalf("expected empty id to return the same logger")
	}
}
