package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConsole(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	log := New(&buf, "info", "console")

	log.Debug("hidden")
	log.With("guildID", "g1").WithGroup("track").Info("now playing", "title", "Song A", "ms", 1500)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line printed: %q", out)
	}
	for _, want := range []string{"INFO", "now playing", "guildID=g1", `track.title="Song A"`, "track.ms=1500"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("want one line, got %q", out)
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "json").Debug("hello", "guildID", "g1")
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if m["msg"] != "hello" || m["guildID"] != "g1" || m["level"] != "DEBUG" {
		t.Fatalf("record = %v", m)
	}
}
