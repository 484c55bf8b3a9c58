package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		verbosity int
		want      slog.Level
	}{
		{0, slog.LevelWarn},
		{1, slog.LevelInfo},
		{2, slog.LevelInfo},
		{3, slog.LevelDebug},
		{5, slog.LevelDebug},
	}
	for _, tc := range tests {
		if got := LevelFor(tc.verbosity); got != tc.want {
			t.Errorf("LevelFor(%d) = %s, want %s", tc.verbosity, got, tc.want)
		}
	}
}

func TestSetupProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := Setup("prod", 1, &buf)
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	log.Debug("hidden")
	log.Info("encoded", slog.Int("read", 42))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["msg"] != "encoded" || rec["read"] != float64(42) {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestSetupDebugLogsEverything(t *testing.T) {
	var buf bytes.Buffer
	log, err := Setup("debug", 0, &buf)
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	log.Debug("settings")
	if !strings.Contains(buf.String(), `"msg":"settings"`) {
		t.Fatalf("debug record missing: %q", buf.String())
	}
}

func TestSetupUnknownEnv(t *testing.T) {
	if _, err := Setup("staging", 1, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected an error for an unknown env")
	}
}

func TestPrettyHandler(t *testing.T) {
	var buf bytes.Buffer
	log, err := Setup("local", 1, &buf)
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	log.With(slog.String("input", "a.txt")).Error("cannot open input file", slog.Any("err", errors.New("permission denied")))
	log.Debug("filtered out")

	out := buf.String()
	for _, want := range []string{"cannot open input file", `"input": "a.txt"`, `"err": "permission denied"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q does not contain %q", out, want)
		}
	}
	if strings.Contains(out, "filtered out") {
		t.Fatalf("debug record printed at verbosity 1")
	}
}

func TestPrettyHandlerAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	log, err := Setup("local", 1, &buf)
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	log.With(slog.Any("err", errors.New("disk full"))).
		WithGroup("task").
		With(slog.String("input", "a.txt")).
		Info("encoded", slog.Int("read", 7), slog.Group("sink", slog.String("codec", "LZ4")))

	out := buf.String()
	for _, want := range []string{`"err": "disk full"`, `"task.input": "a.txt"`, `"task.read": 7`, `"task.sink": {`, `"codec": "LZ4"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q does not contain %q", out, want)
		}
	}
}
