package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsShared(t *testing.T) {
	t.Parallel()
	if Default() != Default() {
		t.Fatal("Default() built a new logger on each call")
	}
}

func TestNopDiscards(t *testing.T) {
	t.Parallel()
	log := Nop().With("backend", "cpu")
	log.Error("dropped")
	log.Debug("dropped")
}

func TestBuild(t *testing.T) {
	t.Parallel()
	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"built"`},
		{"text", "msg=built"},
		{"", "INF built"},
		{"Pretty", "INF built"},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		log, err := Build(tc.format, &buf, slog.LevelInfo)
		if err != nil {
			t.Fatalf("Build(%q): %v", tc.format, err)
		}
		log.Info("built")
		if !strings.Contains(buf.String(), tc.want) {
			t.Fatalf("Build(%q): expected %q in %q", tc.format, tc.want, buf.String())
		}
	}
	if _, err := Build("xml", io.Discard, slog.LevelInfo); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestPrettyLiftsScopeAndTrailsErrors(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug).With("component", "api")
	log.Debug("matmul",
		"error", errors.New("staging exhausted"),
		"backend", "cpu",
		"rows", 8,
		"elapsed", 1500*time.Microsecond,
		"gflops", 12.5,
	)
	out := buf.String()
	want := ` DBG api/cpu matmul rows=8 elapsed=1.5ms gflops=12.5 error="staging exhausted"` + "\n"
	if !strings.HasSuffix(out, want) {
		t.Fatalf("expected line ending %q, got %q", want, out)
	}
	if strings.Contains(out, "\033[") {
		t.Fatalf("colors written to a buffer: %q", out)
	}
}

func TestPrettyKernelTagAndGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo).With("kernel", "mul_mat_q4_0")
	log.Info("launch", "grid", 12)
	log.WithGroup("fault").Warn("instance failed", "instance", 3, "kernel", "dup_f32")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.HasSuffix(lines[0], " INF mul_mat_q4_0 launch grid=12") {
		t.Fatalf("kernel tag missing: %q", lines[0])
	}
	// Inside a group the scope keys stay ordinary attributes.
	if !strings.HasSuffix(lines[1], " WRN mul_mat_q4_0 instance failed fault.instance=3 fault.kernel=dup_f32") {
		t.Fatalf("group keys not qualified: %q", lines[1])
	}
}

func TestPrettyFiltersByLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelWarn)
	log.Info("hidden")
	log.Error("shown", "path", "a b")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record passed a warn handler: %q", out)
	}
	if !strings.Contains(out, `ERR shown path="a b"`) {
		t.Fatalf("expected quoted value, got %q", out)
	}
}

func TestPrettyColor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(NewPrettyHandler(&buf, &PrettyOptions{Color: true}))
	log.Error("boom", "error", "x")
	if !strings.Contains(buf.String(), ansiRed+"error=x"+ansiReset) {
		t.Fatalf("expected a red error attribute, got %q", buf.String())
	}
}

func TestFromContextDefault(t *testing.T) {
	t.Parallel()
	if FromContext(context.Background()) != Default() {
		t.Fatal("FromContext without a logger should return Default")
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip test")
	if !strings.Contains(buf.String(), "roundtrip test") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{" DEBUG ", slog.LevelDebug},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.input); got != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}
