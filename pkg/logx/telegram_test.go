package logx

import (
	"strings"
	"testing"
)

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"2026-01-01T08:00:00Z","message":"broadcast failed","dest":"channel","err":"chat not found"}`)
	got := formatTelegramJSON(line)

	if !strings.HasPrefix(got, "[WARN] broadcast failed") {
		t.Fatalf("unexpected header: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time field should be omitted: %q", got)
	}
	// keys are sorted for stable output
	if i, j := strings.Index(got, "- dest="), strings.Index(got, "- err="); i < 0 || j < 0 || i > j {
		t.Fatalf("expected sorted dest/err fields, got %q", got)
	}
}

func TestFormatTelegramJSONNonJSON(t *testing.T) {
	t.Parallel()
	if got := formatTelegramJSON([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" WARNING ", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, LevelInfo); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if ValidLevel("verbose") {
		t.Fatal("verbose should not be a valid level")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("nothing happens", String("k", "v"))
	l.With(Int("n", 1)).Error("still nothing")
}
