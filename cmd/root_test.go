package cmd

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/grimoire-ai/grimoire/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"version"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(buf.String(), "Grimoire") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestServeRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Chdir(t.TempDir())

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"serve"})

	err := rootCmd.Execute()
	if !errors.Is(err, config.ErrMissingDatabaseURL) {
		t.Fatalf("Execute() = %v, want ErrMissingDatabaseURL", err)
	}
}

func TestOrDefault(t *testing.T) {
	if got := orDefault(0, 8); got != 8 {
		t.Errorf("orDefault(0, 8) = %d", got)
	}
	if got := orDefault(3, 8); got != 3 {
		t.Errorf("orDefault(3, 8) = %d", got)
	}
	if got := orDefaultF(0, 0.3); got != 0.3 {
		t.Errorf("orDefaultF(0, 0.3) = %f", got)
	}
}
