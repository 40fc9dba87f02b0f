package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOpenTeesToFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "vaultd.log")

	logger, closer, err := Open(Options{Level: "info", Format: "text", Path: path, Console: &console})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	logger.Info("command_executed", "vault", "personal")
	logger.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, out := range []string{string(data), console.String()} {
		if !strings.Contains(out, "command_executed") || !strings.Contains(out, "vault=personal") {
			t.Fatalf("expected record in output, got %q", out)
		}
		if strings.Contains(out, "hidden") {
			t.Fatalf("debug record logged at info level")
		}
	}
}

func TestOpenWithoutFile(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := Open(Options{Format: "json", Console: &console})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closer.Close()
	logger.Warn("vault_tree_failed")
	if !strings.Contains(console.String(), `"msg":"vault_tree_failed"`) {
		t.Fatalf("expected json record, got %q", console.String())
	}
}
