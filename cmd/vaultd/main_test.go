package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/sameehj/vaultd/pkg/vault"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "vaults")
	for _, name := range []string{"personal/journal", "work"} {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "personal", "todo.md"), []byte("- call mom\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	wl := filepath.Join(dir, "whitelist.txt")
	if err := os.WriteFile(wl, []byte("# read only\ncat\nls\n"), 0o644); err != nil {
		t.Fatalf("write whitelist: %v", err)
	}

	t.Setenv("VAULTD_CONFIG", filepath.Join(dir, "missing.yaml"))
	t.Setenv("VAULT_ROOTS", root)
	t.Setenv("VAULTS", "")
	t.Setenv("WHITELIST_ENABLED", "true")
	t.Setenv("WHITELIST_PATH", wl)
	t.Setenv("MCP_AUTH_ENABLED", "false")
	t.Setenv("LOG_PATH", "")
	cfgFile = ""
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVaultsCommand(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "vaults", "--json")
	if err != nil {
		t.Fatalf("vaults: %v", err)
	}
	var list []vault.Summary
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("invalid json %q: %v", out, err)
	}
	if len(list) != 2 || list[0].Name != "personal" || !list[0].Accessible {
		t.Fatalf("unexpected vaults %+v", list)
	}
}

func TestTreeCommand(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "tree", "personal")
	if err != nil || !strings.Contains(out, "todo.md") || !strings.Contains(out, "journal/") {
		t.Fatalf("unexpected tree %q (%v)", out, err)
	}
	out, err = run(t, "tree", "personal", "--dirs-only")
	if err != nil || strings.Contains(out, "todo.md") {
		t.Fatalf("expected directories only, got %q (%v)", out, err)
	}
	out, err = run(t, "tree", "personal", "--summary")
	if err != nil || !strings.Contains(out, "1 directories, 1 files") {
		t.Fatalf("expected summary footer, got %q (%v)", out, err)
	}
}

func TestExecCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}
	setupEnv(t)
	out, err := run(t, "exec", "personal", "--", "cat", "todo.md")
	if err != nil || out != "- call mom\n" {
		t.Fatalf("unexpected exec output %q (%v)", out, err)
	}
	if _, err := run(t, "exec", "personal", "--", "rm", "todo.md"); err == nil || !strings.Contains(err.Error(), "not whitelisted") {
		t.Fatalf("expected whitelist rejection, got %v", err)
	}
}

func TestHealthCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX permissions")
	}
	root := setupEnv(t)
	if out, err := run(t, "health"); err != nil || !strings.Contains(out, `"status": "healthy"`) {
		t.Fatalf("unexpected health %q (%v)", out, err)
	}
	if os.Geteuid() == 0 {
		t.Skip("root bypasses directory permissions")
	}
	work := filepath.Join(root, "work")
	if err := os.Chmod(work, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(work, 0o755) })
	if _, err := run(t, "health"); err == nil {
		t.Fatalf("expected error for unhealthy vaults")
	}
}

func TestWhitelistDisabled(t *testing.T) {
	setupEnv(t)
	t.Setenv("WHITELIST_ENABLED", "false")
	t.Setenv("WHITELIST_PATH", filepath.Join(t.TempDir(), "absent.txt"))
	out, err := run(t, "whitelist")
	if err != nil || !strings.Contains(out, "disabled") {
		t.Fatalf("unexpected output %q (%v)", out, err)
	}
}

func TestMissingWhitelistFailsStartup(t *testing.T) {
	setupEnv(t)
	t.Setenv("WHITELIST_PATH", filepath.Join(t.TempDir(), "absent.txt"))
	if _, err := run(t, "vaults"); err == nil {
		t.Fatalf("expected missing whitelist to fail")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version", "--json")
	if err != nil || !strings.Contains(out, `"version"`) {
		t.Fatalf("unexpected version output %q (%v)", out, err)
	}
}
