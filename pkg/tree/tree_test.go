package tree

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func buildVault(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "personal")
	for _, dir := range []string{".hidden/deep", "sub", "alpha"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	files := map[string]string{
		"notes.md":            "# notes",
		"sub/child.md":        "child",
		".hidden/secret.md":   "secret",
		".hidden/deep/x.md":   "x",
		"sub/.draft.md":       "draft",
		"alpha/zeta.md":       "z",
		"alpha/beta/gamma.md": "g",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func TestRenderDirectoriesOnly(t *testing.T) {
	root := buildVault(t)
	out, err := Render(root, false)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := strings.Join([]string{
		"personal/",
		"├── alpha/",
		"│   └── beta/",
		"└── sub/",
	}, "\n")
	if out != want {
		t.Fatalf("unexpected tree:\n%s\nwant:\n%s", out, want)
	}
}

func TestRenderWithFiles(t *testing.T) {
	root := buildVault(t)
	out, err := Render(root, true)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := strings.Join([]string{
		"personal/",
		"├── alpha/",
		"│   ├── beta/",
		"│   │   └── gamma.md",
		"│   └── zeta.md",
		"├── sub/",
		"│   └── child.md",
		"└── notes.md",
	}, "\n")
	if out != want {
		t.Fatalf("unexpected tree:\n%s\nwant:\n%s", out, want)
	}
	for _, hidden := range []string{".hidden", "secret.md", "x.md", ".draft.md"} {
		if strings.Contains(out, hidden) {
			t.Fatalf("hidden entry %q leaked into tree", hidden)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	root := buildVault(t)
	first, _ := Render(root, true)
	for i := 0; i < 5; i++ {
		again, _ := Render(root, true)
		if again != first {
			t.Fatalf("render is not deterministic")
		}
	}
}

func TestRenderEmptyVault(t *testing.T) {
	root := filepath.Join(t.TempDir(), "empty")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	out, err := Render(root, true)
	if err != nil || out != "empty/" {
		t.Fatalf("expected bare root line, got %q (%v)", out, err)
	}
}

func TestRenderMissingRoot(t *testing.T) {
	if _, err := Render(filepath.Join(t.TempDir(), "missing"), true); err == nil {
		t.Fatalf("expected error for missing root")
	}
}

func TestRenderUnreadableSubdir(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := buildVault(t)
	locked := filepath.Join(root, "sub")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	out, stats, err := RenderWithOptions(root, Options{IncludeFiles: true})
	if err != nil {
		t.Fatalf("partial results expected, got error %v", err)
	}
	if !strings.Contains(out, "sub/ "+UnreadableMarker) {
		t.Fatalf("expected unreadable marker, got:\n%s", out)
	}
	if !strings.Contains(out, "notes.md") || stats.Unreadable != 1 {
		t.Fatalf("expected the rest of the tree, got:\n%s (%+v)", out, stats)
	}
}

func TestRenderMaxDepthAndSummary(t *testing.T) {
	root := buildVault(t)
	out, stats, err := RenderWithOptions(root, Options{IncludeFiles: true, MaxDepth: 1, Summary: true})
	if err != nil {
		t.Fatalf("RenderWithOptions: %v", err)
	}
	if strings.Contains(out, "zeta.md") || strings.Contains(out, "beta/") {
		t.Fatalf("depth limit ignored:\n%s", out)
	}
	if stats.Dirs != 2 || stats.Files != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !strings.HasSuffix(out, "2 directories, 1 files (7B)") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}

func TestRenderDoesNotFollowSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := buildVault(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "host.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	out, err := Render(root, true)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(out, "host.txt") {
		t.Fatalf("tree followed a symlink out of the vault:\n%s", out)
	}
}
