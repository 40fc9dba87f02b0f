package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestWithin(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "notes")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	outside := t.TempDir()

	ok, err := Within(root, sub)
	if err != nil || !ok {
		t.Fatalf("expected %s within %s, got %v (%v)", sub, root, ok, err)
	}
	ok, err = Within(root, root)
	if err != nil || !ok {
		t.Fatalf("root should contain itself, got %v (%v)", ok, err)
	}
	ok, err = Within(root, outside)
	if err != nil || ok {
		t.Fatalf("expected %s outside %s, got %v (%v)", outside, root, ok, err)
	}
	ok, err = Within(root, filepath.Join(sub, "..", ".."))
	if err != nil || ok {
		t.Fatalf("dot-dot escape should not be contained, got %v (%v)", ok, err)
	}
}

func TestWithinSiblingPrefix(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "vault")
	sibling := filepath.Join(base, "vault-evil")
	for _, dir := range []string{root, sibling} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	ok, err := Within(root, sibling)
	if err != nil {
		t.Fatalf("Within: %v", err)
	}
	if ok {
		t.Fatalf("string prefix must not count as containment")
	}
}

func TestEnsureWithinSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	_, err := EnsureWithin([]string{root}, link)
	if !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("expected ErrOutsideRoot for symlink escape, got %v", err)
	}
}

func TestEnsureWithinSkipsMissingRoots(t *testing.T) {
	root := t.TempDir()
	got, err := EnsureWithin([]string{filepath.Join(root, "missing"), root}, root)
	if err != nil {
		t.Fatalf("EnsureWithin: %v", err)
	}
	want, _ := Canonicalize(root)
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestJoinClampsTraversal(t *testing.T) {
	root := t.TempDir()
	canonRoot, _ := Canonicalize(root)

	got, err := Join(root, "../../etc")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got != filepath.Join(canonRoot, "etc") {
		t.Fatalf("expected traversal clamped under root, got %q", got)
	}
}

func TestCanonicalizeRejectsEmptyAndNUL(t *testing.T) {
	if _, err := Canonicalize(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := Canonicalize("a\x00b"); err == nil {
		t.Fatalf("expected error for NUL byte")
	}
}
