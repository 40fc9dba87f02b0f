// Package pathguard holds the containment checks shared by the vault registry
// and the executor. Paths are compared after symlink resolution so that a link
// inside a root cannot smuggle a caller outside of it.
package pathguard

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// ErrOutsideRoot is returned when a path does not resolve under any allowed root.
var ErrOutsideRoot = errors.New("path is outside of the allowed roots")

// Canonicalize returns the absolute, symlink-free form of path. The path must exist.
func Canonicalize(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("path contains NUL byte: %q", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path for %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return filepath.Clean(resolved), nil
}

// Within reports whether target is root itself or lies beneath it. Both paths
// are canonicalized first.
func Within(root, target string) (bool, error) {
	canonRoot, err := Canonicalize(root)
	if err != nil {
		return false, err
	}
	canonTarget, err := Canonicalize(target)
	if err != nil {
		return false, err
	}
	return contains(canonRoot, canonTarget), nil
}

// EnsureWithin returns the canonical form of target if it lies under one of roots.
// Roots that cannot be resolved are skipped.
func EnsureWithin(roots []string, target string) (string, error) {
	canonTarget, err := Canonicalize(target)
	if err != nil {
		return "", err
	}
	for _, root := range roots {
		canonRoot, err := Canonicalize(root)
		if err != nil {
			continue
		}
		if contains(canonRoot, canonTarget) {
			return canonTarget, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideRoot, target)
}

// Join resolves unsafePath against root the way a chroot would, so ".." and
// symlinks can never climb above root. The result is not required to exist.
func Join(root, unsafePath string) (string, error) {
	canonRoot, err := Canonicalize(root)
	if err != nil {
		return "", err
	}
	joined, err := securejoin.SecureJoin(canonRoot, unsafePath)
	if err != nil {
		return "", fmt.Errorf("join %q under %s: %w", unsafePath, root, err)
	}
	if !contains(canonRoot, joined) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, unsafePath)
	}
	return joined, nil
}

func contains(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
