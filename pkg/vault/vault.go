package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sameehj/vaultd/pkg/pathguard"
)

var (
	// ErrUnknownVault is returned when a name is not registered.
	ErrUnknownVault = errors.New("unknown vault")
	// ErrVaultNotAccessible is returned when a registered vault is missing, not a directory, or unreadable.
	ErrVaultNotAccessible = errors.New("vault not accessible")
	// ErrNameCollision is returned when two sources yield the same vault name.
	ErrNameCollision = errors.New("vault name collision")
)

// Summary describes one vault as reported by List.
type Summary struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Accessible bool   `json:"accessible"`
}

// Registry maps vault names to directories. It is built once and never
// mutated afterwards, so concurrent readers need no locking.
type Registry struct {
	roots  []string
	vaults map[string]string
	names  []string
}

// NewRegistry scans every root for immediate, non-hidden subdirectories and
// registers each under its base name. Explicit entries map a name directly to
// a directory and act as their own containment root.
func NewRegistry(roots []string, explicit map[string]string) (*Registry, error) {
	r := &Registry{vaults: make(map[string]string)}
	origin := make(map[string]string)

	for _, root := range roots {
		if root == "" {
			continue
		}
		canonRoot, err := pathguard.Canonicalize(root)
		if err != nil {
			return nil, fmt.Errorf("vault root %s: %w", root, err)
		}
		entries, err := os.ReadDir(canonRoot)
		if err != nil {
			return nil, fmt.Errorf("read vault root %s: %w", root, err)
		}
		r.roots = append(r.roots, canonRoot)

		for _, entry := range entries {
			name := entry.Name()
			if !entry.IsDir() || isHidden(name) {
				continue
			}
			path, err := pathguard.Join(canonRoot, name)
			if err != nil {
				return nil, err
			}
			if err := r.add(name, path, canonRoot, origin); err != nil {
				return nil, err
			}
		}
	}

	explicitNames := make([]string, 0, len(explicit))
	for name := range explicit {
		explicitNames = append(explicitNames, name)
	}
	sort.Strings(explicitNames)
	for _, name := range explicitNames {
		if err := validateName(name); err != nil {
			return nil, err
		}
		path, err := pathguard.Canonicalize(explicit[name])
		if err != nil {
			return nil, fmt.Errorf("vault %s: %w", name, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("vault %s: %w", name, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("vault %s: path is not a directory: %s", name, explicit[name])
		}
		if err := r.add(name, path, path, origin); err != nil {
			return nil, err
		}
		r.roots = append(r.roots, path)
	}

	sort.Strings(r.names)
	return r, nil
}

func (r *Registry) add(name, path, source string, origin map[string]string) error {
	if prev, ok := origin[name]; ok {
		return fmt.Errorf("%w: %q provided by both %s and %s", ErrNameCollision, name, prev, source)
	}
	origin[name] = source
	r.vaults[name] = path
	r.names = append(r.names, name)
	return nil
}

// Resolve returns the absolute path of the named vault.
func (r *Registry) Resolve(name string) (string, error) {
	path, ok := r.vaults[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVault, name)
	}
	return path, nil
}

// Open resolves name and verifies the vault directory is currently usable.
func (r *Registry) Open(name string) (string, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return "", err
	}
	if !Accessible(path) {
		return "", fmt.Errorf("%w: %s", ErrVaultNotAccessible, name)
	}
	return path, nil
}

// List returns every vault ordered by name, probing accessibility at call time.
func (r *Registry) List() []Summary {
	out := make([]Summary, 0, len(r.names))
	for _, name := range r.names {
		path := r.vaults[name]
		out = append(out, Summary{Name: name, Path: path, Accessible: Accessible(path)})
	}
	return out
}

// Names returns the registered vault names in order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Roots returns the canonical containment roots every vault lives under.
func (r *Registry) Roots() []string {
	return append([]string(nil), r.roots...)
}

// Len reports the number of registered vaults.
func (r *Registry) Len() int {
	return len(r.names)
}

// Accessible reports whether path exists, is a directory, and can be listed.
func Accessible(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	return readable(path)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func validateName(name string) error {
	switch {
	case name == "":
		return errors.New("vault name is empty")
	case isHidden(name):
		return fmt.Errorf("vault name %q must not start with '.'", name)
	case strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/'):
		return fmt.Errorf("vault name %q must not contain a path separator", name)
	}
	return nil
}
