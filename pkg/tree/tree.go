// Package tree renders a vault directory as an indented text tree.
//
// Output is deterministic: within each directory, subdirectories come first,
// then files, each group ordered by byte-wise name comparison. Entries whose
// name starts with '.' are skipped together with everything beneath them.
package tree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docker/go-units"
)

const (
	branch     = "├── "
	lastBranch = "└── "
	pipe       = "│   "
	space      = "    "

	// UnreadableMarker follows a directory whose contents could not be listed.
	UnreadableMarker = "[permission denied]"
)

// Options tunes rendering.
type Options struct {
	// IncludeFiles lists files as well as directories.
	IncludeFiles bool
	// MaxDepth stops descending below this many levels; zero means unlimited.
	MaxDepth int
	// Summary appends a "N directories, M files" footer.
	Summary bool
}

// Stats counts what a render emitted.
type Stats struct {
	Dirs       int
	Files      int
	Bytes      int64
	Unreadable int
}

type entry struct {
	name  string
	isDir bool
	size  int64
}

type walker struct {
	opts  Options
	lines []string
	stats Stats
}

// Render walks root and returns the tree text. The first line is the base
// name of root followed by '/'. Only a failure to read root itself is an
// error; unreadable subdirectories are marked and skipped.
func Render(root string, includeFiles bool) (string, error) {
	out, _, err := RenderWithOptions(root, Options{IncludeFiles: includeFiles})
	return out, err
}

// RenderWithOptions is Render with depth limits and an optional summary.
func RenderWithOptions(root string, opts Options) (string, Stats, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", Stats{}, fmt.Errorf("stat %s: %w", filepath.Base(root), err)
	}
	if !info.IsDir() {
		return "", Stats{}, fmt.Errorf("%s is not a directory", filepath.Base(root))
	}
	children, err := readDir(root)
	if err != nil {
		return "", Stats{}, err
	}

	w := &walker{opts: opts}
	w.lines = append(w.lines, filepath.Base(root)+"/")
	w.walkChildren(root, w.filter(children), "", 1)

	if opts.Summary {
		w.lines = append(w.lines, "", w.stats.String(opts.IncludeFiles))
	}
	return strings.Join(w.lines, "\n"), w.stats, nil
}

func (w *walker) walkChildren(dir string, children []entry, prefix string, depth int) {
	for i, child := range children {
		last := i == len(children)-1
		connector, extension := branch, pipe
		if last {
			connector, extension = lastBranch, space
		}

		if !child.isDir {
			w.stats.Files++
			w.stats.Bytes += child.size
			w.lines = append(w.lines, prefix+connector+child.name)
			continue
		}

		w.stats.Dirs++
		path := filepath.Join(dir, child.name)
		if w.opts.MaxDepth > 0 && depth >= w.opts.MaxDepth {
			w.lines = append(w.lines, prefix+connector+child.name+"/")
			continue
		}
		grandchildren, err := readDir(path)
		if err != nil {
			w.stats.Unreadable++
			w.lines = append(w.lines, prefix+connector+child.name+"/ "+UnreadableMarker)
			continue
		}
		w.lines = append(w.lines, prefix+connector+child.name+"/")
		w.walkChildren(path, w.filter(grandchildren), prefix+extension, depth+1)
	}
}

func (w *walker) filter(entries []entry) []entry {
	if w.opts.IncludeFiles {
		return entries
	}
	dirs := entries[:0:0]
	for _, e := range entries {
		if e.isDir {
			dirs = append(dirs, e)
		}
	}
	return dirs
}

// readDir lists visible entries of dir, directories first. Symlinks are
// listed as files and never followed, so the walk cannot leave the vault.
func readDir(dir string) ([]entry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("permission denied reading %s: %w", filepath.Base(dir), err)
		}
		return nil, err
	}
	out := make([]entry, 0, len(items))
	for _, item := range items {
		name := item.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		e := entry{name: name, isDir: item.IsDir()}
		if !e.isDir {
			if info, err := item.Info(); err == nil {
				e.size = info.Size()
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].isDir != out[j].isDir {
			return out[i].isDir
		}
		return out[i].name < out[j].name
	})
	return out, nil
}

func (s Stats) String(includeFiles bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d directories", s.Dirs)
	if includeFiles {
		fmt.Fprintf(&b, ", %d files (%s)", s.Files, units.HumanSize(float64(s.Bytes)))
	}
	if s.Unreadable > 0 {
		fmt.Fprintf(&b, ", %d unreadable", s.Unreadable)
	}
	return b.String()
}
