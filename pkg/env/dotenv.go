// Package env loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set.
package env

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LoadFromDir loads dir/.env if it exists.
func LoadFromDir(dir string) error {
	return Load(filepath.Join(dir, ".env"))
}

// Load applies the variables in path. A missing file is not an error.
func Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	vars, err := Parse(f)
	if err != nil {
		return err
	}
	for _, kv := range vars {
		if _, exists := os.LookupEnv(kv.Key); exists {
			continue
		}
		if err := os.Setenv(kv.Key, kv.Value); err != nil {
			return err
		}
	}
	return nil
}

// Var is one assignment from a .env file.
type Var struct {
	Key   string
	Value string
}

// Parse reads assignments in file order. Comments, blank lines and lines
// without '=' are skipped; an optional "export " prefix and one layer of
// matching quotes are removed.
func Parse(r io.Reader) ([]Var, error) {
	var out []Var
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out = append(out, Var{Key: key, Value: unquote(strings.TrimSpace(val))})
	}
	return out, scanner.Err()
}

func unquote(val string) string {
	if len(val) >= 2 {
		first, last := val[0], val[len(val)-1]
		if (first == '"' || first == '\'') && first == last {
			return val[1 : len(val)-1]
		}
	}
	return val
}
