// Package whitelist decides whether a command line may run, based solely on
// its leading program token.
//
// Only the first word is inspected. Arguments, pipes, command chaining
// (";", "&&", backticks) and redirects are not examined, so a permitted
// program can still be combined with anything the shell accepts. This is a
// program allow-list, not a shell-injection filter.
package whitelist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-shellwords"
)

// ErrLoad is returned when the whitelist source cannot be read.
var ErrLoad = errors.New("load whitelist")

// Whitelist is an immutable set of permitted command names.
type Whitelist struct {
	enabled  bool
	commands map[string]struct{}
}

// New builds a whitelist from already-parsed command names.
func New(commands []string, enabled bool) *Whitelist {
	set := make(map[string]struct{}, len(commands))
	for _, c := range commands {
		set[c] = struct{}{}
	}
	return &Whitelist{enabled: enabled, commands: set}
}

// Parse reads one command name per line. Blank lines and lines starting with
// '#' are skipped; surrounding whitespace is trimmed. No quoting or escaping
// is recognised. Names are kept exactly as written.
func Parse(r io.Reader) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(text string) []string {
	out, _ := Parse(strings.NewReader(text))
	return out
}

// Load reads the whitelist file at path. A missing or unreadable file is an
// error even when enforcement is disabled, unless path is empty and the list
// is disabled.
func Load(path string, enabled bool) (*Whitelist, error) {
	if path == "" {
		if enabled {
			return nil, fmt.Errorf("%w: no whitelist path configured", ErrLoad)
		}
		return New(nil, false), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	defer f.Close()

	commands, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrLoad, path, err)
	}
	return New(commands, enabled), nil
}

// Enabled reports whether enforcement is on.
func (w *Whitelist) Enabled() bool {
	return w.enabled
}

// Commands returns the permitted names in sorted order.
func (w *Whitelist) Commands() []string {
	out := make([]string, 0, len(w.commands))
	for c := range w.commands {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of permitted names.
func (w *Whitelist) Len() int {
	return len(w.commands)
}

// IsAllowed reports whether the leading token of commandLine is permitted.
// With enforcement disabled every command line is allowed.
func (w *Whitelist) IsAllowed(commandLine string) bool {
	if !w.enabled {
		return true
	}
	token, ok := LeadingToken(commandLine)
	if !ok {
		return false
	}
	_, allowed := w.commands[token]
	return allowed
}

// LeadingToken extracts the program name from a shell command line, honouring
// quotes the way a POSIX shell splits words. It returns false for empty input
// or input the splitter rejects, such as unbalanced quotes.
func LeadingToken(commandLine string) (string, bool) {
	if strings.TrimSpace(commandLine) == "" {
		return "", false
	}
	words, err := shellwords.Parse(commandLine)
	if err != nil || len(words) == 0 {
		return "", false
	}
	if words[0] == "" {
		return "", false
	}
	return words[0], true
}
