// Package ignore decides which local files are left out when a backup is
// staged into storage.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileName is the per-payload ignore file. It is read from the payload root
// and never staged itself.
const FileName = ".bmignore"

type pattern struct {
	glob      string
	matchPath bool // match the whole relative path instead of the base name
}

// Matcher checks relative payload paths against a set of glob patterns.
// Patterns without '/' match the base name at any depth; patterns with '/'
// match the slash-separated path from the payload root.
type Matcher struct {
	patterns []pattern
}

// New creates a Matcher from raw pattern lines. Blank lines and lines
// starting with '#' are skipped. The ignore file itself is always matched.
func New(lines []string) *Matcher {
	m := &Matcher{patterns: []pattern{{glob: FileName}}}
	for _, raw := range lines {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.TrimPrefix(raw, "/")
		m.patterns = append(m.patterns, pattern{glob: raw, matchPath: strings.Contains(raw, "/")})
	}
	return m
}

// Match reports whether rel, a path relative to the payload root using
// native separators, is ignored.
func (m *Matcher) Match(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	slashed := filepath.ToSlash(rel)
	base := path.Base(slashed)

	for _, p := range m.patterns {
		subject := base
		if p.matchPath {
			subject = slashed
		}
		// Malformed patterns never match.
		if ok, err := path.Match(p.glob, subject); err == nil && ok {
			return true
		}
	}
	return false
}

// Len returns the number of active patterns, including the implicit one.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// ReadFile returns the raw lines of an ignore file, or nil when it does not exist.
func ReadFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}

// ForPayload builds the matcher for a payload directory from the configured
// patterns plus the payload's own ignore file.
func ForPayload(dir string, configured []string) (*Matcher, error) {
	local, err := ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	return New(append(append([]string{}, configured...), local...)), nil
}
