package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// IgnoreFile is the shared ignore file in the share root.
const IgnoreFile = ".dtbignore"

// DefaultIgnorePatterns are always applied first, so .dtbignore and config
// can re-include with "!". They cover files that sync clients and file
// browsers drop into mailboxes.
var DefaultIgnorePatterns = []string{
	".DS_Store",
	"desktop.ini",
	"Thumbs.db",
	".dropbox*",
	"*.tmp",
}

type ignoreRule struct {
	glob   string
	negate bool
	// anchored rules contain a '/' and match the whole slash path
	// relative to the share root; others match the base name.
	anchored bool
}

func (r ignoreRule) matches(slashPath string) bool {
	name := slashPath
	if !r.anchored {
		name = path.Base(slashPath)
	}
	ok, err := path.Match(r.glob, name)
	return err == nil && ok
}

// IgnoreMatcher decides which files in mailboxes are not songs.
// Rules are applied in order and the last matching rule wins; a rule
// starting with '!' re-includes what earlier rules ignored.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher parses raw patterns. Blank lines and lines starting
// with '#' are skipped. Patterns that are not valid globs are dropped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		r := ignoreRule{}
		if strings.HasPrefix(raw, "!") {
			r.negate = true
			raw = raw[1:]
		}
		r.glob = strings.TrimPrefix(filepath.ToSlash(raw), "/")
		r.anchored = strings.Contains(r.glob, "/")
		if r.glob == "" {
			continue
		}
		if _, err := path.Match(r.glob, ""); err != nil {
			continue
		}
		m.rules = append(m.rules, r)
	}
	return m
}

// Len returns the number of usable rules.
func (m *IgnoreMatcher) Len() int {
	return len(m.rules)
}

// Match reports whether relativePath, relative to the share root, is ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if relativePath == "" {
		return false
	}
	slashPath := filepath.ToSlash(relativePath)
	ignored := false
	for _, r := range m.rules {
		if r.negate == ignored && r.matches(slashPath) {
			ignored = !r.negate
		}
	}
	return ignored
}

// NewShareIgnoreMatcher combines the default patterns, the share's
// .dtbignore and the configured patterns, in that order.
func NewShareIgnoreMatcher(fsys afero.Fs, root string, configured []string) (*IgnoreMatcher, error) {
	shared, err := ParseIgnoreFile(fsys, filepath.Join(root, IgnoreFile))
	if err != nil {
		return nil, err
	}
	patterns := append([]string{}, DefaultIgnorePatterns...)
	patterns = append(patterns, shared...)
	patterns = append(patterns, configured...)
	return NewIgnoreMatcher(patterns), nil
}

// ParseIgnoreFile returns the lines of the ignore file, or nil
// when it does not exist.
func ParseIgnoreFile(fsys afero.Fs, file string) ([]string, error) {
	f, err := fsys.Open(file)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", file, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	return lines, nil
}
