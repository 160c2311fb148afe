package ignore

import (
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Matcher decides whether a path relative to its base directory is excluded.
// It is immutable after Compile and safe for concurrent use.
type Matcher struct {
	base  string
	rules []Rule
	m     gitignore.Matcher
}

// Compile parses rules in order and fails on the first invalid one. Later
// rules take precedence over earlier ones, so a negation re-includes a path
// excluded above it.
func Compile(baseDir string, rules []string) (*Matcher, error) {
	parsed := make([]Rule, 0, len(rules))
	patterns := make([]gitignore.Pattern, 0, len(rules))
	for _, line := range rules {
		r, ok, err := ParseRule(line)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		parsed = append(parsed, r)
		patterns = append(patterns, gitignore.ParsePattern(r.expr(), nil))
	}
	return &Matcher{
		base:  baseDir,
		rules: parsed,
		m:     gitignore.NewMatcher(patterns),
	}, nil
}

// Matches reports whether relPath is excluded. relPath is relative to the
// base directory; either separator is accepted.
func (m *Matcher) Matches(relPath string, isDir bool) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	relPath = filepath.ToSlash(filepath.Clean(relPath))
	if relPath == "." || relPath == "" || strings.HasPrefix(relPath, "../") {
		return false
	}
	return m.m.Match(strings.Split(relPath, "/"), isDir)
}

// MatchesPath is Matches for a path under the base directory.
func (m *Matcher) MatchesPath(path string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel, err := filepath.Rel(m.base, path)
	if err != nil {
		return false
	}
	return m.Matches(rel, isDir)
}

// Base returns the directory rules are evaluated against.
func (m *Matcher) Base() string {
	return m.base
}

// Rules returns the compiled rules in evaluation order.
func (m *Matcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}
