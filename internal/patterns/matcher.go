package patterns

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher decides whether a path is ignored. A path is ignored if it
// contains any substring rule, or if it or its base name matches any glob
// rule. Rules are fixed once the matcher is built.
type Matcher struct {
	substrings []string
	globs      []glob.Glob
}

// NewMatcher creates a matcher from substring and glob rules.
// Blank entries and lines starting with # are skipped.
func NewMatcher(substrings, globs []string) (*Matcher, error) {
	m := &Matcher{
		substrings: make([]string, 0, len(substrings)),
		globs:      make([]glob.Glob, 0, len(globs)),
	}

	for _, s := range substrings {
		if s = cleanRule(s); s != "" {
			m.substrings = append(m.substrings, s)
		}
	}

	for _, pattern := range globs {
		pattern = cleanRule(pattern)
		if pattern == "" {
			continue
		}

		// Normalize pattern: use forward slashes
		pattern = filepath.ToSlash(pattern)

		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore glob %q: %w", pattern, err)
		}
		m.globs = append(m.globs, g)
	}

	return m, nil
}

func cleanRule(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		return ""
	}
	return s
}

// ShouldIgnore reports whether path matches any ignore rule
func (m *Matcher) ShouldIgnore(path string) bool {
	if m == nil {
		return false
	}

	for _, s := range m.substrings {
		if strings.Contains(path, s) {
			return true
		}
	}

	if len(m.globs) == 0 {
		return false
	}

	normalizedPath := filepath.ToSlash(path)
	base := filepath.Base(normalizedPath)
	for _, pattern := range m.globs {
		if pattern.Match(normalizedPath) || pattern.Match(base) {
			return true
		}
	}

	return false
}
