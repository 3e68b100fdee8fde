package docs

import (
	"bufio"
	"os"
	"regexp"
	"strings"
)

// IgnoreMatcher applies gitignore-style patterns to corpus paths.
// Supported: comments, "!" negation, trailing "/" for directories,
// leading "/" (or an inner "/") to anchor at the root, and the
// wildcards "*", "?" and "**".
type IgnoreMatcher struct {
	rules []ignoreRule
}

type ignoreRule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
}

// NewIgnoreMatcher compiles patterns.
func NewIgnoreMatcher(patterns ...string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, p := range patterns {
		m.Add(p)
	}
	return m
}

// Add compiles one pattern. Blank lines and comments are ignored.
func (m *IgnoreMatcher) Add(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	var r ignoreRule
	if strings.HasPrefix(pattern, "!") {
		r.negate = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = pattern[1:]
	} else if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
		r.anchored = true
	}
	if pattern == "" {
		return
	}

	r.re = regexp.MustCompile("^" + globToRegex(pattern) + "$")
	m.rules = append(m.rules, r)
}

// AddFromFile adds every line of path as a pattern.
func (m *IgnoreMatcher) AddFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.Add(sc.Text())
	}
	return sc.Err()
}

// Match reports whether rel (slash-separated, relative to the root) is ignored.
// The last matching rule wins.
func (m *IgnoreMatcher) Match(rel string, isDir bool) bool {
	ignored := false
	for _, r := range m.rules {
		if r.matches(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r ignoreRule) matches(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	if r.anchored {
		return r.re.MatchString(rel)
	}
	base := rel
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		base = rel[i+1:]
	}
	return r.re.MatchString(base) || r.re.MatchString(rel)
}

// globToRegex translates "*", "?" and "**" and quotes everything else.
func globToRegex(glob string) string {
	var sb strings.Builder
	for i := 0; i < len(glob); i++ {
		switch c := glob[i]; c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				if i+2 < len(glob) && glob[i+2] == '/' {
					sb.WriteString("(?:.*/)?")
					i += 2
				} else {
					sb.WriteString(".*")
					i++
				}
				continue
			}
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return sb.String()
}
