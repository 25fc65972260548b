package corpus

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
)

// ExcludeMatcher decides which corpus paths are skipped. Patterns use
// gitignore syntax: `*`, `?`, `**`, a leading `/` anchors to the corpus
// root, a trailing `/` matches directories only and `!` re-includes.
// The last matching pattern wins.
type ExcludeMatcher struct {
	rules []excludeRule
}

type excludeRule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
}

// NewExcludeMatcher compiles patterns. Blank lines and # comments are ignored.
func NewExcludeMatcher(patterns ...string) *ExcludeMatcher {
	m := &ExcludeMatcher{}
	for _, p := range patterns {
		m.Add(p)
	}
	return m
}

// Add compiles one pattern.
func (m *ExcludeMatcher) Add(pattern string) {
	p := strings.TrimSpace(pattern)
	if p == "" || strings.HasPrefix(p, "#") {
		return
	}

	var r excludeRule
	if strings.HasPrefix(p, "!") {
		r.negate = true
		p = p[1:]
	} else if strings.HasPrefix(p, `\!`) || strings.HasPrefix(p, `\#`) {
		p = p[1:]
	}
	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimSuffix(p, "/")
	}
	if strings.HasPrefix(p, "/") {
		r.anchored = true
		p = strings.TrimPrefix(p, "/")
	}
	// "docs/drafts" is rooted; "**/drafts" and "*.md" are not
	if strings.Contains(p, "/") && !strings.HasPrefix(p, "**/") && !strings.HasPrefix(p, "*") {
		r.anchored = true
	}
	if p == "" {
		return
	}

	r.re = regexp.MustCompile("^" + globToRegexp(p) + "$")
	m.rules = append(m.rules, r)
}

// AddFile adds every pattern in a gitignore-style file. A missing file is
// not an error.
func (m *ExcludeMatcher) AddFile(name string) error {
	f, err := os.Open(name)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.Add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}

// Len returns the number of compiled patterns.
func (m *ExcludeMatcher) Len() int {
	return len(m.rules)
}

// Excluded reports whether rel (slash-separated, relative to the corpus root)
// is skipped. Parent directories are checked too, so a file under an
// excluded directory is excluded.
func (m *ExcludeMatcher) Excluded(rel string, isDir bool) bool {
	rel = strings.Trim(path.Clean(strings.ReplaceAll(rel, `\`, "/")), "/")
	if rel == "" || rel == "." || len(m.rules) == 0 {
		return false
	}

	parts := strings.Split(rel, "/")
	excluded := false
	for _, r := range m.rules {
		if r.matches(parts, isDir) {
			excluded = !r.negate
		}
	}
	return excluded
}

func (r excludeRule) matches(parts []string, isDir bool) bool {
	for i := range parts {
		candidate := strings.Join(parts[:i+1], "/")
		last := i == len(parts)-1
		if r.dirOnly && last && !isDir {
			return false
		}
		if r.re.MatchString(candidate) {
			return true
		}
		if !r.anchored && r.re.MatchString(parts[i]) {
			return true
		}
	}
	return false
}

// globToRegexp translates a glob into an unanchored regular expression.
func globToRegexp(glob string) string {
	var sb strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				if i+2 < len(glob) && glob[i+2] == '/' {
					sb.WriteString("(?:.*/)?")
					i += 2
					continue
				}
				if i == 0 || glob[i-1] == '/' {
					sb.WriteString(".*")
					i++
					continue
				}
			}
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				sb.WriteString(`\[`)
				continue
			}
			sb.WriteString(glob[i : i+end+2])
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return sb.String()
}
