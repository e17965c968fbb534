package intake

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFile lists name patterns the watcher skips. It is read from data_dir
// (applies to every group) and from each group directory.
const IgnoreFile = ".docmindignore"

// Matcher matches file names against ignore patterns.
type Matcher struct {
	patterns []string
}

// LoadMatcher reads IgnoreFile from each dir. Missing files are skipped.
func LoadMatcher(dirs ...string) (*Matcher, error) {
	m := &Matcher{}
	seen := map[string]bool{}
	for _, dir := range dirs {
		patterns, err := parseIgnoreFile(filepath.Join(dir, IgnoreFile))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, p := range patterns {
			if !seen[p] {
				seen[p] = true
				m.patterns = append(m.patterns, p)
			}
		}
	}
	return m, nil
}

// Match reports whether name matches any pattern.
func (m *Matcher) Match(name string) bool {
	if m == nil {
		return false
	}
	for _, p := range m.patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func parseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if p := parseIgnoreLine(scanner.Text()); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns, scanner.Err()
}

// parseIgnoreLine returns the pattern on line, or "" for blank lines,
// comments, negations and malformed globs. Group directories are flat, so
// leading and trailing slashes are dropped and patterns match base names.
func parseIgnoreLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return ""
	}
	line = strings.Trim(line, "/")
	if line == "" || strings.Contains(line, "/") {
		return ""
	}
	if _, err := filepath.Match(line, ""); err != nil {
		return ""
	}
	return line
}
