// Package ignore reads gitignore-style files that exclude paths from
// directory ingestion.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultFiles are the ignore files looked for in an ingested directory.
var DefaultFiles = []string{".ragdignore", ".gitignore"}

// DefaultPatterns apply when a directory has none of the ignore files.
var DefaultPatterns = []string{".git/", "node_modules/", "vendor/", "__pycache__/"}

// rule is one parsed ignore line.
type rule struct {
	glob     string
	dirOnly  bool
	anchored bool
}

// Parser reads and parses gitignore-style files.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for.
	IgnoreFiles []string

	// FallbackPatterns are used when no ignore files are found.
	FallbackPatterns []string
}

// NewParser creates a new ignore file parser with the given configuration.
func NewParser(ignoreFiles, fallbackPatterns []string) *Parser {
	return &Parser{
		IgnoreFiles:      ignoreFiles,
		FallbackPatterns: fallbackPatterns,
	}
}

// Load reads every ignore file in root and returns a Matcher over their
// combined rules, or over the fallback patterns when none exist.
func (p *Parser) Load(root string) (*Matcher, error) {
	var lines []string
	foundAny := false
	for _, name := range p.IgnoreFiles {
		fileLines, err := readLines(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		lines = append(lines, fileLines...)
		foundAny = true
	}
	if !foundAny {
		lines = p.FallbackPatterns
	}
	return NewMatcher(deduplicate(lines))
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}

// parseLine parses a single ignore line. ok is false for blank lines,
// comments and negations, which are not supported.
func parseLine(line string) (r rule, ok bool) {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return rule{}, false
	}

	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	// A leading "**/" matches at any depth, the same as no slash at all.
	line = strings.TrimPrefix(line, "**/")
	if strings.Contains(line, "/") {
		r.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	if line == "" {
		return rule{}, false
	}
	r.glob = line
	return r, true
}

// Matcher decides whether a path relative to the ingested root is ignored.
type Matcher struct {
	rules []rule
}

// NewMatcher parses gitignore-style lines. Malformed globs are rejected.
func NewMatcher(lines []string) (*Matcher, error) {
	m := &Matcher{}
	for _, line := range lines {
		r, ok := parseLine(line)
		if !ok {
			continue
		}
		if _, err := path.Match(r.glob, "x"); err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", line, err)
		}
		m.rules = append(m.rules, r)
	}
	return m, nil
}

// Len returns the number of active rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

// Match reports whether rel is ignored. rel uses the OS separator. Callers
// walking a tree skip ignored directories, so only rel itself is checked,
// not its parents.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := path.Base(rel)
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		target := base
		if r.anchored {
			target = rel
		}
		if matched, _ := path.Match(r.glob, target); matched {
			return true
		}
	}
	return false
}

// deduplicate removes duplicate lines while preserving order.
func deduplicate(lines []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(lines))
	for _, l := range lines {
		if !seen[l] {
			seen[l] = true
			result = append(result, l)
		}
	}
	return result
}
