// Package ignore compiles gitignore-style exclusion rules for project
// traversal and reads project-level ignore files.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Parser reads gitignore-style files from a project root.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for.
	IgnoreFiles []string
}

// NewParser creates a parser for the given ignore file names.
func NewParser(ignoreFiles []string) *Parser {
	return &Parser{IgnoreFiles: ignoreFiles}
}

// ParseProject reads every configured ignore file in projectRoot and returns
// their rule lines in file order. Missing files are skipped. Negations are
// kept, so the result can be appended to other rules and compiled as one set.
func (p *Parser) ParseProject(projectRoot string) ([]string, error) {
	var lines []string
	for _, name := range p.IgnoreFiles {
		fileLines, err := parseFile(filepath.Join(projectRoot, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ignore file %s: %w", name, err)
		}
		lines = append(lines, fileLines...)
	}
	return lines, nil
}

// parseFile returns the rule lines of one file; blanks and comments dropped.
func parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		r, ok, err := ParseRule(scanner.Text())
		if err != nil {
			return nil, err
		}
		if ok {
			lines = append(lines, r.Raw)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
