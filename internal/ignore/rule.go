package ignore

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrBadPattern is wrapped by every PatternError.
var ErrBadPattern = errors.New("invalid ignore pattern")

// PatternError reports an ignore rule that could not be compiled.
type PatternError struct {
	Rule   string
	Reason string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid ignore pattern %q: %s", e.Rule, e.Reason)
}

// Unwrap allows errors.Is(err, ErrBadPattern).
func (e *PatternError) Unwrap() error {
	return ErrBadPattern
}

// Kind distinguishes literal names from glob expressions.
type Kind int

const (
	// Literal rules contain no glob metacharacters.
	Literal Kind = iota
	// Glob rules contain at least one of *, ? or [.
	Glob
)

func (k Kind) String() string {
	if k == Glob {
		return "glob"
	}
	return "literal"
}

// Rule is one parsed ignore line.
type Rule struct {
	// Raw is the line as written, minus trailing whitespace.
	Raw string

	// Pattern is the body of the rule without the !, leading / or trailing /.
	Pattern string

	Kind Kind

	// Negate re-includes paths excluded by earlier rules.
	Negate bool

	// DirOnly rules (trailing /) only match directories and their contents.
	DirOnly bool

	// Anchored rules match relative to the base directory instead of at any
	// depth. A leading / or any inner / anchors a rule.
	Anchored bool
}

// ParseRule parses a single ignore line. Blank lines and # comments return
// ok == false and no error.
func ParseRule(line string) (rule Rule, ok bool, err error) {
	if !strings.HasSuffix(line, "\\ ") {
		line = strings.TrimRight(line, " \t\r")
	}
	if line == "" || strings.HasPrefix(line, "#") {
		return Rule{}, false, nil
	}

	r := Rule{Raw: line}
	body := line
	if strings.HasPrefix(body, "!") {
		r.Negate = true
		body = body[1:]
	}
	if strings.HasSuffix(body, "/") {
		r.DirOnly = true
		body = strings.TrimSuffix(body, "/")
	}
	if strings.HasPrefix(body, "/") {
		r.Anchored = true
		body = strings.TrimPrefix(body, "/")
	}
	if body == "" {
		return Rule{}, false, &PatternError{Rule: line, Reason: "empty pattern"}
	}
	if strings.Contains(body, "/") {
		r.Anchored = true
	}
	r.Pattern = body

	for _, seg := range strings.Split(body, "/") {
		if seg == "" {
			return Rule{}, false, &PatternError{Rule: line, Reason: "empty path segment"}
		}
		if _, err := path.Match(seg, ""); err != nil {
			return Rule{}, false, &PatternError{Rule: line, Reason: err.Error()}
		}
	}

	if strings.ContainsAny(body, "*?[") {
		r.Kind = Glob
	}
	return r, true, nil
}

// expr renders the rule back into gitignore syntax for the matching engine.
func (r Rule) expr() string {
	var b strings.Builder
	if r.Negate {
		b.WriteByte('!')
	}
	// An unanchored single-segment pattern matches at any depth already; an
	// anchored one needs the leading / so the engine treats it as a path.
	if r.Anchored && !strings.Contains(r.Pattern, "/") {
		b.WriteByte('/')
	}
	b.WriteString(r.Pattern)
	if r.DirOnly {
		b.WriteByte('/')
	}
	return b.String()
}
