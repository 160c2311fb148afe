// Package secrets redacts credentials from file text before it is embedded,
// using the default gitleaks rule set.
package secrets

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// ErrInvalidRegex indicates an allowlist pattern failed to compile.
var ErrInvalidRegex = errors.New("invalid regex pattern")

// Finding describes one redacted secret. The secret itself is not kept.
type Finding struct {
	RuleID      string
	Description string
	Line        int
}

// Result is the redacted text and what was removed from it.
type Result struct {
	Text     string
	Findings []Finding
}

// Redacted reports whether anything was replaced.
func (r Result) Redacted() bool { return len(r.Findings) > 0 }

// Redactor replaces secrets with [REDACTED:<rule-id>] markers. It is safe for
// concurrent use.
type Redactor struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// New builds a Redactor on the gitleaks default configuration. Values
// matching any allow pattern are left in place.
func New(allow []string) (*Redactor, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	if len(allow) > 0 {
		list := &gitleaksConfig.Allowlist{Description: "vectorizer allowlist"}
		for _, pattern := range allow {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
			}
			list.Regexes = append(list.Regexes, (*gitleaksRegexp.Regexp)(re))
		}
		detector.Config.Allowlists = append(detector.Config.Allowlists, list)
	}
	return &Redactor{detector: detector}, nil
}

// Redact scans text and returns it with every detected secret replaced.
func (r *Redactor) Redact(text string) Result {
	r.mu.Lock()
	found := r.detector.DetectString(text)
	r.mu.Unlock()

	if len(found) == 0 {
		return Result{Text: text}
	}

	type hit struct {
		secret string
		ruleID string
	}
	hits := make([]hit, 0, len(found))
	findings := make([]Finding, 0, len(found))
	for _, f := range found {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		if secret == "" {
			continue
		}
		hits = append(hits, hit{secret: secret, ruleID: f.RuleID})
		findings = append(findings, Finding{RuleID: f.RuleID, Description: f.Description, Line: f.StartLine})
	}

	// Longest first so a secret containing another is replaced whole.
	sort.SliceStable(hits, func(i, j int) bool {
		return len(hits[i].secret) > len(hits[j].secret)
	})
	for _, h := range hits {
		text = strings.ReplaceAll(text, h.secret, Marker(h.ruleID))
	}
	return Result{Text: text, Findings: findings}
}

// Marker is the replacement written in place of a secret.
func Marker(ruleID string) string {
	return "[REDACTED:" + ruleID + "]"
}
