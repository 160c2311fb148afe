// Package fragment splits text into bounded runs of whitespace-delimited
// tokens.
package fragment

import "strings"

// MaxTokens is the hard ceiling on tokens per fragment.
const MaxTokens = 256

// Clamp returns the effective budget: MaxTokens when n is non-positive or
// above the ceiling, n otherwise.
func Clamp(n int) int {
	if n <= 0 || n > MaxTokens {
		return MaxTokens
	}
	return n
}

// Tokenize returns the maximal runs of non-space characters in text.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// Split greedily groups the tokens of text into fragments of at most
// Clamp(maxTokens) tokens, each joined with single spaces. Every fragment
// but the last holds exactly the budget. Whitespace-only text yields nil.
func Split(text string, maxTokens int) []string {
	return Group(Tokenize(text), maxTokens)
}

// Group is Split for pre-tokenized input.
func Group(tokens []string, maxTokens int) []string {
	if len(tokens) == 0 {
		return nil
	}
	budget := Clamp(maxTokens)
	out := make([]string, 0, (len(tokens)+budget-1)/budget)
	for start := 0; start < len(tokens); start += budget {
		end := min(start+budget, len(tokens))
		out = append(out, strings.Join(tokens[start:end], " "))
	}
	return out
}
