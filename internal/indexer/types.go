package indexer

import (
	"time"

	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/fyrsmithlabs/vectorizer/internal/secrets"
)

// Options configures one indexing run.
type Options struct {
	// Root is the project directory or a single file.
	Root string

	// Extensions is the file extension allow-list (no leading dot). Empty
	// or "*" accepts every extension. Ignored when Root is a file.
	Extensions []string

	// Directories restricts the walk to these sub-directories of Root.
	// Empty walks Root itself.
	Directories []string

	// Ignored are gitignore-style rules relative to Root.
	Ignored []string

	// IgnoreFiles names ignore files read from Root. Their rules are
	// appended after Ignored.
	IgnoreFiles []string

	Collection string
	Metadata   document.Metadata

	// FragmentSize is the per-fragment token budget; see fragment.Clamp.
	FragmentSize int

	// Workers bounds concurrent directory and file reads.
	Workers int

	// MaxFileSize skips larger files. Zero disables the limit.
	MaxFileSize int64

	// Redactor, when set, rewrites file text before it is fragmented.
	Redactor *secrets.Redactor
}

// Stats summarizes one run.
type Stats struct {
	// Files is the number of paths accepted by traversal.
	Files int
	// Documents and Fragments count what ended up in the set.
	Documents int
	Fragments int
	// Skipped counts accepted files that produced no document.
	Skipped int
	// TraversalErrors counts unreadable directories.
	TraversalErrors int
	// Redacted counts secrets replaced across all documents.
	Redacted int

	Duration time.Duration
}
