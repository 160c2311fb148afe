package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/fyrsmithlabs/vectorizer/internal/ignore"
	"github.com/fyrsmithlabs/vectorizer/internal/logging"
	"github.com/fyrsmithlabs/vectorizer/internal/walker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrOutsideRoot indicates a configured directory that is not below Root.
var ErrOutsideRoot = errors.New("directory outside project root")

// Indexer builds one DocumentSet. It is single-use.
type Indexer struct {
	opts   Options
	logger *logging.Logger

	skipped  atomic.Int64
	redacted atomic.Int64
	walkErrs int
	stats    Stats
}

// New creates an Indexer.
func New(opts Options, logger *logging.Logger) *Indexer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	opts.Root = filepath.Clean(opts.Root)
	return &Indexer{opts: opts, logger: logger.Named("indexer")}
}

// BuildIndex is shorthand for New(opts, logger).Build(ctx).
func BuildIndex(ctx context.Context, opts Options, logger *logging.Logger) (*document.DocumentSet, error) {
	return New(opts, logger).Build(ctx)
}

// Build collects, reads and fragments the project. The returned documents
// are sorted by path. Only an invalid ignore rule, an unreadable root, a
// configured directory outside the root or context cancellation fail the
// run.
func (ix *Indexer) Build(ctx context.Context) (*document.DocumentSet, error) {
	start := time.Now()

	paths, err := ix.collect(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]*document.Document, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs[i] = ix.load(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := document.NewSet(ix.opts.Collection, ix.opts.Metadata)
	for _, d := range docs {
		if d != nil {
			set.Add(d)
		}
	}
	sort.Slice(set.Documents, func(i, j int) bool {
		return set.Documents[i].Path < set.Documents[j].Path
	})

	ix.stats = Stats{
		Files:           len(paths),
		Documents:       set.Len(),
		Fragments:       set.FragmentCount(),
		Skipped:         int(ix.skipped.Load()),
		TraversalErrors: ix.walkErrs,
		Redacted:        int(ix.redacted.Load()),
		Duration:        time.Since(start),
	}
	ix.logger.Info(ctx, "index built",
		zap.String("root", ix.opts.Root),
		zap.Int("files", ix.stats.Files),
		zap.Int("documents", ix.stats.Documents),
		zap.Int("fragments", ix.stats.Fragments),
		zap.Int("skipped", ix.stats.Skipped),
		zap.Int("redacted", ix.stats.Redacted),
		zap.Duration("duration", ix.stats.Duration),
	)
	return set, nil
}

// Stats returns the counters of the last Build.
func (ix *Indexer) Stats() Stats {
	return ix.stats
}

// collect returns the files to index, without duplicates.
func (ix *Indexer) collect(ctx context.Context) ([]string, error) {
	root := ix.opts.Root
	info, err := os.Stat(root)
	if err != nil {
		return nil, &walker.TraversalError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	projectRules, err := ignore.NewParser(ix.opts.IgnoreFiles).ParseProject(root)
	if err != nil {
		return nil, err
	}
	rules := make([]string, 0, len(ix.opts.Ignored)+len(projectRules))
	rules = append(rules, ix.opts.Ignored...)
	rules = append(rules, projectRules...)
	matcher, err := ignore.Compile(root, rules)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	dirs, err := ix.walkRoots(ctx)
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		w := walker.New(dir, walker.Options{
			Extensions:  ix.opts.Extensions,
			Matcher:     matcher,
			Workers:     ix.opts.Workers,
			MaxFileSize: ix.opts.MaxFileSize,
		}, ix.logger)
		files, err := w.Walk(ctx)
		if err != nil {
			return nil, err
		}
		ix.walkErrs += len(w.Errors())
		for _, f := range files {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// walkRoots resolves Directories against Root. Missing or non-directory
// entries are warned about and dropped; entries outside Root fail with
// ErrOutsideRoot since ignore rules are relative to Root.
func (ix *Indexer) walkRoots(ctx context.Context) ([]string, error) {
	if len(ix.opts.Directories) == 0 {
		return []string{ix.opts.Root}, nil
	}
	roots := make([]string, 0, len(ix.opts.Directories))
	for _, d := range ix.opts.Directories {
		dir := d
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(ix.opts.Root, dir)
		}
		dir = filepath.Clean(dir)
		if !within(ix.opts.Root, dir) {
			return nil, fmt.Errorf("%w: %s is not under %s", ErrOutsideRoot, d, ix.opts.Root)
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			ix.logger.Warn(ctx, "skipping configured directory", zap.String("directory", d), zap.Error(err))
			continue
		}
		roots = append(roots, dir)
	}
	return roots, nil
}

// within reports whether path is root or below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// load reads one file into a fragmented Document, or returns nil when the
// file is skipped.
func (ix *Indexer) load(ctx context.Context, path string) *document.Document {
	data, err := os.ReadFile(path)
	if err != nil {
		ix.skip(ctx, path, "skipping unreadable file", err)
		return nil
	}
	if !utf8.Valid(data) {
		ix.skip(ctx, path, "skipping non-UTF-8 file", nil)
		return nil
	}

	text := string(data)
	if ix.opts.Redactor != nil {
		res := ix.opts.Redactor.Redact(text)
		if res.Redacted() {
			text = res.Text
			ix.redacted.Add(int64(len(res.Findings)))
			ix.logger.Warn(ctx, "redacted secrets", zap.String("path", path), zap.Int("count", len(res.Findings)))
		}
	}

	doc := document.New(path, ix.key(path), text, ix.opts.Metadata)
	if doc.Split(ix.opts.FragmentSize) == 0 {
		ix.skipped.Add(1)
		ix.logger.Debug(ctx, "skipping empty file", zap.String("path", path))
		return nil
	}
	return doc
}

// key is the document identity: the path relative to Root, or the file
// name when Root is the file itself.
func (ix *Indexer) key(path string) string {
	rel, err := filepath.Rel(ix.opts.Root, path)
	if err != nil || rel == "." {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func (ix *Indexer) skip(ctx context.Context, path, msg string, err error) {
	ix.skipped.Add(1)
	fields := []zap.Field{zap.String("path", path)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ix.logger.Warn(ctx, msg, fields...)
}
