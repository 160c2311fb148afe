// Package walker traverses a project tree in parallel and returns the files
// that pass the hidden-name, extension and ignore-rule filters.
package walker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fyrsmithlabs/vectorizer/internal/ignore"
	"github.com/fyrsmithlabs/vectorizer/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TraversalError records a directory or entry that could not be read.
// Traversal errors are logged and counted; they never abort a walk.
type TraversalError struct {
	Path string
	Err  error
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("traverse %s: %v", e.Path, e.Err)
}

func (e *TraversalError) Unwrap() error {
	return e.Err
}

// Options configures a Walker.
type Options struct {
	// Extensions is the allow-list of file extensions without the leading
	// dot. Empty or containing "*" accepts every file.
	Extensions []string

	// Matcher excludes paths; nil excludes nothing.
	Matcher *ignore.Matcher

	// Workers bounds concurrent directory reads. Defaults to runtime.NumCPU().
	Workers int

	// MaxFileSize skips larger files. Zero disables the limit.
	MaxFileSize int64
}

// Stats summarizes one walk.
type Stats struct {
	Dirs    int64
	Files   int64
	Skipped int64
	Errors  int64
}

// Walker is single-use: create one per traversal.
type Walker struct {
	root   string
	opts   Options
	logger *logging.Logger

	exts   map[string]bool
	anyExt bool

	// order permutes directory listings; tests use it to prove the result
	// does not depend on visitation order.
	order func([]os.DirEntry)

	mu     sync.Mutex
	files  []string
	errors []*TraversalError

	dirs, accepted, skipped atomic.Int64
}

// New creates a Walker rooted at root.
func New(root string, opts Options, logger *logging.Logger) *Walker {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	w := &Walker{
		root:   filepath.Clean(root),
		opts:   opts,
		logger: logger.Named("walker"),
		exts:   make(map[string]bool, len(opts.Extensions)),
		anyExt: len(opts.Extensions) == 0,
		order:  func([]os.DirEntry) {},
	}
	for _, ext := range opts.Extensions {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext == "*" {
			w.anyExt = true
		}
		if ext != "" {
			w.exts[ext] = true
		}
	}
	return w
}

// Walk returns every accepted file under the root. The order of the result
// is unspecified. Unreadable directories are skipped; only context
// cancellation or an unreadable root fails the walk.
func (w *Walker) Walk(ctx context.Context) ([]string, error) {
	info, err := os.Stat(w.root)
	if err != nil {
		return nil, &TraversalError{Path: w.root, Err: err}
	}
	if !info.IsDir() {
		return []string{w.root}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Workers)

	var visit func(dir string) error
	visit = func(dir string) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		w.dirs.Add(1)

		entries, err := os.ReadDir(dir)
		if err != nil {
			w.recordError(gctx, dir, err)
			return nil
		}
		w.order(entries)

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			isDir, ok := w.accept(gctx, path, entry)
			if !ok {
				continue
			}
			if !isDir {
				w.addFile(path)
				continue
			}
			// Saturated pool: descend inline so no goroutine waits on another.
			if !g.TryGo(func() error { return visit(path) }) {
				if err := visit(path); err != nil {
					return err
				}
			}
		}
		return nil
	}

	g.Go(func() error { return visit(w.root) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.files))
	copy(out, w.files)

	w.logger.Debug(ctx, "walk complete",
		zap.String("root", w.root),
		zap.Int64("dirs", w.dirs.Load()),
		zap.Int("files", len(out)),
		zap.Int64("skipped", w.skipped.Load()),
	)
	return out, nil
}

// accept applies the per-entry filters in order: hidden name, extension
// allow-list (files only), ignore rules, entry type and size.
func (w *Walker) accept(ctx context.Context, path string, entry os.DirEntry) (isDir, ok bool) {
	name := entry.Name()
	isDir = entry.IsDir()

	if strings.HasPrefix(name, ".") {
		w.skip(ctx, path, "hidden")
		return isDir, false
	}

	if entry.Type()&os.ModeSymlink != 0 {
		target, err := os.Stat(path)
		if err != nil {
			w.recordError(ctx, path, err)
			return false, false
		}
		if !target.Mode().IsRegular() {
			w.skip(ctx, path, "symlink to non-file")
			return false, false
		}
		isDir = false
	} else if !isDir && !entry.Type().IsRegular() {
		w.skip(ctx, path, "not a regular file")
		return false, false
	}

	if !isDir && !w.extensionAllowed(name) {
		w.skip(ctx, path, "extension")
		return false, false
	}

	if w.opts.Matcher.MatchesPath(path, isDir) {
		w.skip(ctx, path, "ignored")
		return isDir, false
	}

	if !isDir && w.opts.MaxFileSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			w.recordError(ctx, path, err)
			return false, false
		}
		if info.Size() > w.opts.MaxFileSize {
			w.logger.Info(ctx, "skipping large file",
				zap.String("path", path),
				zap.Int64("size", info.Size()),
				zap.Int64("max", w.opts.MaxFileSize),
			)
			w.skipped.Add(1)
			return false, false
		}
	}
	return isDir, true
}

func (w *Walker) extensionAllowed(name string) bool {
	if w.anyExt {
		return true
	}
	ext := filepath.Ext(name)
	if ext == "" {
		return false
	}
	return w.exts[ext[1:]]
}

func (w *Walker) skip(ctx context.Context, path, reason string) {
	w.skipped.Add(1)
	w.logger.Trace(ctx, "skipping entry", zap.String("path", path), zap.String("reason", reason))
}

func (w *Walker) addFile(path string) {
	w.accepted.Add(1)
	w.mu.Lock()
	w.files = append(w.files, path)
	w.mu.Unlock()
}

func (w *Walker) recordError(ctx context.Context, path string, err error) {
	te := &TraversalError{Path: path, Err: err}
	w.logger.Warn(ctx, "skipping unreadable entry", zap.String("path", path), zap.Error(err))
	w.mu.Lock()
	w.errors = append(w.errors, te)
	w.mu.Unlock()
}

// Stats returns counters for the walk so far.
func (w *Walker) Stats() Stats {
	w.mu.Lock()
	errs := int64(len(w.errors))
	w.mu.Unlock()
	return Stats{
		Dirs:    w.dirs.Load(),
		Files:   w.accepted.Load(),
		Skipped: w.skipped.Load(),
		Errors:  errs,
	}
}

// Errors returns the traversal errors encountered during the walk.
func (w *Walker) Errors() []*TraversalError {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*TraversalError, len(w.errors))
	copy(out, w.errors)
	return out
}
