package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/fyrsmithlabs/vectorizer/internal/indexer"
	"github.com/fyrsmithlabs/vectorizer/internal/logging"
	"github.com/fyrsmithlabs/vectorizer/internal/vectorstore"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// UploadResult summarizes a completed upload.
type UploadResult struct {
	Stats  indexer.Stats
	Points int

	Index  time.Duration
	Embed  time.Duration
	Upsert time.Duration
	Total  time.Duration
}

// Index builds the document set without embedding or storing it.
func (r *Runner) Index(ctx context.Context) (set *document.DocumentSet, stats indexer.Stats, err error) {
	ctx, span := r.startSpan(ctx, "pipeline.index_only")
	defer func() { endSpan(span, err) }()

	opts, err := r.indexOptions("")
	if err != nil {
		return nil, stats, err
	}
	if set, stats, err = r.buildIndex(ctx, opts); err != nil {
		return nil, stats, err
	}
	if set.FragmentCount() == 0 {
		r.logger.Warn(ctx, "no documents found", zap.String("project", opts.Root))
	}
	return set, stats, r.writeMetrics(ctx)
}

func (r *Runner) buildIndex(ctx context.Context, opts indexer.Options) (_ *document.DocumentSet, _ indexer.Stats, err error) {
	ctx, span := r.startSpan(ctx, "pipeline.index", attribute.String("root", opts.Root))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	ix := indexer.New(opts, r.logger)
	set, err := ix.Build(ctx)
	if err != nil {
		return nil, indexer.Stats{}, fmt.Errorf("building index: %w", err)
	}
	r.observe("index", start)

	stats := ix.Stats()
	r.metrics.ObserveIndex(stats.Files, stats.Documents, stats.Fragments, stats.Skipped)
	span.SetAttributes(
		attribute.Int("files", stats.Files),
		attribute.Int("documents", stats.Documents),
		attribute.Int("fragments", stats.Fragments),
	)
	return set, stats, nil
}

// Upload indexes the project (or the single file at path), embeds every
// fragment and upserts the result. A project without fragments logs a
// warning and succeeds without starting the model or opening the store.
func (r *Runner) Upload(ctx context.Context, path string) (res *UploadResult, err error) {
	collection := vectorstore.CollectionName(r.settings.Database.Collection)
	ctx, span := r.startSpan(ctx, "pipeline.upload", attribute.String("collection", collection))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	ctx = logging.WithCollection(ctx, collection)

	opts, err := r.indexOptions(path)
	if err != nil {
		return nil, err
	}
	set, stats, err := r.buildIndex(ctx, opts)
	if err != nil {
		return nil, err
	}
	res = &UploadResult{Stats: stats, Index: time.Since(start)}
	r.logger.Info(ctx, "indexing finished", zap.Duration("took", res.Index))

	if set.FragmentCount() == 0 {
		r.logger.Warn(ctx, "no documents found", zap.String("project", opts.Root))
		res.Total = time.Since(start)
		return res, r.writeMetrics(ctx)
	}

	embedder, err := r.startEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	defer embedder.Close()

	embedStart := time.Now()
	embedded, err := r.embed(ctx, embedder, set)
	if err != nil {
		return nil, err
	}
	res.Embed = r.observe("embed", embedStart)
	r.logger.Info(ctx, "embedding finished", zap.Duration("took", res.Embed))

	store, err := r.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	upsertStart := time.Now()
	if res.Points, err = r.upsert(ctx, store, embedded); err != nil {
		return nil, err
	}
	res.Upsert = time.Since(upsertStart)
	res.Total = time.Since(start)
	span.SetAttributes(attribute.Int("points", res.Points))

	r.logger.Info(ctx, "upload complete",
		zap.Int("documents", stats.Documents),
		zap.Int("fragments", stats.Fragments),
		zap.Int("points", res.Points),
		zap.Duration("index", res.Index),
		zap.Duration("embed", res.Embed),
		zap.Duration("upsert", res.Upsert),
		zap.Duration("total", res.Total),
	)
	return res, r.writeMetrics(ctx)
}

func (r *Runner) embed(ctx context.Context, embedder Embedder, set *document.DocumentSet) (_ *document.EmbeddedDocumentSet, err error) {
	ctx, span := r.startSpan(ctx, "pipeline.embed", attribute.Int("fragments", set.FragmentCount()))
	defer func() { endSpan(span, err) }()

	embedded, err := embedder.Submit(ctx, set)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return embedded, nil
}

func (r *Runner) upsert(ctx context.Context, store vectorstore.Store, set *document.EmbeddedDocumentSet) (_ int, err error) {
	ctx, span := r.startSpan(ctx, "pipeline.upsert", attribute.Int("points", set.Len()))
	defer func() { endSpan(span, err) }()
	return store.Upsert(ctx, set)
}
