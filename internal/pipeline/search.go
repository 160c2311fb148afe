package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/vectorizer/internal/config"
	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/fyrsmithlabs/vectorizer/internal/vectorstore"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrNoSearchTerm is returned by Search for a blank term.
var ErrNoSearchTerm = errors.New("a search term is required")

// Search embeds term with the configured model and prints the nearest
// fragments of the configured collection, best first. limit <= 0 uses
// DefaultSearchLimit.
func (r *Runner) Search(ctx context.Context, term string, limit int) (_ []vectorstore.SearchResult, err error) {
	ctx, span := r.startSpan(ctx, "pipeline.search")
	defer func() { endSpan(span, err) }()

	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, ErrNoSearchTerm)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	collection := vectorstore.CollectionName(r.settings.Database.Collection)

	store, err := r.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	embedder, err := r.startEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	defer embedder.Close()

	start := time.Now()
	vector, err := embedder.EmbedText(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("embedding search term: %w", err)
	}
	results, err := store.Search(ctx, collection, vector, limit)
	if err != nil {
		return nil, err
	}
	took := r.observe("search", start)
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("results", len(results)))
	r.logger.Info(ctx, "search complete",
		zap.String("collection", collection),
		zap.Int("results", len(results)),
		zap.Duration("took", took),
	)

	r.printResults(term, collection, results)
	return results, r.writeMetrics(ctx)
}

func (r *Runner) printResults(term, collection string, results []vectorstore.SearchResult) {
	fmt.Fprintf(r.out, "%d results for %q in %s\n", len(results), term, collection)
	for i, res := range results {
		fmt.Fprintf(r.out, "\n%2d. %.4f  %s  (%s)\n", i+1, res.Score, res.Name, res.ID)
		if path, ok := res.Metadata[document.KeyPath].(string); ok {
			fmt.Fprintf(r.out, "    %s\n", path)
		}
		fmt.Fprintf(r.out, "    %s\n", preview(res.Text, 160))
	}
}

// preview shortens text to at most n runes.
func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
