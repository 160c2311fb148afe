package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"go.uber.org/zap"
)

const (
	// TestCollection is the scratch collection used by Test.
	TestCollection = "vectorizer_connection_test"

	testDimension = 10
)

// ErrConnectionTest is returned when the store round trip does not return
// the point it just wrote.
var ErrConnectionTest = errors.New("connection test failed")

// Test checks that the vector store is reachable and answers a full round
// trip: it lists collections, recreates TestCollection with 10-dimensional
// vectors, writes one point and finds it again with a nearby query. The
// scratch collection is removed afterwards. No model is loaded.
func (r *Runner) Test(ctx context.Context) (err error) {
	ctx, span := r.startSpan(ctx, "pipeline.test")
	defer func() { endSpan(span, err) }()

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Health(ctx); err != nil {
		return fmt.Errorf("%w: health check: %w", ErrConnectionTest, err)
	}

	collections, err := store.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("%w: listing collections: %w", ErrConnectionTest, err)
	}
	fmt.Fprintf(r.out, "collections: %s\n", strings.Join(collections, ", "))

	if slices.Contains(collections, TestCollection) {
		if err := store.DeleteCollection(ctx, TestCollection); err != nil {
			return fmt.Errorf("%w: removing stale %s: %w", ErrConnectionTest, TestCollection, err)
		}
	}
	if err := store.EnsureCollection(ctx, TestCollection, testDimension); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionTest, err)
	}
	defer func() {
		if err := store.DeleteCollection(context.WithoutCancel(ctx), TestCollection); err != nil {
			r.logger.Warn(ctx, "removing test collection", zap.String("collection", TestCollection), zap.Error(err))
		}
	}()

	doc := document.New(TestCollection, TestCollection, "", document.Metadata{"foo": "Bar", "bar": 12})
	point := doc.AddFragment("vectorizer connection test").Embed(filled(testDimension, 12))
	set := &document.EmbeddedDocumentSet{Collection: TestCollection, Fragments: []document.EmbeddedFragment{point}}
	if _, err := store.Upsert(ctx, set); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionTest, err)
	}

	results, err := store.Search(ctx, TestCollection, filled(testDimension, 11), 1)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionTest, err)
	}
	if len(results) != 1 || results[0].ID != point.ID {
		return fmt.Errorf("%w: wrote %s, search returned %d results", ErrConnectionTest, point.ID, len(results))
	}

	fmt.Fprintf(r.out, "round trip ok: %s score %.4f\n", results[0].ID, results[0].Score)
	r.logger.Info(ctx, "connection test passed", zap.String("provider", r.settings.Database.Provider))
	return nil
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
