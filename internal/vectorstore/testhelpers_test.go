package vectorstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/fyrsmithlabs/vectorizer/internal/qdrant"
)

// fakeClient is an in-memory qdrant.Client.
type fakeClient struct {
	mu          sync.Mutex
	collections map[string]uint64
	points      map[string]map[string]*qdrant.Point
	upserts     [][]*qdrant.Point
	failUpsert  error
	closed      bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		collections: map[string]uint64{},
		points:      map[string]map[string]*qdrant.Point{},
	}
}

func (c *fakeClient) CreateCollection(_ context.Context, name string, size uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.collections[name]; ok {
		return errors.New("already exists")
	}
	c.collections[name] = size
	c.points[name] = map[string]*qdrant.Point{}
	return nil
}

func (c *fakeClient) DeleteCollection(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.collections, name)
	delete(c.points, name)
	return nil
}

func (c *fakeClient) CollectionExists(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.collections[name]
	return ok, nil
}

func (c *fakeClient) ListCollections(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.collections))
	for name := range c.collections {
		out = append(out, name)
	}
	return out, nil
}

func (c *fakeClient) Upsert(_ context.Context, collection string, points []*qdrant.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failUpsert != nil {
		return c.failUpsert
	}
	if _, ok := c.collections[collection]; !ok {
		return errors.New("collection not found")
	}
	c.upserts = append(c.upserts, points)
	for _, p := range points {
		c.points[collection][p.ID] = p
	}
	return nil
}

// Search returns every point with score 1, in no particular order.
func (c *fakeClient) Search(_ context.Context, collection string, _ []float32, limit uint64) ([]*qdrant.ScoredPoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*qdrant.ScoredPoint
	for _, p := range c.points[collection] {
		if uint64(len(out)) == limit {
			break
		}
		out = append(out, &qdrant.ScoredPoint{Point: *p, Score: 1})
	}
	return out, nil
}

func (c *fakeClient) Health(context.Context) error { return nil }

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// embeddedSet builds a set of n fragments from one document, each with a
// dim-length vector pointing mostly along axis i%dim.
func embeddedSet(collection string, n, dim int) *document.EmbeddedDocumentSet {
	doc := document.New("/p/guide.md", "guide.md", "", document.Metadata{"team": "docs", "tags": []any{"a"}})
	set := &document.EmbeddedDocumentSet{Collection: collection}
	for i := 0; i < n; i++ {
		f := doc.AddFragment("fragment text")
		v := make([]float32, dim)
		for j := range v {
			v[j] = 0.01
		}
		v[i%dim] = 1
		set.Fragments = append(set.Fragments, f.Embed(v))
	}
	return set
}
