package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/vectorizer/internal/config"
	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/fyrsmithlabs/vectorizer/internal/logging"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// errNoEmbedder is returned if chromem ever asks to embed text itself;
// every document and query already carries its vector.
var errNoEmbedder = errors.New("chromem store requires precomputed embeddings")

// ChromemStore implements Store with an embedded chromem-go database
// persisted under a directory.
type ChromemStore struct {
	db      *chromem.DB
	path    string
	logger  *logging.Logger
	metrics *Metrics
	now     func() time.Time

	// dims remembers each collection's vector size; chromem does not.
	mu   sync.Mutex
	dims map[string]int
}

// NewChromemStore opens (or creates) the database at path. An empty path
// keeps everything in memory.
func NewChromemStore(path string, compress bool, logger *logging.Logger, metrics *Metrics) (*ChromemStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		if path, err = config.ExpandPath(path); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		if db, err = chromem.NewPersistentDB(path, compress); err != nil {
			return nil, fmt.Errorf("opening chromem db %s: %w", path, err)
		}
	}

	s := &ChromemStore{
		db:      db,
		path:    path,
		logger:  logger.Named("vectorstore"),
		metrics: metrics,
		now:     time.Now,
		dims:    make(map[string]int),
	}
	s.logger.Debug(context.Background(), "chromem store opened", zap.String("path", path), zap.Bool("compress", compress))
	return s, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

func (s *ChromemStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: invalid vector dimension %d", ErrUpsert, dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if known, ok := s.dims[name]; ok {
		if known != dim {
			return fmt.Errorf("%w: collection %s has dimension %d, got %d", ErrUpsert, name, known, dim)
		}
		return nil
	}
	collection, err := s.db.GetOrCreateCollection(name, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("%w: creating collection %s: %w", ErrUpsert, name, err)
	}
	if err := checkStoredDimension(ctx, collection, dim); err != nil {
		return err
	}
	s.dims[name] = dim
	return nil
}

// checkStoredDimension verifies that documents persisted by an earlier
// process have dim-length vectors. chromem does not record a collection's
// dimension, so one stored vector is read back through a query.
func checkStoredDimension(ctx context.Context, collection *chromem.Collection, dim int) error {
	if collection.Count() == 0 {
		return nil
	}
	probe := make([]float32, dim)
	for i := range probe {
		probe[i] = 1
	}
	res, err := collection.QueryEmbedding(ctx, probe, 1, nil, nil)
	if err != nil {
		return fmt.Errorf("%w: collection %s does not hold %d-dimensional vectors: %w", ErrUpsert, collection.Name, dim, err)
	}
	if len(res) > 0 && len(res[0].Embedding) != dim {
		return fmt.Errorf("%w: collection %s has dimension %d, got %d", ErrUpsert, collection.Name, len(res[0].Embedding), dim)
	}
	return nil
}

func (s *ChromemStore) Upsert(ctx context.Context, set *document.EmbeddedDocumentSet) (int, error) {
	if set.Len() == 0 {
		return 0, nil
	}
	start := time.Now()
	name := CollectionName(set.Collection)
	if err := s.EnsureCollection(ctx, name, set.Dimension()); err != nil {
		return 0, err
	}
	collection := s.db.GetCollection(name, noEmbedding)

	createdAt := s.now()
	docs := make([]chromem.Document, 0, set.Len())
	for _, f := range set.Fragments {
		fields, err := payload(f, createdAt)
		if err != nil {
			return 0, fmt.Errorf("%w: encoding fragment %s: %w", ErrUpsert, f.ID, err)
		}
		docs = append(docs, chromem.Document{
			ID:        PointID(f.ID),
			Metadata:  flatten(f.Metadata, fields),
			Embedding: f.Vector,
			Content:   f.Text,
		})
	}

	// Re-adding an ID replaces the stored document.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		return 0, fmt.Errorf("%w: collection %s: %w", ErrUpsert, name, err)
	}

	s.metrics.ObserveUpsert(name, len(docs), time.Since(start))
	s.logger.Info(ctx, "upsert complete",
		zap.String("collection", name),
		zap.Int("points", len(docs)),
		zap.Duration("duration", time.Since(start)),
	)
	return len(docs), nil
}

// flatten renders metadata as the string map chromem stores. Top-level
// metadata keys are kept for where-filters; the reserved payload fields win.
func flatten(meta document.Metadata, fields map[string]any) map[string]string {
	out := make(map[string]string, len(meta)+len(fields))
	for k, v := range meta {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	for k, v := range fields {
		out[k] = v.(string)
	}
	return out
}

func (s *ChromemStore) Search(ctx context.Context, name string, vector []float32, limit int) ([]SearchResult, error) {
	name = CollectionName(name)
	collection := s.db.GetCollection(name, noEmbedding)
	if collection == nil {
		return nil, fmt.Errorf("%w: collection %s does not exist", ErrSearch, name)
	}
	// chromem rejects nResults above the document count.
	limit = min(limit, collection.Count())
	if limit <= 0 {
		return nil, nil
	}

	hits, err := collection.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: collection %s: %w", ErrSearch, name, err)
	}
	out := make([]SearchResult, len(hits))
	for i, h := range hits {
		fields := make(map[string]any, len(h.Metadata))
		for k, v := range h.Metadata {
			fields[k] = v
		}
		out[i] = resultFrom(fields, h.Similarity)
	}
	return out, nil
}

func (s *ChromemStore) ListCollections(context.Context) ([]string, error) {
	names := make([]string, 0)
	for name := range s.db.ListCollections() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *ChromemStore) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.dims, name)
	s.mu.Unlock()
	return s.db.DeleteCollection(name)
}

// Health is always nil for the embedded store.
func (s *ChromemStore) Health(context.Context) error {
	return nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}

var _ Store = (*ChromemStore)(nil)
