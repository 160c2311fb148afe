package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/vectorizer/internal/config"
	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/fyrsmithlabs/vectorizer/internal/logging"
	"github.com/fyrsmithlabs/vectorizer/internal/qdrant"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of points per upsert request.
const DefaultBatchSize = 256

// QdrantStore implements Store on a Qdrant server.
type QdrantStore struct {
	client    qdrant.Client
	batchSize int
	logger    *logging.Logger
	metrics   *Metrics
	now       func() time.Time
}

// NewQdrantStore wraps an existing client. batchSize <= 0 uses
// DefaultBatchSize.
func NewQdrantStore(client qdrant.Client, batchSize int, logger *logging.Logger, metrics *Metrics) *QdrantStore {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QdrantStore{
		client:    client,
		batchSize: batchSize,
		logger:    logger.Named("vectorstore"),
		metrics:   metrics,
		now:       time.Now,
	}
}

// OpenQdrant connects to the server named by cfg.URL.
func OpenQdrant(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger, metrics *Metrics) (*QdrantStore, error) {
	host, port, useTLS, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	client, err := qdrant.NewGRPCClient(ctx, &qdrant.ClientConfig{
		Host:           host,
		Port:           port,
		UseTLS:         useTLS,
		APIKey:         cfg.APIKey.Value(),
		RequestTimeout: cfg.Timeout.Duration(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant at %s: %w", cfg.URL, err)
	}
	return NewQdrantStore(client, cfg.BatchSize, logger, metrics), nil
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: invalid vector dimension %d", ErrUpsert, dim)
	}
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %w", ErrUpsert, name, err)
	}
	if exists {
		return nil
	}
	if err := s.client.CreateCollection(ctx, name, uint64(dim)); err != nil {
		return fmt.Errorf("%w: creating collection %s: %w", ErrUpsert, name, err)
	}
	s.logger.Info(ctx, "created collection", zap.String("collection", name), zap.Int("dimension", dim))
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, set *document.EmbeddedDocumentSet) (int, error) {
	if set.Len() == 0 {
		return 0, nil
	}
	start := time.Now()
	collection := CollectionName(set.Collection)
	if err := s.EnsureCollection(ctx, collection, set.Dimension()); err != nil {
		return 0, err
	}

	createdAt := s.now()
	points := make([]*qdrant.Point, 0, set.Len())
	for _, f := range set.Fragments {
		p, err := payload(f, createdAt)
		if err != nil {
			return 0, fmt.Errorf("%w: encoding fragment %s: %w", ErrUpsert, f.ID, err)
		}
		points = append(points, &qdrant.Point{ID: PointID(f.ID), Vector: f.Vector, Payload: p})
	}

	written := 0
	for lo := 0; lo < len(points); lo += s.batchSize {
		hi := min(lo+s.batchSize, len(points))
		if err := s.client.Upsert(ctx, collection, points[lo:hi]); err != nil {
			return written, fmt.Errorf("%w: collection %s: %w", ErrUpsert, collection, err)
		}
		written += hi - lo
		s.logger.Debug(ctx, "upserted batch", zap.String("collection", collection), zap.Int("points", hi-lo))
	}

	s.metrics.ObserveUpsert(collection, written, time.Since(start))
	s.logger.Info(ctx, "upsert complete",
		zap.String("collection", collection),
		zap.Int("points", written),
		zap.Duration("duration", time.Since(start)),
	)
	return written, nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	collection = CollectionName(collection)
	hits, err := s.client.Search(ctx, collection, vector, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: collection %s: %w", ErrSearch, collection, err)
	}
	out := make([]SearchResult, len(hits))
	for i, h := range hits {
		out[i] = resultFrom(h.Payload, h.Score)
	}
	return out, nil
}

func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	return s.client.ListCollections(ctx)
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	return s.client.DeleteCollection(ctx, name)
}

func (s *QdrantStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

var _ Store = (*QdrantStore)(nil)
