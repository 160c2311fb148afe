package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/vectorizer/internal/config"
	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/fyrsmithlabs/vectorizer/internal/embeddings"
	"github.com/fyrsmithlabs/vectorizer/internal/indexer"
	"github.com/fyrsmithlabs/vectorizer/internal/logging"
	"github.com/fyrsmithlabs/vectorizer/internal/secrets"
	"github.com/fyrsmithlabs/vectorizer/internal/telemetry"
	"github.com/fyrsmithlabs/vectorizer/internal/vectorstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/vectorizer/internal/pipeline"

// DefaultSearchLimit is the number of hits Search returns when no limit is
// given.
const DefaultSearchLimit = 52

// Embedder is the part of *embeddings.Worker the pipeline uses.
type Embedder interface {
	Submit(ctx context.Context, set *document.DocumentSet) (*document.EmbeddedDocumentSet, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Close() error
}

// EmbedderFactory starts an Embedder. The default starts an
// embeddings.Worker.
type EmbedderFactory func(ctx context.Context, cfg embeddings.WorkerConfig, logger *logging.Logger) (Embedder, error)

// StoreFactory opens the vector store. The default is vectorstore.NewStore.
type StoreFactory func(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger, metrics *vectorstore.Metrics) (vectorstore.Store, error)

func newWorker(ctx context.Context, cfg embeddings.WorkerConfig, logger *logging.Logger) (Embedder, error) {
	w, err := embeddings.NewWorker(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Runner executes vectorizer commands against one Settings value.
type Runner struct {
	settings config.Settings
	logger   *logging.Logger
	out      io.Writer

	newEmbedder EmbedderFactory
	newStore    StoreFactory

	metrics      *vectorstore.Metrics
	embedMetrics *embeddings.Metrics

	telemetry *telemetry.Telemetry
	tracer    trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithOutput sets where Search and Test print results. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithEmbedderFactory replaces the embedding worker constructor.
func WithEmbedderFactory(f EmbedderFactory) Option {
	return func(r *Runner) { r.newEmbedder = f }
}

// WithStoreFactory replaces the vector store constructor.
func WithStoreFactory(f StoreFactory) Option {
	return func(r *Runner) { r.newStore = f }
}

// WithMetrics records run metrics into m regardless of
// performance.enabled.
func WithMetrics(m *vectorstore.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTelemetry traces commands and exports model metrics through t.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(r *Runner) { r.telemetry = t }
}

// New creates a Runner. settings must already be validated.
func New(settings config.Settings, logger *logging.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		settings:    settings,
		logger:      logger.Named("pipeline"),
		out:         os.Stdout,
		newEmbedder: newWorker,
		newStore:    vectorstore.NewStore,
	}
	if settings.Performance.Enabled {
		r.metrics = vectorstore.NewMetrics()
	}
	for _, opt := range opts {
		opt(r)
	}
	// A nil *Telemetry falls back to the global providers.
	r.tracer = r.telemetry.Tracer(instrumentationName)
	r.embedMetrics = embeddings.NewMetrics(r.telemetry.Meter(instrumentationName), logger.Underlying())
	return r
}

// indexOptions maps the settings onto an indexing run. A non-empty path
// replaces the project root with a single file.
func (r *Runner) indexOptions(path string) (indexer.Options, error) {
	s := r.settings
	meta, err := document.ParseMetadata(s.Database.Metadata)
	if err != nil {
		return indexer.Options{}, err
	}

	root := s.Indexer.Project
	if path != "" {
		if root, err = config.ExpandPath(path); err != nil {
			return indexer.Options{}, fmt.Errorf("%w: expanding %s: %v", config.ErrConfiguration, path, err)
		}
		info, err := os.Stat(root)
		if err != nil {
			return indexer.Options{}, fmt.Errorf("%w: upload path %s: %v", config.ErrConfiguration, root, err)
		}
		if info.IsDir() {
			return indexer.Options{}, fmt.Errorf("%w: upload path %s is a directory", config.ErrConfiguration, root)
		}
	}

	var redactor *secrets.Redactor
	if s.Indexer.RedactSecrets {
		if redactor, err = secrets.New(s.Indexer.SecretsAllowlist); err != nil {
			return indexer.Options{}, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		}
	}

	return indexer.Options{
		Root:         root,
		Extensions:   s.Indexer.Extensions,
		Directories:  s.Indexer.Directories,
		Ignored:      s.Indexer.Ignored,
		IgnoreFiles:  s.Indexer.IgnoreFiles,
		Collection:   s.Database.Collection,
		Metadata:     meta,
		FragmentSize: s.Database.MaxTokens,
		Workers:      s.Indexer.Workers,
		MaxFileSize:  s.Indexer.MaxFileSize,
		Redactor:     redactor,
	}, nil
}

func (r *Runner) workerConfig() (embeddings.WorkerConfig, error) {
	m := r.settings.Model
	cacheDir, err := config.ExpandPath(m.CacheDir)
	if err != nil {
		return embeddings.WorkerConfig{}, err
	}
	location := m.Location
	if m.Local {
		if location, err = config.ExpandPath(location); err != nil {
			return embeddings.WorkerConfig{}, err
		}
	}
	return embeddings.WorkerConfig{
		Source: embeddings.ModelSource{
			Provider:  m.Provider,
			Local:     m.Local,
			Location:  location,
			CacheDir:  cacheDir,
			BaseURL:   m.BaseURL,
			RateLimit: m.RateLimit,
		},
		QueueSize: m.QueueSize,
		BatchSize: m.BatchSize,
		Metrics:   r.embedMetrics,
	}, nil
}

func (r *Runner) openStore(ctx context.Context) (vectorstore.Store, error) {
	store, err := r.newStore(ctx, r.settings.Database, r.logger, r.metrics)
	if err != nil {
		return nil, fmt.Errorf("opening %s vector store: %w", r.settings.Database.Provider, err)
	}
	return store, nil
}

func (r *Runner) startEmbedder(ctx context.Context) (Embedder, error) {
	cfg, err := r.workerConfig()
	if err != nil {
		return nil, err
	}
	return r.newEmbedder(ctx, cfg, r.logger)
}

// writeMetrics flushes run metrics when a report path is configured.
func (r *Runner) writeMetrics(ctx context.Context) error {
	if r.metrics == nil || r.settings.Performance.Path == "" {
		return nil
	}
	path, err := config.ExpandPath(r.settings.Performance.Path)
	if err != nil {
		return err
	}
	path = filepath.Clean(path)
	if err := r.metrics.WriteMetrics(path); err != nil {
		return err
	}
	r.logger.Debug(ctx, "wrote run metrics", zap.String("path", path))
	return nil
}

func (r *Runner) observe(stage string, start time.Time) time.Duration {
	d := time.Since(start)
	r.metrics.ObserveStage(stage, d)
	return d
}

func (r *Runner) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err, if any, and ends span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
