package embeddings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/vectorizer/internal/logging"
	"go.uber.org/zap"
)

var (
	// ErrModelLoad indicates the model source could not be resolved or loaded.
	ErrModelLoad = errors.New("model load failed")

	// ErrEmbeddingFailed indicates the model failed or returned a bad vector.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrWorkerClosed is returned by submissions after Close.
	ErrWorkerClosed = errors.New("embedding worker closed")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// model's declared dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")
)

// Model turns texts into fixed-length vectors. Implementations are not safe
// for concurrent use; a Worker owns exactly one Model.
type Model interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the length of every returned vector.
	Dimension() int
	// Name identifies the model in logs and metrics.
	Name() string
	// Close releases the model.
	Close() error
}

// Provider names.
const (
	ProviderFastEmbed = "fastembed"
	ProviderTEI       = "tei"
)

// ModelSource says where a model comes from.
type ModelSource struct {
	// Provider is ProviderFastEmbed (default) or ProviderTEI.
	Provider string

	// Local means Location is a path to an unpacked model directory.
	// Otherwise Location names a model that is downloaded into CacheDir.
	Local    bool
	Location string

	CacheDir  string
	MaxLength int

	// BaseURL is the text-embeddings-inference endpoint for ProviderTEI.
	BaseURL string

	// RateLimit caps ProviderTEI requests per second. Zero is unlimited.
	RateLimit float64
}

func (s ModelSource) String() string {
	kind := "remote"
	if s.Local {
		kind = "local"
	}
	provider := s.Provider
	if provider == "" {
		provider = ProviderFastEmbed
	}
	return fmt.Sprintf("%s %s model %q", provider, kind, s.Location)
}

// Loader constructs a Model. The Worker calls it on its own goroutine.
type Loader func(ctx context.Context, src ModelSource) (Model, error)

// fastEmbedModels maps accepted names to the fastembed model name and its
// vector dimension.
var fastEmbedModels = map[string]struct {
	name string
	dim  int
}{
	"L6":                                     {"fast-all-MiniLM-L6-v2", 384},
	"all-MiniLM-L6-v2":                       {"fast-all-MiniLM-L6-v2", 384},
	"sentence-transformers/all-MiniLM-L6-v2": {"fast-all-MiniLM-L6-v2", 384},
	"fast-all-MiniLM-L6-v2":                  {"fast-all-MiniLM-L6-v2", 384},
	"BAAI/bge-small-en-v1.5":                 {"fast-bge-small-en-v1.5", 384},
	"fast-bge-small-en-v1.5":                 {"fast-bge-small-en-v1.5", 384},
	"BAAI/bge-small-en":                      {"fast-bge-small-en", 384},
	"fast-bge-small-en":                      {"fast-bge-small-en", 384},
	"BAAI/bge-base-en-v1.5":                  {"fast-bge-base-en-v1.5", 768},
	"fast-bge-base-en-v1.5":                  {"fast-bge-base-en-v1.5", 768},
	"BAAI/bge-base-en":                       {"fast-bge-base-en", 768},
	"fast-bge-base-en":                       {"fast-bge-base-en", 768},
	"BAAI/bge-small-zh-v1.5":                 {"fast-bge-small-zh-v1.5", 512},
	"fast-bge-small-zh-v1.5":                 {"fast-bge-small-zh-v1.5", 512},
}

// fastEmbedSpec is a resolved fastembed model.
type fastEmbedSpec struct {
	name      string
	dim       int
	cacheDir  string
	maxLength int
}

// resolveFastEmbed validates src and returns the model to load. It performs
// no downloads.
func resolveFastEmbed(src ModelSource) (fastEmbedSpec, error) {
	maxLength := src.MaxLength
	if maxLength <= 0 {
		maxLength = 512
	}

	if src.Local {
		if src.Location == "" {
			return fastEmbedSpec{}, fmt.Errorf("%w: local model requires a path", ErrModelLoad)
		}
		info, err := os.Stat(src.Location)
		if err != nil {
			return fastEmbedSpec{}, fmt.Errorf("%w: local model %s: %v", ErrModelLoad, src.Location, err)
		}
		if !info.IsDir() {
			return fastEmbedSpec{}, fmt.Errorf("%w: local model %s is not a directory", ErrModelLoad, src.Location)
		}
		// fastembed loads <cacheDir>/<model name>, so the directory name
		// selects the model and its parent acts as the cache.
		m, ok := fastEmbedModels[filepath.Base(filepath.Clean(src.Location))]
		if !ok {
			return fastEmbedSpec{}, fmt.Errorf("%w: local model directory %s must be named after a supported model (e.g. fast-all-MiniLM-L6-v2)", ErrModelLoad, src.Location)
		}
		return fastEmbedSpec{
			name:      m.name,
			dim:       m.dim,
			cacheDir:  filepath.Dir(filepath.Clean(src.Location)),
			maxLength: maxLength,
		}, nil
	}

	m, ok := fastEmbedModels[src.Location]
	if !ok {
		return fastEmbedSpec{}, fmt.Errorf("%w: unsupported model %q (supported: %s)", ErrModelLoad, src.Location, strings.Join(SupportedModels(), ", "))
	}
	cacheDir := src.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	return fastEmbedSpec{name: m.name, dim: m.dim, cacheDir: cacheDir, maxLength: maxLength}, nil
}

// SupportedModels lists the remote model names accepted by the fastembed
// provider.
func SupportedModels() []string {
	return []string{"L6", "sentence-transformers/all-MiniLM-L6-v2", "BAAI/bge-small-en-v1.5", "BAAI/bge-base-en-v1.5", "BAAI/bge-small-zh-v1.5"}
}

// DefaultLoader returns the Loader for production models.
func DefaultLoader(logger *logging.Logger) Loader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(ctx context.Context, src ModelSource) (Model, error) {
		logger.Info(ctx, "loading embedding model", zap.Stringer("source", src))
		switch src.Provider {
		case ProviderFastEmbed, "":
			spec, err := resolveFastEmbed(src)
			if err != nil {
				return nil, err
			}
			return newFastEmbedModel(ctx, spec, logger)
		case ProviderTEI:
			return newTEIModel(ctx, src)
		default:
			return nil, fmt.Errorf("%w: unknown provider %q", ErrModelLoad, src.Provider)
		}
	}
}
