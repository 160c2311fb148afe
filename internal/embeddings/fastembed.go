//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"os"

	fastembed "github.com/anush008/fastembed-go"
	"github.com/fyrsmithlabs/vectorizer/internal/logging"
	"go.uber.org/zap"
)

// fastEmbedModel runs an ONNX sentence-embedding model in process.
type fastEmbedModel struct {
	model *fastembed.FlagEmbedding
	name  string
	dim   int
}

func newFastEmbedModel(ctx context.Context, spec fastEmbedSpec, logger *logging.Logger) (Model, error) {
	libPath, err := EnsureONNXRuntime(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if os.Getenv("ONNX_PATH") == "" {
		if err := setONNXPathEnv(libPath); err != nil {
			return nil, fmt.Errorf("%w: set ONNX_PATH: %v", ErrModelLoad, err)
		}
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                fastembed.EmbeddingModel(spec.name),
		CacheDir:             spec.cacheDir,
		MaxLength:            spec.maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initializing fastembed %s: %v", ErrModelLoad, spec.name, err)
	}

	logger.Debug(ctx, "fastembed model ready",
		zap.String("model", spec.name),
		zap.String("cache_dir", spec.cacheDir),
		zap.Int("dimension", spec.dim),
	)
	return &fastEmbedModel{model: flagEmbed, name: spec.name, dim: spec.dim}, nil
}

// Embed encodes texts as-is; the MiniLM models expect no passage prefix.
func (m *fastEmbedModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors, err := m.model.Embed(texts, len(texts))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

func (m *fastEmbedModel) Dimension() int { return m.dim }

func (m *fastEmbedModel) Name() string { return m.name }

func (m *fastEmbedModel) Close() error {
	if m.model == nil {
		return nil
	}
	err := m.model.Destroy()
	m.model = nil
	return err
}
