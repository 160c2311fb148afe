package vectorstore

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/vectorizer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	t.Run("chromem", func(t *testing.T) {
		store, err := NewStore(ctx, config.DatabaseConfig{Provider: ProviderChromem, ChromemPath: t.TempDir()}, nil, nil)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &ChromemStore{}, store)
	})

	t.Run("unknown provider", func(t *testing.T) {
		store, err := NewStore(ctx, config.DatabaseConfig{Provider: "pinecone"}, nil, nil)
		assert.Nil(t, store)
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})

	t.Run("qdrant with bad url", func(t *testing.T) {
		store, err := NewStore(ctx, config.DatabaseConfig{Provider: ProviderQdrant, URL: "not a url"}, nil, nil)
		assert.Nil(t, store)
		assert.ErrorIs(t, err, config.ErrConfiguration)
	})
}
