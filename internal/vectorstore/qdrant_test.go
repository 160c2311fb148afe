package vectorstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/vectorizer/internal/config"
	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQdrantStore(batch int) (*QdrantStore, *fakeClient) {
	client := newFakeClient()
	s := NewQdrantStore(client, batch, nil, nil)
	s.now = func() time.Time { return fixedTime }
	return s, client
}

func TestQdrantStore_Upsert(t *testing.T) {
	s, client := newTestQdrantStore(2)
	set := embeddedSet("docs", 5, 4)

	n, err := s.Upsert(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, uint64(4), client.collections["docs"])
	require.Len(t, client.upserts, 3)
	assert.Len(t, client.upserts[0], 2)
	assert.Len(t, client.upserts[2], 1)

	first := client.upserts[0][0]
	assert.Equal(t, PointID(set.Fragments[0].ID), first.ID)
	assert.Equal(t, set.Fragments[0].Vector, first.Vector)
	assert.Equal(t, set.Fragments[0].ID, first.Payload[FieldID])
	assert.Equal(t, "2024-05-01T12:00:00Z", first.Payload[FieldCreatedAt])
}

func TestQdrantStore_UpsertIsIdempotent(t *testing.T) {
	s, client := newTestQdrantStore(0)
	set := embeddedSet("", 3, 2)

	_, err := s.Upsert(context.Background(), set)
	require.NoError(t, err)
	_, err = s.Upsert(context.Background(), set)
	require.NoError(t, err)

	assert.Len(t, client.points[DefaultCollection], 3)
}

func TestQdrantStore_UpsertEmpty(t *testing.T) {
	s, client := newTestQdrantStore(0)
	n, err := s.Upsert(context.Background(), &document.EmbeddedDocumentSet{Collection: "docs"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, client.collections)
}

func TestQdrantStore_UpsertFailure(t *testing.T) {
	s, client := newTestQdrantStore(0)
	client.failUpsert = errors.New("connection reset")

	_, err := s.Upsert(context.Background(), embeddedSet("docs", 1, 2))
	assert.ErrorIs(t, err, ErrUpsert)
	assert.ErrorContains(t, err, "connection reset")
}

func TestQdrantStore_EnsureCollection(t *testing.T) {
	s, client := newTestQdrantStore(0)
	ctx := context.Background()

	require.NoError(t, s.EnsureCollection(ctx, "a", 8))
	require.NoError(t, s.EnsureCollection(ctx, "a", 8))
	assert.Equal(t, uint64(8), client.collections["a"])

	assert.ErrorIs(t, s.EnsureCollection(ctx, "b", 0), ErrUpsert)
}

func TestQdrantStore_Search(t *testing.T) {
	s, _ := newTestQdrantStore(0)
	ctx := context.Background()
	set := embeddedSet("docs", 3, 2)
	_, err := s.Upsert(ctx, set)
	require.NoError(t, err)

	results, err := s.Search(ctx, "docs", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, set.Fragments[0].DocumentID, results[0].DocumentID)
	assert.Equal(t, "docs", results[0].Metadata["team"])

	results, err = s.Search(ctx, "docs", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQdrantStore_Passthrough(t *testing.T) {
	s, client := newTestQdrantStore(0)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, "x", 2))

	names, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, names)

	require.NoError(t, s.DeleteCollection(ctx, "x"))
	assert.Empty(t, client.collections)
	require.NoError(t, s.Health(ctx))
	require.NoError(t, s.Close())
	assert.True(t, client.closed)
}

func TestOpenQdrant_InvalidURL(t *testing.T) {
	_, err := OpenQdrant(context.Background(), config.DatabaseConfig{URL: "::not a url"}, nil, nil)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}
