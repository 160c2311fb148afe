package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/google/uuid"
)

// DefaultCollection is used when a set has no collection name.
const DefaultCollection = "test_collection"

var (
	// ErrUpsert wraps every failure to create a collection or write points.
	ErrUpsert = errors.New("vector store upsert failed")

	// ErrSearch wraps query failures.
	ErrSearch = errors.New("vector store search failed")

	// ErrUnknownProvider is returned by NewStore.
	ErrUnknownProvider = errors.New("unknown vector store provider")
)

// Payload keys written with every point.
const (
	FieldID         = "id"
	FieldDocumentID = "document_id"
	FieldName       = "name"
	FieldText       = "text"
	FieldCreatedAt  = "created_at"
	FieldMetadata   = "metadata"
)

// Store persists embedded document sets.
type Store interface {
	// EnsureCollection creates name with dim-sized cosine vectors unless it
	// already exists.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// Upsert writes one point per fragment and returns how many were
	// written. Errors wrap ErrUpsert.
	Upsert(ctx context.Context, set *document.EmbeddedDocumentSet) (int, error)

	// Search returns up to limit fragments nearest to vector, best first.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error)

	ListCollections(ctx context.Context) ([]string, error)
	DeleteCollection(ctx context.Context, name string) error
	Health(ctx context.Context) error
	Close() error
}

// SearchResult is one hit, decoded from the point payload.
type SearchResult struct {
	ID         string
	DocumentID string
	Name       string
	Text       string
	CreatedAt  string
	Metadata   document.Metadata
	Score      float32
}

// CollectionName returns name, or DefaultCollection when it is empty.
func CollectionName(name string) string {
	if name == "" {
		return DefaultCollection
	}
	return name
}

// PointID derives the stable point ID of a fragment.
func PointID(fragmentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fragmentID)).String()
}

// payload builds the stored fields of one fragment.
func payload(f document.EmbeddedFragment, createdAt time.Time) (map[string]any, error) {
	meta, err := f.Metadata.JSON()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		FieldID:         f.ID,
		FieldDocumentID: f.DocumentID,
		FieldName:       f.Name,
		FieldText:       f.Text,
		FieldCreatedAt:  createdAt.Format(time.RFC3339),
		FieldMetadata:   meta,
	}, nil
}

// resultFrom decodes a stored payload. Malformed metadata is dropped.
func resultFrom(fields map[string]any, score float32) SearchResult {
	str := func(k string) string {
		s, _ := fields[k].(string)
		return s
	}
	r := SearchResult{
		ID:         str(FieldID),
		DocumentID: str(FieldDocumentID),
		Name:       str(FieldName),
		Text:       str(FieldText),
		CreatedAt:  str(FieldCreatedAt),
		Score:      score,
	}
	if raw := str(FieldMetadata); raw != "" {
		var m document.Metadata
		if json.Unmarshal([]byte(raw), &m) == nil {
			r.Metadata = m
		}
	}
	return r
}
