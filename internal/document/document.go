// Package document defines the records that flow through the indexing
// pipeline: documents, their fragments, and embedded fragments grouped into
// sets bound for one collection.
package document

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/vectorizer/internal/fragment"
	"github.com/google/uuid"
)

// Keys injected into every document's metadata. They override base metadata.
const (
	KeyPath      = "path"
	KeyFileName  = "file_name"
	KeyExtension = "extension"
	KeyFileStem  = "file_stem"
)

// Document is one source file.
type Document struct {
	// ID is a UUIDv5 (OID namespace) of the document's identity key, so it
	// is stable across runs.
	ID   string
	Name string
	Path string
	Text string

	Fragments []Fragment
	Metadata  Metadata
}

// Fragment is a bounded slice of a document's tokens.
type Fragment struct {
	// ID is "{DocumentID}_{Index}".
	ID         string
	DocumentID string
	Index      int
	Name       string
	Text       string

	// Metadata is a snapshot of the document metadata at creation time.
	Metadata Metadata
}

// EmbeddedFragment is a Fragment paired with its vector.
type EmbeddedFragment struct {
	Fragment
	Vector []float32
}

// DocumentID derives the stable document ID for an identity key.
func DocumentID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// New builds a Document for the file at path. key identifies the document
// across runs (the project-relative path); when empty the file name is used.
// Metadata is base merged with the injected path keys.
func New(path, key, text string, base Metadata) *Document {
	name := filepath.Base(path)
	if key == "" {
		key = name
	}
	ext := strings.TrimPrefix(filepath.Ext(name), ".")

	meta := base.Merge(Metadata{
		KeyPath:      path,
		KeyFileName:  name,
		KeyExtension: ext,
		KeyFileStem:  strings.TrimSuffix(name, filepath.Ext(name)),
	})

	return &Document{
		ID:       DocumentID(filepath.ToSlash(key)),
		Name:     name,
		Path:     path,
		Text:     text,
		Metadata: meta,
	}
}

// Tokens returns the whitespace tokenization of the document text.
func (d *Document) Tokens() []string {
	return fragment.Tokenize(d.Text)
}

// AddFragment appends a fragment with the next index. The fragment receives
// its own copy of the document metadata.
func (d *Document) AddFragment(text string) Fragment {
	i := len(d.Fragments)
	f := Fragment{
		ID:         fmt.Sprintf("%s_%d", d.ID, i),
		DocumentID: d.ID,
		Index:      i,
		Name:       d.Name,
		Text:       text,
		Metadata:   d.Metadata.Clone(),
	}
	d.Fragments = append(d.Fragments, f)
	return f
}

// Split breaks the document text into fragments of at most maxTokens
// tokens (see fragment.Clamp) and returns how many were added.
func (d *Document) Split(maxTokens int) int {
	parts := fragment.Split(d.Text, maxTokens)
	for _, p := range parts {
		d.AddFragment(p)
	}
	return len(parts)
}

// Embed pairs the fragment with vector.
func (f Fragment) Embed(vector []float32) EmbeddedFragment {
	return EmbeddedFragment{Fragment: f, Vector: vector}
}

// DocumentSet is the unit of work submitted for embedding.
type DocumentSet struct {
	Collection string
	Metadata   Metadata
	Documents  []*Document
}

// NewSet creates an empty set for collection.
func NewSet(collection string, meta Metadata) *DocumentSet {
	return &DocumentSet{Collection: collection, Metadata: meta.Clone()}
}

// Add appends a document.
func (s *DocumentSet) Add(d *Document) {
	s.Documents = append(s.Documents, d)
}

// Len returns the number of documents.
func (s *DocumentSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Documents)
}

// FragmentCount returns the number of fragments across all documents.
func (s *DocumentSet) FragmentCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, d := range s.Documents {
		n += len(d.Fragments)
	}
	return n
}

// Fragments returns every fragment, documents in order, fragments in order.
func (s *DocumentSet) Fragments() []Fragment {
	out := make([]Fragment, 0, s.FragmentCount())
	if s == nil {
		return out
	}
	for _, d := range s.Documents {
		out = append(out, d.Fragments...)
	}
	return out
}

// Embed pairs Fragments() with vectors, which must be in the same order.
func (s *DocumentSet) Embed(vectors [][]float32) (*EmbeddedDocumentSet, error) {
	frags := s.Fragments()
	if len(frags) != len(vectors) {
		return nil, fmt.Errorf("got %d vectors for %d fragments", len(vectors), len(frags))
	}
	out := &EmbeddedDocumentSet{
		Collection: s.Collection,
		Metadata:   s.Metadata.Clone(),
		Fragments:  make([]EmbeddedFragment, len(frags)),
	}
	for i, f := range frags {
		out.Fragments[i] = f.Embed(vectors[i])
	}
	return out, nil
}

// EmbeddedDocumentSet is a DocumentSet after embedding, flattened to
// fragments in document order.
type EmbeddedDocumentSet struct {
	Collection string
	Metadata   Metadata
	Fragments  []EmbeddedFragment
}

// Len returns the number of embedded fragments.
func (s *EmbeddedDocumentSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Fragments)
}

// Dimension returns the vector length, or 0 for an empty set.
func (s *EmbeddedDocumentSet) Dimension() int {
	if s.Len() == 0 {
		return 0
	}
	return len(s.Fragments[0].Vector)
}
