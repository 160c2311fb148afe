package document

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/vectorizer/internal/config"
	"github.com/mitchellh/copystructure"
)

// Metadata is a JSON-like map attached to documents and fragments. Values
// are expected to be what encoding/json decodes into: nil, bool, float64,
// string, []any and map[string]any. Other values are accepted but may be
// shared between copies.
type Metadata map[string]any

// Clone returns a deep copy; nested maps and slices are not shared.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	if cp, err := copystructure.Copy(m); err == nil {
		return cp.(Metadata)
	}
	return Metadata(cloneValue(map[string]any(m)).(map[string]any))
}

// cloneValue deep-copies the JSON container types and returns any other
// value as is.
func cloneValue(v any) any {
	switch v := v.(type) {
	case Metadata:
		return Metadata(cloneValue(map[string]any(v)).(map[string]any))
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Merge returns a deep copy of m overlaid with other. Keys in other win.
func (m Metadata) Merge(other Metadata) Metadata {
	out := m.Clone()
	for k, v := range other.Clone() {
		out[k] = v
	}
	return out
}

// JSON serializes the map. Keys are sorted by encoding/json.
func (m Metadata) JSON() (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// ParseMetadata decodes the configured base metadata, a JSON object.
// An empty string yields empty metadata.
func ParseMetadata(raw string) (Metadata, error) {
	if strings.TrimSpace(raw) == "" {
		return Metadata{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%w: metadata must be a JSON object: %v", config.ErrConfiguration, err)
	}
	if m == nil {
		return Metadata{}, nil
	}
	return Metadata(m), nil
}
