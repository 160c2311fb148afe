package document

import (
	"strings"
	"testing"

	"github.com/fyrsmithlabs/vectorizer/internal/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InjectsPathMetadata(t *testing.T) {
	base := Metadata{"team": "docs", "file_name": "overridden"}
	d := New("/src/project/guide.md", "guide.md", "hello world", base)

	assert.Equal(t, "guide.md", d.Name)
	assert.Equal(t, "/src/project/guide.md", d.Metadata[KeyPath])
	assert.Equal(t, "guide.md", d.Metadata[KeyFileName])
	assert.Equal(t, "md", d.Metadata[KeyExtension])
	assert.Equal(t, "guide", d.Metadata[KeyFileStem])
	assert.Equal(t, "docs", d.Metadata["team"])

	// Base is not mutated.
	assert.Equal(t, "overridden", base["file_name"])
}

func TestNew_NoExtension(t *testing.T) {
	d := New("/src/Makefile", "", "all:", nil)
	assert.Equal(t, "", d.Metadata[KeyExtension])
	assert.Equal(t, "Makefile", d.Metadata[KeyFileStem])
}

func TestDocumentID_Stable(t *testing.T) {
	a := New("/tmp/one/docs/a.md", "docs/a.md", "x", nil)
	b := New("/tmp/two/docs/a.md", "docs/a.md", "different text", nil)
	c := New("/tmp/one/other/a.md", "other/a.md", "x", nil)

	assert.Equal(t, a.ID, b.ID, "same key yields the same ID")
	assert.NotEqual(t, a.ID, c.ID, "same file name in another directory differs")

	parsed, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
	assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceOID, []byte("docs/a.md")).String(), a.ID)
}

func TestSplit_FragmentIDs(t *testing.T) {
	d := New("/p/a.md", "a.md", "one two three four five", nil)
	n := d.Split(2)
	require.Equal(t, 3, n)

	seen := map[string]bool{}
	for i, f := range d.Fragments {
		assert.Equal(t, d.ID+"_"+string(rune('0'+i)), f.ID)
		assert.Equal(t, i, f.Index)
		assert.Equal(t, d.ID, f.DocumentID)
		assert.Equal(t, "a.md", f.Name)
		assert.False(t, seen[f.ID])
		seen[f.ID] = true
	}
	assert.Equal(t, []string{"one two", "three four", "five"}, texts(d.Fragments))

	// A second run over the same input produces the same IDs.
	again := New("/p/a.md", "a.md", "one two three four five", nil)
	again.Split(2)
	for i := range d.Fragments {
		assert.Equal(t, d.Fragments[i].ID, again.Fragments[i].ID)
	}
}

func TestSplit_RejoinEqualsTokens(t *testing.T) {
	text := "fn main() {\n\tprintln!(\"hi\");\n}\n\n// trailing   comment"
	for _, budget := range []int{-1, 0, 1, 2, 3, 7, 256, 1000} {
		d := New("/p/main.rs", "main.rs", text, nil)
		d.Split(budget)
		assert.Equal(t, strings.Join(d.Tokens(), " "), strings.Join(texts(d.Fragments), " "), "budget %d", budget)
	}
}

func TestSplit_EmptyText(t *testing.T) {
	d := New("/p/empty.md", "empty.md", " \n\t", nil)
	assert.Equal(t, 0, d.Split(10))
	assert.Empty(t, d.Fragments)
}

func TestAddFragment_MetadataIsSnapshot(t *testing.T) {
	d := New("/p/a.md", "a.md", "x", Metadata{"tags": []any{"a"}, "nested": map[string]any{"k": "v"}})
	f := d.AddFragment("x")

	d.Metadata["late"] = true
	d.Metadata["tags"] = append(d.Metadata["tags"].([]any), "b")
	d.Metadata["nested"].(map[string]any)["k"] = "changed"

	_, hasLate := f.Metadata["late"]
	assert.False(t, hasLate)
	assert.Equal(t, []any{"a"}, f.Metadata["tags"])
	assert.Equal(t, "v", f.Metadata["nested"].(map[string]any)["k"])
}

func TestMetadata_CloneAndMerge(t *testing.T) {
	m := Metadata{"a": 1, "nested": map[string]any{"x": 1}}
	c := m.Clone()
	c["nested"].(map[string]any)["x"] = 2
	assert.Equal(t, 1, m["nested"].(map[string]any)["x"])

	merged := m.Merge(Metadata{"a": 2, "b": 3})
	assert.Equal(t, Metadata{"a": 2, "b": 3, "nested": map[string]any{"x": 1}}, merged)
	assert.Equal(t, 1, m["a"])

	var empty Metadata
	assert.Equal(t, Metadata{}, empty.Clone())
}

func TestMetadata_CloneNonJSONValues(t *testing.T) {
	type opaque struct{ n int }
	m := Metadata{"opaque": &opaque{n: 1}, "when": "2024-05-01", "list": []any{map[string]any{"x": 1}}}

	var c Metadata
	require.NotPanics(t, func() { c = m.Clone() })
	require.Len(t, c, 3)
	c["list"].([]any)[0].(map[string]any)["x"] = 2
	assert.Equal(t, 1, m["list"].([]any)[0].(map[string]any)["x"])
}

func TestCloneValue(t *testing.T) {
	type opaque struct{ n int }
	ptr := &opaque{n: 1}
	src := map[string]any{
		"nested": Metadata{"a": []any{1, "b"}},
		"ptr":    ptr,
	}

	out := cloneValue(src).(map[string]any)
	out["nested"].(Metadata)["a"].([]any)[0] = 9
	assert.Equal(t, 1, src["nested"].(Metadata)["a"].([]any)[0])
	assert.Same(t, ptr, out["ptr"])
}

func TestParseMetadata(t *testing.T) {
	m, err := ParseMetadata(`{"team":"docs","version":2,"tags":["a"]}`)
	require.NoError(t, err)
	assert.Equal(t, "docs", m["team"])
	assert.Equal(t, float64(2), m["version"])

	m, err = ParseMetadata("  ")
	require.NoError(t, err)
	assert.Empty(t, m)

	for _, bad := range []string{`{"team":`, `[1,2]`, `"text"`} {
		_, err := ParseMetadata(bad)
		assert.ErrorIs(t, err, config.ErrConfiguration, bad)
	}
}

func TestMetadata_JSON(t *testing.T) {
	s, err := Metadata{"b": 1, "a": "x"}.JSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1}`, s)

	s, err = Metadata(nil).JSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", s)
}

func TestDocumentSet(t *testing.T) {
	set := NewSet("docs", Metadata{"run": "1"})
	a := New("/p/a.md", "a.md", "a1 a2 a3", nil)
	a.Split(2)
	b := New("/p/b.md", "b.md", "b1", nil)
	b.Split(2)
	set.Add(a)
	set.Add(b)

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, 3, set.FragmentCount())
	assert.Equal(t, []string{"a1 a2", "a3", "b1"}, texts(set.Fragments()))

	_, err := set.Embed([][]float32{{1}})
	assert.Error(t, err)

	emb, err := set.Embed([][]float32{{1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)
	assert.Equal(t, "docs", emb.Collection)
	assert.Equal(t, 3, emb.Len())
	assert.Equal(t, 2, emb.Dimension())
	assert.Equal(t, a.Fragments[1].ID, emb.Fragments[1].ID)
	assert.Equal(t, []float32{0, 1}, emb.Fragments[1].Vector)

	var nilSet *DocumentSet
	assert.Equal(t, 0, nilSet.Len())
	assert.Empty(t, nilSet.Fragments())
	assert.Equal(t, 0, (&EmbeddedDocumentSet{}).Dimension())
}

func texts(frags []Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.Text
	}
	return out
}
