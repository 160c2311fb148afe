package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/fyrsmithlabs/vectorizer/internal/ignore"
	"github.com/fyrsmithlabs/vectorizer/internal/logging"
	"github.com/fyrsmithlabs/vectorizer/internal/secrets"
	"github.com/fyrsmithlabs/vectorizer/internal/walker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func makeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func names(set *document.DocumentSet, root string) []string {
	out := make([]string, 0, set.Len())
	for _, d := range set.Documents {
		rel, _ := filepath.Rel(root, d.Path)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestBuildIndex_FiltersAndSorts(t *testing.T) {
	root := makeTree(t, map[string]string{
		"README.md":          "hello world",
		"docs/guide.md":      "one two three four five",
		"docs/notes.txt":     "plain text",
		"src/main.go":        "package main",
		"build/out.md":       "generated",
		".git/config.md":     "hidden",
		"logs/app.log":       "noise",
		"logs/important.log": "keep me",
		".vectorizerignore":  "# project rules\nbuild/\n",
	})

	set, err := BuildIndex(context.Background(), Options{
		Root:         root,
		Extensions:   []string{"md", "log"},
		Ignored:      []string{"*.log", "!important.log"},
		IgnoreFiles:  []string{".vectorizerignore"},
		Collection:   "docs",
		Metadata:     document.Metadata{"team": "core"},
		FragmentSize: 2,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"README.md", "docs/guide.md", "logs/important.log"}, names(set, root))
	assert.Equal(t, "docs", set.Collection)

	guide := set.Documents[1]
	require.Len(t, guide.Fragments, 3)
	assert.Equal(t, "core", guide.Fragments[0].Metadata["team"])
	assert.Equal(t, document.DocumentID("docs/guide.md"), guide.ID)
}

func TestBuildIndex_StableIDsAcrossRoots(t *testing.T) {
	files := map[string]string{"a/b.md": "same"}
	first, err := BuildIndex(context.Background(), Options{Root: makeTree(t, files), Extensions: []string{"md"}}, nil)
	require.NoError(t, err)
	second, err := BuildIndex(context.Background(), Options{Root: makeTree(t, files), Extensions: []string{"md"}}, nil)
	require.NoError(t, err)

	require.Equal(t, 1, first.Len())
	assert.Equal(t, first.Documents[0].Fragments[0].ID, second.Documents[0].Fragments[0].ID)
}

func TestBuildIndex_FileRoot(t *testing.T) {
	root := makeTree(t, map[string]string{"notes.bin.txt": "a b c"})
	file := filepath.Join(root, "notes.bin.txt")

	// Extension filters and ignore rules do not apply to a single file.
	set, err := BuildIndex(context.Background(), Options{
		Root:         file,
		Extensions:   []string{"md"},
		Ignored:      []string{"*.txt"},
		FragmentSize: 10,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.Equal(t, document.DocumentID("notes.bin.txt"), set.Documents[0].ID)
	assert.Equal(t, "txt", set.Documents[0].Metadata[document.KeyExtension])
}

func TestBuildIndex_Directories(t *testing.T) {
	root := makeTree(t, map[string]string{
		"docs/a.md":     "a",
		"docs/sub/b.md": "b",
		"src/c.md":      "c",
		"other/d.md":    "d",
	})
	logger := logging.NewTestLogger()

	ix := New(Options{
		Root:        root,
		Extensions:  []string{"md"},
		Directories: []string{"docs", "src", "missing", "docs/sub"},
		Ignored:     []string{"/src/"},
	}, logger.Logger)
	set, err := ix.Build(context.Background())
	require.NoError(t, err)

	// Rules stay relative to the project root even when walking a
	// sub-directory; overlapping directories are not indexed twice.
	assert.Equal(t, []string{"docs/a.md", "docs/sub/b.md"}, names(set, root))
	logger.AssertLogged(t, zapcore.WarnLevel, "skipping configured directory")
	assert.Equal(t, 2, ix.Stats().Files)
}

func TestBuildIndex_AbsoluteDirectoryUnderRoot(t *testing.T) {
	root := makeTree(t, map[string]string{"docs/a.md": "a", "docs/secret.md": "s"})
	set, err := BuildIndex(context.Background(), Options{
		Root:        root,
		Extensions:  []string{"md"},
		Directories: []string{filepath.Join(root, "docs")},
		Ignored:     []string{"secret.md"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/a.md"}, names(set, root))
}

func TestBuildIndex_SkipsUnusableFiles(t *testing.T) {
	root := makeTree(t, map[string]string{
		"good.md":  "text",
		"empty.md": "  \n\t ",
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "binary.md"), []byte{0xff, 0xfe, 0x00, 'a'}, 0644))
	logger := logging.NewTestLogger()

	ix := New(Options{Root: root, Extensions: []string{"md"}}, logger.Logger)
	set, err := ix.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"good.md"}, names(set, root))
	logger.AssertLogged(t, zapcore.WarnLevel, "skipping non-UTF-8 file")

	stats := ix.Stats()
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Fragments)
	assert.Equal(t, 2, stats.Skipped)
}

func TestBuildIndex_EmptyProject(t *testing.T) {
	root := makeTree(t, map[string]string{"a.txt": "x"})
	set, err := BuildIndex(context.Background(), Options{Root: root, Extensions: []string{"md"}, Collection: "c"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
	assert.Equal(t, "c", set.Collection)
}

func TestBuildIndex_Errors(t *testing.T) {
	t.Run("invalid rule", func(t *testing.T) {
		root := makeTree(t, map[string]string{"a.md": "x"})
		_, err := BuildIndex(context.Background(), Options{Root: root, Ignored: []string{"[abc"}}, nil)
		var pe *ignore.PatternError
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("invalid rule in ignore file", func(t *testing.T) {
		root := makeTree(t, map[string]string{"a.md": "x", ".vectorizerignore": "!\n"})
		_, err := BuildIndex(context.Background(), Options{Root: root, IgnoreFiles: []string{".vectorizerignore"}}, nil)
		assert.ErrorIs(t, err, ignore.ErrBadPattern)
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := BuildIndex(context.Background(), Options{Root: filepath.Join(t.TempDir(), "nope")}, nil)
		var te *walker.TraversalError
		assert.ErrorAs(t, err, &te)
	})

	t.Run("directory outside root", func(t *testing.T) {
		parent := makeTree(t, map[string]string{
			"project/a.md":     "x",
			"shared/keep.md":   "keep",
			"shared/secret.md": "hidden",
		})
		for _, dir := range []string{filepath.Join(parent, "shared"), "../shared"} {
			set, err := BuildIndex(context.Background(), Options{
				Root:        filepath.Join(parent, "project"),
				Extensions:  []string{"md"},
				Directories: []string{dir},
				Ignored:     []string{"secret.md"},
			}, nil)
			assert.Nil(t, set)
			assert.ErrorIs(t, err, ErrOutsideRoot, dir)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		root := makeTree(t, map[string]string{"a.md": "x", "b/c.md": "y"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := BuildIndex(ctx, Options{Root: root}, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBuildIndex_RedactsSecrets(t *testing.T) {
	token := "ghp_" + "1a2B3c4D5e6F7g8H9i0J1k2L3m4N5o6P7q8R"
	root := makeTree(t, map[string]string{
		"setup.md": "export GITHUB_TOKEN=" + token,
		"plain.md": "nothing to hide",
	})
	redactor, err := secrets.New(nil)
	require.NoError(t, err)

	logger := logging.NewTestLogger()
	ix := New(Options{Root: root, Extensions: []string{"md"}, FragmentSize: 50, Redactor: redactor}, logger.Logger)
	set, err := ix.Build(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, set.Len())
	for _, d := range set.Documents {
		assert.NotContains(t, d.Text, token)
		for _, f := range d.Fragments {
			assert.NotContains(t, f.Text, token)
		}
	}
	assert.Contains(t, set.Documents[1].Text, "[REDACTED:")
	assert.Equal(t, "nothing to hide", set.Documents[0].Text)
	assert.GreaterOrEqual(t, ix.Stats().Redacted, 1)
	logger.AssertLogged(t, zapcore.WarnLevel, "redacted secrets")
}
