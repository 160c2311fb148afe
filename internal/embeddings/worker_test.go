package embeddings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/fyrsmithlabs/vectorizer/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// fakeModel records every call and returns vectors derived from the text
// length. Hooks let tests inject failures and delays.
type fakeModel struct {
	dim int

	mu     sync.Mutex
	calls  [][]string
	closed bool

	// probeDim overrides the vector length of the first call.
	probeDim int
	// failOn makes Embed fail when a text equals it.
	failOn string
	// block, when set, is waited on before every non-probe call.
	block chan struct{}
}

func (m *fakeModel) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	first := len(m.calls) == 0
	m.calls = append(m.calls, append([]string(nil), texts...))
	block, dim, failOn := m.block, m.dim, m.failOn
	if first && m.probeDim != 0 {
		dim = m.probeDim
	}
	m.mu.Unlock()

	if !first && block != nil {
		<-block
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if failOn != "" && t == failOn {
			return nil, errors.New("model exploded")
		}
		v := make([]float32, dim)
		if dim > 0 {
			v[0] = float32(len(t))
		}
		out[i] = v
	}
	return out, nil
}

func (m *fakeModel) Dimension() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dim
}

func (m *fakeModel) Name() string { return "fake" }

func (m *fakeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// embedCalls returns the calls after the load-time probe.
func (m *fakeModel) embedCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return append([][]string(nil), m.calls[1:]...)
}

func loaderFor(m Model) Loader {
	return func(context.Context, ModelSource) (Model, error) { return m, nil }
}

func newTestWorker(t *testing.T, m *fakeModel, batch int) *Worker {
	t.Helper()
	w, err := NewWorker(context.Background(), WorkerConfig{Loader: loaderFor(m), BatchSize: batch}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func setOf(collection string, texts map[string]string, order []string, size int) *document.DocumentSet {
	set := document.NewSet(collection, nil)
	for _, key := range order {
		d := document.New("/p/"+key, key, texts[key], nil)
		d.Split(size)
		set.Add(d)
	}
	return set
}

func TestWorker_ExampleRun(t *testing.T) {
	m := &fakeModel{dim: 4}
	w := newTestWorker(t, m, 1)

	set := setOf("docs", map[string]string{"a.md": "one two three four five"}, []string{"a.md"}, 2)
	out, err := w.Submit(context.Background(), set)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"one two"}, {"three four"}, {"five"}}, m.embedCalls())
	require.Equal(t, 3, out.Len())
	docID := set.Documents[0].ID
	for i, f := range out.Fragments {
		assert.Equal(t, docID, f.DocumentID)
		assert.Equal(t, i, f.Index)
		assert.Len(t, f.Vector, 4)
	}
	assert.Equal(t, float32(len("three four")), out.Fragments[1].Vector[0])
	assert.Equal(t, "docs", out.Collection)
}

func TestWorker_Batching(t *testing.T) {
	m := &fakeModel{dim: 2}
	w := newTestWorker(t, m, 2)

	set := setOf("docs", map[string]string{"a": "a b c", "b": "d e"}, []string{"a", "b"}, 1)
	out, err := w.Submit(context.Background(), set)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, m.embedCalls())
	assert.Equal(t, 5, out.Len())
}

func TestWorker_FIFO(t *testing.T) {
	m := &fakeModel{dim: 2, block: make(chan struct{})}
	w := newTestWorker(t, m, 1)

	a := setOf("a", map[string]string{"a": "alpha"}, []string{"a"}, 10)
	b := setOf("b", map[string]string{"b": "beta"}, []string{"b"}, 10)

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	submit := func(set *document.DocumentSet) {
		defer wg.Done()
		out, err := w.Submit(context.Background(), set)
		assert.NoError(t, err)
		mu.Lock()
		order = append(order, out.Collection)
		mu.Unlock()
	}

	wg.Add(1)
	go submit(a)
	require.Eventually(t, func() bool { return len(m.embedCalls()) == 1 }, time.Second, time.Millisecond)
	wg.Add(1)
	go submit(b)
	require.Eventually(t, func() bool { return len(w.queue) == 1 }, time.Second, time.Millisecond)

	close(m.block)
	wg.Wait()

	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, [][]string{{"alpha"}, {"beta"}}, m.embedCalls())
}

func TestWorker_EmptySetMakesNoCalls(t *testing.T) {
	m := &fakeModel{dim: 3}
	w := newTestWorker(t, m, 1)

	out, err := w.Submit(context.Background(), document.NewSet("docs", nil))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Empty(t, m.embedCalls())

	out, err = w.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestWorker_ModelFailureFailsWholeSet(t *testing.T) {
	m := &fakeModel{dim: 3, failOn: "three"}
	w := newTestWorker(t, m, 1)

	set := setOf("docs", map[string]string{"a": "one two three four"}, []string{"a"}, 1)
	out, err := w.Submit(context.Background(), set)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	// The worker keeps serving after a failed request.
	v, err := w.EmbedText(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, v, 3)
}

func TestWorker_WrongVectorLength(t *testing.T) {
	m := &fakeModel{dim: 3}
	w := newTestWorker(t, m, 1)
	m.mu.Lock()
	m.dim = 5
	m.mu.Unlock()

	_, err := w.EmbedText(context.Background(), "query")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNewWorker_LoadFailures(t *testing.T) {
	tests := []struct {
		name   string
		loader Loader
		want   []error
	}{
		{
			name: "loader error",
			loader: func(context.Context, ModelSource) (Model, error) {
				return nil, errors.New("no such model")
			},
			want: []error{ErrModelLoad},
		},
		{
			name:   "probe dimension mismatch",
			loader: loaderFor(&fakeModel{dim: 4, probeDim: 3}),
			want:   []error{ErrModelLoad, ErrDimensionMismatch},
		},
		{
			name:   "zero dimension",
			loader: loaderFor(&fakeModel{dim: 0}),
			want:   []error{ErrModelLoad, ErrDimensionMismatch},
		},
		{
			name:   "probe failure",
			loader: loaderFor(&fakeModel{dim: 2, failOn: "probe"}),
			want:   []error{ErrModelLoad},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWorker(context.Background(), WorkerConfig{Loader: tt.loader}, nil)
			require.Error(t, err)
			assert.Nil(t, w)
			for _, want := range tt.want {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}

func TestNewWorker_InvalidSourceWithDefaultLoader(t *testing.T) {
	src := ModelSource{Provider: ProviderFastEmbed, Local: true, Location: t.TempDir() + "/missing"}
	w, err := NewWorker(context.Background(), WorkerConfig{Source: src}, nil)
	assert.Nil(t, w)
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestWorker_ProbeClosesModelOnFailure(t *testing.T) {
	m := &fakeModel{dim: 4, probeDim: 2}
	_, err := NewWorker(context.Background(), WorkerConfig{Loader: loaderFor(m)}, nil)
	require.Error(t, err)
	assert.True(t, m.closed)
}

func TestWorker_Close(t *testing.T) {
	m := &fakeModel{dim: 2}
	w, err := NewWorker(context.Background(), WorkerConfig{Loader: loaderFor(m)}, nil)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.True(t, m.closed)

	_, err = w.Submit(context.Background(), document.NewSet("x", nil))
	assert.ErrorIs(t, err, ErrWorkerClosed)
	_, err = w.EmbedText(context.Background(), "q")
	assert.ErrorIs(t, err, ErrWorkerClosed)
}

func TestWorker_CloseDrainsQueue(t *testing.T) {
	m := &fakeModel{dim: 2, block: make(chan struct{})}
	w, err := NewWorker(context.Background(), WorkerConfig{Loader: loaderFor(m)}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := w.EmbedText(context.Background(), "pending")
		done <- err
	}()
	require.Eventually(t, func() bool { return len(m.embedCalls()) == 1 }, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = w.Close()
		close(closed)
	}()
	close(m.block)

	require.NoError(t, <-done)
	<-closed
	assert.True(t, m.closed)
}

func TestWorker_CancelWhileWaiting(t *testing.T) {
	m := &fakeModel{dim: 2, block: make(chan struct{})}
	w := newTestWorker(t, m, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := w.EmbedText(ctx, "slow")
		errc <- err
	}()
	require.Eventually(t, func() bool { return len(m.embedCalls()) == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	// The abandoned request still completes and the worker moves on.
	close(m.block)
	v, err := w.EmbedText(context.Background(), "next")
	require.NoError(t, err)
	assert.Len(t, v, 2)
}

func TestWorker_EmbedTextEmpty(t *testing.T) {
	w := newTestWorker(t, &fakeModel{dim: 2}, 1)
	_, err := w.EmbedText(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestWorker_LogsTiming(t *testing.T) {
	logger := logging.NewTestLogger()
	m := &fakeModel{dim: 2}
	w, err := NewWorker(context.Background(), WorkerConfig{Loader: loaderFor(m)}, logger.Logger)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, 2, w.Dimension())
	assert.Equal(t, "fake", w.ModelName())

	set := setOf("docs", map[string]string{"a": "x y"}, []string{"a"}, 1)
	_, err = w.Submit(context.Background(), set)
	require.NoError(t, err)

	logger.AssertLogged(t, zapcore.InfoLevel, "embedding worker ready")
	logger.AssertLogged(t, zapcore.InfoLevel, "embedded document set")
	logger.AssertField(t, "embedded document set", "fragments", int64(2))
}
