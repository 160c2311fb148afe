package embeddings

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/fyrsmithlabs/vectorizer/internal/document"
	"github.com/fyrsmithlabs/vectorizer/internal/logging"
	"go.uber.org/zap"
)

// DefaultQueueSize bounds the number of pending requests.
const DefaultQueueSize = 100

// WorkerConfig configures NewWorker.
type WorkerConfig struct {
	Source ModelSource

	// QueueSize bounds pending requests; Submit blocks while it is full.
	QueueSize int

	// BatchSize is the number of texts per model call. Defaults to 1.
	BatchSize int

	// Loader builds the model. Defaults to DefaultLoader.
	Loader Loader

	// Metrics is optional.
	Metrics *Metrics
}

type request struct {
	ctx   context.Context
	set   *document.DocumentSet
	texts []string
	reply chan response
}

type response struct {
	set     *document.EmbeddedDocumentSet
	vectors [][]float32
	err     error
}

// Worker owns one Model on a dedicated OS thread and serves requests
// strictly in submission order.
type Worker struct {
	queue   chan request
	done    chan struct{}
	logger  *logging.Logger
	metrics *Metrics
	batch   int

	// set once before NewWorker returns
	dim  int
	name string

	mu     sync.RWMutex
	closed bool
}

// NewWorker starts the worker goroutine and waits until the model is loaded
// and has answered one probe. On failure no Worker is returned and the
// goroutine has exited.
func NewWorker(ctx context.Context, cfg WorkerConfig, logger *logging.Logger) (*Worker, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Loader == nil {
		cfg.Loader = DefaultLoader(logger)
	}

	w := &Worker{
		queue:   make(chan request, cfg.QueueSize),
		done:    make(chan struct{}),
		logger:  logger.Named("embeddings"),
		metrics: cfg.Metrics,
		batch:   cfg.BatchSize,
	}

	ready := make(chan error, 1)
	go w.run(ctx, cfg, ready)

	select {
	case err := <-ready:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		// The goroutine reports on the buffered channel and exits on its own.
		go func() {
			if err := <-ready; err == nil {
				w.Close()
			}
		}()
		return nil, ctx.Err()
	}

	w.logger.Info(ctx, "embedding worker ready",
		zap.String("model", w.name),
		zap.Int("dimension", w.dim),
		zap.Int("batch_size", w.batch),
	)
	return w, nil
}

func (w *Worker) run(ctx context.Context, cfg WorkerConfig, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	model, err := cfg.Loader(ctx, cfg.Source)
	if err != nil {
		if !errors.Is(err, ErrModelLoad) {
			err = fmt.Errorf("%w: %s: %w", ErrModelLoad, cfg.Source, err)
		}
		ready <- err
		return
	}
	if err := probe(ctx, model); err != nil {
		_ = model.Close()
		ready <- err
		return
	}
	w.dim = model.Dimension()
	w.name = model.Name()
	ready <- nil

	defer close(w.done)
	for req := range w.queue {
		req.reply <- w.handle(model, req)
	}
	if err := model.Close(); err != nil {
		w.logger.Warn(ctx, "closing model", zap.Error(err))
	}
}

// probe embeds one text and checks the vector length against Dimension.
func probe(ctx context.Context, model Model) error {
	vectors, err := model.Embed(ctx, []string{"probe"})
	if err != nil {
		return fmt.Errorf("%w: probe %s: %w", ErrModelLoad, model.Name(), err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("%w: probe %s returned %d vectors", ErrModelLoad, model.Name(), len(vectors))
	}
	if got, want := len(vectors[0]), model.Dimension(); got != want || want <= 0 {
		return fmt.Errorf("%w: %w: %s declared %d, produced %d", ErrModelLoad, ErrDimensionMismatch, model.Name(), want, got)
	}
	return nil
}

func (w *Worker) handle(model Model, req request) response {
	// Queued work completes even when the submitter has gone away.
	ctx := context.WithoutCancel(req.ctx)
	if req.set == nil {
		vectors, err := w.embed(ctx, model, req.texts, "embed_query")
		return response{vectors: vectors, err: err}
	}

	frags := req.set.Fragments()
	texts := make([]string, len(frags))
	for i, f := range frags {
		texts[i] = f.Text
	}

	start := time.Now()
	vectors, err := w.embed(ctx, model, texts, "embed_documents")
	if err != nil {
		return response{err: err}
	}
	out, err := req.set.Embed(vectors)
	if err != nil {
		return response{err: fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)}
	}

	if n := len(texts); n > 0 {
		elapsed := time.Since(start)
		w.logger.Info(ctx, "embedded document set",
			zap.Int("documents", req.set.Len()),
			zap.Int("fragments", n),
			zap.Duration("total", elapsed),
			zap.Duration("per_fragment", elapsed/time.Duration(n)),
		)
	}
	return response{set: out}
}

// embed calls the model in batches, preserving order. Any failure fails the
// whole call.
func (w *Worker) embed(ctx context.Context, model Model, texts []string, op string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += w.batch {
		hi := min(lo+w.batch, len(texts))
		start := time.Now()
		vectors, err := model.Embed(ctx, texts[lo:hi])
		if err == nil {
			err = w.check(vectors, hi-lo)
		}
		w.metrics.Record(ctx, w.name, op, time.Since(start), hi-lo, err)
		if err != nil {
			if !errors.Is(err, ErrEmbeddingFailed) {
				err = fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
			}
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (w *Worker) check(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), want)
	}
	for _, v := range vectors {
		if len(v) != w.dim {
			return fmt.Errorf("%w: %w: got %d, want %d", ErrEmbeddingFailed, ErrDimensionMismatch, len(v), w.dim)
		}
	}
	return nil
}

// Submit queues set and waits for its embedded form. Cancelling ctx while
// waiting abandons the reply; the queued work still runs.
func (w *Worker) Submit(ctx context.Context, set *document.DocumentSet) (*document.EmbeddedDocumentSet, error) {
	if set == nil {
		set = &document.DocumentSet{}
	}
	resp, err := w.send(ctx, request{ctx: ctx, set: set})
	if err != nil {
		return nil, err
	}
	return resp.set, resp.err
}

// EmbedText embeds free text through the same queue.
func (w *Worker) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	resp, err := w.send(ctx, request{ctx: ctx, texts: []string{text}})
	if err != nil {
		return nil, err
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return resp.vectors[0], nil
}

func (w *Worker) send(ctx context.Context, req request) (response, error) {
	req.reply = make(chan response, 1)

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return response{}, ErrWorkerClosed
	}
	select {
	case w.queue <- req:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// Dimension returns the model's vector length.
func (w *Worker) Dimension() int { return w.dim }

// ModelName returns the loaded model's name.
func (w *Worker) ModelName() string { return w.name }

// Close stops accepting requests, lets queued ones finish, and releases the
// model. It is safe to call more than once.
func (w *Worker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
	return nil
}
