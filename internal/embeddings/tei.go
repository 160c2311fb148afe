package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// teiProbeText is embedded once at load time to learn the dimension.
const teiProbeText = "dimension probe"

// teiModel calls a text-embeddings-inference server.
type teiModel struct {
	baseURL string
	name    string
	client  *http.Client
	limiter *rate.Limiter
	dim     int
}

type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

func newTEIModel(ctx context.Context, src ModelSource) (Model, error) {
	baseURL := strings.TrimRight(src.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: tei provider requires a base URL", ErrModelLoad)
	}
	m := &teiModel{
		baseURL: baseURL,
		name:    src.Location,
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	if src.RateLimit > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(src.RateLimit), 1)
	}
	if m.name == "" {
		m.name = baseURL
	}

	vectors, err := m.Embed(ctx, []string{teiProbeText})
	if err != nil {
		return nil, fmt.Errorf("%w: probing %s: %v", ErrModelLoad, baseURL, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: probing %s: empty vector", ErrModelLoad, baseURL)
	}
	m.dim = len(vectors[0])
	return m, nil
}

func (m *teiModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	body, err := json.Marshal(teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

func (m *teiModel) Dimension() int { return m.dim }

func (m *teiModel) Name() string { return m.name }

func (m *teiModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
