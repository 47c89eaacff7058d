package embed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434).
	Host string

	// Model is the embedding model to use.
	Model string

	// Dimensions pins the vector width (0 = learn from the first response).
	Dimensions int

	// Timeout bounds a single request.
	Timeout time.Duration

	// PoolSize sizes the HTTP connection pool.
	PoolSize int
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaEmbedder generates embeddings using Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	cfg       OllamaConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an Ollama embedder. No request is made until the
// first Embed or Available call.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := newTransport(cfg.PoolSize)
	return &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
		dims:      cfg.Dimensions,
	}
}

// Embed implements Embedder.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	url := e.cfg.Host + "/api/embed"
	var resp ollamaEmbedResponse
	err := postJSON(ctx, e.client, url, e.cfg.Timeout, nil,
		ollamaEmbedRequest{Model: e.cfg.Model, Input: texts}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, errors.New(errors.ErrCodeProviderBadResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)), nil).
			WithDetail("url", url)
	}
	if err := e.learnDimensions(resp.Embeddings); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// learnDimensions records the width of the first response and rejects
// responses that disagree with it.
func (e *OllamaEmbedder) learnDimensions(vecs [][]float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, v := range vecs {
		if len(v) == 0 {
			return errors.New(errors.ErrCodeProviderBadResponse, "provider returned an empty embedding", nil)
		}
		if e.dims == 0 {
			e.dims = len(v)
		}
		if len(v) != e.dims {
			return errors.New(errors.ErrCodeProviderBadResponse,
				fmt.Sprintf("embedding width %d does not match %d", len(v), e.dims), nil)
		}
	}
	return nil
}

// Dimensions implements Embedder.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName implements Embedder.
func (e *OllamaEmbedder) ModelName() string {
	return e.cfg.Model
}

// Available checks that the Ollama server answers /api/tags.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.checkOpen() != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections. It is safe to call more than once.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.transport.CloseIdleConnections()
	}
	return nil
}

func (e *OllamaEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return errors.InternalError("embedder is closed", nil)
	}
	return nil
}
