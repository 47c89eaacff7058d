package embed

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// OpenAIConfig configures an OpenAI-compatible embedder.
type OpenAIConfig struct {
	// BaseURL is the API root; "/embeddings" is appended (default: https://api.openai.com/v1).
	BaseURL string

	// APIKey is sent as a bearer token. Required.
	APIKey string

	Model string

	// Dimensions is forwarded to the API when set and pins the vector width.
	Dimensions int

	Timeout  time.Duration
	PoolSize int
}

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// OpenAIEmbedder generates embeddings with an OpenAI-compatible /embeddings API.
type OpenAIEmbedder struct {
	client    *http.Client
	transport *http.Transport
	cfg       OpenAIConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI-compatible embedder.
// A missing API key is a configuration error.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New(errors.ErrCodeMissingAPIKey, "openai embeddings require an API key", nil).
			WithSuggestion("set embeddings.api_key, CODECONTEXT_EMBEDDINGS_API_KEY or OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := newTransport(cfg.PoolSize)
	return &OpenAIEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
		dims:      cfg.Dimensions,
	}, nil
}

// Embed implements Embedder. Results are reordered by the response's index field.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	url := e.cfg.BaseURL + "/embeddings"
	headers := map[string]string{"Authorization": "Bearer " + e.cfg.APIKey}
	var resp openAIEmbedResponse
	err := postJSON(ctx, e.client, url, e.cfg.Timeout, headers,
		openAIEmbedRequest{Model: e.cfg.Model, Input: texts, Dimensions: e.cfg.Dimensions}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, errors.New(errors.ErrCodeProviderBadResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)), nil).
			WithDetail("url", url)
	}

	sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		if d.Index != i {
			return nil, errors.New(errors.ErrCodeProviderBadResponse,
				fmt.Sprintf("response indexes are not 0..%d", len(texts)-1), nil).WithDetail("url", url)
		}
		out[i] = d.Embedding
	}
	if err := e.learnDimensions(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OpenAIEmbedder) learnDimensions(vecs [][]float32) error {
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
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName implements Embedder.
func (e *OpenAIEmbedder) ModelName() string {
	return e.cfg.Model
}

// Available reports whether the embedder is open. Probing a paid API is not done.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	return e.checkOpen() == nil
}

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.transport.CloseIdleConnections()
	}
	return nil
}

func (e *OpenAIEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return errors.InternalError("embedder is closed", nil)
	}
	return nil
}
