package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/atlaskb/backend/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// TextModelOllamaClient implements ai.TextModelClient against a locally
// hosted Ollama server. Useful for running the whole pipeline without a
// metered API.
type TextModelOllamaClient struct {
	completionModel string
	embeddingModel  string
	embeddingDim    int
	timeoutSec      int

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	Client *api.Client
}

// NewTextModelOllamaClientParams configures a TextModelOllamaClient.
type NewTextModelOllamaClientParams struct {
	CompletionModel string
	EmbeddingModel  string
	EmbeddingDim    int

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
	TimeoutSec            int
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewTextModelOllamaClient creates a client for the Ollama server at BaseURL
// (or the default server if empty).
func NewTextModelOllamaClient(params NewTextModelOllamaClientParams) (*TextModelOllamaClient, error) {
	var (
		u   *url.URL
		err error
	)
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := http.DefaultClient
	if params.ApiKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{
					"Authorization": "Bearer " + params.ApiKey,
				},
				rt: http.DefaultTransport,
			},
		}
	}

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	timeout := params.TimeoutSec
	if timeout <= 0 {
		timeout = 120
	}

	return &TextModelOllamaClient{
		completionModel: params.CompletionModel,
		embeddingModel:  params.EmbeddingModel,
		embeddingDim:    params.EmbeddingDim,
		timeoutSec:      timeout,

		reqLock: semaphore.NewWeighted(maxConcurrent),

		Client: api.NewClient(u, httpClient),
	}, nil
}

// EmbeddingVersion identifies the embedding model vectors were produced by.
func (c *TextModelOllamaClient) EmbeddingVersion() string {
	return c.embeddingModel
}

func (c *TextModelOllamaClient) modifyMetrics(delta ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.InputTokens += delta.InputTokens
	c.metrics.OutputTokens += delta.OutputTokens
	c.metrics.TotalTokens += delta.TotalTokens
	c.metrics.DurationMs += delta.DurationMs
}

// GetMetrics returns the usage metrics accumulated since the last reset.
func (c *TextModelOllamaClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

// ResetMetrics zeroes the accumulated usage metrics.
func (c *TextModelOllamaClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}
