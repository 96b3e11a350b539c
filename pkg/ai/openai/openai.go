package openai

import (
	"sync"

	"github.com/atlaskb/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

const defaultTimeoutSec = 60

// TextModelOpenAIClient implements ai.TextModelClient against an
// OpenAI-compatible API. Completion and embedding calls share one weighted
// semaphore so the number of outstanding requests toward the metered API
// stays bounded.
type TextModelOpenAIClient struct {
	completionModel string
	embeddingModel  string
	embeddingDim    int
	timeoutSec      int

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewTextModelOpenAIClientParams configures a TextModelOpenAIClient.
// Separate URL/key pairs allow pointing embeddings and completions at
// different OpenAI-compatible endpoints.
type NewTextModelOpenAIClientParams struct {
	CompletionModel string
	EmbeddingModel  string
	EmbeddingDim    int

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string

	MaxConcurrentRequests int64
	TimeoutSec            int
}

// NewTextModelOpenAIClient creates a client for the configured models.
func NewTextModelOpenAIClient(params NewTextModelOpenAIClientParams) *TextModelOpenAIClient {
	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	timeout := params.TimeoutSec
	if timeout <= 0 {
		timeout = defaultTimeoutSec
	}

	return &TextModelOpenAIClient{
		completionModel: params.CompletionModel,
		embeddingModel:  params.EmbeddingModel,
		embeddingDim:    params.EmbeddingDim,
		timeoutSec:      timeout,

		reqLock: semaphore.NewWeighted(maxConcurrent),

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

// EmbeddingVersion identifies the embedding model vectors were produced by.
func (c *TextModelOpenAIClient) EmbeddingVersion() string {
	return c.embeddingModel
}

func newOpenaiClient(baseURL string, apiKey string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)
	return &client
}
