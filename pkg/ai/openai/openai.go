package openai

import (
	"strings"
	"sync"

	"github.com/fmulab/graphqa/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
)

const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"

	DefaultAzureAPIVersion = "2023-07-01-preview"
)

// GraphOpenAIClient answers prompts and embeds queries through the OpenAI
// API or an Azure OpenAI deployment. Both share the same request framing;
// only the transport options differ.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient or
// NewGraphAzureClient.
type GraphOpenAIClient struct {
	provider       string
	chatModel      string
	embeddingModel string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams configures the direct API backend.
//
// BaseURL is optional and points the client at an OpenAI compatible server.
// EmbeddingURL and EmbeddingKey default to the chat settings.
type NewGraphOpenAIClientParams struct {
	ChatModel      string
	EmbeddingModel string

	BaseURL string
	APIKey  string

	EmbeddingURL string
	EmbeddingKey string

	MaxRetries int
}

// NewGraphAzureClientParams configures the deployment routed backend.
// Requests go to {Endpoint}/openai/deployments/{Deployment}/... with the
// api-version query parameter.
type NewGraphAzureClientParams struct {
	Endpoint            string
	APIKey              string
	APIVersion          string
	Deployment          string
	EmbeddingDeployment string

	MaxRetries int
}

// NewGraphOpenAIClient creates a client for the OpenAI API.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		ChatModel:      "gpt-3.5-turbo",
//		EmbeddingModel: "text-embedding-3-small",
//		APIKey:         os.Getenv("OPENAI_API_KEY"),
//	})
func NewGraphOpenAIClient(params NewGraphOpenAIClientParams) *GraphOpenAIClient {
	embeddingURL := params.EmbeddingURL
	if embeddingURL == "" {
		embeddingURL = params.BaseURL
	}
	embeddingKey := params.EmbeddingKey
	if embeddingKey == "" {
		embeddingKey = params.APIKey
	}

	return &GraphOpenAIClient{
		provider:        ProviderOpenAI,
		chatModel:       params.ChatModel,
		embeddingModel:  params.EmbeddingModel,
		ChatClient:      newOpenaiClient(params.BaseURL, params.APIKey, params.MaxRetries),
		EmbeddingClient: newOpenaiClient(embeddingURL, embeddingKey, params.MaxRetries),
	}
}

// NewGraphAzureClient creates a client for an Azure OpenAI resource.
func NewGraphAzureClient(params NewGraphAzureClientParams) *GraphOpenAIClient {
	apiVersion := params.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAzureAPIVersion
	}
	endpoint := strings.TrimRight(params.Endpoint, "/")

	client := openai.NewClient(
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(params.APIKey),
		option.WithMaxRetries(params.MaxRetries),
	)

	return &GraphOpenAIClient{
		provider:        ProviderAzure,
		chatModel:       params.Deployment,
		embeddingModel:  params.EmbeddingDeployment,
		ChatClient:      &client,
		EmbeddingClient: &client,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
	maxRetries int,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(maxRetries),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// Provider names the backend for logs and errors.
func (c *GraphOpenAIClient) Provider() string {
	return c.provider
}

// GetMetrics returns the usage accumulated since creation.
func (c *GraphOpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *GraphOpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.Add(m)
}
