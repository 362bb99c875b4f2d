package ai

import "context"

// GenerateOptions holds configuration for a single generation request.
type GenerateOptions struct {
	Model         string   // Model or deployment identifier
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
	MaxTokens     int      // Completion token cap, 0 leaves the backend default
}

// GenerateOption is a functional option for configuring generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts replaces the default system prompt.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithMaxTokens caps the number of generated tokens.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// NewGenerateOptions applies opts over defaults. SystemPrompts defaults to
// AssistantSystemPrompt.
func NewGenerateOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	o := defaults
	if len(o.SystemPrompts) == 0 {
		o.SystemPrompts = []string{AssistantSystemPrompt}
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}
	return o
}

// Generator produces a completion for a single user prompt. Failures are
// returned as *GenerationError.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
}

// MetricsReporter is implemented by backends that accumulate token usage.
type MetricsReporter interface {
	GetMetrics() ModelMetrics
}

// Client is a backend that can do both.
type Client interface {
	Generator
	Embedder
}

// ModelMetrics accumulates usage reported by a backend.
type ModelMetrics struct {
	Requests     int   `json:"requests"`
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	DurationMs   int64 `json:"duration_ms"`
}

// Add folds other into m.
func (m *ModelMetrics) Add(other ModelMetrics) {
	m.Requests += other.Requests
	m.InputTokens += other.InputTokens
	m.OutputTokens += other.OutputTokens
	m.TotalTokens += other.TotalTokens
	m.DurationMs += other.DurationMs
}
