package ollama

import (
	"context"
	"errors"
	"fmt"

	"github.com/fmulab/graphqa/pkg/ai"

	"github.com/ollama/ollama/api"
)

// defaultContext is Ollama's num_ctx default; larger prompts raise it.
const defaultContext = 4096

// Generate sends a single-turn prompt and returns the assistant text.
func (c *GraphOllamaClient) Generate(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.NewGenerateOptions(ai.GenerateOptions{Model: c.chatModel}, opts...)

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.MaxTokens > 0 {
		req.Options["num_predict"] = options.MaxTokens
	}

	needed := c.tokens.CountTokens(prompt) + options.MaxTokens + 200
	if needed > defaultContext {
		req.Options["num_ctx"] = needed
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", c.generationError(err)
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", c.generationError(err)
	}

	c.modifyMetrics(ai.ModelMetrics{
		Requests:     1,
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	return final.Message.Content, nil
}

func (c *GraphOllamaClient) generationError(err error) *ai.GenerationError {
	gerr := &ai.GenerationError{Provider: Provider, Err: err}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		gerr.StatusCode = statusErr.StatusCode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		gerr.Err = fmt.Errorf("%w: %w", ai.ErrGenerationTimeout, err)
	}
	return gerr
}
