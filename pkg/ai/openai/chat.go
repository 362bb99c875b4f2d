package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fmulab/graphqa/pkg/ai"
	"github.com/fmulab/graphqa/pkg/logger"

	"github.com/openai/openai-go/v3"
)

var errNotConfigured = errors.New("no API key configured")

// Generate sends a single-turn prompt to the chat model and returns the
// completion text. Non-success responses become *ai.GenerationError with
// the HTTP status code.
func (c *GraphOpenAIClient) Generate(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	if c.ChatClient == nil {
		return "", &ai.GenerationError{Provider: c.provider, Err: errNotConfigured}
	}

	options := ai.NewGenerateOptions(ai.GenerateOptions{Model: c.chatModel}, opts...)

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}
	if options.MaxTokens > 0 {
		body.MaxTokens = openai.Int(int64(options.MaxTokens))
	}

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", c.generationError(err)
	}

	c.modifyMetrics(ai.ModelMetrics{
		Requests:     1,
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return "", &ai.GenerationError{Provider: c.provider, Err: errors.New("no choices in response from model")}
	}
	return response.Choices[0].Message.Content, nil
}

func (c *GraphOpenAIClient) generationError(err error) *ai.GenerationError {
	gerr := &ai.GenerationError{Provider: c.provider, Err: err}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		gerr.StatusCode = apiErr.StatusCode
		logger.Error("Error from chat completion API", "provider", c.provider, "status", apiErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		gerr.Err = fmt.Errorf("%w: %w", ai.ErrGenerationTimeout, err)
	}
	return gerr
}
