package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fmulab/graphqa/pkg/ai"

	"github.com/ollama/ollama/api"
)

// GenerateEmbedding creates a vector embedding for input with the
// configured embedding model.
func (c *GraphOllamaClient) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, error) {
	if strings.TrimSpace(string(input)) == "" {
		return nil, errors.New("ollama embeddings: empty input")
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(ctx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: string(input),
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	if len(res.Embeddings) != 1 {
		return nil, fmt.Errorf("ollama embeddings: unexpected result size %d", len(res.Embeddings))
	}

	c.modifyMetrics(ai.ModelMetrics{
		Requests:    1,
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	return res.Embeddings[0], nil
}
