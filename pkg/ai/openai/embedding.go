package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fmulab/graphqa/pkg/ai"

	"github.com/openai/openai-go/v3"
)

// GenerateEmbedding creates a vector embedding for input with the
// configured embedding model.
func (c *GraphOpenAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if c.EmbeddingClient == nil {
		return nil, fmt.Errorf("%s embeddings: %w", c.provider, errNotConfigured)
	}
	if c.embeddingModel == "" {
		return nil, fmt.Errorf("%s embeddings: no embedding model configured", c.provider)
	}

	start := time.Now()
	res, err := c.EmbeddingClient.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{string(input)},
		},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("%s embeddings: %w", c.provider, err)
	}
	if len(res.Data) != 1 {
		return nil, errors.New("unexpected embedding result size")
	}

	c.modifyMetrics(ai.ModelMetrics{
		Requests:    1,
		InputTokens: int(res.Usage.PromptTokens),
		TotalTokens: int(res.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	vec := res.Data[0].Embedding
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out, nil
}
