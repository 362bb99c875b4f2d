package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fmulab/graphqa/pkg/logger"
)

const defaultGenerationTimeout = 30 * time.Second

// GatewayParams holds the request defaults applied to every prompt.
type GatewayParams struct {
	Provider    string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Gateway sends assembled prompts to a Generator under a deadline and
// normalizes every failure into a *GenerationError.
type Gateway struct {
	generator Generator
	params    GatewayParams
}

func NewGateway(generator Generator, params GatewayParams) *Gateway {
	if params.Timeout <= 0 {
		params.Timeout = defaultGenerationTimeout
	}
	if params.Provider == "" {
		params.Provider = "llm"
	}
	return &Gateway{generator: generator, params: params}
}

// Generate returns the completion for prompt or a *GenerationError.
func (g *Gateway) Generate(ctx context.Context, prompt string) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, g.params.Timeout)
	defer cancel()

	start := time.Now()
	text, err := g.generator.Generate(gctx, prompt,
		WithMaxTokens(g.params.MaxTokens),
		WithTemperature(g.params.Temperature),
	)
	if err == nil {
		keyvals := []any{"provider", g.params.Provider, "duration", time.Since(start)}
		if mr, ok := g.generator.(MetricsReporter); ok {
			keyvals = append(keyvals, "usage", mr.GetMetrics())
		}
		logger.Debug("Generation finished", keyvals...)
		return text, nil
	}

	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		gerr = &GenerationError{Provider: g.params.Provider, Err: err}
	}
	if ctx.Err() == nil && errors.Is(gctx.Err(), context.DeadlineExceeded) && !gerr.Timeout() {
		gerr = &GenerationError{
			Provider:   gerr.Provider,
			StatusCode: gerr.StatusCode,
			Err:        fmt.Errorf("%w after %s: %w", ErrGenerationTimeout, g.params.Timeout, gerr.Err),
		}
	}

	logger.Error("Generation failed", "provider", gerr.Provider, "status", gerr.StatusCode, "err", gerr.Err)
	return "", gerr
}
