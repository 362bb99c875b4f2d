package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fmulab/graphqa/internal/config"
	"github.com/fmulab/graphqa/internal/util"
	"github.com/fmulab/graphqa/pkg/ai"
	oai "github.com/fmulab/graphqa/pkg/ai/ollama"
	gai "github.com/fmulab/graphqa/pkg/ai/openai"
	"github.com/fmulab/graphqa/pkg/chat"
	"github.com/fmulab/graphqa/pkg/graph"
	"github.com/fmulab/graphqa/pkg/logger"
	"github.com/fmulab/graphqa/pkg/qa"
	"github.com/fmulab/graphqa/pkg/query"
	pgxstore "github.com/fmulab/graphqa/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

const janitorInterval = 5 * time.Minute

// App holds the long lived components of a running process.
type App struct {
	Config  config.Config
	Service *qa.Service
	Graph   *graph.Client

	closers []func() error
}

// Close releases everything Build opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Build wires the QA service from cfg. The graph driver connects lazily on
// the first query. Background work stops when ctx is done.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}

	graphClient := graph.NewClient(graph.ClientParams{
		URI:             cfg.Neo4j.URI,
		Username:        cfg.Neo4j.Username,
		Password:        cfg.Neo4j.Password,
		Database:        cfg.Neo4j.Database,
		UserAgent:       cfg.Neo4j.UserAgent,
		EnableUserAgent: cfg.Neo4j.EnableUserAgent,
		QueryTimeout:    cfg.Neo4j.QueryTimeout,
		Retry: util.RetryPolicy{
			MaxTries:   cfg.Neo4j.ConnectRetries,
			Backoff:    500 * time.Millisecond,
			MaxBackoff: 5 * time.Second,
		},
	})
	app.Graph = graphClient
	app.closers = append(app.closers, func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return graphClient.Close(closeCtx)
	})

	aiClient, err := NewAIClient(cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	tracker, err := newTracker(ctx, cfg.Session)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.closers = append(app.closers, tracker.Close)

	opts := []qa.ServiceOption{
		qa.WithSelector(query.NewSelector(cfg.Retrieval.TopK)),
		qa.WithDefaultMode(cfg.Retrieval.DefaultMode),
	}
	if cfg.Database.URL != "" {
		pool, err := OpenTranscripts(ctx, cfg.Database)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.closers = append(app.closers, func() error {
			pool.Close()
			return nil
		})
		opts = append(opts, qa.WithTranscripts(pgxstore.NewTranscriptDBStorageWithConnection(pool)))
	}

	store := graph.NewStore(graphClient,
		graph.WithChunkLimit(cfg.Neo4j.ChunkLimit),
		graph.WithCommunityDepth(cfg.Neo4j.CommunityDepth),
	)
	retriever := query.NewRetriever(graphClient, aiClient,
		query.WithExpansionParams(cfg.Retrieval.Expansion),
		query.WithBudget(query.Budget{
			MaxTokens: cfg.Retrieval.TokenBudget,
			Counter:   ai.NewTokenCounter(cfg.Retrieval.TokenEncoding),
		}),
	)
	gateway := ai.NewGateway(aiClient, ai.GatewayParams{
		Provider:    cfg.LLM.Provider,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})

	app.Service = qa.NewService(store, retriever, gateway, tracker, opts...)

	logger.Info("QA service ready",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"default_mode", cfg.Retrieval.DefaultMode,
		"sessions", cfg.Session.Backend,
		"transcripts", cfg.Database.URL != "",
	)
	return app, nil
}

// NewAIClient builds the generation and embedding backend for the
// configured provider.
func NewAIClient(cfg config.Config) (ai.Client, error) {
	l := cfg.LLM
	switch l.Provider {
	case config.ProviderOllama:
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			ChatModel:      l.Model,
			EmbeddingModel: l.Embedding,
			BaseURL:        l.OllamaURL,
			APIKey:         l.OllamaAPIKey,
			TokenCounter:   ai.NewTokenCounter(cfg.Retrieval.TokenEncoding),
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil
	case config.ProviderAzure:
		return gai.NewGraphAzureClient(gai.NewGraphAzureClientParams{
			Endpoint:            l.AzureEndpoint,
			APIKey:              l.AzureAPIKey,
			APIVersion:          l.AzureAPIVersion,
			Deployment:          l.AzureDeployment,
			EmbeddingDeployment: l.Embedding,
		}), nil
	case config.ProviderOpenAI:
		if l.OpenAIAPIKey == "" {
			logger.Warn("OPENAI_API_KEY is not set, generation will fail")
		}
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			ChatModel:      l.Model,
			EmbeddingModel: l.Embedding,
			BaseURL:        l.OpenAIBaseURL,
			APIKey:         l.OpenAIAPIKey,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", l.Provider)
	}
}

func newTracker(ctx context.Context, cfg config.SessionConfig) (chat.Tracker, error) {
	params := chat.Params{MaxTurns: cfg.MaxTurns, TTL: cfg.TTL}
	switch cfg.Backend {
	case config.SessionBackendRedis:
		t, err := chat.NewRedisTracker(ctx, cfg.RedisURL, params)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		t := chat.NewMemoryTracker(params)
		t.StartJanitor(ctx, janitorInterval)
		return t, nil
	}
}

// OpenTranscripts migrates the transcript schema and opens a pool.
func OpenTranscripts(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if err := pgxstore.Migrate(cfg.URL, cfg.MigrationsPath); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
