package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fmulab/graphqa/internal/util"
	"github.com/fmulab/graphqa/pkg/query"
)

type Neo4jConfig struct {
	URI             string
	Username        string
	Password        string
	Database        string
	UserAgent       string
	EnableUserAgent bool
	QueryTimeout    time.Duration
	ConnectRetries  int
	ChunkLimit      int
	CommunityDepth  int
}

type LLMConfig struct {
	Provider    string
	Model       string
	Embedding   string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string

	AzureAPIKey     string
	AzureEndpoint   string
	AzureDeployment string
	AzureAPIVersion string

	OllamaURL    string
	OllamaAPIKey string
}

type RetrievalConfig struct {
	DefaultMode   query.Mode
	TopK          int
	Expansion     query.ExpansionParams
	TokenBudget   int
	TokenEncoding string
}

type SessionConfig struct {
	Backend  string
	MaxTurns int
	TTL      time.Duration
	RedisURL string
}

type DatabaseConfig struct {
	URL            string
	MigrationsPath string
}

type ServerConfig struct {
	Port string
}

type LogConfig struct {
	Debug  bool
	Format string
}

// Config is the full runtime configuration read from the environment.
type Config struct {
	Neo4j     Neo4jConfig
	LLM       LLMConfig
	Retrieval RetrievalConfig
	Session   SessionConfig
	Database  DatabaseConfig
	Server    ServerConfig
	Log       LogConfig
}

const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderOllama = "ollama"

	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	model := util.GetEnvString("LLM_MODEL", util.GetEnvString("OPENAI_MODEL", "gpt-3.5-turbo"))

	cfg := Config{
		Neo4j: Neo4jConfig{
			URI:             util.GetEnvString("NEO4J_URI", "bolt://localhost:7687"),
			Username:        util.GetEnvString("NEO4J_USERNAME", "neo4j"),
			Password:        util.GetEnv("NEO4J_PASSWORD"),
			Database:        util.GetEnvString("NEO4J_DATABASE", "neo4j"),
			UserAgent:       util.GetEnvString("NEO4J_USER_AGENT", "graphqa"),
			EnableUserAgent: util.GetEnvBool("ENABLE_USER_AGENT", false),
			QueryTimeout:    util.GetEnvDuration("NEO4J_QUERY_TIMEOUT", 30*time.Second),
			ConnectRetries:  util.GetEnvInt("NEO4J_CONNECT_RETRIES", 3),
			ChunkLimit:      util.GetEnvInt("GRAPH_CHUNK_LIMIT", 50),
			CommunityDepth:  util.GetEnvInt("COMMUNITY_DEPTH_LIMIT", 10),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(util.GetEnvString("LLM_PROVIDER", ProviderOpenAI)),
			Model:       model,
			Embedding:   util.GetEnvString("EMBEDDING_MODEL", "text-embedding-3-small"),
			MaxTokens:   util.GetEnvInt("MAX_TOKENS", 1000),
			Temperature: util.GetEnvNumeric("TEMPERATURE", 0.0),
			Timeout:     util.GetEnvDuration("LLM_TIMEOUT", 30*time.Second),

			OpenAIAPIKey:  util.GetEnv("OPENAI_API_KEY"),
			OpenAIBaseURL: util.GetEnv("OPENAI_BASE_URL"),

			AzureAPIKey:     util.GetEnv("AZURE_OPENAI_API_KEY"),
			AzureEndpoint:   util.GetEnv("AZURE_OPENAI_ENDPOINT"),
			AzureDeployment: util.GetEnvString("AZURE_OPENAI_MODEL", model),
			AzureAPIVersion: util.GetEnvString("AZURE_OPENAI_API_VERSION", "2023-07-01-preview"),

			OllamaURL:    util.GetEnv("OLLAMA_URL"),
			OllamaAPIKey: util.GetEnv("OLLAMA_API_KEY"),
		},
		Retrieval: RetrievalConfig{
			DefaultMode: query.Mode(util.GetEnvString("CHAT_DEFAULT_MODE", string(query.DefaultMode))),
			TopK:        util.GetEnvInt("VECTOR_SEARCH_TOP_K", query.DefaultTopK),
			Expansion: query.ExpansionParams{
				EntityLimit:           util.GetEnvInt("ENTITY_LIMIT", 40),
				EmbeddingMatchMin:     util.GetEnvNumeric("EMBEDDING_MATCH_MIN", 0.3),
				EmbeddingMatchMax:     util.GetEnvNumeric("EMBEDDING_MATCH_MAX", 0.9),
				EntityLimitMinMaxCase: util.GetEnvInt("ENTITY_LIMIT_MINMAX_CASE", 20),
				EntityLimitMaxCase:    util.GetEnvInt("ENTITY_LIMIT_MAX_CASE", 40),
			},
			TokenBudget:   util.GetEnvInt("CONTEXT_TOKEN_BUDGET", 6000),
			TokenEncoding: util.GetEnvString("TOKEN_ENCODING", "cl100k_base"),
		},
		Session: SessionConfig{
			Backend:  strings.ToLower(util.GetEnvString("SESSION_BACKEND", SessionBackendMemory)),
			MaxTurns: util.GetEnvInt("SESSION_MAX_TURNS", 50),
			TTL:      util.GetEnvDuration("SESSION_TTL", 24*time.Hour),
			RedisURL: util.GetEnvString("REDIS_URL", "redis://localhost:6379/0"),
		},
		Database: DatabaseConfig{
			URL:            util.GetEnv("DATABASE_URL"),
			MigrationsPath: util.GetEnv("MIGRATIONS_PATH"),
		},
		Server: ServerConfig{
			Port: util.GetEnvString("PORT", "8080"),
		},
		Log: LogConfig{
			Debug:  util.GetEnvBool("DEBUG", false),
			Format: util.GetEnvString("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot start.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAzure, ProviderOllama:
	default:
		return fmt.Errorf("LLM_PROVIDER: unsupported provider %q", c.LLM.Provider)
	}
	if c.LLM.Provider == ProviderAzure && c.LLM.AzureEndpoint == "" {
		return fmt.Errorf("AZURE_OPENAI_ENDPOINT is required for the azure provider")
	}

	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("SESSION_BACKEND: unsupported backend %q", c.Session.Backend)
	}

	if _, err := query.Resolve(string(c.Retrieval.DefaultMode)); err != nil {
		return fmt.Errorf("CHAT_DEFAULT_MODE: %w", err)
	}

	e := c.Retrieval.Expansion
	if e.EmbeddingMatchMin > e.EmbeddingMatchMax {
		return fmt.Errorf("EMBEDDING_MATCH_MIN (%v) exceeds EMBEDDING_MATCH_MAX (%v)", e.EmbeddingMatchMin, e.EmbeddingMatchMax)
	}
	return nil
}
