// Package config loads the engine's configuration from environment variables
// (optionally seeded from a local .env file) and an optional YAML file, using
// viper so every value has a single documented default and a single env key.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/tuannvm/multiagent-rag/internal/logging"
)

// Config holds every tunable named in the engine's configuration surface.
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Embed  EmbedConfig
	LLM    LLMConfig
	Web    WebSearchConfig
	Log    LogSearchConfig
	Auth   AuthConfig
	Fusion FusionConfig
}

// ServerConfig controls the HTTP transport.
type ServerConfig struct {
	Host string
	Port int
}

// StoreConfig controls the ticket store client.
type StoreConfig struct {
	Backend             string // "primary", "fallback", "auto"
	DSN                 string
	SimilarityThreshold float64
	VectorWeight        float64
	KeywordWeight       float64
}

// EmbedConfig controls the embedding client.
type EmbedConfig struct {
	Dim     int
	Timeout time.Duration
}

// LLMConfig controls LLM provider selection for the two logical tiers.
type LLMConfig struct {
	Provider       string
	FastModel      string
	StrongModel    string
	APIKey         string
	ServiceURL     string
	MaxTokens      int
	Timeout        time.Duration
	Temperature    float64
	ClassifierLLM  bool // whether the supervisor may consult an LLM classifier
}

// WebSearchConfig controls C5.
type WebSearchConfig struct {
	Provider    string
	APIKey      string
	MaxSearches int
	Fanout      int
	Timeout     time.Duration
}

// LogSearchConfig controls C6.
type LogSearchConfig struct {
	Backend            string // "gcp", "splunk"
	MaxSearches         int
	Fanout              int
	Timeout             time.Duration
	ExceptionCatalogue  []string
}

// AuthConfig controls the transport's pre-request hook.
type AuthConfig struct {
	Type   string // "none" or "apikey"
	APIKey string
}

// FusionConfig controls C1/C9 defaults.
type FusionConfig struct {
	DefaultTopK        int
	Fanout             int
	RerankerEnabled    bool
	StrategyTimeouts   map[string]time.Duration
}

var defaultExceptionCatalogue = []string{
	"certificate-expiry",
	"http-5xx",
	"disk-space-exceeded",
	"dead-letter-queue-exceeded",
}

// Load reads configuration from (in increasing priority) defaults, an
// optional YAML config file named by RAG_CONFIG_FILE, and the process
// environment (prefixed RAG_). A local .env file is loaded into the process
// environment first, without overriding variables that are already set, so
// its values rank with the environment, above the YAML file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			if err := godotenv.Load("../../.env"); err != nil {
				logging.Infof("no .env file found, using environment variables or defaults")
			}
		}
	}

	v := viper.New()
	v.SetEnvPrefix("RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if cfgFile := v.GetString("config_file"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server_host"),
			Port: v.GetInt("server_port"),
		},
		Store: StoreConfig{
			Backend:             v.GetString("collection_backend"),
			DSN:                 v.GetString("store_dsn"),
			SimilarityThreshold: v.GetFloat64("similarity_threshold"),
			VectorWeight:        v.GetFloat64("vector_weight"),
			KeywordWeight:       v.GetFloat64("keyword_weight"),
		},
		Embed: EmbedConfig{
			Dim:     v.GetInt("embedding_dim"),
			Timeout: v.GetDuration("embedding_timeout"),
		},
		LLM: LLMConfig{
			Provider:      v.GetString("llm_provider"),
			FastModel:     v.GetString("llm_fast_model"),
			StrongModel:   v.GetString("llm_strong_model"),
			APIKey:        v.GetString("llm_api_key"),
			ServiceURL:    v.GetString("llm_service_url"),
			MaxTokens:     v.GetInt("llm_max_tokens"),
			Timeout:       v.GetDuration("llm_timeout"),
			Temperature:   v.GetFloat64("llm_temperature"),
			ClassifierLLM: v.GetBool("supervisor_llm_classifier"),
		},
		Web: WebSearchConfig{
			Provider:    v.GetString("web_provider"),
			APIKey:      v.GetString("web_api_key"),
			MaxSearches: v.GetInt("web_max_searches"),
			Fanout:      v.GetInt("fanout"),
			Timeout:     v.GetDuration("web_timeout"),
		},
		Log: LogSearchConfig{
			Backend:            v.GetString("log_backend"),
			MaxSearches:        v.GetInt("log_max_searches"),
			Fanout:             v.GetInt("fanout"),
			Timeout:            v.GetDuration("log_timeout"),
			ExceptionCatalogue: v.GetStringSlice("log_exception_catalogue"),
		},
		Auth: AuthConfig{
			Type:   v.GetString("auth_type"),
			APIKey: v.GetString("api_key"),
		},
		Fusion: FusionConfig{
			DefaultTopK:     v.GetInt("default_topk"),
			Fanout:          v.GetInt("fanout"),
			RerankerEnabled: v.GetBool("reranker_enabled"),
			StrategyTimeouts: map[string]time.Duration{
				"BM25":        v.GetDuration("strategy_timeout_bm25"),
				"Compression": v.GetDuration("strategy_timeout_compression"),
				"Ensemble":    v.GetDuration("strategy_timeout_ensemble"),
				"WebSearch":   v.GetDuration("strategy_timeout_websearch"),
				"LogSearch":   v.GetDuration("strategy_timeout_logsearch"),
			},
		},
	}

	if len(cfg.Log.ExceptionCatalogue) == 0 {
		cfg.Log.ExceptionCatalogue = defaultExceptionCatalogue
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8080)

	v.SetDefault("collection_backend", "auto")
	v.SetDefault("store_dsn", "")
	v.SetDefault("similarity_threshold", 0.1)
	v.SetDefault("vector_weight", 0.7)
	v.SetDefault("keyword_weight", 0.3)

	v.SetDefault("embedding_dim", 1536)
	v.SetDefault("embedding_timeout", 10*time.Second)

	v.SetDefault("llm_provider", "openai")
	v.SetDefault("llm_fast_model", "gpt-4o-mini")
	v.SetDefault("llm_strong_model", "gpt-4o")
	v.SetDefault("llm_api_key", "")
	v.SetDefault("llm_service_url", "")
	v.SetDefault("llm_max_tokens", 4000)
	v.SetDefault("llm_timeout", 30*time.Second)
	v.SetDefault("llm_temperature", 0.0)
	v.SetDefault("supervisor_llm_classifier", false)

	v.SetDefault("web_provider", "tavily")
	v.SetDefault("web_api_key", "")
	v.SetDefault("web_max_searches", 5)
	v.SetDefault("web_timeout", 20*time.Second)

	v.SetDefault("log_backend", "gcp")
	v.SetDefault("log_max_searches", 5)
	v.SetDefault("log_timeout", 20*time.Second)
	v.SetDefault("log_exception_catalogue", defaultExceptionCatalogue)

	v.SetDefault("auth_type", "none")
	v.SetDefault("api_key", "")

	v.SetDefault("default_topk", 10)
	v.SetDefault("fanout", 3)
	v.SetDefault("reranker_enabled", true)

	v.SetDefault("strategy_timeout_bm25", 5*time.Second)
	v.SetDefault("strategy_timeout_compression", 10*time.Second)
	v.SetDefault("strategy_timeout_ensemble", 30*time.Second)
	v.SetDefault("strategy_timeout_websearch", 20*time.Second)
	v.SetDefault("strategy_timeout_logsearch", 20*time.Second)
}
