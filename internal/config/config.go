package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/sageflow/sageflow/internal/models"
)

// Config is the full engine configuration. It is loaded once at startup and
// treated as immutable afterwards; per-run filtering returns a copy.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Models     ModelsConfig     `mapstructure:"models"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`

	// SimilarityThreshold is shared by the ambiguous-confidence acceptance
	// test in the LLM judge and both similarity fallback stages.
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxRetries          int     `mapstructure:"max_retries"`
}

// LoggingConfig controls the zap logger construction.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus admin endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ModelsConfig describes the candidate pool and per-model defaults.
type ModelsConfig struct {
	Available      []string                          `mapstructure:"available"`
	Default        string                            `mapstructure:"default"`
	CategoryMap    map[string]string                 `mapstructure:"category_map"`
	Providers      map[string]string                 `mapstructure:"providers"`
	Parameters     map[string]map[string]interface{} `mapstructure:"parameters"`
	EvaluatorModel string                            `mapstructure:"evaluator_model"`
}

// GatewayConfig holds per-provider endpoints and shared call discipline.
type GatewayConfig struct {
	Ollama struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"ollama"`
	OpenAI struct {
		APIKey  string        `mapstructure:"api_key"`
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"openai"`
	HTTP struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"http"`
	RateLimit struct {
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`
	Breaker struct {
		FailureThreshold uint32        `mapstructure:"failure_threshold"`
		ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
		HalfOpenRequests uint32        `mapstructure:"half_open_requests"`
	} `mapstructure:"breaker"`
}

// EmbeddingsConfig configures the embedding service used by the semantic
// similarity judge stage.
type EmbeddingsConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	MaxLRU      int           `mapstructure:"max_lru"`
	EnableRedis bool          `mapstructure:"enable_redis"`
	RedisAddr   string        `mapstructure:"redis_addr"`
}

// Load reads configuration from the given path (or SAGEFLOW_CONFIG, or
// ./config/sageflow.yaml) with SAGEFLOW_* env overrides, merges the model
// catalog, and applies defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SAGEFLOW_CONFIG")
	}

	v := viper.New()
	v.SetEnvPrefix("SAGEFLOW")
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sageflow")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when no explicit path was given; defaults
		// plus env overrides still form a usable config.
		if path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyCatalog(&cfg, LoadCatalog())
	applyFallbacks(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("similarity_threshold", 0.9)
	v.SetDefault("max_retries", 3)
	v.SetDefault("gateway.ollama.base_url", "http://localhost:11434")
	v.SetDefault("gateway.ollama.timeout", "120s")
	v.SetDefault("gateway.openai.timeout", "60s")
	v.SetDefault("gateway.http.timeout", "30s")
	v.SetDefault("gateway.breaker.failure_threshold", 5)
	v.SetDefault("gateway.breaker.reset_timeout", "60s")
	v.SetDefault("gateway.breaker.half_open_requests", 1)
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.timeout", "5s")
	v.SetDefault("embeddings.cache_ttl", "1h")
	v.SetDefault("embeddings.max_lru", 2048)
}

// applyCatalog merges catalog-provided model metadata into the config without
// overriding anything set explicitly.
func applyCatalog(cfg *Config, cat *Catalog) {
	if cat == nil {
		return
	}
	if cfg.Models.Providers == nil {
		cfg.Models.Providers = map[string]string{}
	}
	if cfg.Models.Parameters == nil {
		cfg.Models.Parameters = map[string]map[string]interface{}{}
	}
	for provider, entries := range cat.Providers {
		for name, entry := range entries {
			if _, ok := cfg.Models.Providers[name]; !ok {
				cfg.Models.Providers[name] = provider
			}
			if _, ok := cfg.Models.Parameters[name]; !ok && len(entry.Parameters) > 0 {
				cfg.Models.Parameters[name] = entry.Parameters
			}
		}
	}
}

func applyFallbacks(cfg *Config) {
	if cfg.Models.Default == "" && len(cfg.Models.Available) > 0 {
		cfg.Models.Default = cfg.Models.Available[0]
	}
	if cfg.Models.EvaluatorModel == "" {
		cfg.Models.EvaluatorModel = cfg.Models.Default
	}
}

// Validate reports configuration errors that must abort the run before any
// task begins. An empty candidate pool is the only fatal condition.
func (c *Config) Validate() error {
	if len(c.Models.Available) == 0 {
		return fmt.Errorf("models.available is empty: at least one candidate model is required")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold %v out of [0,1]", c.SimilarityThreshold)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}

// ProviderFor resolves the provider tag for a model, preferring the explicit
// mapping and falling back to name-based detection.
func (c *Config) ProviderFor(model string) string {
	if p, ok := c.Models.Providers[model]; ok && p != "" {
		return p
	}
	return models.DetectProvider(model)
}

// ParametersFor returns a copy of the default parameters for a model, never
// the shared map itself.
func (c *Config) ParametersFor(model string) map[string]interface{} {
	src := c.Models.Parameters[model]
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// WithModels returns a copy of the config restricted to the given candidate
// subset. The receiver is not modified.
func (c *Config) WithModels(subset []string) *Config {
	out := *c
	out.Models.Available = append([]string(nil), subset...)
	if out.Models.Default != "" {
		found := false
		for _, m := range subset {
			if m == out.Models.Default {
				found = true
				break
			}
		}
		if !found && len(subset) > 0 {
			out.Models.Default = subset[0]
		}
	}
	return &out
}
