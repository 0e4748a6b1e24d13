// Package config loads and validates guide crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers accepted by db.driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Embedding providers accepted by embedding.provider.
const (
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Answer    AnswerConfig    `mapstructure:"answer"`
	DB        DBConfig        `mapstructure:"db"`
	Ask       AskConfig       `mapstructure:"ask"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server and job worker behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	Workers               int `mapstructure:"workers"`
	ProgressIntervalMs    int `mapstructure:"progress_interval_ms"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs crawl traversal and politeness.
type CrawlerConfig struct {
	UserAgent       string  `mapstructure:"user_agent"`
	MaxPages        int     `mapstructure:"max_pages"`
	RebuildMaxPages int     `mapstructure:"rebuild_max_pages"`
	SameDomainOnly  bool    `mapstructure:"same_domain_only"`
	Concurrency     int     `mapstructure:"concurrency"`
	RatePerSecond   float64 `mapstructure:"rate_per_second"`
	RateBurst       int     `mapstructure:"rate_burst"`
	QueueDepth      int     `mapstructure:"queue_depth"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Token counters accepted by chunker.tokenizer.
const (
	TokenizerBPE   = "bpe"
	TokenizerWords = "words"
)

// ChunkerConfig bounds chunk size.
type ChunkerConfig struct {
	MaxTokens int    `mapstructure:"max_tokens"`
	Tokenizer string `mapstructure:"tokenizer"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	BatchSize  int    `mapstructure:"batch_size"`
	Dimensions int    `mapstructure:"dimensions"`
}

// AnswerConfig toggles chat-generated answers for ask.
type AnswerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
}

// DBConfig controls access to the document store.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// AskConfig bounds retrieval fan-out.
type AskConfig struct {
	TopKDefault int `mapstructure:"top_k_default"`
	TopKMax     int `mapstructure:"top_k_max"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GUIDECRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.workers", 1)
	v.SetDefault("server.progress_interval_ms", 1000)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("crawler.user_agent", "CorpGuideCrawler/0.1")
	v.SetDefault("crawler.max_pages", 200)
	v.SetDefault("crawler.rebuild_max_pages", 2000)
	v.SetDefault("crawler.same_domain_only", true)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.rate_per_second", 0)
	v.SetDefault("crawler.rate_burst", 1)
	v.SetDefault("crawler.queue_depth", 16)
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("chunker.max_tokens", 1000)
	v.SetDefault("chunker.tokenizer", TokenizerBPE)
	v.SetDefault("embedding.provider", ProviderOpenAI)
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 96)
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("answer.enabled", false)
	v.SetDefault("answer.model", "gpt-4o-mini")
	v.SetDefault("db.driver", DriverMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("ask.top_k_default", 5)
	v.SetDefault("ask.top_k_max", 20)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server.workers must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.RebuildMaxPages <= 0 {
		return fmt.Errorf("crawler.rebuild_max_pages must be > 0")
	}
	if c.Crawler.RatePerSecond < 0 {
		return fmt.Errorf("crawler.rate_per_second must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Chunker.MaxTokens <= 0 {
		return fmt.Errorf("chunker.max_tokens must be > 0")
	}
	if c.Chunker.Tokenizer != TokenizerBPE && c.Chunker.Tokenizer != TokenizerWords {
		return fmt.Errorf("chunker.tokenizer must be %q or %q", TokenizerBPE, TokenizerWords)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderHash:
	default:
		return fmt.Errorf("embedding.provider must be %q or %q, got %q", ProviderOpenAI, ProviderHash, c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be > 0")
	}
	switch c.DB.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.driver is %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverMemory, DriverPostgres, c.DB.Driver)
	}
	if c.Ask.TopKMax <= 0 || c.Ask.TopKDefault <= 0 || c.Ask.TopKDefault > c.Ask.TopKMax {
		return fmt.Errorf("ask.top_k_default must be within 1..ask.top_k_max")
	}
	return nil
}

// FetchTimeout converts http.timeout_seconds into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestTimeout converts server.request_timeout_seconds into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ProgressInterval converts server.progress_interval_ms into a duration.
func (c Config) ProgressInterval() time.Duration {
	return time.Duration(c.Server.ProgressIntervalMs) * time.Millisecond
}
