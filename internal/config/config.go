// Package config loads service settings from an optional YAML file and
// LEXPLAIN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "LEXPLAIN"

// Translation providers.
const (
	ProviderHTTP = "http"
	ProviderAI   = "ai"
	ProviderNone = "none"
)

// MaxExplainConcurrency caps concurrent explanation requests.
const MaxExplainConcurrency = 10

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	AI          AIConfig          `mapstructure:"ai"`
	Translation TranslationConfig `mapstructure:"translation"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Keywords    KeywordsConfig    `mapstructure:"keywords"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadBytes int      `mapstructure:"max_upload_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AIConfig covers the generative service and the resilience around it.
type AIConfig struct {
	Disabled          bool          `mapstructure:"disabled"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	FailureThreshold  uint32        `mapstructure:"failure_threshold"`
	OpenTimeout       time.Duration `mapstructure:"open_timeout"`
}

// TranslationConfig covers the translation service and the translation cache.
type TranslationConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	ChunkSize   int           `mapstructure:"chunk_size"`
	Concurrency int           `mapstructure:"concurrency"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	DegradedTTL time.Duration `mapstructure:"degraded_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type DatabaseConfig struct {
	Path   string `mapstructure:"path"`
	Silent bool   `mapstructure:"silent"`
}

type PipelineConfig struct {
	Deadline           time.Duration `mapstructure:"deadline"`
	ExplainConcurrency int           `mapstructure:"explain_concurrency"`
}

// KeywordsConfig points at optional JSON overrides of the keyword tables.
type KeywordsConfig struct {
	TypesPath string `mapstructure:"types_path"`
	RiskPath  string `mapstructure:"risk_path"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	// keep the conventional variable names working alongside the prefixed ones
	_ = v.BindEnv("ai.api_key", "LEXPLAIN_AI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("ai.model", "LEXPLAIN_AI_MODEL", "OPENAI_MODEL")
	_ = v.BindEnv("ai.base_url", "LEXPLAIN_AI_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv("server.port", "LEXPLAIN_SERVER_PORT", "PORT")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "2000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("server.max_upload_bytes", 10<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("ai.disabled", false)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.temperature", 0.2)
	v.SetDefault("ai.max_tokens", 800)
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.base_delay", time.Second)
	v.SetDefault("ai.max_delay", 5*time.Second)
	v.SetDefault("ai.requests_per_second", 5.0)
	v.SetDefault("ai.burst", 5)
	v.SetDefault("ai.failure_threshold", 5)
	v.SetDefault("ai.open_timeout", 30*time.Second)

	v.SetDefault("translation.provider", ProviderAI)
	v.SetDefault("translation.base_url", "")
	v.SetDefault("translation.api_key", "")
	v.SetDefault("translation.timeout", 20*time.Second)
	v.SetDefault("translation.chunk_size", 4000)
	v.SetDefault("translation.concurrency", 4)
	v.SetDefault("translation.cache_ttl", 24*time.Hour)
	v.SetDefault("translation.degraded_ttl", 5*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "lexplain:")

	v.SetDefault("database.path", "data/lexplain.db")
	v.SetDefault("database.silent", true)

	v.SetDefault("pipeline.deadline", 60*time.Second)
	v.SetDefault("pipeline.explain_concurrency", 5)

	v.SetDefault("keywords.types_path", "")
	v.SetDefault("keywords.risk_path", "")
}

// Load reads configPath when given, applies LEXPLAIN_* overrides and defaults, and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	if strings.TrimSpace(configPath) != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", configPath, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Translation.Provider = strings.ToLower(strings.TrimSpace(c.Translation.Provider))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.AI.APIKey = strings.TrimSpace(c.AI.APIKey)
	var origins []string
	for _, origin := range c.Server.AllowedOrigins {
		for _, part := range strings.Split(origin, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	c.Server.AllowedOrigins = origins
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Port) == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.AI.Timeout <= 0 {
		errs = append(errs, errors.New("ai.timeout must be positive"))
	}
	if c.AI.MaxRetries < 0 {
		errs = append(errs, errors.New("ai.max_retries must not be negative"))
	}
	if c.AI.BaseDelay <= 0 || c.AI.MaxDelay < c.AI.BaseDelay {
		errs = append(errs, errors.New("ai.base_delay must be positive and not above ai.max_delay"))
	}
	switch c.Translation.Provider {
	case ProviderHTTP:
		if strings.TrimSpace(c.Translation.BaseURL) == "" {
			errs = append(errs, errors.New("translation.base_url is required for the http provider"))
		}
	case ProviderAI, ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("translation.provider must be http, ai or none, got %q", c.Translation.Provider))
	}
	if c.Translation.ChunkSize <= 0 {
		errs = append(errs, errors.New("translation.chunk_size must be positive"))
	}
	if c.Pipeline.Deadline <= 0 {
		errs = append(errs, errors.New("pipeline.deadline must be positive"))
	}
	if c.Pipeline.ExplainConcurrency < 1 || c.Pipeline.ExplainConcurrency > MaxExplainConcurrency {
		errs = append(errs, fmt.Errorf("pipeline.explain_concurrency must be within 1..%d", MaxExplainConcurrency))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	return errors.Join(errs...)
}

// AIEnabled reports whether the generative service should be used.
func (c *Config) AIEnabled() bool {
	return !c.AI.Disabled && c.AI.APIKey != ""
}

// ConfigureLogging applies the log level and format to the standard logrus logger.
func (l LogConfig) ConfigureLogging() {
	if level, err := logrus.ParseLevel(l.Level); err == nil {
		logrus.SetLevel(level)
	}
	if l.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
