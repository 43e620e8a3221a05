package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LEXPLAIN_AI_API_KEY", "")
	t.Setenv("PORT", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "2000", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 2, cfg.AI.MaxRetries)
	assert.Equal(t, time.Second, cfg.AI.BaseDelay)
	assert.Equal(t, 5*time.Second, cfg.AI.MaxDelay)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.Deadline)
	assert.Equal(t, 5, cfg.Pipeline.ExplainConcurrency)
	assert.Equal(t, ProviderAI, cfg.Translation.Provider)
	assert.False(t, cfg.AIEnabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LEXPLAIN_AI_API_KEY", "sk-test")
	t.Setenv("LEXPLAIN_PIPELINE_DEADLINE", "15s")
	t.Setenv("LEXPLAIN_PIPELINE_EXPLAIN_CONCURRENCY", "3")
	t.Setenv("LEXPLAIN_SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LEXPLAIN_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.True(t, cfg.AIEnabled())
	assert.Equal(t, 15*time.Second, cfg.Pipeline.Deadline)
	assert.Equal(t, 3, cfg.Pipeline.ExplainConcurrency)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexplain.yaml")
	content := []byte(`
server:
  port: "8080"
ai:
  disabled: true
  api_key: sk-file
translation:
  provider: http
  base_url: http://translate.local
redis:
  addr: localhost:6379
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.AIEnabled())
	assert.Equal(t, ProviderHTTP, cfg.Translation.Provider)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"concurrency above cap", func(c *Config) { c.Pipeline.ExplainConcurrency = 11 }},
		{"zero deadline", func(c *Config) { c.Pipeline.Deadline = 0 }},
		{"unknown provider", func(c *Config) { c.Translation.Provider = "carrier-pigeon" }},
		{"http without url", func(c *Config) { c.Translation.Provider = ProviderHTTP }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"inverted delays", func(c *Config) { c.AI.MaxDelay = c.AI.BaseDelay / 2 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
