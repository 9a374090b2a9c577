package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("REPORT_PERIOD", "")
	t.Setenv("REPORT_LANG", "")

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, "gpt-4.1-mini", cfg.Model)
	assert.Equal(t, "REE", cfg.DefaultSymbol)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "DeepSeek")
	t.Setenv("LLM_MODEL", "deepseek-chat")
	t.Setenv("DEEPSEEK_API_KEY", "ds-key")
	t.Setenv("REPORTS_DIR", "/tmp/cortexvn-reports")
	t.Setenv("CACHE_ENABLED", "true")
	t.Setenv("BRAVE_RESULTS", "5")
	t.Setenv("REPORT_PERIOD", "quarter")
	t.Setenv("CODE_INTERPRETER_TIMEOUT", "45s")
	t.Setenv("EINO_DEBUG_PORT", "6000")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("HISTORY_ENABLED", "1")
	t.Setenv("HISTORY_DB_PATH", "/tmp/cortexvn/history.db")

	cfg := DefaultConfig()
	assert.Equal(t, ProviderDeepSeek, cfg.LLMProvider)
	assert.Equal(t, "deepseek-chat", cfg.Model)
	assert.Equal(t, "/tmp/cortexvn-reports", cfg.ReportsDir)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 5, cfg.BraveResults)
	assert.Equal(t, "quarter", cfg.Period)
	assert.Equal(t, 45*time.Second, cfg.CodeInterpreterTimeout)
	assert.Equal(t, 6000, cfg.EinoDebugPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.HistoryEnabled)
	assert.Equal(t, "/tmp/cortexvn/history.db", cfg.HistoryDBPath)

	assert.Equal(t, "ds-key", cfg.APIKey())
	assert.Equal(t, "DEEPSEEK_API_KEY", cfg.APIKeyEnv())
}

func TestDefaultModelFollowsProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "deepseek")
	t.Setenv("LLM_MODEL", "")

	cfg := DefaultConfig()
	assert.Equal(t, ProviderDeepSeek, cfg.LLMProvider)
	assert.Equal(t, "deepseek-chat", cfg.Model)

	t.Setenv("LLM_PROVIDER", "openai")
	assert.Equal(t, "gpt-4.1-mini", DefaultConfig().Model)

	t.Setenv("LLM_MODEL", "deepseek-reasoner")
	t.Setenv("LLM_PROVIDER", "deepseek")
	assert.Equal(t, "deepseek-reasoner", DefaultConfig().Model)
}

func TestAPIKeyByProvider(t *testing.T) {
	cfg := &Config{LLMProvider: ProviderOpenAI, OpenAIAPIKey: "sk", DeepSeekAPIKey: "ds"}
	assert.Equal(t, "sk", cfg.APIKey())
	assert.Equal(t, "OPENAI_API_KEY", cfg.APIKeyEnv())

	cfg.LLMProvider = ProviderDeepSeek
	assert.Equal(t, "ds", cfg.APIKey())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"provider": func(c *Config) { c.LLMProvider = "anthropic" },
		"period":   func(c *Config) { c.Period = "monthly" },
		"lang":     func(c *Config) { c.Lang = "fr" },
		"mode":     func(c *Config) { c.CodeInterpreterMode = "wasm" },
		"symbol":   func(c *Config) { c.DefaultSymbol = "" },
		"type":     func(c *Config) { c.DefaultAnalysisType = "valuation" },
		"url":      func(c *Config) { c.VCIBaseURL = "not a url" },
		"history": func(c *Config) {
			c.HistoryEnabled = true
			c.HistoryDBPath = ""
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LLMProvider = ProviderOpenAI
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		ReportsDir:   filepath.Join(dir, "reports"),
		DataCacheDir: filepath.Join(dir, "cache"),
		CacheEnabled: true,
	}
	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.ReportsDir)
	assert.DirExists(t, cfg.DataCacheDir)
}
