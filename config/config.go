package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
)

// DefaultModel is the model used by provider when LLM_MODEL is not set.
func DefaultModel(provider string) string {
	if provider == ProviderDeepSeek {
		return "deepseek-chat"
	}
	return "gpt-4.1-mini"
}

type Config struct {
	ProjectDir   string `json:"project_dir" validate:"required"`
	ReportsDir   string `json:"reports_dir" validate:"required"`
	DataCacheDir string `json:"data_cache_dir"`
	CacheEnabled bool   `json:"cache_enabled"`

	LLMProvider string `json:"llm_provider" validate:"oneof=openai deepseek"`
	Model       string `json:"model" validate:"required"`
	BackendURL  string `json:"backend_url" validate:"omitempty,url"`
	MaxTokens   int    `json:"max_tokens" validate:"gte=0"`

	// AI Model API Keys
	OpenAIAPIKey   string `json:"-"`
	DeepSeekAPIKey string `json:"-"`

	// Search
	BraveAPIKey  string `json:"-"`
	BraveBaseURL string `json:"brave_base_url" validate:"required,url"`
	BraveResults int    `json:"brave_results" validate:"gte=1,lte=20"`

	// Vietnamese market data sources
	VCIBaseURL    string        `json:"vci_base_url" validate:"required,url"`
	VCIGraphQLURL string        `json:"vci_graphql_url" validate:"required,url"`
	TCBSBaseURL   string        `json:"tcbs_base_url" validate:"required,url"`
	Period        string        `json:"period" validate:"oneof=year quarter"`
	Lang          string        `json:"lang" validate:"oneof=en vi"`
	DropNA        bool          `json:"dropna"`
	HTTPTimeout   time.Duration `json:"http_timeout"`

	CodeInterpreterMode    string        `json:"code_interpreter_mode" validate:"oneof=docker local disabled"`
	CodeInterpreterImage   string        `json:"code_interpreter_image"`
	CodeInterpreterTimeout time.Duration `json:"code_interpreter_timeout"`

	AgentsConfigPath string `json:"agents_config_path"`
	TasksConfigPath  string `json:"tasks_config_path"`

	HistoryEnabled bool   `json:"history_enabled"`
	HistoryDBPath  string `json:"history_db_path" validate:"required_if=HistoryEnabled true"`

	DefaultSymbol       string `json:"default_symbol" validate:"required,max=10"`
	DefaultAnalysisType string `json:"default_analysis_type" validate:"oneof=comprehensive profitability liquidity"`

	LogLevel string `json:"log_level" validate:"oneof=trace debug info warn error"`
	Debug    bool   `json:"debug"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := &Config{
		ProjectDir:   currentDir,
		ReportsDir:   currentDir,
		DataCacheDir: filepath.Join(currentDir, "data", "cache"),
		CacheEnabled: false,

		LLMProvider: ProviderOpenAI,
		BackendURL:  "",
		MaxTokens:   8192,

		BraveBaseURL: "https://api.search.brave.com/res/v1",
		BraveResults: 3,

		VCIBaseURL:    "https://iq.vietcap.com.vn/api/iq-insight-service/v1",
		VCIGraphQLURL: "https://trading.vietcap.com.vn/data-mt/graphql",
		TCBSBaseURL:   "https://apipubaws.tcbs.com.vn",
		Period:        "year",
		Lang:          "en",
		DropNA:        true,
		HTTPTimeout:   30 * time.Second,

		CodeInterpreterMode:    "docker",
		CodeInterpreterImage:   "python:3.12-slim",
		CodeInterpreterTimeout: 2 * time.Minute,

		AgentsConfigPath: filepath.Join("config", "agents.yaml"),
		TasksConfigPath:  filepath.Join("config", "tasks.yaml"),

		HistoryDBPath: filepath.Join(currentDir, "data", "cortexvn.db"),

		DefaultSymbol:       "REE",
		DefaultAnalysisType: "comprehensive",

		LogLevel: "info",

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.LLMProvider)
	}

	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("REPORTS_DIR"); val != "" {
		c.ReportsDir = val
	}
	if val := os.Getenv("DATA_CACHE_DIR"); val != "" {
		c.DataCacheDir = val
	}
	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = strings.ToLower(val)
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.Model = val
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BackendURL = val
	}
	if val := os.Getenv("MAX_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxTokens = v
		}
	}

	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("BRAVE_API_KEY"); val != "" {
		c.BraveAPIKey = val
	}
	if val := os.Getenv("BRAVE_BASE_URL"); val != "" {
		c.BraveBaseURL = val
	}
	if val := os.Getenv("BRAVE_RESULTS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.BraveResults = v
		}
	}

	if val := os.Getenv("VCI_BASE_URL"); val != "" {
		c.VCIBaseURL = val
	}
	if val := os.Getenv("VCI_GRAPHQL_URL"); val != "" {
		c.VCIGraphQLURL = val
	}
	if val := os.Getenv("TCBS_BASE_URL"); val != "" {
		c.TCBSBaseURL = val
	}
	if val := os.Getenv("REPORT_PERIOD"); val != "" {
		c.Period = val
	}
	if val := os.Getenv("REPORT_LANG"); val != "" {
		c.Lang = val
	}

	if val := os.Getenv("CODE_INTERPRETER_MODE"); val != "" {
		c.CodeInterpreterMode = val
	}
	if val := os.Getenv("CODE_INTERPRETER_IMAGE"); val != "" {
		c.CodeInterpreterImage = val
	}
	if val := os.Getenv("CODE_INTERPRETER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.CodeInterpreterTimeout = d
		}
	}

	if val := os.Getenv("AGENTS_CONFIG"); val != "" {
		c.AgentsConfigPath = val
	}
	if val := os.Getenv("TASKS_CONFIG"); val != "" {
		c.TasksConfigPath = val
	}

	if val := os.Getenv("HISTORY_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.HistoryEnabled = enabled
		}
	}
	if val := os.Getenv("HISTORY_DB_PATH"); val != "" {
		c.HistoryDBPath = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = strings.ToLower(val)
	}
	if val := os.Getenv("CORTEXVN_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}

	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}
}

// APIKey returns the key of the configured LLM provider.
func (c *Config) APIKey() string {
	if c.LLMProvider == ProviderDeepSeek {
		return c.DeepSeekAPIKey
	}
	return c.OpenAIAPIKey
}

// APIKeyEnv names the environment variable APIKey is read from.
func (c *Config) APIKeyEnv() string {
	if c.LLMProvider == ProviderDeepSeek {
		return "DEEPSEEK_API_KEY"
	}
	return "OPENAI_API_KEY"
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ReportsDir}
	if c.CacheEnabled {
		dirs = append(dirs, c.DataCacheDir)
	}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
