package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/bsky-explainer/bskyx"

	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned by Validate when no model credential is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY not found in environment variables")

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Tools   ToolsConfig   `mapstructure:"tools"`
	Harness HarnessConfig `mapstructure:"harness"`
	Eval    EvalConfig    `mapstructure:"eval"`
}

// LLMConfig stores the chat-completions backend settings shared by the agent, the vision tool and the judge.
type LLMConfig struct {
	BaseURL      string        `mapstructure:"base_url"`       // OpenAI-compatible endpoint root
	Model        string        `mapstructure:"model"`          // Agent model
	APIKey       string        `mapstructure:"api_key"`        // Bound to OPENAI_API_KEY
	MaxNewTokens int           `mapstructure:"max_new_tokens"` // 0 lets the backend decide
	Temperature  float32       `mapstructure:"temperature"`    // Sampling temperature
	Timeout      time.Duration `mapstructure:"timeout"`        // Per-request HTTP timeout
}

// AgentConfig stores the ReAct loop settings.
type AgentConfig struct {
	MaxSteps        int  `mapstructure:"max_steps"`        // Model invocations per run
	NativeTools     bool `mapstructure:"native_tools"`     // Send tool schemas and prefer structured tool calls
	ObservationLogs int  `mapstructure:"observation_logs"` // Characters of each observation written to the log
}

// ToolsConfig stores the settings of the built-in tools.
type ToolsConfig struct {
	SearchBaseURL    string        `mapstructure:"search_base_url"`
	SearchMaxResults int           `mapstructure:"search_max_results"`
	VisionModel      string        `mapstructure:"vision_model"`
	VisionMaxTokens  int           `mapstructure:"vision_max_tokens"`
	BlueskyAPIHost   string        `mapstructure:"bluesky_api_host"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// HarnessConfig stores the cross-cutting provider and loop infrastructure settings.
type HarnessConfig struct {
	// Cache settings
	CacheEnabled    bool `mapstructure:"cache_enabled"`     // Memoize identical completions
	CacheCapacity   int  `mapstructure:"cache_capacity"`    // LRU cache capacity
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"` // Cache entry TTL

	// Rate limiting
	RateLimitEnabled bool    `mapstructure:"rate_limit_enabled"` // Throttle provider calls
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"`     // Sustained requests per second
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`   // Bucket size

	// Safety
	EnableGuardrails bool     `mapstructure:"enable_guardrails"` // Mask API keys and bearer tokens in answers
	AllowedTools     []string `mapstructure:"allowed_tools"`     // Empty means every built-in tool

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"` // Structured span/event logging
}

// EvalConfig stores the evaluation harness settings.
type EvalConfig struct {
	CasesPath   string   `mapstructure:"cases_path"`
	Models      []string `mapstructure:"models"`
	JudgeModel  string   `mapstructure:"judge_model"`
	Concurrency int      `mapstructure:"concurrency"`
	ResultsPath string   `mapstructure:"results_path"`
	ReportPath  string   `mapstructure:"report_path"`
	HistoryDSN  string   `mapstructure:"history_dsn"` // Empty disables the run history database
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// LLM defaults
	v.SetDefault("llm.base_url", internal.DefaultBaseURL)
	v.SetDefault("llm.model", internal.DefaultModel)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.max_new_tokens", 0)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", "60s")

	// Agent defaults
	v.SetDefault("agent.max_steps", internal.DefaultMaxSteps)
	v.SetDefault("agent.native_tools", false)
	v.SetDefault("agent.observation_logs", 200)

	// Tool defaults
	v.SetDefault("tools.search_base_url", internal.DefaultSearchBaseURL)
	v.SetDefault("tools.search_max_results", 5)
	v.SetDefault("tools.vision_model", internal.DefaultVisionModel)
	v.SetDefault("tools.vision_max_tokens", 300)
	v.SetDefault("tools.bluesky_api_host", internal.DefaultBlueskyAPIHost)
	v.SetDefault("tools.http_timeout", "15s")
	v.SetDefault("tools.user_agent", "Mozilla/5.0 (compatible; "+internal.DefaultAppName+"/1.0)")

	// Harness defaults
	v.SetDefault("harness.cache_enabled", false)
	v.SetDefault("harness.cache_capacity", 256)
	v.SetDefault("harness.cache_ttl_seconds", 3600) // 1 hour
	v.SetDefault("harness.rate_limit_enabled", false)
	v.SetDefault("harness.rate_limit_rps", 2.0)
	v.SetDefault("harness.rate_limit_burst", 4)
	v.SetDefault("harness.enable_guardrails", false)
	v.SetDefault("harness.allowed_tools", []string{}) // Empty means allow all by default
	v.SetDefault("harness.enable_tracing", true)

	// Eval defaults
	v.SetDefault("eval.cases_path", internal.DefaultCasesPath)
	v.SetDefault("eval.models", internal.DefaultBenchmarkModels)
	v.SetDefault("eval.judge_model", internal.DefaultJudgeModel)
	v.SetDefault("eval.concurrency", 1)
	v.SetDefault("eval.results_path", internal.DefaultResultsPath)
	v.SetDefault("eval.report_path", internal.DefaultReportPath)
	v.SetDefault("eval.history_dsn", "")

	v.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. agent.max_steps becomes AGENT_MAX_STEPS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv("llm.api_key", internal.DefaultAPIKeyEnv, "LLM_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind api key env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file on the search path; defaults and env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	AppConfig = cfg

	return &cfg, nil
}

// Validate reports pre-flight problems that must stop a run before it starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.LLM.BaseURL == "" {
		return errors.New("llm.base_url must not be empty")
	}
	return nil
}
