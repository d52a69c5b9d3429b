// Package config loads service configuration from defaults, an optional
// config file, a .env file and JOURNAL_AGENT_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. JOURNAL_AGENT_LLM_API_KEY.
const EnvPrefix = "JOURNAL_AGENT"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	StreamBuffer    int           `mapstructure:"stream_buffer"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	Project     string  `mapstructure:"project"`
	Location    string  `mapstructure:"location"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type GatewayConfig struct {
	URL          string            `mapstructure:"url"`
	Transport    string            `mapstructure:"transport"`
	Headers      map[string]string `mapstructure:"headers"`
	AllowedTools []string          `mapstructure:"allowed_tools"`
	SessionTTL   time.Duration     `mapstructure:"session_ttl"`
	Timeout      time.Duration     `mapstructure:"timeout"`
}

type ToolsConfig struct {
	SearchEndpoint   string        `mapstructure:"search_endpoint"`
	SearchAPIKey     string        `mapstructure:"search_api_key"`
	SearchMaxResults int           `mapstructure:"search_max_results"`
	QuoteEndpoint    string        `mapstructure:"quote_endpoint"`
	QuoteAPIKey      string        `mapstructure:"quote_api_key"`
	ChartBaseURL     string        `mapstructure:"chart_base_url"`
	SafeTools        []string      `mapstructure:"safe_tools"`
	ImageMaxBytes    int64         `mapstructure:"image_max_bytes"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`
}

type AgentConfig struct {
	MaxTurns           int           `mapstructure:"max_turns"`
	PerToolCallCap     int           `mapstructure:"per_tool_call_cap"`
	CorrectionAttempts int           `mapstructure:"correction_attempts"`
	CorrectionTurns    int           `mapstructure:"correction_turns"`
	RecoveryDelay      time.Duration `mapstructure:"recovery_delay"`
	RecoveryMaxDelay   time.Duration `mapstructure:"recovery_max_delay"`
	RunTimeout         time.Duration `mapstructure:"run_timeout"`
	RefConcurrency     int           `mapstructure:"ref_concurrency"`
	ToolOutputLimit    int           `mapstructure:"tool_output_limit"`
	CompactAfterTurns  int           `mapstructure:"compact_after_turns"`
	CompactThreshold   int           `mapstructure:"compact_threshold"`
}

type CacheConfig struct {
	ToolsTTL time.Duration `mapstructure:"tools_ttl"`
}

type DatabaseConfig struct {
	// URL is a Postgres connection string; empty uses the in-memory store.
	URL string `mapstructure:"url"`
}

type TelemetryConfig struct {
	Provider     string  `mapstructure:"provider"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up for all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.stream_buffer", 64)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.project", "")
	v.SetDefault("llm.location", "us-central1")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 8192)

	v.SetDefault("gateway.url", "")
	v.SetDefault("gateway.transport", "http")
	v.SetDefault("gateway.headers", map[string]string{})
	v.SetDefault("gateway.allowed_tools", []string{})
	v.SetDefault("gateway.session_ttl", 10*time.Minute)
	v.SetDefault("gateway.timeout", 30*time.Second)

	v.SetDefault("tools.search_endpoint", "https://api.tavily.com/search")
	v.SetDefault("tools.search_api_key", "")
	v.SetDefault("tools.search_max_results", 5)
	v.SetDefault("tools.quote_endpoint", "https://financialmodelingprep.com/api/v3/quote")
	v.SetDefault("tools.quote_api_key", "")
	v.SetDefault("tools.chart_base_url", "https://quickchart.io/chart")
	v.SetDefault("tools.safe_tools", []string{"web_search", "get_stock_price"})
	v.SetDefault("tools.image_max_bytes", 5<<20)
	v.SetDefault("tools.http_timeout", 20*time.Second)

	v.SetDefault("agent.max_turns", 15)
	v.SetDefault("agent.per_tool_call_cap", 3)
	v.SetDefault("agent.correction_attempts", 2)
	v.SetDefault("agent.correction_turns", 3)
	v.SetDefault("agent.recovery_delay", 500*time.Millisecond)
	v.SetDefault("agent.recovery_max_delay", 4*time.Second)
	v.SetDefault("agent.run_timeout", 3*time.Minute)
	v.SetDefault("agent.ref_concurrency", 8)
	v.SetDefault("agent.tool_output_limit", 20000)
	v.SetDefault("agent.compact_after_turns", 6)
	v.SetDefault("agent.compact_threshold", 4000)

	v.SetDefault("cache.tools_ttl", 5*time.Minute)

	v.SetDefault("database.url", "")

	v.SetDefault("telemetry.provider", "noop")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "journal-agent")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// LoadDotEnv loads .env from the working directory if it exists. Variables
// already set in the environment win.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads configuration into v and decodes it. path may be empty.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Addr == "" {
		problems = append(problems, "server.addr is empty")
	}
	if c.Agent.MaxTurns <= 0 {
		problems = append(problems, "agent.max_turns must be positive")
	}
	if c.Agent.CorrectionAttempts < 0 {
		problems = append(problems, "agent.correction_attempts must not be negative")
	}
	switch c.Gateway.Transport {
	case "http", "sse":
	default:
		problems = append(problems, fmt.Sprintf("gateway.transport %q is not http or sse", c.Gateway.Transport))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		problems = append(problems, "telemetry.sample_ratio must be within [0,1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
