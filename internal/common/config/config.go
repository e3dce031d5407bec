// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Session   SessionConfig   `mapstructure:"session"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	MetricsAddress string   `mapstructure:"metrics_address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ReadTimeout    int      `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // milliseconds
}

// ProviderConfig holds settings for the OpenRouter chat-completions API.
type ProviderConfig struct {
	BaseURL string                 `mapstructure:"base_url"`
	APIKey  string                 `mapstructure:"api_key"`
	Model   string                 `mapstructure:"model"`
	Referer string                 `mapstructure:"referer"`
	Timeout int                    `mapstructure:"timeout"` // milliseconds
	MaxBody int64                  `mapstructure:"max_body_bytes"`
	Prompts PromptConfig           `mapstructure:"prompts"`
	Stages  map[string]StageConfig `mapstructure:"stages"`
}

// PromptConfig customizes the service wording used by the prompt builders.
type PromptConfig struct {
	ServiceName        string `mapstructure:"service_name"`
	HelperLabel        string `mapstructure:"helper_label"`
	SalesNavInputLimit int    `mapstructure:"sales_nav_input_limit"`
}

// StageConfig holds the generation parameters of a single pipeline stage.
type StageConfig struct {
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	Title       string  `mapstructure:"title"`
}

type SessionConfig struct {
	TTL             int  `mapstructure:"ttl"`              // milliseconds
	CleanupInterval int  `mapstructure:"cleanup_interval"` // milliseconds
	LockTTL         int  `mapstructure:"lock_ttl"`         // milliseconds
	Shared          bool `mapstructure:"shared"`           // keep sessions in Redis
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type TelemetryConfig struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool    `mapstructure:"otlp_insecure"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// DefaultStages returns the generation parameters of every pipeline stage
// before configuration is applied.
func DefaultStages() map[string]StageConfig {
	return map[string]StageConfig{
		StageSegments:    {MaxTokens: 20000, Temperature: 1, Title: "Market Segment Generator"},
		StageEnhanced:    {MaxTokens: 20000, Temperature: 1, Title: "Market Segment Enhancer"},
		StageSalesNav:    {MaxTokens: 20000, Temperature: 1, Title: "LinkedIn Sales Navigator Targeting"},
		StageDeepSegment: {MaxTokens: 25000, Temperature: 1, Title: "Deep Segment Research"},
	}
}

// Stage returns the configuration for a stage, falling back to the stage
// defaults and the provider model.
func (p ProviderConfig) Stage(name string) StageConfig {
	sc, ok := p.Stages[name]
	if !ok {
		sc, ok = DefaultStages()[name]
		if !ok {
			sc = StageConfig{MaxTokens: 20000, Temperature: 1}
		}
	}
	if sc.Model == "" {
		sc.Model = p.Model
	}
	return sc
}

func (p ProviderConfig) String() string {
	return fmt.Sprintf("ProviderConfig{BaseURL:%s Model:%s APIKey:%s}", p.BaseURL, p.Model, redact(p.APIKey))
}

func redact(secret string) string {
	if len(secret) <= 6 {
		return "***"
	}
	return secret[:3] + "***" + secret[len(secret)-2:]
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
