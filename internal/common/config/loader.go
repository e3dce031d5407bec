// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Stage keys used under provider.stages.
const (
	StageSegments    = "segments"
	StageEnhanced    = "enhanced"
	StageSalesNav    = "sales_nav"
	StageDeepSegment = "deep_segment"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top
// and applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	mergeStageDefaults(&cfg, func(key string) bool { return explicitlySet(v, key) })
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "segment-research")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.address", ":3000")
	v.SetDefault("server.metrics_address", ":8080")
	v.SetDefault("server.read_timeout", 15000)
	v.SetDefault("server.write_timeout", 90000)

	v.SetDefault("provider.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.referer", "")
	v.SetDefault("provider.model", "google/gemini-2.0-flash-001")
	v.SetDefault("provider.timeout", 60000)
	v.SetDefault("provider.max_body_bytes", 8<<20)
	v.SetDefault("provider.prompts.service_name", "fractional CFO services")
	v.SetDefault("provider.prompts.helper_label", "CFO's")
	v.SetDefault("provider.prompts.sales_nav_input_limit", 20000)

	for name, sc := range DefaultStages() {
		prefix := "provider.stages." + name
		v.SetDefault(prefix+".max_tokens", sc.MaxTokens)
		v.SetDefault(prefix+".temperature", sc.Temperature)
		v.SetDefault(prefix+".title", sc.Title)
	}

	v.SetDefault("session.ttl", 3600000)
	v.SetDefault("session.cleanup_interval", 60000)
	v.SetDefault("session.lock_ttl", 120000)
	v.SetDefault("session.shared", false)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "segment-research")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.sample_ratio", 0.1)
}

// loadEnvFile looks for a .env file in the working directory, its parents
// and the module root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig falls back to the plain environment names used by
// existing deployments (OPENROUTER_API_KEY, NEXT_PUBLIC_SITE_URL, REDIS_URL).
func overrideEmptyConfig(cfg *Config) {
	if cfg.Provider.APIKey == "" {
		if val := os.Getenv("OPENROUTER_API_KEY"); val != "" {
			cfg.Provider.APIKey = val
		}
	}
	if cfg.Provider.Referer == "" {
		if val := os.Getenv("NEXT_PUBLIC_SITE_URL"); val != "" {
			cfg.Provider.Referer = val
		}
	}
	if cfg.Redis.Address == "" {
		if val := os.Getenv("REDIS_URL"); val != "" {
			cfg.Redis.Address = val
		}
	}
}

// explicitlySet reports whether key comes from a config file or the
// environment rather than from a default.
func explicitlySet(v *viper.Viper, key string) bool {
	if v.InConfig(key) {
		return true
	}
	envKey := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	_, ok := os.LookupEnv(envKey)
	return ok
}

// mergeStageDefaults fills every field a stage block leaves out. A file that
// configures one stage replaces the whole defaults subtree on unmarshal, so
// the defaults are merged back field by field. Temperature 0 is a valid
// setting and only kept when the key was given explicitly.
func mergeStageDefaults(cfg *Config, isSet func(key string) bool) {
	if cfg.Provider.Stages == nil {
		cfg.Provider.Stages = make(map[string]StageConfig)
	}
	for name, def := range DefaultStages() {
		sc, ok := cfg.Provider.Stages[name]
		if !ok {
			cfg.Provider.Stages[name] = def
			continue
		}
		if sc.MaxTokens <= 0 {
			sc.MaxTokens = def.MaxTokens
		}
		if sc.Title == "" {
			sc.Title = def.Title
		}
		if sc.Temperature == 0 && !isSet("provider.stages."+name+".temperature") {
			sc.Temperature = def.Temperature
		}
		cfg.Provider.Stages[name] = sc
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Provider.Referer == "" {
		cfg.Provider.Referer = "https://market-segment-generator.vercel.app/"
	}
	if cfg.Provider.Prompts.SalesNavInputLimit <= 0 {
		cfg.Provider.Prompts.SalesNavInputLimit = 20000
	}
	if cfg.Telemetry.SampleRatio < 0 {
		cfg.Telemetry.SampleRatio = 0
	}
	if cfg.Telemetry.SampleRatio > 1 {
		cfg.Telemetry.SampleRatio = 1
	}
	for name, sc := range cfg.Provider.Stages {
		if sc.MaxTokens <= 0 {
			sc.MaxTokens = 20000
		}
		cfg.Provider.Stages[name] = sc
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required (or set OPENROUTER_API_KEY)")
	}
	if cfg.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be positive")
	}
	for _, name := range []string{StageSegments, StageEnhanced, StageSalesNav, StageDeepSegment} {
		sc := cfg.Provider.Stage(name)
		if sc.Temperature < 0 || sc.Temperature > 2 {
			return fmt.Errorf("provider.stages.%s.temperature must be within [0, 2]", name)
		}
	}
	if cfg.Session.Shared && cfg.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when session.shared is enabled")
	}
	return nil
}
