package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_DefaultsAndEnvFallbacks(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test-key")
	t.Setenv("NEXT_PUBLIC_SITE_URL", "https://segments.example.com/")

	path := writeConfig(t, `
app:
  name: segment-research
provider:
  model: google/gemini-2.0-flash-001
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-or-test-key", cfg.Provider.APIKey)
	assert.Equal(t, "https://segments.example.com/", cfg.Provider.Referer)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Provider.BaseURL)
	assert.Equal(t, 60*time.Second, GetDuration(cfg.Provider.Timeout))
	assert.Equal(t, 20000, cfg.Provider.Prompts.SalesNavInputLimit)
	assert.Equal(t, "fractional CFO services", cfg.Provider.Prompts.ServiceName)

	deep := cfg.Provider.Stage(StageDeepSegment)
	assert.Equal(t, 25000, deep.MaxTokens)
	assert.Equal(t, 1.0, deep.Temperature)
	assert.Equal(t, "Deep Segment Research", deep.Title)
	assert.Equal(t, "google/gemini-2.0-flash-001", deep.Model)

	salesNav := cfg.Provider.Stage(StageSalesNav)
	assert.Equal(t, 20000, salesNav.MaxTokens)
	assert.Equal(t, "LinkedIn Sales Navigator Targeting", salesNav.Title)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile_StageOverridesAndExpansion(t *testing.T) {
	t.Setenv("TEST_SEGMENT_KEY", "sk-expanded")

	path := writeConfig(t, `
provider:
  api_key: ${TEST_SEGMENT_KEY}
  stages:
    enhanced:
      model: anthropic/claude-3.5-sonnet
      max_tokens: 8000
      temperature: 0.4
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-expanded", cfg.Provider.APIKey)
	enhanced := cfg.Provider.Stage(StageEnhanced)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", enhanced.Model)
	assert.Equal(t, 8000, enhanced.MaxTokens)
	assert.Equal(t, 0.4, enhanced.Temperature)
	assert.Equal(t, "Market Segment Enhancer", enhanced.Title)
}

func TestLoadFromFile_PartialStageKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
provider:
  api_key: k
  stages:
    deep_segment:
      max_tokens: 30000
    sales_nav:
      temperature: 0
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	deep := cfg.Provider.Stage(StageDeepSegment)
	assert.Equal(t, 30000, deep.MaxTokens)
	assert.Equal(t, 1.0, deep.Temperature)
	assert.Equal(t, "Deep Segment Research", deep.Title)

	salesNav := cfg.Provider.Stage(StageSalesNav)
	assert.Equal(t, 0.0, salesNav.Temperature)
	assert.Equal(t, 20000, salesNav.MaxTokens)
	assert.Equal(t, "LinkedIn Sales Navigator Targeting", salesNav.Title)

	for name, want := range DefaultStages() {
		if name == StageDeepSegment || name == StageSalesNav {
			continue
		}
		got := cfg.Provider.Stage(name)
		assert.Equal(t, want.MaxTokens, got.MaxTokens, name)
		assert.Equal(t, want.Temperature, got.Temperature, name)
		assert.Equal(t, want.Title, got.Title, name)
	}
}

func TestMergeStageDefaults(t *testing.T) {
	cfg := Config{Provider: ProviderConfig{Stages: map[string]StageConfig{
		StageSegments: {Model: "custom/model"},
		StageEnhanced: {Temperature: 0},
	}}}
	mergeStageDefaults(&cfg, func(key string) bool {
		return key == "provider.stages."+StageEnhanced+".temperature"
	})

	segments := cfg.Provider.Stages[StageSegments]
	assert.Equal(t, "custom/model", segments.Model)
	assert.Equal(t, 20000, segments.MaxTokens)
	assert.Equal(t, 1.0, segments.Temperature)
	assert.Equal(t, "Market Segment Generator", segments.Title)

	enhanced := cfg.Provider.Stages[StageEnhanced]
	assert.Equal(t, 0.0, enhanced.Temperature)
	assert.Equal(t, "Market Segment Enhancer", enhanced.Title)

	assert.Equal(t, DefaultStages()[StageDeepSegment], cfg.Provider.Stages[StageDeepSegment])
}

func TestProviderConfig_StageFallsBackToDefaults(t *testing.T) {
	p := ProviderConfig{Model: "google/gemini-2.0-flash-001"}
	deep := p.Stage(StageDeepSegment)
	assert.Equal(t, 25000, deep.MaxTokens)
	assert.Equal(t, 1.0, deep.Temperature)
	assert.Equal(t, "Deep Segment Research", deep.Title)
	assert.Equal(t, "google/gemini-2.0-flash-001", deep.Model)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing api key",
			body:    "provider:\n  model: x\n",
			wantErr: "provider.api_key is required",
		},
		{
			name:    "temperature out of range",
			body:    "provider:\n  api_key: k\n  stages:\n    segments:\n      temperature: 3\n",
			wantErr: "temperature must be within",
		},
		{
			name:    "shared sessions without redis",
			body:    "provider:\n  api_key: k\nsession:\n  shared: true\n",
			wantErr: "redis.address is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENROUTER_API_KEY", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestProviderConfig_StringRedactsKey(t *testing.T) {
	p := ProviderConfig{BaseURL: "https://openrouter.ai/api/v1", Model: "m", APIKey: "sk-or-v1-abcdef123456"}
	s := p.String()
	assert.NotContains(t, s, "abcdef123456")
	assert.Contains(t, s, "sk-***56")
}
