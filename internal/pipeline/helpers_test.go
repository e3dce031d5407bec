package pipeline

import (
	"context"
	"sync"
	"testing"

	"segment-research/internal/common/config"
	"segment-research/internal/common/logger"
)

type providerCall struct {
	Prompt string
	Opts   CompletionOptions
}

// fakeProvider returns canned responses per stage title and records calls.
type fakeProvider struct {
	mu        sync.Mutex
	calls     []providerCall
	responses map[string]string
	errs      map[string]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{responses: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeProvider) Complete(_ context.Context, prompt string, opts CompletionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, providerCall{Prompt: prompt, Opts: opts})
	if err, ok := f.errs[opts.Title]; ok {
		return "", err
	}
	return f.responses[opts.Title], nil
}

func (f *fakeProvider) Calls() []providerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]providerCall(nil), f.calls...)
}

func testProviderConfig() config.ProviderConfig {
	return config.ProviderConfig{
		Model: "google/gemini-2.0-flash-001",
		Stages: map[string]config.StageConfig{
			string(StageSegments):    {MaxTokens: 20000, Temperature: 1, Title: "Market Segment Generator"},
			string(StageEnhanced):    {MaxTokens: 20000, Temperature: 1, Title: "Market Segment Enhancer"},
			string(StageSalesNav):    {MaxTokens: 20000, Temperature: 1, Title: "LinkedIn Sales Navigator Targeting"},
			string(StageDeepSegment): {MaxTokens: 25000, Temperature: 1, Title: "Deep Segment Research"},
		},
		Prompts: config.PromptConfig{
			ServiceName:        "fractional CFO services",
			HelperLabel:        "CFO's",
			SalesNavInputLimit: 20000,
		},
	}
}

func newTestExecutor(t *testing.T, provider CompletionProvider) *Executor {
	t.Helper()
	cfg := testProviderConfig()
	return NewExecutor(provider, NewPromptBuilder(cfg.Prompts), cfg, logger.NewTestLogger(t))
}

const salesNavJSON = `[
  {"name": "1️⃣ Tech Startups", "content": "Why This Segment?\nVenture-backed and scaling.\nKey Challenges:\n👉 Burn rate—runway planning"},
  {"name": "2️⃣ Family Offices", "content": "Why This Segment?\nComplex reporting.\nBest Intent Data Signals\n🔹 New fund launch"}
]`
