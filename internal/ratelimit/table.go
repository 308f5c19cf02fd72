package ratelimit

import "time"

var (
	geminiFlash = Limit{
		RequestsPerMinute: 15,
		RequestsPerDay:    1500,
		TokensPerMinute:   1_000_000,
		InterCallDelay:    4 * time.Second,
		MaxBatchSize:      10,
	}
	openAIStandard = Limit{
		RequestsPerMinute: 500,
		TokensPerMinute:   30_000,
		InterCallDelay:    200 * time.Millisecond,
		MaxBatchSize:      50,
	}
	claudeStandard = Limit{
		RequestsPerMinute: 50,
		TokensPerMinute:   40_000,
		InterCallDelay:    1200 * time.Millisecond,
		MaxBatchSize:      40,
	}
	// OpenRouter limits depend on account credit, assume the free tier.
	openRouterStandard = Limit{
		RequestsPerMinute: 60,
		InterCallDelay:    time.Second,
		MaxBatchSize:      50,
	}
)

var builtin = map[key]Limit{
	{"gemini", "gemini-2.0-flash"}:    geminiFlash,
	{"gemini", "gemini-1.5-flash"}:    geminiFlash,
	{"gemini", "gemini-1.5-flash-8b"}: geminiFlash,
	{"gemini", "gemini-1.5-pro"}: {
		RequestsPerMinute: 2,
		RequestsPerDay:    50,
		TokensPerMinute:   32_000,
		InterCallDelay:    30 * time.Second,
		MaxBatchSize:      2,
	},

	{"openai", "gpt-4o"}: openAIStandard,
	{"openai", "gpt-4o-mini"}: {
		RequestsPerMinute: 500,
		RequestsPerDay:    10_000,
		TokensPerMinute:   200_000,
		InterCallDelay:    200 * time.Millisecond,
		MaxBatchSize:      50,
	},
	{"openai", "gpt-4-turbo"}: openAIStandard,
	{"openai", "gpt-4-vision-preview"}: {
		RequestsPerMinute: 80,
		RequestsPerDay:    500,
		TokensPerMinute:   10_000,
		InterCallDelay:    time.Second,
		MaxBatchSize:      50,
	},

	{"claude", "claude-3-5-sonnet-20241022"}: claudeStandard,
	{"claude", "claude-3-5-haiku-20241022"}:  claudeStandard,
	{"claude", "claude-3-opus-20240229"}:     claudeStandard,

	{"openrouter", "anthropic/claude-3.5-sonnet"}: openRouterStandard,
	{"openrouter", "openai/gpt-4o"}:               openRouterStandard,
	{"openrouter", "openai/gpt-4o-mini"}:          openRouterStandard,
	{"openrouter", "google/gemini-pro-1.5"}:       openRouterStandard,
}
