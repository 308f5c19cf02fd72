package ratelimit

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/chriskillpack/alttagger/describer"
)

func TestBuiltinLimitsAreConsistent(t *testing.T) {
	for k, l := range builtin {
		assert.NoError(t, l.Validate(), "%s/%s", k.provider, k.model)
	}
}

func TestBuiltinCoversCatalogue(t *testing.T) {
	p := Default()
	for _, name := range describer.ProviderNames() {
		prov, _ := describer.LookupProvider(name)
		for _, model := range prov.Models {
			_, ok := p.LimitsFor(name, model)
			assert.True(t, ok, "missing limits for %s/%s", name, model)
		}
	}
}

func TestLimitsForUnknown(t *testing.T) {
	_, ok := Default().LimitsFor("gemini", "gemini-99-ultra")
	assert.False(t, ok)

	_, ok = Default().LimitsFor("ollama", "llava")
	assert.False(t, ok)
}

func TestGeminiProIsConservative(t *testing.T) {
	l, ok := Default().LimitsFor("gemini", "gemini-1.5-pro")
	require.True(t, ok)
	assert.Equal(t, 2, l.MaxBatchSize)
	assert.Equal(t, 30*time.Second, l.InterCallDelay)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		limit   Limit
		wantErr string
	}{
		{"ok", Limit{RequestsPerMinute: 10, MaxBatchSize: 10, InterCallDelay: 6 * time.Second}, ""},
		{"zero rpm", Limit{MaxBatchSize: 1}, "rpm must be positive"},
		{"zero batch", Limit{RequestsPerMinute: 1}, "max_batch must be positive"},
		{"batch over rpm", Limit{RequestsPerMinute: 5, MaxBatchSize: 6}, "exceeds rpm"},
		{"too slow", Limit{RequestsPerMinute: 10, MaxBatchSize: 10, InterCallDelay: 7 * time.Second}, "exceeds one minute"},
		{"negative delay", Limit{RequestsPerMinute: 10, MaxBatchSize: 1, InterCallDelay: -time.Second}, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limit.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewPolicyOverrides(t *testing.T) {
	const doc = `
gemini:
  gemini-2.0-flash:
    rpm: 1000
    delay: 100ms
    max_batch: 50
ollama:
  llava:
    rpm: 60
    delay: 0s
    max_batch: 5
`
	var ov Overrides
	require.NoError(t, yaml.NewDecoder(strings.NewReader(doc)).Decode(&ov))

	p, err := NewPolicy(ov)
	require.NoError(t, err)

	l, ok := p.LimitsFor("gemini", "gemini-2.0-flash")
	require.True(t, ok)
	assert.Equal(t, 50, l.MaxBatchSize)
	assert.Equal(t, 100*time.Millisecond, l.InterCallDelay)

	l, ok = p.LimitsFor("ollama", "llava")
	require.True(t, ok)
	assert.Equal(t, 5, l.MaxBatchSize)

	// The built-in table is untouched.
	l, _ = Default().LimitsFor("gemini", "gemini-2.0-flash")
	assert.Equal(t, 10, l.MaxBatchSize)
}

func TestNewPolicyRejectsInvalidOverride(t *testing.T) {
	_, err := NewPolicy(Overrides{"openai": {"gpt-4o": {RequestsPerMinute: 10, MaxBatchSize: 20}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai/gpt-4o")
}
