package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriskillpack/alttagger/internal/processing"
)

func env(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c, err := LoadWithEnv("", env(map[string]string{"GEMINI_API_KEY": "g"}))
	require.NoError(t, err)

	assert.Equal(t, "gemini", c.Provider)
	assert.Equal(t, "gemini-2.0-flash", c.ResolvedModel())
	assert.Equal(t, DefaultBatchSize, c.BatchSize)
	assert.Equal(t, 2, c.MaxRetries)
	assert.Equal(t, 30*time.Second, c.CallTimeout)
	assert.Equal(t, "g", c.APIKey())
	assert.NoError(t, c.Validate())

	step := c.Step()
	assert.Equal(t, processing.Config{Provider: "gemini", Model: "gemini-2.0-flash", BatchSize: 10, MaxRetries: 2}, step)
}

func TestFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alttagger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: claude
model: claude-3-5-haiku-20241022
batch_size: 20
session_ttl: 2h
rate_limits:
  claude:
    claude-3-5-haiku-20241022:
      rpm: 100
      delay: 500ms
      max_batch: 50
`), 0o644))

	c, err := LoadWithEnv(path, env(map[string]string{
		"ALTTAGGER_BATCH_SIZE": "5",
		"ANTHROPIC_API_KEY":    "sk-ant",
	}))
	require.NoError(t, err)

	assert.Equal(t, "claude", c.Provider)
	assert.Equal(t, 5, c.BatchSize, "environment wins over the file")
	assert.Equal(t, 2*time.Hour, c.SessionTTL)
	assert.Equal(t, "sk-ant", c.APIKey())
	require.NoError(t, c.Validate())

	p, err := c.Policy()
	require.NoError(t, err)
	l, ok := p.LimitsFor("claude", "claude-3-5-haiku-20241022")
	require.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, l.InterCallDelay)
}

func TestBadEnvNumber(t *testing.T) {
	_, err := LoadWithEnv("", env(map[string]string{"ALTTAGGER_BATCH_SIZE": "ten"}))
	assert.ErrorIs(t, err, processing.ErrConfiguration)
}

func TestMissingFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"unknown provider", func(c *Config) { c.Provider = "bard" }, false},
		{"missing key", func(c *Config) { c.Provider = "openai" }, false},
		{"ollama without url", func(c *Config) { c.Provider = "ollama" }, false},
		{"ollama", func(c *Config) { c.Provider = "ollama"; c.OllamaURL = "http://localhost:11434" }, true},
		{"batch too small", func(c *Config) { c.BatchSize = 0 }, false},
		{"batch too large", func(c *Config) { c.BatchSize = 51 }, false},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, false},
		{"bad state", func(c *Config) { c.State = "redis://localhost" }, false},
		{"postgres state", func(c *Config) { c.State = "postgres://localhost/alttagger" }, true},
		{"memory state", func(c *Config) { c.State = StateMemory }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := LoadWithEnv("", env(map[string]string{"GEMINI_API_KEY": "g"}))
			require.NoError(t, err)
			tt.mutate(c)

			err = c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, processing.ErrConfiguration)
			}
		})
	}
}
