// Package config loads alttagger settings from defaults, an optional YAML
// file and the environment, in that order of precedence (later wins).
// Command line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chriskillpack/alttagger/describer"
	"github.com/chriskillpack/alttagger/internal/processing"
	"github.com/chriskillpack/alttagger/internal/ratelimit"
	"github.com/chriskillpack/alttagger/internal/retry"
	"github.com/chriskillpack/alttagger/internal/session"
)

const (
	DefaultBatchSize = 10
	MaxBatchSize     = ratelimit.DefaultBatchCeiling
	DefaultStepQuota = 30
	DefaultDBPath    = "./alttagger.db"
	DefaultAddr      = ":8080"
)

// State backends for session counters.
const (
	StateSQLite = "sqlite"
	StateMemory = "memory"
)

type Config struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Prompt     string `yaml:"prompt"`
	BatchSize  int    `yaml:"batch_size"`
	MaxRetries int    `yaml:"max_retries"`

	CallTimeout time.Duration `yaml:"call_timeout"`
	BaseURL     string        `yaml:"base_url"`

	OllamaURL string `yaml:"ollama_url"`
	LlamaURL  string `yaml:"llama_url"`
	LlamaSeed int    `yaml:"llama_seed"`

	DBPath  string `yaml:"db"`
	Library string `yaml:"library"`

	Session    string        `yaml:"session"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	// State is "sqlite", "memory" or a postgres:// URL.
	State string `yaml:"state"`

	Addr      string `yaml:"addr"`
	StepQuota int    `yaml:"step_quota"`

	RateLimits ratelimit.Overrides `yaml:"rate_limits"`

	// API keys only come from the environment.
	apiKeys map[string]string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider:    "gemini",
		BatchSize:   DefaultBatchSize,
		MaxRetries:  retry.DefaultMaxRetries,
		CallTimeout: retry.DefaultCallTimeout,
		LlamaSeed:   385480504,
		DBPath:      DefaultDBPath,
		Library:     ".",
		Session:     session.DefaultName,
		SessionTTL:  session.DefaultTTL,
		State:       StateSQLite,
		Addr:        DefaultAddr,
		StepQuota:   DefaultStepQuota,
		apiKeys:     map[string]string{},
	}
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(string) (string, bool)

// Load reads path (if not empty) and then the process environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

func LoadWithEnv(path string, lookup LookupFunc) (*Config, error) {
	c := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(c); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := c.applyEnv(lookup); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", processing.ErrConfiguration, key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", processing.ErrConfiguration, key, err)
		}
		*dst = d
		return nil
	}

	str("ALTTAGGER_PROVIDER", &c.Provider)
	str("ALTTAGGER_MODEL", &c.Model)
	str("ALTTAGGER_PROMPT", &c.Prompt)
	str("ALTTAGGER_BASE_URL", &c.BaseURL)
	str("ALTTAGGER_DB", &c.DBPath)
	str("ALTTAGGER_LIBRARY", &c.Library)
	str("ALTTAGGER_SESSION", &c.Session)
	str("ALTTAGGER_STATE", &c.State)
	str("ALTTAGGER_ADDR", &c.Addr)
	str("OLLAMA_URL", &c.OllamaURL)
	str("LLAMA_URL", &c.LlamaURL)

	err := errors.Join(
		num("ALTTAGGER_BATCH_SIZE", &c.BatchSize),
		num("ALTTAGGER_MAX_RETRIES", &c.MaxRetries),
		num("ALTTAGGER_STEP_QUOTA", &c.StepQuota),
		dur("ALTTAGGER_CALL_TIMEOUT", &c.CallTimeout),
		dur("ALTTAGGER_SESSION_TTL", &c.SessionTTL),
	)
	if err != nil {
		return err
	}

	if c.apiKeys == nil {
		c.apiKeys = map[string]string{}
	}
	for _, name := range describer.ProviderNames() {
		p, _ := describer.LookupProvider(name)
		if p.APIKeyEnv == "" {
			continue
		}
		if v, ok := lookup(p.APIKeyEnv); ok && v != "" {
			c.apiKeys[name] = v
		}
	}
	return nil
}

// APIKey returns the key for the configured provider, empty for local
// providers or when unset.
func (c *Config) APIKey() string { return c.apiKeys[c.Provider] }

// SetAPIKey overrides the key for the configured provider.
func (c *Config) SetAPIKey(key string) {
	if c.apiKeys == nil {
		c.apiKeys = map[string]string{}
	}
	c.apiKeys[c.Provider] = key
}

// ResolvedModel is Model, or the provider's default model when unset.
func (c *Config) ResolvedModel() string {
	if c.Model != "" {
		return c.Model
	}
	if p, ok := describer.LookupProvider(c.Provider); ok {
		return p.DefaultModel
	}
	return ""
}

// Postgres reports whether session state lives in PostgreSQL.
func (c *Config) Postgres() bool {
	return strings.HasPrefix(c.State, "postgres://") || strings.HasPrefix(c.State, "postgresql://")
}

// Validate checks the configuration needed to run processing steps. Errors
// wrap processing.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", processing.ErrConfiguration, fmt.Sprintf(format, args...)))
	}

	p, ok := describer.LookupProvider(c.Provider)
	switch {
	case !ok:
		fail("unknown provider %q, choose one of %s", c.Provider, strings.Join(describer.ProviderNames(), ", "))
	case !p.Local() && c.APIKey() == "":
		fail("%s requires an API key, set %s", p.DisplayName, p.APIKeyEnv)
	case p.Name == "ollama" && c.OllamaURL == "":
		fail("ollama requires OLLAMA_URL")
	case p.Name == "llama" && c.LlamaURL == "":
		fail("llama requires LLAMA_URL")
	}

	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		fail("batch size must be between 1 and %d, got %d", MaxBatchSize, c.BatchSize)
	}
	if c.MaxRetries < 0 {
		fail("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.CallTimeout <= 0 {
		fail("call timeout must be positive, got %s", c.CallTimeout)
	}
	if c.StepQuota < 0 {
		fail("step quota must not be negative, got %d", c.StepQuota)
	}
	if c.State != StateSQLite && c.State != StateMemory && !c.Postgres() {
		fail("state must be %q, %q or a postgres URL, got %q", StateSQLite, StateMemory, c.State)
	}
	if _, err := c.Policy(); err != nil {
		fail("%s", err)
	}

	return errors.Join(errs...)
}

// Policy builds the rate limit policy with any configured overrides.
func (c *Config) Policy() (*ratelimit.Policy, error) {
	return ratelimit.NewPolicy(c.RateLimits)
}

// Step returns the per-step processing configuration.
func (c *Config) Step() processing.Config {
	return processing.Config{
		Provider:   c.Provider,
		Model:      c.ResolvedModel(),
		Prompt:     c.Prompt,
		BatchSize:  c.BatchSize,
		MaxRetries: c.MaxRetries,
	}
}
