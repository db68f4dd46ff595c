// Package config loads relay configuration.
//
// Sources are applied in order, later ones winning:
//   - built-in defaults
//   - a TOML file (optional)
//   - environment variables, including a .env file in the working directory
//
// Command-line flags are applied on top by cmd/relay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/pentestai/pentestai/pkg/catalog"
	"github.com/pentestai/pentestai/pkg/provider"
	"github.com/pentestai/pentestai/pkg/ratelimit"
)

// Duration is a time.Duration that decodes from strings like "150s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the complete relay configuration.
type Config struct {
	// Listen is the address the relay binds, e.g. ":3000".
	Listen string `toml:"listen"`

	Debug bool `toml:"debug"`

	Upstream UpstreamConfig `toml:"upstream"`
	Probe    ProbeConfig    `toml:"probe"`

	// SystemPromptFile replaces the built-in system prompt when set.
	SystemPromptFile string `toml:"system_prompt_file"`

	// MaxHistory caps how many prior messages are forwarded.
	MaxHistory int `toml:"max_history"`

	// TranscriptDB is a SQLite path or "memory" to record transcripts; "" or "off" records none.
	TranscriptDB string `toml:"transcript_db"`

	// Models replaces the built-in model table when non-empty.
	Models []ModelConfig `toml:"models"`
}

// UpstreamConfig configures the inference provider.
type UpstreamConfig struct {
	BaseURL     string   `toml:"base_url"`
	Token       string   `toml:"token"`
	Timeout     Duration `toml:"timeout"`
	Retries     int      `toml:"retries"`
	Temperature float64  `toml:"temperature"`
	MaxTokens   int      `toml:"max_tokens"`
	TopP        float64  `toml:"top_p"`
}

// ProbeConfig configures the quota probe.
type ProbeConfig struct {
	Enabled   bool     `toml:"enabled"`
	URL       string   `toml:"url"`
	TTL       Duration `toml:"ttl"`
	Threshold int      `toml:"threshold"`
}

// ModelConfig is one [[models]] entry.
type ModelConfig struct {
	Key     string `toml:"key"`
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	Default bool   `toml:"default"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ":3000",
		Upstream: UpstreamConfig{
			BaseURL:     provider.DefaultBaseURL,
			Timeout:     Duration{provider.DefaultTimeout},
			Retries:     provider.DefaultRetries,
			Temperature: 0.7,
			MaxTokens:   4096,
			TopP:        1,
		},
		Probe: ProbeConfig{
			URL:       provider.DefaultQuotaURL,
			TTL:       Duration{ratelimit.DefaultProbeTTL},
			Threshold: ratelimit.DefaultThreshold,
		},
		MaxHistory: 20,
	}
}

// Load builds a Config from defaults, the optional TOML file at path, and the environment.
func Load(path string) (*Config, error) {
	// A missing .env file is fine
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Listen = ":" + strings.TrimPrefix(port, ":")
	}
	c.Listen = getEnvOrDefault("PENTESTAI_LISTEN", c.Listen)
	c.Debug = getEnvAsBoolOrDefault("PENTESTAI_DEBUG", c.Debug)

	c.Upstream.BaseURL = getEnvOrDefault("PENTESTAI_BASE_URL", c.Upstream.BaseURL)
	c.Upstream.Token = strings.TrimSpace(getEnvOrDefault("GITHUB_TOKEN", c.Upstream.Token))
	c.Upstream.Timeout.Duration = getEnvAsDurationOrDefault("PENTESTAI_TIMEOUT", c.Upstream.Timeout.Duration)
	c.Upstream.Retries = getEnvAsIntOrDefault("PENTESTAI_RETRIES", c.Upstream.Retries)

	c.Probe.Enabled = getEnvAsBoolOrDefault("PENTESTAI_PROBE", c.Probe.Enabled)
	c.Probe.URL = getEnvOrDefault("PENTESTAI_PROBE_URL", c.Probe.URL)
	c.Probe.Threshold = getEnvAsIntOrDefault("PENTESTAI_PROBE_THRESHOLD", c.Probe.Threshold)

	c.SystemPromptFile = getEnvOrDefault("PENTESTAI_SYSTEM_PROMPT", c.SystemPromptFile)
	c.TranscriptDB = getEnvOrDefault("PENTESTAI_TRANSCRIPT_DB", c.TranscriptDB)
}

// Validate checks the configuration for values the relay cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	}
	if c.Upstream.Timeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout must be positive, got %s", c.Upstream.Timeout))
	}
	if c.Upstream.Retries < 0 || c.Upstream.Retries > 10 {
		errs = append(errs, fmt.Errorf("upstream.retries must be 0-10, got %d", c.Upstream.Retries))
	}
	if c.MaxHistory < 0 {
		errs = append(errs, fmt.Errorf("max_history must not be negative, got %d", c.MaxHistory))
	}
	if c.Probe.TTL.Duration <= 0 {
		errs = append(errs, fmt.Errorf("probe.ttl must be positive, got %s", c.Probe.TTL))
	}
	if _, err := c.Catalog(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Catalog builds the model table: the configured [[models]] or the built-in one.
func (c *Config) Catalog() (*catalog.Catalog, error) {
	if len(c.Models) == 0 {
		return catalog.Default(), nil
	}

	choices := make([]catalog.Choice, 0, len(c.Models))
	defaultKey := ""
	for _, m := range c.Models {
		choices = append(choices, catalog.Choice{Key: m.Key, ExternalID: m.ID, DisplayName: m.Name})
		if m.Default {
			defaultKey = m.Key
		}
	}
	return catalog.New(choices, defaultKey)
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvAsDurationOrDefault accepts "90s" style durations or plain seconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
