// Package config loads Kotoba's configuration: an optional YAML file with
// environment-variable overrides on top. Environment always wins.
//
// Recognised variables:
//
//	KOTOBA_LISTEN_ADDR      HTTP listen address (default ":8080")
//	KOTOBA_BACKEND_URL      social-media backend origin (required)
//	KOTOBA_BACKEND_TIMEOUT  per-request backend timeout (default 15s)
//	KOTOBA_DB_PATH          SQLite path; empty disables the audit trail
//	KOTOBA_MASTER_KEY       64 hex chars; seals linked-account credentials
//	KOTOBA_CONTROL_TOKEN    token required on /status and /tools endpoints
//	LLM_API_KEY             API key; OPENAI_API_KEY is accepted as an alias.
//	                        Empty disables the LLM resolver.
//	LLM_BASE_URL            override the API base URL
//	LLM_MODEL               model name (default "gpt-3.5-turbo")
//	LLM_MAX_TOKENS          completion cap (default: provider default)
//	LLM_MAX_ATTEMPTS        tries for transient failures (default 2)
//	LLM_TIMEOUT             per-request timeout (default 60s)
//	LLM_CALL_LIMIT          LLM calls per caller per minute (default 20)
//	LLM_TOKEN_BUDGET        LLM tokens per caller per UTC day (default 50000)
//	MATRIX_HOMESERVER       Matrix surface; all three MATRIX_* values or none
//	MATRIX_USER_ID
//	MATRIX_ACCESS_TOKEN
//	MATRIX_ROOMS            comma-separated room IDs to listen in
//	LOG_LEVEL               "debug", "info", "warn", "error" (default "info")
//	LOG_FORMAT              "text" or "json" (default "text")
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Kotoba/common/environment"
)

// Config is the full application configuration.
type Config struct {
	ListenAddr   string        `yaml:"listen_addr"`
	DBPath       string        `yaml:"db_path"`
	MasterKey    string        `yaml:"master_key"`
	ControlToken string        `yaml:"control_token"`
	Backend      BackendConfig `yaml:"backend"`
	LLM          LLMConfig     `yaml:"llm"`
	Matrix       MatrixConfig  `yaml:"matrix"`
	Log          LogConfig     `yaml:"log"`
}

// BackendConfig points at the social-media REST backend.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig configures the language-model resolver.
type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
	CallLimit   int           `yaml:"call_limit"`
	TokenBudget int           `yaml:"token_budget"`
}

// Enabled reports whether an API key is configured.
func (c LLMConfig) Enabled() bool { return c.APIKey != "" }

// MatrixConfig configures the optional Matrix chat surface.
type MatrixConfig struct {
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	Rooms       []string `yaml:"rooms"`
}

// Enabled reports whether the Matrix surface is configured.
func (c MatrixConfig) Enabled() bool {
	return c.Homeserver != "" || c.UserID != "" || c.AccessToken != ""
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Backend: BackendConfig{
			Timeout: 15 * time.Second,
		},
		LLM: LLMConfig{
			Model:       "gpt-3.5-turbo",
			MaxAttempts: 2,
			Timeout:     60 * time.Second,
			CallLimit:   20,
			TokenBudget: 50_000,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML data over the defaults without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// ApplyEnv overlays the environment variables listed in the package doc.
func (c *Config) ApplyEnv() error {
	environment.Override(&c.ListenAddr, "KOTOBA_LISTEN_ADDR")
	environment.Override(&c.DBPath, "KOTOBA_DB_PATH")
	environment.Override(&c.MasterKey, "KOTOBA_MASTER_KEY")
	environment.Override(&c.ControlToken, "KOTOBA_CONTROL_TOKEN")
	environment.Override(&c.Backend.BaseURL, "KOTOBA_BACKEND_URL")
	environment.Override(&c.LLM.APIKey, "LLM_API_KEY", "OPENAI_API_KEY")
	environment.Override(&c.LLM.BaseURL, "LLM_BASE_URL")
	environment.Override(&c.LLM.Model, "LLM_MODEL")
	environment.Override(&c.Matrix.Homeserver, "MATRIX_HOMESERVER")
	environment.Override(&c.Matrix.UserID, "MATRIX_USER_ID")
	environment.Override(&c.Matrix.AccessToken, "MATRIX_ACCESS_TOKEN")
	environment.OverrideList(&c.Matrix.Rooms, "MATRIX_ROOMS")
	environment.Override(&c.Log.Level, "LOG_LEVEL")
	environment.Override(&c.Log.Format, "LOG_FORMAT")

	return errors.Join(
		environment.OverrideDuration(&c.Backend.Timeout, "KOTOBA_BACKEND_TIMEOUT"),
		environment.OverrideInt(&c.LLM.MaxTokens, "LLM_MAX_TOKENS"),
		environment.OverrideInt(&c.LLM.MaxAttempts, "LLM_MAX_ATTEMPTS"),
		environment.OverrideDuration(&c.LLM.Timeout, "LLM_TIMEOUT"),
		environment.OverrideInt(&c.LLM.CallLimit, "LLM_CALL_LIMIT"),
		environment.OverrideInt(&c.LLM.TokenBudget, "LLM_TOKEN_BUDGET"),
	)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend base URL is required (KOTOBA_BACKEND_URL)"))
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend base URL %q must be an absolute http(s) URL", c.Backend.BaseURL))
	}
	if c.Backend.Timeout < 0 || c.LLM.Timeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, errors.New("llm max_attempts must be at least 1"))
	}
	if c.LLM.MaxTokens < 0 || c.LLM.CallLimit < 0 || c.LLM.TokenBudget < 0 {
		errs = append(errs, errors.New("llm limits must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be \"text\" or \"json\"", c.Log.Format))
	}
	if c.Matrix.Enabled() && (c.Matrix.Homeserver == "" || c.Matrix.UserID == "" || c.Matrix.AccessToken == "") {
		errs = append(errs, errors.New("matrix needs homeserver, user_id and access_token together"))
	}
	if c.MasterKey != "" && len(strings.TrimSpace(c.MasterKey)) != 64 {
		errs = append(errs, errors.New("master key must be 64 hex characters"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
