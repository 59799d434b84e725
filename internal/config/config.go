package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override file settings, e.g.
// STORYLINE_BACKEND_URL.
const EnvPrefix = "STORYLINE_"

// ProjectFile is read from the current working directory.
const ProjectFile = ".storylineconfig"

// Config holds all configurable storyline settings. Durations are Go
// duration strings such as "6s".
type Config struct {
	BackendURL     string `json:"backend_url"`
	ChannelURL     string `json:"channel_url,omitempty"` // empty: derived from BackendURL
	TypingTimeout  string `json:"typing_timeout"`
	TypingRefresh  string `json:"typing_refresh"`
	RequestTimeout string `json:"request_timeout"`
	DefaultFormat  string `json:"default_format"` // "markdown" | "json"
	OutputDir      string `json:"output_dir"`
	LogLevel       string `json:"log_level"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		BackendURL:     "http://localhost:3000",
		TypingTimeout:  "6s",
		TypingRefresh:  "3s",
		RequestTimeout: "15s",
		DefaultFormat:  "markdown",
		OutputDir:      ".",
		LogLevel:       "info",
	}
}

// GlobalPath returns ~/.config/storyline/config.json.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "storyline", "config.json"), nil
}

// LoadGlobal reads the global config file.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .storylineconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(ProjectFile, false)
}

// Load merges the global file, the project file and the environment, in
// increasing precedence, and validates the result.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	project, err := LoadProject()
	if err != nil {
		return Config{}, err
	}
	cfg, err := ApplyEnv(Merge(global, project))
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// SaveGlobal writes cfg to the global config file, creating its directory.
func SaveGlobal(cfg Config) (string, error) {
	path, err := GlobalPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, src := range []*Config{global, project} {
		if src == nil {
			continue
		}
		overlay(&result.BackendURL, src.BackendURL)
		overlay(&result.ChannelURL, src.ChannelURL)
		overlay(&result.TypingTimeout, src.TypingTimeout)
		overlay(&result.TypingRefresh, src.TypingRefresh)
		overlay(&result.RequestTimeout, src.RequestTimeout)
		overlay(&result.DefaultFormat, src.DefaultFormat)
		overlay(&result.OutputDir, src.OutputDir)
		overlay(&result.LogLevel, src.LogLevel)
	}
	return result
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ApplyEnv overrides base with STORYLINE_* environment variables. The
// variable name after the prefix, lower-cased, is the JSON key:
// STORYLINE_TYPING_TIMEOUT sets typing_timeout.
func ApplyEnv(base Config) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(base.asMap(), "."), nil); err != nil {
		return Config{}, err
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	var out Config
	if err := k.UnmarshalWithConf("", &out, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return Config{}, fmt.Errorf("apply environment: %w", err)
	}
	return out, nil
}

func (c Config) asMap() map[string]interface{} {
	return map[string]interface{}{
		"backend_url":     c.BackendURL,
		"channel_url":     c.ChannelURL,
		"typing_timeout":  c.TypingTimeout,
		"typing_refresh":  c.TypingRefresh,
		"request_timeout": c.RequestTimeout,
		"default_format":  c.DefaultFormat,
		"output_dir":      c.OutputDir,
		"log_level":       c.LogLevel,
	}
}

// Validate checks URLs and durations.
func (c Config) Validate() error {
	if _, err := parseBase(c.BackendURL); err != nil {
		return fmt.Errorf("backend_url: %w", err)
	}
	if c.ChannelURL != "" {
		if _, err := url.Parse(c.ChannelURL); err != nil {
			return fmt.Errorf("channel_url: %w", err)
		}
	}
	for name, v := range map[string]string{
		"typing_timeout":  c.TypingTimeout,
		"typing_refresh":  c.TypingRefresh,
		"request_timeout": c.RequestTimeout,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Channel returns the websocket endpoint: ChannelURL when set, otherwise the
// backend origin with ws/wss in place of http/https.
func (c Config) Channel() (string, error) {
	if c.ChannelURL != "" {
		return c.ChannelURL, nil
	}
	u, err := parseBase(c.BackendURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// TypingTimeoutDuration, TypingRefreshDuration and RequestTimeoutDuration
// return the parsed durations; invalid values yield zero.
func (c Config) TypingTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.TypingTimeout)
	return d
}

func (c Config) TypingRefreshDuration() time.Duration {
	d, _ := parseDuration(c.TypingRefresh)
	return d
}

func (c Config) RequestTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.RequestTimeout)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("want an http or https URL, got %q", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host in %q", raw)
	}
	return u, nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
