// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"

	"github.com/jeranaias/rigrun-agent/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete agent configuration.
type Config struct {
	// BaseDir is the directory every tool is confined to
	BaseDir string `toml:"base_dir" json:"base_dir"`

	// Debug forces debug logging
	Debug bool `toml:"debug" json:"debug"`

	Server  ServerConfig  `toml:"server" json:"server"`
	Ollama  OllamaConfig  `toml:"ollama" json:"ollama"`
	Tools   ToolsConfig   `toml:"tools" json:"tools"`
	Index   IndexConfig   `toml:"index" json:"index"`
	Store   StoreConfig   `toml:"store" json:"store"`
	Logging LoggingConfig `toml:"logging" json:"logging"`

	// envErrs collects unparseable environment overrides for Validate.
	envErrs []ValidationError
}

// ServerConfig contains HTTP listener configuration.
type ServerConfig struct {
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`

	// MaxBodyBytes caps request bodies; larger ones get 413
	MaxBodyBytes int64 `toml:"max_body_bytes" json:"max_body_bytes"`

	// RateLimit is requests per minute per client IP (0 disables)
	RateLimit int `toml:"rate_limit" json:"rate_limit"`
	RateBurst int `toml:"rate_burst" json:"rate_burst"`

	// AuthToken, when set, is required as a bearer token on every route
	// except /health
	AuthToken string `toml:"auth_token" json:"-"`
}

// OllamaConfig contains model runtime configuration.
type OllamaConfig struct {
	URL             string `toml:"url" json:"url"`
	Model           string `toml:"model" json:"model"`
	TimeoutSecs     int    `toml:"timeout_secs" json:"timeout_secs"`
	PullTimeoutSecs int    `toml:"pull_timeout_secs" json:"pull_timeout_secs"`
	Binary          string `toml:"binary" json:"binary"`
}

// ToolsConfig contains tool handler limits.
type ToolsConfig struct {
	FetchTimeoutSecs int   `toml:"fetch_timeout_secs" json:"fetch_timeout_secs"`
	ShellTimeoutSecs int   `toml:"shell_timeout_secs" json:"shell_timeout_secs"`
	MaxTimeoutSecs   int   `toml:"max_timeout_secs" json:"max_timeout_secs"`
	MaxRedirects     int   `toml:"max_redirects" json:"max_redirects"`
	MaxFetchBytes    int64 `toml:"max_fetch_bytes" json:"max_fetch_bytes"`

	// BlockPrivateNetworks makes web.fetch refuse loopback, private and
	// link-local addresses
	BlockPrivateNetworks bool `toml:"block_private_networks" json:"block_private_networks"`

	// KillGraceSecs bounds the wait for output after a command is killed
	KillGraceSecs int `toml:"kill_grace_secs" json:"kill_grace_secs"`
}

// IndexConfig contains document index configuration.
type IndexConfig struct {
	Watch       bool     `toml:"watch" json:"watch"`
	DebounceMs  int      `toml:"debounce_ms" json:"debounce_ms"`
	MaxFileSize int64    `toml:"max_file_size" json:"max_file_size"`
	Ignore      []string `toml:"ignore" json:"ignore"`
}

// StoreConfig contains session database configuration.
type StoreConfig struct {
	// Filename is the database file inside BaseDir
	Filename      string `toml:"filename" json:"filename"`
	BusyTimeoutMs int    `toml:"busy_timeout_ms" json:"busy_timeout_ms"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `toml:"level" json:"level"`

	// Format is auto (text on a terminal, JSON otherwise), text or json
	Format string `toml:"format" json:"format"`

	// File, when set, also receives every record as JSON
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BaseDir: ".",
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8787,
			MaxBodyBytes: 1 << 20,
			RateLimit:    100,
			RateBurst:    20,
		},
		Ollama: OllamaConfig{
			URL:             "http://localhost:11434",
			Model:           "llama-3.1",
			TimeoutSecs:     60,
			PullTimeoutSecs: 300,
			Binary:          "ollama",
		},
		Tools: ToolsConfig{
			FetchTimeoutSecs: 10,
			ShellTimeoutSecs: 30,
			MaxTimeoutSecs:   600,
			MaxRedirects:     5,
			MaxFetchBytes:    5 << 20,
			KillGraceSecs:    2,
		},
		Index: IndexConfig{
			DebounceMs:  500,
			MaxFileSize: 2 << 20,
		},
		Store: StoreConfig{
			Filename:      "agent_sessions.db",
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// SetDefaults fills in zero values with defaults. RateLimit is left alone
// because zero disables it.
func (c *Config) SetDefaults() {
	d := Default()

	if c.BaseDir == "" {
		c.BaseDir = d.BaseDir
	}

	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = d.Server.RateBurst
	}

	if c.Ollama.URL == "" {
		c.Ollama.URL = d.Ollama.URL
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = d.Ollama.Model
	}
	if c.Ollama.TimeoutSecs == 0 {
		c.Ollama.TimeoutSecs = d.Ollama.TimeoutSecs
	}
	if c.Ollama.PullTimeoutSecs == 0 {
		c.Ollama.PullTimeoutSecs = d.Ollama.PullTimeoutSecs
	}
	if c.Ollama.Binary == "" {
		c.Ollama.Binary = d.Ollama.Binary
	}

	if c.Tools.FetchTimeoutSecs == 0 {
		c.Tools.FetchTimeoutSecs = d.Tools.FetchTimeoutSecs
	}
	if c.Tools.ShellTimeoutSecs == 0 {
		c.Tools.ShellTimeoutSecs = d.Tools.ShellTimeoutSecs
	}
	if c.Tools.MaxTimeoutSecs == 0 {
		c.Tools.MaxTimeoutSecs = d.Tools.MaxTimeoutSecs
	}
	if c.Tools.MaxRedirects == 0 {
		c.Tools.MaxRedirects = d.Tools.MaxRedirects
	}
	if c.Tools.MaxFetchBytes == 0 {
		c.Tools.MaxFetchBytes = d.Tools.MaxFetchBytes
	}
	if c.Tools.KillGraceSecs == 0 {
		c.Tools.KillGraceSecs = d.Tools.KillGraceSecs
	}

	if c.Index.DebounceMs == 0 {
		c.Index.DebounceMs = d.Index.DebounceMs
	}
	if c.Index.MaxFileSize == 0 {
		c.Index.MaxFileSize = d.Index.MaxFileSize
	}

	if c.Store.Filename == "" {
		c.Store.Filename = d.Store.Filename
	}
	if c.Store.BusyTimeoutMs == 0 {
		c.Store.BusyTimeoutMs = d.Store.BusyTimeoutMs
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Load builds the configuration: defaults, then the TOML file at path (when
// path is non-empty), then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes the file at path over cfg. Keys that match no field are
// an error so typos do not pass silently.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown configuration keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - AGENT_BASE_DIR: overrides base_dir
//   - AGENT_DEBUG: "1" or "true" enables debug
//   - AGENT_PORT: overrides server.port
//   - AGENT_LOG_LEVEL: overrides logging.level
//   - AGENT_AUTH_TOKEN: overrides server.auth_token
//   - OLLAMA_URL: overrides ollama.url
//   - OLLAMA_MODEL: overrides ollama.model
func (c *Config) ApplyEnvOverrides() {
	if dir := os.Getenv("AGENT_BASE_DIR"); dir != "" {
		c.BaseDir = dir
	}

	if debug := os.Getenv("AGENT_DEBUG"); debug != "" {
		c.Debug = debug == "1" || strings.EqualFold(debug, "true")
	}

	if port := os.Getenv("AGENT_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			c.envErrs = append(c.envErrs, ValidationError{
				Field:   "AGENT_PORT",
				Message: fmt.Sprintf("%q is not a port number", port),
			})
		} else {
			c.Server.Port = n
		}
	}

	if level := os.Getenv("AGENT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if token := os.Getenv("AGENT_AUTH_TOKEN"); token != "" {
		c.Server.AuthToken = token
	}

	if u := os.Getenv("OLLAMA_URL"); u != "" {
		c.Ollama.URL = u
	}

	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		c.Ollama.Model = model
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the whole configuration and reports every problem found.
// The returned error is a *multierror.Error of ValidationError values.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(field, format string, args ...any) {
		result = multierror.Append(result, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for _, e := range c.envErrs {
		result = multierror.Append(result, e)
	}

	if strings.TrimSpace(c.BaseDir) == "" {
		add("base_dir", "must not be empty")
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 1 {
		add("server.max_body_bytes", "must be positive")
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "cannot be negative")
	}
	if c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be at least 1")
	}

	// Ollama
	if u, err := url.Parse(c.Ollama.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("ollama.url", "must be an http or https URL, got %q", c.Ollama.URL)
	}
	if c.Ollama.TimeoutSecs < 1 {
		add("ollama.timeout_secs", "must be positive")
	}
	if c.Ollama.PullTimeoutSecs < 1 {
		add("ollama.pull_timeout_secs", "must be positive")
	}

	// Tools
	if c.Tools.FetchTimeoutSecs < 1 {
		add("tools.fetch_timeout_secs", "must be positive")
	}
	if c.Tools.ShellTimeoutSecs < 1 {
		add("tools.shell_timeout_secs", "must be positive")
	}
	if c.Tools.MaxTimeoutSecs < c.Tools.ShellTimeoutSecs || c.Tools.MaxTimeoutSecs < c.Tools.FetchTimeoutSecs {
		add("tools.max_timeout_secs", "must not be below the default fetch and shell timeouts")
	}
	if c.Tools.MaxRedirects < 0 {
		add("tools.max_redirects", "cannot be negative")
	}
	if c.Tools.MaxFetchBytes < 1 {
		add("tools.max_fetch_bytes", "must be positive")
	}
	if c.Tools.KillGraceSecs < 0 {
		add("tools.kill_grace_secs", "cannot be negative")
	}

	// Index
	if c.Index.DebounceMs < 0 {
		add("index.debounce_ms", "cannot be negative")
	}
	if c.Index.MaxFileSize < 1 {
		add("index.max_file_size", "must be positive")
	}
	for _, pattern := range c.Index.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			add("index.ignore", "bad pattern %q", pattern)
		}
	}

	// Store
	if name := c.Store.Filename; name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		add("store.filename", "must be a bare file name, got %q", name)
	}
	if c.Store.BusyTimeoutMs < 0 {
		add("store.busy_timeout_ms", "cannot be negative")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level", "invalid level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "auto", "text", "json":
	default:
		add("logging.format", "invalid format %q, must be one of: auto, text, json", c.Logging.Format)
	}

	return result.ErrorOrNil()
}

// =============================================================================
// SAVING
// =============================================================================

const fileHeader = `# rigrun-agent configuration file
#
# Environment variables (AGENT_*, OLLAMA_URL, OLLAMA_MODEL) override
# these values.

`

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the configuration to path as TOML. The file is created 0600
// because it may hold the auth token.
func (c *Config) Save(path string) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(path, data, 0o600, 0o700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Timeout returns the generate request timeout.
func (o OllamaConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSecs) * time.Second
}

// PullTimeout returns the `ollama pull` timeout.
func (o OllamaConfig) PullTimeout() time.Duration {
	return time.Duration(o.PullTimeoutSecs) * time.Second
}

// FetchTimeout returns web.fetch's default timeout.
func (t ToolsConfig) FetchTimeout() time.Duration {
	return time.Duration(t.FetchTimeoutSecs) * time.Second
}

// ShellTimeout returns shell.run's default timeout.
func (t ToolsConfig) ShellTimeout() time.Duration {
	return time.Duration(t.ShellTimeoutSecs) * time.Second
}

// MaxTimeout returns the cap on caller-supplied timeouts.
func (t ToolsConfig) MaxTimeout() time.Duration {
	return time.Duration(t.MaxTimeoutSecs) * time.Second
}

// KillGrace returns the post-kill output wait.
func (t ToolsConfig) KillGrace() time.Duration {
	return time.Duration(t.KillGraceSecs) * time.Second
}

// Debounce returns the watcher quiet period.
func (i IndexConfig) Debounce() time.Duration {
	return time.Duration(i.DebounceMs) * time.Millisecond
}

// BusyTimeout returns the SQLite busy timeout.
func (s StoreConfig) BusyTimeout() time.Duration {
	return time.Duration(s.BusyTimeoutMs) * time.Millisecond
}

// StorePath returns the session database location under base.
func (c *Config) StorePath(base string) string {
	return filepath.Join(base, c.Store.Filename)
}

// LogLevel returns the effective level name; Debug wins over Logging.Level.
func (c *Config) LogLevel() string {
	if c.Debug {
		return "debug"
	}
	return strings.ToLower(c.Logging.Level)
}
