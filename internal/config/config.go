// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

// Package config loads runtime configuration and agent definition files.
package config

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/secrets"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

// EnvPrefix prefixes environment overrides, e.g. AGENTOS_SERVER_LISTEN.
const EnvPrefix = "AGENTOS"

// Config is the top-level runtime configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    ModelsConfig              `mapstructure:"models"`
	Runtime   RuntimeConfig             `mapstructure:"runtime"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Logging   LoggingConfig             `mapstructure:"logging"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen       string          `mapstructure:"listen"`
	CORSOrigins  []string        `mapstructure:"cors_origins"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	StreamBuffer int             `mapstructure:"stream_buffer"`
}

// RateLimitConfig is a per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ProviderConfig holds credentials and endpoint for a model provider.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ModelsConfig controls model selection.
type ModelsConfig struct {
	Default  string   `mapstructure:"default"`
	Failover []string `mapstructure:"failover"`
}

// RuntimeConfig bounds a single turn.
type RuntimeConfig struct {
	MaxTokens        int           `mapstructure:"max_tokens"`
	ToolTimeout      time.Duration `mapstructure:"tool_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	MaxParallelTools int           `mapstructure:"max_parallel_tools"`

	// AllowStdioToolServers lets API callers launch stdio tool servers on
	// this host. Agent files loaded by the CLI are always allowed.
	AllowStdioToolServers bool `mapstructure:"allow_stdio_tool_servers"`
}

type StorageConfig struct {
	Audit AuditConfig `mapstructure:"audit"`
}

// AuditConfig enables the run audit log.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// KnownProviders lists the provider names the runtime has adapters for.
var KnownProviders = []string{"anthropic", "openai", "google", "openrouter"}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.requests_per_second", 5.0)
	v.SetDefault("server.rate_limit.burst", 10)
	v.SetDefault("server.stream_buffer", 16)
	v.SetDefault("models.default", "anthropic/claude-sonnet-4-5")
	v.SetDefault("runtime.max_tokens", 4096)
	v.SetDefault("runtime.tool_timeout", "60s")
	v.SetDefault("runtime.connect_timeout", "30s")
	v.SetDefault("runtime.max_parallel_tools", 4)
	v.SetDefault("runtime.allow_stdio_tool_servers", false)
	v.SetDefault("storage.audit.enabled", false)
	v.SetDefault("storage.audit.backend", "sqlite")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	if path, err := DefaultAuditPath(); err == nil {
		v.SetDefault("storage.audit.path", path)
	}
}

// bindProviderEnv makes provider credentials settable from the
// environment alone, e.g. AGENTOS_PROVIDERS_ANTHROPIC_API_KEY.
func bindProviderEnv(v *viper.Viper) {
	for _, p := range KnownProviders {
		_ = v.BindEnv("providers." + p + ".api_key")
		_ = v.BindEnv("providers." + p + ".base_url")
	}
}

// Load reads configuration from path (or defaults only when empty) with
// AGENTOS_ environment overrides. keyring:// values are resolved through
// resolver when it is non-nil.
func Load(path string, resolver *secrets.Resolver) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindProviderEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, aoserr.Wrapf(err, aoserr.CodeConfigLoadReadFailure, "reading config %s", path)
		}
		WarnInsecurePermissions(path)
	}

	return Decode(v, resolver)
}

// Decode resolves secrets, unmarshals and validates the settings held by v.
func Decode(v *viper.Viper, resolver *secrets.Resolver) (*Config, error) {
	if resolver != nil {
		if err := secrets.ResolveViper(v, resolver); err != nil {
			// Unresolved references surface when the provider is used.
			slog.Warn("config contains unresolved secret references", "error", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, aoserr.Wrap(err, aoserr.CodeConfigParseInvalidFormat, "unmarshalling config")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, aoserr.Wrap(errors.Join(errs...), aoserr.CodeConfigValidateInvalidValue, "validating config")
	}
	return &cfg, nil
}

// Validate returns every problem found rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateRuntime()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func invalid(format string, args ...any) error {
	return aoserr.Errorf(aoserr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, invalid("server.listen must not be empty"))
	} else if _, portStr, err := net.SplitHostPort(c.Server.Listen); err != nil {
		errs = append(errs, invalid("server.listen must be a host:port address, got %q", c.Server.Listen))
	} else if port, err := strconv.Atoi(portStr); err != nil || port < 0 || port > 65535 {
		errs = append(errs, invalid("server.listen port must be between 0 and 65535, got %q", portStr))
	}

	if c.Server.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, invalid("server.rate_limit.requests_per_second must be greater than 0, got %g", c.Server.RateLimit.RequestsPerSecond))
	}
	if c.Server.RateLimit.Burst <= 0 {
		errs = append(errs, invalid("server.rate_limit.burst must be greater than 0, got %d", c.Server.RateLimit.Burst))
	}
	if c.Server.StreamBuffer < 0 {
		errs = append(errs, invalid("server.stream_buffer must not be negative, got %d", c.Server.StreamBuffer))
	}
	return errs
}

func (c *Config) validateProviders() []error {
	var errs []error
	for name := range c.Providers {
		if !isKnownProvider(name) {
			errs = append(errs, invalid("providers.%s is not a supported provider %v", name, KnownProviders))
		}
	}
	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	refs := append([]string{c.Models.Default}, c.Models.Failover...)
	for i, ref := range refs {
		field := "models.default"
		if i > 0 {
			field = "models.failover[" + strconv.Itoa(i-1) + "]"
		}
		name, model, ok := strings.Cut(ref, "/")
		if !ok || name == "" || model == "" {
			errs = append(errs, invalid("%s must be in \"provider/model\" format, got %q", field, ref))
			continue
		}
		// A nil providers map means nothing was configured yet, which
		// is valid for commands that never call a model.
		if c.Providers != nil {
			if _, ok := c.Providers[name]; !ok {
				errs = append(errs, invalid("%s %q references provider %q which is not configured", field, ref, name))
			}
		}
	}
	return errs
}

func (c *Config) validateRuntime() []error {
	var errs []error
	if c.Runtime.MaxTokens <= 0 {
		errs = append(errs, invalid("runtime.max_tokens must be greater than 0, got %d", c.Runtime.MaxTokens))
	}
	if c.Runtime.ToolTimeout <= 0 {
		errs = append(errs, invalid("runtime.tool_timeout must be positive, got %s", c.Runtime.ToolTimeout))
	}
	if c.Runtime.ConnectTimeout <= 0 {
		errs = append(errs, invalid("runtime.connect_timeout must be positive, got %s", c.Runtime.ConnectTimeout))
	}
	if c.Runtime.MaxParallelTools <= 0 {
		errs = append(errs, invalid("runtime.max_parallel_tools must be greater than 0, got %d", c.Runtime.MaxParallelTools))
	}
	if c.Storage.Audit.Enabled && c.Storage.Audit.Backend == "sqlite" && c.Storage.Audit.Path == "" {
		errs = append(errs, invalid("storage.audit.path is required when the sqlite audit log is enabled"))
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, invalid("logging.format must be one of [text, json], got %q", c.Logging.Format))
	}
	return errs
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, invalid("logging.level must be one of [debug, info, warn, error], got %q", s)
	}
	return level, nil
}

func isKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}
