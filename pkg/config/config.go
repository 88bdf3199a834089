// Package config loads runtime settings from defaults, an optional YAML or
// JSON file, and MCPRT_ environment variables, in that order of precedence.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/observability"
	"github.com/Rheron1848/mcprt/pkg/protocol"
)

// EnvPrefix is stripped from environment variables. A double underscore
// separates nesting levels: MCPRT_SERVER__IDLE_TIMEOUT sets
// server.idle_timeout.
const EnvPrefix = "MCPRT_"

// Config is the full runtime configuration
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Client  ClientConfig  `koanf:"client"`
	Logging LoggingConfig `koanf:"logging"`
	Metrics MetricsConfig `koanf:"metrics"`
	Tracing TracingConfig `koanf:"tracing"`
}

// ServerConfig configures the serving side
type ServerConfig struct {
	Name             string        `koanf:"name"`
	Version          string        `koanf:"version"`
	Transport        string        `koanf:"transport"`
	Addr             string        `koanf:"addr"`
	Path             string        `koanf:"path"`
	IdleTimeout      time.Duration `koanf:"idle_timeout"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
	ReplayBuffer     int           `koanf:"replay_buffer"`
	AllowedOrigins   []string      `koanf:"allowed_origins"`
	MaxBodyBytes     int64         `koanf:"max_body_bytes"`
	ProtocolVersions []string      `koanf:"protocol_versions"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	MaxHandlers      int           `koanf:"max_handlers"`
	AuthTokens       []string      `koanf:"auth_tokens"`
}

// ClientConfig configures the calling side
type ClientConfig struct {
	URL            string        `koanf:"url"`
	Command        string        `koanf:"command"`
	Args           []string      `koanf:"args"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	Retries        int           `koanf:"retries"`
	Token          string        `koanf:"token"`
}

// LoggingConfig selects log level and encoding
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
}

// TracingConfig controls span export
type TracingConfig struct {
	Exporter    string  `koanf:"exporter"`
	Endpoint    string  `koanf:"endpoint"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
	Environment string  `koanf:"environment"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:             "mcprt",
			Version:          "0.1.0",
			Transport:        "stdio",
			Addr:             ":8080",
			Path:             "/mcp",
			IdleTimeout:      30 * time.Minute,
			SweepInterval:    time.Minute,
			ReplayBuffer:     256,
			MaxBodyBytes:     4 << 20,
			ProtocolVersions: append([]string(nil), protocol.SupportedProtocolVersions...),
			HandshakeTimeout: 30 * time.Second,
			MaxHandlers:      64,
		},
		Client: ClientConfig{
			URL:            "http://localhost:8080/mcp",
			RequestTimeout: 30 * time.Second,
			Retries:        3,
		},
		Logging: LoggingConfig{Level: "info", Format: string(logging.FormatJSON)},
		Metrics: MetricsConfig{Path: "/metrics", Namespace: "mcp"},
		Tracing: TracingConfig{Exporter: string(observability.ExporterTypeNoop), SampleRate: 1},
	}
}

// Load builds the configuration. path may be empty; otherwise its
// extension picks the parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, fmt.Errorf("config file %s must be .json, .yaml or .yml", path)
	}
}

var listKeys = map[string]bool{
	"server.allowed_origins":   true,
	"server.protocol_versions": true,
	"server.auth_tokens":       true,
	"client.args":              true,
}

// envKey maps MCPRT_SERVER__IDLE_TIMEOUT to server.idle_timeout. List
// values are comma separated.
func envKey(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}
	return key, value
}

// Validate rejects settings the runtime cannot start with
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("server.transport must be stdio or http, got %q", c.Server.Transport)
	}
	if c.Server.Transport == "http" && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required for the http transport")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with /, got %q", c.Server.Path)
	}
	if c.Server.IdleTimeout <= 0 || c.Server.SweepInterval <= 0 {
		return fmt.Errorf("server.idle_timeout and server.sweep_interval must be positive")
	}
	if c.Server.ReplayBuffer < 0 {
		return fmt.Errorf("server.replay_buffer must not be negative")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if len(c.Server.ProtocolVersions) == 0 {
		return fmt.Errorf("server.protocol_versions must not be empty")
	}
	for _, v := range c.Server.ProtocolVersions {
		if !contains(protocol.SupportedProtocolVersions, v) {
			return fmt.Errorf("server.protocol_versions: unknown version %q", v)
		}
	}
	if c.Server.MaxHandlers <= 0 {
		return fmt.Errorf("server.max_handlers must be positive")
	}
	if c.Client.Retries < 0 {
		return fmt.Errorf("client.retries must not be negative")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch logging.Format(c.Logging.Format) {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	switch observability.ExporterType(c.Tracing.Exporter) {
	case observability.ExporterTypeNoop:
	case observability.ExporterTypeOTLPGRPC, observability.ExporterTypeOTLPHTTP:
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required for exporter %s", c.Tracing.Exporter)
		}
	default:
		return fmt.Errorf("tracing.exporter must be noop, otlp-grpc or otlp-http, got %q", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	return nil
}

// LoggerConfig converts the logging section
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: logging.Format(c.Logging.Format)}
}

// TracingProviderConfig converts the tracing section
func (c *Config) TracingProviderConfig() observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName:    c.Server.Name,
		ServiceVersion: c.Server.Version,
		Environment:    c.Tracing.Environment,
		ExporterType:   observability.ExporterType(c.Tracing.Exporter),
		Endpoint:       c.Tracing.Endpoint,
		Insecure:       c.Tracing.Insecure,
		SampleRate:     c.Tracing.SampleRate,
	}
}

// MetricsProviderConfig converts the metrics section
func (c *Config) MetricsProviderConfig() observability.MetricsConfig {
	return observability.MetricsConfig{Namespace: c.Metrics.Namespace}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
