// Package config provides the configuration system for Inlet agents.
// A single Config structure describes the listen endpoint, the optional
// decompression stage, the storage target, and the operational limits of
// one agent. Configuration is resolved once at startup and read-only
// afterwards.
//
// Configuration files are YAML with ${VAR_NAME} environment variable
// substitution:
//
//	endpoint:
//	  address: 0.0.0.0:9700
//	compression: gzip
//	parser: ndjson
//	storage:
//	  host: ${MONGO_HOST}
//	  db: harvest
//	  collection_name: observations
package config

import (
	"strings"
	"time"

	"github.com/inlethq/inlet/pkg/compression"
	"github.com/inlethq/inlet/pkg/errors"
)

// Config is the complete configuration of one ingestion agent.
type Config struct {
	// Endpoint describes where the agent listens for byte streams
	Endpoint EndpointConfig `yaml:"endpoint" json:"endpoint"`

	// Compression names the decompression stage applied to inbound
	// streams: none, gzip, zstd, snappy or lz4. Absent means none.
	Compression string `yaml:"compression" json:"compression"`

	// Parser names the registered parser the runtime injects. Agents
	// embedding Inlet as a library inject a parser directly instead.
	Parser string `yaml:"parser" json:"parser"`

	// Storage describes the document store target
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Limits bound resource usage and shutdown behavior
	Limits LimitsConfig `yaml:"limits" json:"limits"`

	// Observability settings for logging, metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// EndpointConfig describes the listen endpoint. The address form selects
// the network: host:port listens on TCP, a filesystem path (or unix://
// prefix) listens on a Unix domain socket.
type EndpointConfig struct {
	// Address is the endpoint to listen on
	Address string `yaml:"address" json:"address"`
}

// Network returns the network for net.Listen derived from the address form.
func (e EndpointConfig) Network() string {
	addr := strings.TrimPrefix(e.Address, "tcp://")
	if strings.HasPrefix(e.Address, "unix://") || strings.ContainsRune(addr, '/') {
		return "unix"
	}
	return "tcp"
}

// Target returns the address with any scheme prefix stripped, suitable for
// net.Listen.
func (e EndpointConfig) Target() string {
	addr := strings.TrimPrefix(e.Address, "unix://")
	addr = strings.TrimPrefix(addr, "tcp://")
	return addr
}

// StorageConfig describes the document store documents are persisted to.
type StorageConfig struct {
	// Driver selects the store implementation: mongodb or memory
	Driver string `yaml:"driver" json:"driver"`
	// Host is the explicit store address (host:port). When empty the
	// environment is consulted; see storage.ResolveTarget.
	Host string `yaml:"host" json:"host"`
	// DB is the database name
	DB string `yaml:"db" json:"db"`
	// CollectionName is the collection documents are inserted into
	CollectionName string `yaml:"collection_name" json:"collectionName"`
	// ConnectTimeout bounds the startup connection attempt
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// LimitsConfig bounds resource usage of the agent.
type LimitsConfig struct {
	// MaxConnections caps concurrently served connections (0 = unlimited)
	MaxConnections int `yaml:"max_connections" json:"max_connections"`
	// ReadBufferSize sets the per-connection read buffer in bytes
	ReadBufferSize int `yaml:"read_buffer_size" json:"read_buffer_size"`
	// ReadIdleTimeout closes a connection idle for this long (0 = never)
	ReadIdleTimeout time.Duration `yaml:"read_idle_timeout" json:"read_idle_timeout"`
	// ShutdownGrace bounds how long shutdown waits for in-flight pipelines
	ShutdownGrace time.Duration `yaml:"shutdown_grace" json:"shutdown_grace"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	// LogLevel sets the process log level (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// MetricsAddr serves Prometheus metrics when non-empty (host:port)
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	// EnableTracing turns on OpenTelemetry span export
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// TraceSampleRate sets the trace sampling ratio (0.0 to 1.0)
	TraceSampleRate float64 `yaml:"trace_sample_rate" json:"trace_sample_rate"`
	// HeartbeatInterval emits a periodic resource status line (0 = off)
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`
}

// New returns a Config populated with defaults. Values loaded from a file
// override them.
func New() *Config {
	return &Config{
		Compression: string(compression.None),
		Storage: StorageConfig{
			Driver:         "mongodb",
			ConnectTimeout: 10 * time.Second,
		},
		Limits: LimitsConfig{
			MaxConnections: 0,
			ReadBufferSize: 64 * 1024,
			ShutdownGrace:  30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:        "info",
			TraceSampleRate: 1.0,
		},
	}
}

// Normalize fills absent values with defaults. It never overrides a value
// the file or the environment set.
func (c *Config) Normalize() {
	if c.Compression == "" {
		c.Compression = string(compression.None)
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "mongodb"
	}
	if c.Storage.ConnectTimeout <= 0 {
		c.Storage.ConnectTimeout = 10 * time.Second
	}
	if c.Limits.ReadBufferSize <= 0 {
		c.Limits.ReadBufferSize = 64 * 1024
	}
	if c.Limits.ShutdownGrace <= 0 {
		c.Limits.ShutdownGrace = 30 * time.Second
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	if c.Observability.TraceSampleRate <= 0 {
		c.Observability.TraceSampleRate = 1.0
	}
}

// Validate checks the configuration for values the agent cannot start
// with. Unknown compression algorithms are rejected here, not silently
// downgraded.
func (c *Config) Validate() error {
	if c.Endpoint.Address == "" {
		return errors.New(errors.ErrorTypeConfig, "endpoint.address is required")
	}
	if _, err := compression.Parse(c.Compression); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "mongodb", "memory":
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown storage driver: %s", c.Storage.Driver)
	}
	if c.Storage.DB == "" {
		return errors.New(errors.ErrorTypeConfig, "storage.db is required")
	}
	if c.Storage.CollectionName == "" {
		return errors.New(errors.ErrorTypeConfig, "storage.collection_name is required")
	}
	if c.Limits.MaxConnections < 0 {
		return errors.New(errors.ErrorTypeConfig, "limits.max_connections must not be negative")
	}
	if c.Observability.TraceSampleRate < 0 || c.Observability.TraceSampleRate > 1 {
		return errors.New(errors.ErrorTypeConfig, "observability.trace_sample_rate must be between 0 and 1")
	}
	return nil
}

// LoadFile loads, normalizes and validates an agent configuration.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := Load(path, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
