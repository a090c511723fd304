// Package config provides configuration loading for hydrareq using Viper.
// Configuration is loaded from YAML files with automatic environment variable binding.
//
// Environment variables use the HYDRAREQ prefix and underscore-separated keys:
//   - HYDRAREQ_ENGINE_DEFAULT_UDP_TIMEOUT -> engine.default_udp_timeout
//   - HYDRAREQ_ENGINE_DEFAULT_UDP_RETRIES -> engine.default_udp_retries
//   - HYDRAREQ_DISPATCH_BLACKHOLE -> dispatch.blackhole (comma-separated CIDRs)
//   - HYDRAREQ_LOGGING_LEVEL -> logging.level
package config

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode specifies how the receive-loop worker count is determined.
type WorkersMode int

const (
	// WorkersAuto automatically determines worker count based on available CPUs.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// EngineConfig contains request-engine tuning parameters.
type EngineConfig struct {
	DefaultTotalTimeout string `yaml:"default_total_timeout" mapstructure:"default_total_timeout" json:"default_total_timeout"`
	DefaultUDPTimeout   string `yaml:"default_udp_timeout"   mapstructure:"default_udp_timeout"   json:"default_udp_timeout"`
	DefaultUDPRetries   int    `yaml:"default_udp_retries"   mapstructure:"default_udp_retries"   json:"default_udp_retries"`
	// MaxConcurrentRequests is a cap on live requests, zero meaning
	// unbounded. It is loaded and validated here only; reqengine does not
	// read it and imposes no cap of its own.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests" mapstructure:"max_concurrent_requests" json:"max_concurrent_requests"`
}

// DispatchConfig contains socket-dispatch tuning parameters.
type DispatchConfig struct {
	Workers         WorkerSetting `yaml:"-"                mapstructure:"-"`
	WorkersRaw      string        `yaml:"workers"           mapstructure:"workers"           json:"workers"`
	UDPBufferSize   int           `yaml:"udp_buffer_size"   mapstructure:"udp_buffer_size"   json:"udp_buffer_size"`
	DefaultDSCP     int           `yaml:"default_dscp"      mapstructure:"default_dscp"      json:"default_dscp"`
	RateLimitQPS    float64       `yaml:"rate_limit_qps"    mapstructure:"rate_limit_qps"    json:"rate_limit_qps"`
	Blackhole       []string      `yaml:"blackhole"         mapstructure:"blackhole"         json:"blackhole,omitempty"`
	TCPIdleTimeout  string        `yaml:"tcp_idle_timeout"  mapstructure:"tcp_idle_timeout"  json:"tcp_idle_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// TSIGConfig holds a TSIG key name and secret. It is loaded here only;
// nothing in this module applies it to queries, and reqengine signs only
// with a key passed in CreateViaParams.TSIGKey.
type TSIGConfig struct {
	Name   string `yaml:"name"   mapstructure:"name"   json:"name"`
	Secret string `yaml:"secret" mapstructure:"secret" json:"-"`
}

// Config is the root configuration structure.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"   mapstructure:"engine"`
	Dispatch DispatchConfig `yaml:"dispatch" mapstructure:"dispatch"`
	Logging  LoggingConfig  `yaml:"logging"  mapstructure:"logging"`
	TSIG     TSIGConfig     `yaml:"tsig"     mapstructure:"tsig"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("HYDRAREQ_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable overrides.
// This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (HYDRAREQ_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
