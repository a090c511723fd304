// Package config provides configuration loading and validation for hydrareq.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/dnsrequest/main.go)
//  2. Environment variables (HYDRAREQ_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables are mapped from HYDRAREQ_CATEGORY_SETTING format,
// e.g., HYDRAREQ_ENGINE_DEFAULT_UDP_RETRIES maps to engine.default_udp_retries.
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Uses HYDRAREQ prefix: HYDRAREQ_ENGINE_DEFAULT_UDP_RETRIES -> engine.default_udp_retries
	v.SetEnvPrefix("HYDRAREQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New("config: failed to read config file: " + err.Error())
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	// Engine defaults
	v.SetDefault("engine.default_total_timeout", "5s")
	v.SetDefault("engine.default_udp_timeout", "0s")
	v.SetDefault("engine.default_udp_retries", 3)
	v.SetDefault("engine.max_concurrent_requests", 0)

	// Dispatch defaults
	v.SetDefault("dispatch.workers", "auto")
	v.SetDefault("dispatch.udp_buffer_size", 4096)
	v.SetDefault("dispatch.default_dscp", 0)
	v.SetDefault("dispatch.rate_limit_qps", 0.0)
	v.SetDefault("dispatch.blackhole", []string{})
	v.SetDefault("dispatch.tcp_idle_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// TSIG defaults
	v.SetDefault("tsig.name", "")
	v.SetDefault("tsig.secret", "")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadEngineConfig(v, cfg)
	loadDispatchConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadTSIGConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEngineConfig(v *viper.Viper, cfg *Config) {
	cfg.Engine.DefaultTotalTimeout = v.GetString("engine.default_total_timeout")
	cfg.Engine.DefaultUDPTimeout = v.GetString("engine.default_udp_timeout")
	cfg.Engine.DefaultUDPRetries = v.GetInt("engine.default_udp_retries")
	cfg.Engine.MaxConcurrentRequests = v.GetInt("engine.max_concurrent_requests")
}

func loadDispatchConfig(v *viper.Viper, cfg *Config) {
	cfg.Dispatch.WorkersRaw = v.GetString("dispatch.workers")
	cfg.Dispatch.Workers = parseWorkers(cfg.Dispatch.WorkersRaw)
	cfg.Dispatch.UDPBufferSize = v.GetInt("dispatch.udp_buffer_size")
	cfg.Dispatch.DefaultDSCP = v.GetInt("dispatch.default_dscp")
	cfg.Dispatch.RateLimitQPS = v.GetFloat64("dispatch.rate_limit_qps")
	cfg.Dispatch.TCPIdleTimeout = v.GetString("dispatch.tcp_idle_timeout")
	cfg.Dispatch.Blackhole = getStringSliceOrSplit(v, "dispatch.blackhole")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadTSIGConfig(v *viper.Viper, cfg *Config) {
	cfg.TSIG.Name = v.GetString("tsig.name")
	cfg.TSIG.Secret = v.GetString("tsig.secret")
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// getStringSliceOrSplit handles both slice and comma-separated string values.
func getStringSliceOrSplit(v *viper.Viper, key string) []string {
	if slice := v.GetStringSlice(key); len(slice) > 0 {
		result := make([]string, 0, len(slice))
		for _, s := range slice {
			for _, p := range strings.Split(s, ",") {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
		}
		return result
	}
	if s := v.GetString(key); s != "" {
		parts := strings.Split(s, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return nil
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if cfg.Engine.DefaultUDPRetries < 0 {
		return errors.New("engine.default_udp_retries must be >= 0")
	}
	if cfg.Engine.MaxConcurrentRequests < 0 {
		return errors.New("engine.max_concurrent_requests must be >= 0")
	}

	if cfg.Dispatch.DefaultDSCP < 0 || cfg.Dispatch.DefaultDSCP > 63 {
		return errors.New("dispatch.default_dscp must be 0..63")
	}
	if cfg.Dispatch.UDPBufferSize <= 0 {
		cfg.Dispatch.UDPBufferSize = 4096
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	return nil
}
