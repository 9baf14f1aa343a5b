// Package config loads the control plane's configuration from a YAML
// file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's full runtime configuration.
type Config struct {
	DataRoot          string        `yaml:"data_root"`
	SnapshotRoot      string        `yaml:"snapshot_root"`
	RuntimeSocket     string        `yaml:"runtime_socket"`
	DefaultHostIP     string        `yaml:"default_host_ip"`
	VnetDefaultName   string        `yaml:"vnet_default_name"`
	VnetCIDR          string        `yaml:"vnet_cidr"`
	HealthIntervalS   int           `yaml:"health_interval_s"`
	MetricsIntervalS  int           `yaml:"metrics_interval_s"`
	MetricsRetentionD int           `yaml:"metrics_retention_days"`
	ImagePullTimeoutS int           `yaml:"image_pull_timeout_s"`
	ProbePoolSize     int           `yaml:"probe_pool_size"`
	PortRangeStart    int           `yaml:"port_range_start"`
	PortRangeEnd      int           `yaml:"port_range_end"`
	HealthRetention   int           `yaml:"health_retention_samples"`
	MetricsHistory    int           `yaml:"metrics_history_samples"`
	AutoRestart       bool          `yaml:"auto_restart"`
	RestartThreshold  int           `yaml:"restart_threshold"`
	ReadinessTimeouts map[string]int `yaml:"readiness_timeout_s_per_engine"`
	APIListenAddr     string        `yaml:"api_listen_addr"`
	LogLevel          string        `yaml:"log_level"`
	LogJSON           bool          `yaml:"log_json"`
}

// Default returns a Config populated with the daemon's default values.
func Default() *Config {
	return &Config{
		DataRoot:          "/var/lib/dbaasd",
		SnapshotRoot:      "/var/lib/dbaasd/snapshots",
		RuntimeSocket:     "/run/containerd/containerd.sock",
		DefaultHostIP:     "127.0.0.1",
		VnetDefaultName:   "dbaas0",
		VnetCIDR:          "10.88.0.0/16",
		HealthIntervalS:   30,
		MetricsIntervalS:  10,
		MetricsRetentionD: 30,
		ImagePullTimeoutS: 360,
		ProbePoolSize:     16,
		PortRangeStart:    20000,
		PortRangeEnd:      39999,
		HealthRetention:   1000,
		MetricsHistory:    720,
		AutoRestart:       false,
		RestartThreshold:  3,
		ReadinessTimeouts: map[string]int{
			"default":     120,
			"search":      300,
			"analytical":  300,
		},
		APIListenAddr: ":8080",
		LogLevel:      "info",
		LogJSON:       true,
	}
}

// Load reads path (if it exists) over the defaults, then applies
// DBAAS_*-prefixed environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	intv := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	boolv := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("DBAAS_DATA_ROOT", &cfg.DataRoot)
	str("DBAAS_SNAPSHOT_ROOT", &cfg.SnapshotRoot)
	str("DBAAS_RUNTIME_SOCKET", &cfg.RuntimeSocket)
	str("DBAAS_DEFAULT_HOST_IP", &cfg.DefaultHostIP)
	str("DBAAS_VNET_DEFAULT_NAME", &cfg.VnetDefaultName)
	str("DBAAS_VNET_CIDR", &cfg.VnetCIDR)
	str("DBAAS_API_LISTEN_ADDR", &cfg.APIListenAddr)
	str("DBAAS_LOG_LEVEL", &cfg.LogLevel)
	intv("DBAAS_HEALTH_INTERVAL_S", &cfg.HealthIntervalS)
	intv("DBAAS_METRICS_INTERVAL_S", &cfg.MetricsIntervalS)
	intv("DBAAS_METRICS_RETENTION_DAYS", &cfg.MetricsRetentionD)
	intv("DBAAS_IMAGE_PULL_TIMEOUT_S", &cfg.ImagePullTimeoutS)
	intv("DBAAS_PROBE_POOL_SIZE", &cfg.ProbePoolSize)
	boolv("DBAAS_AUTO_RESTART", &cfg.AutoRestart)
	boolv("DBAAS_LOG_JSON", &cfg.LogJSON)
}

// HealthInterval returns the configured health-probe period as a duration.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalS) * time.Second
}

// MetricsInterval returns the configured metrics-sample period as a duration.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalS) * time.Second
}

// ReadinessTimeout returns the configured readiness-gate timeout for the
// given engine family, falling back to "default" when unset.
func (c *Config) ReadinessTimeout(family string) time.Duration {
	if s, ok := c.ReadinessTimeouts[family]; ok {
		return time.Duration(s) * time.Second
	}
	return time.Duration(c.ReadinessTimeouts["default"]) * time.Second
}
