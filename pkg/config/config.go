package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iotedge/kube-agent/pkg/edge"
)

// Config holds the runtime configuration of the edge agent controller.
type Config struct {
	// Device identity
	HubHostname     string `yaml:"hubHostname"`
	DeviceID        string `yaml:"deviceId"`
	GatewayHostname string `yaml:"gatewayHostname"`
	DeviceHostname  string `yaml:"deviceHostname"`

	// Cluster placement
	Namespace  string `yaml:"namespace"`
	Kubeconfig string `yaml:"kubeconfig"`

	// Workload settings
	ProxyImage string `yaml:"proxyImage"`

	// Observability
	LogLevel    string `yaml:"logLevel"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// DefaultConfig returns sensible defaults with environment variables
// applied on top.
func DefaultConfig() *Config {
	cfg := &Config{
		Namespace:  edge.WorkloadNamespace,
		ProxyImage: edge.ProxyImage,
		LogLevel:   slog.LevelInfo.String(),
	}
	cfg.applyEnv()
	return cfg
}

// Load reads a YAML config file and applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Namespace:  edge.WorkloadNamespace,
		ProxyImage: edge.ProxyImage,
		LogLevel:   slog.LevelInfo.String(),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.HubHostname, "IOTEDGE_IOTHUBHOSTNAME")
	setFromEnv(&c.DeviceID, "IOTEDGE_DEVICEID")
	setFromEnv(&c.GatewayHostname, "IOTEDGE_GATEWAYHOSTNAME")
	setFromEnv(&c.DeviceHostname, "EDGE_DEVICE_HOSTNAME")
	setFromEnv(&c.Namespace, "EDGE_NAMESPACE")
	setFromEnv(&c.ProxyImage, "PROXY_IMAGE")
	setFromEnv(&c.LogLevel, "RuntimeLogLevel")
	setFromEnv(&c.MetricsAddr, "METRICS_ADDR")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the identity the controller serves is complete.
func (c *Config) Validate() error {
	if c.HubHostname == "" {
		return fmt.Errorf("hub hostname is required")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	return nil
}

// SlogLevel parses the configured log level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
