// Package config loads and validates the node configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ThreadsConfig sets the per-tier thread counts of the deployment.
type ThreadsConfig struct {
	Routing uint32 `yaml:"routing"`
	Memory  uint32 `yaml:"memory"`
	Disk    uint32 `yaml:"disk"`
}

// ReplicationConfig sets the default replication factors.
type ReplicationConfig struct {
	Memory  uint32 `yaml:"memory"`
	Ebs     uint32 `yaml:"ebs"`
	Local   uint32 `yaml:"local"`
	Minimum uint32 `yaml:"minimum"`
	// Warmup pre-populates the replication cache with the synthetic
	// benchmark key-space.
	Warmup bool `yaml:"warmup"`
}

// CapacityConfig sets the per-node storage budgets in bytes.
type CapacityConfig struct {
	Memory uint64 `yaml:"memory"`
	Ebs    uint64 `yaml:"ebs"`
}

// UserConfig names the addresses clients and the routing tier use.
type UserConfig struct {
	IP         string   `yaml:"ip"`
	Routing    []string `yaml:"routing"`
	RoutingElb string   `yaml:"routing-elb"`
}

// ServerConfig identifies this node.
type ServerConfig struct {
	Tier      string `yaml:"tier"`
	PublicIP  string `yaml:"public_ip"`
	PrivateIP string `yaml:"private_ip"`
}

// MembershipConfig configures the cluster membership layer.
type MembershipConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BindPort       int           `yaml:"bind_port"`
	SeedNodes      []string      `yaml:"seed_nodes"`
	GossipInterval time.Duration `yaml:"gossip_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete node configuration.
type Config struct {
	Threads     ThreadsConfig     `yaml:"threads"`
	Replication ReplicationConfig `yaml:"replication"`
	Capacity    CapacityConfig    `yaml:"capacity"`
	Ebs         string            `yaml:"ebs"`
	User        UserConfig        `yaml:"user"`
	Server      ServerConfig      `yaml:"server"`
	Membership  MembershipConfig  `yaml:"gossip"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
	HealthPort  int               `yaml:"health_port"`
}

// Load reads configuration from a file, applies defaults and validates.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration.
func setDefaults(cfg *Config) {
	if cfg.Threads.Routing == 0 {
		cfg.Threads.Routing = 1
	}
	if cfg.Threads.Memory == 0 {
		cfg.Threads.Memory = 4
	}
	if cfg.Threads.Disk == 0 {
		cfg.Threads.Disk = 4
	}

	if cfg.Replication.Memory == 0 {
		cfg.Replication.Memory = 1
	}
	if cfg.Replication.Ebs == 0 {
		cfg.Replication.Ebs = 1
	}
	if cfg.Replication.Local == 0 {
		cfg.Replication.Local = 1
	}
	if cfg.Replication.Minimum == 0 {
		cfg.Replication.Minimum = 1
	}

	if cfg.Ebs == "" {
		cfg.Ebs = "/var/lib/anna/ebs"
	}
	if cfg.Server.Tier == "" {
		cfg.Server.Tier = "memory"
	}
	if cfg.Server.PublicIP == "" {
		cfg.Server.PublicIP = cfg.User.IP
	}
	if cfg.Server.PrivateIP == "" {
		cfg.Server.PrivateIP = cfg.Server.PublicIP
	}

	if cfg.Membership.BindPort == 0 {
		cfg.Membership.BindPort = 7946
	}
	if cfg.Membership.GossipInterval == 0 {
		cfg.Membership.GossipInterval = 200 * time.Millisecond
	}
	if cfg.Membership.ProbeTimeout == 0 {
		cfg.Membership.ProbeTimeout = 500 * time.Millisecond
	}
	if cfg.Membership.ProbeInterval == 0 {
		cfg.Membership.ProbeInterval = time.Second
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.HealthPort == 0 {
		cfg.HealthPort = 8081
	}

	if len(cfg.User.Routing) == 0 && cfg.User.RoutingElb != "" {
		cfg.User.Routing = []string{cfg.User.RoutingElb}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.User.IP == "" && c.Server.PublicIP == "" {
		return fmt.Errorf("user.ip is required")
	}
	switch c.Server.Tier {
	case "memory", "disk":
	default:
		return fmt.Errorf("server.tier must be memory or disk, got %q", c.Server.Tier)
	}
	if c.Replication.Minimum > c.Replication.Memory && c.Replication.Minimum > c.Replication.Ebs {
		return fmt.Errorf("replication.minimum exceeds every tier's replication factor")
	}
	return nil
}
