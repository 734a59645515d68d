// Package config loads the control plane's runtime configuration from a
// YAML file, the way cmd/warren's apply command loads a resource file,
// generalized here to the process's own startup configuration rather than
// a cluster resource.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the control plane process's startup configuration.
type Config struct {
	Cluster        ClusterConfig        `yaml:"cluster"`
	Etcd           EtcdConfig           `yaml:"etcd"`
	Node           NodeConfig           `yaml:"node"`
	Controller     ControllerConfig     `yaml:"controller"`
	Task           TaskConfig           `yaml:"task"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

type ClusterConfig struct {
	Name string `yaml:"name"`
}

type EtcdConfig struct {
	Endpoints               []string `yaml:"endpoints"`
	OperationTimeoutSeconds int      `yaml:"operation_timeout_seconds"`
}

// OperationTimeout returns the configured etcd operation timeout, defaulting
// to 5 seconds when unset.
func (e EtcdConfig) OperationTimeout() time.Duration {
	if e.OperationTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(e.OperationTimeoutSeconds) * time.Second
}

type NodeConfig struct {
	Name string `yaml:"name"`
}

type ControllerConfig struct {
	RuntimeEnv string `yaml:"runtime_env"`
}

type TaskConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Interval returns the configured scheduler tick interval, defaulting to
// 10 seconds when unset.
func (t TaskConfig) Interval() time.Duration {
	if t.IntervalSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(t.IntervalSeconds) * time.Second
}

type LeaderElectionConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the configured leader-election lease TTL, defaulting to 15
// seconds when unset.
func (l LeaderElectionConfig) TTL() time.Duration {
	if l.TTLSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(l.TTLSeconds) * time.Second
}

// Load reads and parses a YAML config file at path, applying defaults and
// validating required fields.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return cfg, cfg.Validate()
}

func applyDefaults(cfg *Config) {
	if cfg.Controller.RuntimeEnv == "" {
		cfg.Controller.RuntimeEnv = "staging"
	}
}

// Validate checks the fields spec.md requires operators to set explicitly.
func (c Config) Validate() error {
	if c.Cluster.Name == "" {
		return fmt.Errorf("cluster.name is required")
	}
	if len(c.Etcd.Endpoints) == 0 {
		return fmt.Errorf("etcd.endpoints is required")
	}
	if c.Node.Name == "" {
		return fmt.Errorf("node.name is required")
	}
	return nil
}
