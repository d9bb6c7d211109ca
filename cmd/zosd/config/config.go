// Package config defines zosd's on-disk TOML configuration, in the
// teacher's cmd/containerd/command/config.go style: a plain struct
// decoded with pelletier/go-toml/v2, a documented Default(), and a `zosctl
// config default` path that dumps it back out.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is zosd's composition-root configuration.
type Config struct {
	Version int `toml:"version"`

	// HAL names which backend the composition root constructs: "sim",
	// "qemu", or "baremetal".
	HAL string `toml:"hal"`

	CommitLog CommitLogConfig `toml:"commit_log"`
	SysLog    SysLogConfig    `toml:"syslog"`
	Qemu      QemuConfig      `toml:"qemu"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

type CommitLogConfig struct {
	Path string `toml:"path"`
}

type SysLogConfig struct {
	Capacity int `toml:"capacity"`
}

type QemuConfig struct {
	AgentSocketPath string `toml:"agent_socket_path"`
}

type MetricsConfig struct {
	Disabled bool   `toml:"disabled"`
	Address  string `toml:"address"`
}

// ConfigVersion is bumped whenever Config's shape changes incompatibly.
const ConfigVersion = 1

// Default returns zosd's default configuration: the simhal backend, a
// commit log under /var/lib/zeroos, and metrics enabled on loopback.
func Default() *Config {
	return &Config{
		Version: ConfigVersion,
		HAL:     "sim",
		CommitLog: CommitLogConfig{
			Path: "/var/lib/zeroos/commit.db",
		},
		SysLog: SysLogConfig{
			Capacity: 4096,
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9090",
		},
	}
}

// Load reads and decodes path into a fresh Config seeded with Default, so
// any field the file omits keeps its default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("zeroos/config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("zeroos/config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// WriteTo encodes cfg as indented TOML, matching the teacher's `ctr config
// default` output convention.
func (c *Config) WriteTo(w *os.File) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(c)
}
