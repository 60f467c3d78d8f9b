package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration of a flock simulation run.
// Everything has a working default; a YAML file overrides selectively.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Output    OutputConfig    `yaml:"output"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
}

// SchedulerConfig tunes the worker pools and task splitting
type SchedulerConfig struct {
	// Slots is the worker count per queue; defaults to the CPU count
	Slots int `yaml:"slots"`

	// MinVectorSize is the smallest agent window a split may produce
	MinVectorSize int `yaml:"min_vector_size"`

	// MaxTasksPerSplit bounds sub-tasks per split; defaults to Slots
	MaxTasksPerSplit int `yaml:"max_tasks_per_split"`
}

// LoggingConfig controls engine logging
type LoggingConfig struct {
	// Level is one of debug, info, warn, error, none
	Level string `yaml:"level"`
}

// OutputConfig selects the population snapshot writer
type OutputConfig struct {
	// Format is one of xml, csv, sqlite, postgres, redis, hdf5
	Format string `yaml:"format"`

	// Base is the snapshot path prefix; iteration number and extension
	// are appended
	Base string `yaml:"base"`
}

// PostgresConfig configures the postgres snapshot writer
type PostgresConfig struct {
	ConnString  string `yaml:"conn_string"`
	TablePrefix string `yaml:"table_prefix"`
}

// RedisConfig configures the redis snapshot writer
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Slots:         runtime.NumCPU(),
			MinVectorSize: 50,
		},
		Logging: LoggingConfig{Level: "info"},
		Output:  OutputConfig{Format: "xml"},
		Redis:   RedisConfig{Addr: "localhost:6379"},
	}
}

// Load reads a YAML config file over the defaults. A missing path is
// not an error: the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg.normalized(), nil
}

func (c *Config) normalized() *Config {
	if c.Scheduler.Slots < 1 {
		c.Scheduler.Slots = runtime.NumCPU()
	}
	if c.Scheduler.MinVectorSize < 1 {
		c.Scheduler.MinVectorSize = 50
	}
	if c.Scheduler.MaxTasksPerSplit < 1 {
		c.Scheduler.MaxTasksPerSplit = c.Scheduler.Slots
	}
	return c
}
