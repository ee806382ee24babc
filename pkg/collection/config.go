package collection

import (
	"github.com/DJune12138/Collection3/internal/app/config"
)

// Config re-exports the root configuration struct so embedding programs can
// build or adjust it in code.
type Config = config.Config

type (
	EngineConfig  = config.EngineConfig
	MetricsConfig = config.MetricsConfig
	AlertConfig   = config.AlertConfig
)

// LoadConfig reads, defaults and validates a YAML file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig is LoadConfig for an in-memory document.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}

// DefaultConfig returns the configuration of an empty document.
func DefaultConfig() *Config {
	return config.Default()
}
