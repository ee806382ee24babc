package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/DJune12138/Collection3/internal/adapters/db"
	"github.com/DJune12138/Collection3/internal/adapters/observability"
	"github.com/DJune12138/Collection3/internal/adapters/opcua"
	"github.com/DJune12138/Collection3/internal/adapters/web"
	"github.com/DJune12138/Collection3/internal/app/registry"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// Alert channel kinds.
const (
	AlertNone    = "none"
	AlertWebhook = "webhook"
	AlertNATS    = "nats"
)

type Config struct {
	Engine          EngineConfig                        `yaml:"engine"`
	Businesses      registry.Selection                  `yaml:"businesses"`
	BusinessOptions map[string]registry.BusinessOptions `yaml:"business_options"`
	Log             observability.LogConfig             `yaml:"log"`
	Metrics         MetricsConfig                       `yaml:"metrics"`
	Alert           AlertConfig                         `yaml:"alert"`
	Web             web.Config                          `yaml:"web"`
	Databases       map[string]db.Conn                  `yaml:"databases"`
	OPCUA           opcua.Config                        `yaml:"opcua"`
}

type EngineConfig struct {
	MaxAsync              int           `yaml:"max_async"`
	ConcurrencyMultiplier int           `yaml:"concurrency_multiplier"`
	PollInterval          time.Duration `yaml:"poll_interval"`
	MaxPhases             int           `yaml:"max_phases"`
}

// Policy converts the section into the engine's policy.
func (e EngineConfig) Policy() ports.Policy {
	return ports.Policy{
		MaxAsync:              e.MaxAsync,
		ConcurrencyMultiplier: e.ConcurrencyMultiplier,
		PollInterval:          e.PollInterval,
		MaxPhases:             e.MaxPhases,
	}
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type AlertConfig struct {
	Kind     string        `yaml:"kind"`
	URL      string        `yaml:"url"`
	Subject  string        `yaml:"subject"`
	Cooldown time.Duration `yaml:"cooldown"`
	Timeout  time.Duration `yaml:"timeout"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document, applies defaults and validates the result.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.Wrap(err, domain.KindValidationFailure, "config")
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, domain.Wrap(err, domain.KindValidationFailure, "config")
	}
	return &cfg, nil
}

// Default returns the configuration of an empty document.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Engine.MaxAsync == 0 {
		c.Engine.MaxAsync = 10
	}
	if c.Engine.ConcurrencyMultiplier == 0 {
		c.Engine.ConcurrencyMultiplier = 2
	}
	if c.Engine.PollInterval == 0 {
		c.Engine.PollInterval = 200 * time.Millisecond
	}
	if c.Engine.MaxPhases == 0 {
		c.Engine.MaxPhases = 10
	}
	if c.Businesses == nil {
		c.Businesses = registry.Selection{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Alert.Kind == "" {
		c.Alert.Kind = AlertNone
	}
	if c.Alert.Subject == "" {
		c.Alert.Subject = "collection.alerts"
	}
	if c.Alert.Cooldown == 0 {
		c.Alert.Cooldown = 10 * time.Minute
	}
	if c.Alert.Timeout == 0 {
		c.Alert.Timeout = 5 * time.Second
	}

	def := web.DefaultConfig()
	if c.Web.Timeout == 0 {
		c.Web.Timeout = def.Timeout
	}
	if c.Web.Retry == 0 {
		c.Web.Retry = def.Retry
	}
	if c.Web.RetryInterval == 0 {
		c.Web.RetryInterval = def.RetryInterval
	}
	if c.Web.UserAgent == "" {
		c.Web.UserAgent = def.UserAgent
	}

	c.OPCUA.ApplyDefaults()
}

func (c *Config) validate() error {
	var errs error
	if c.Engine.MaxAsync < 1 {
		errs = multierr.Append(errs, fmt.Errorf("engine.max_async must be positive, got %d", c.Engine.MaxAsync))
	}
	if c.Engine.ConcurrencyMultiplier < 1 {
		errs = multierr.Append(errs, fmt.Errorf("engine.concurrency_multiplier must be positive, got %d", c.Engine.ConcurrencyMultiplier))
	}
	if c.Engine.PollInterval < 0 {
		errs = multierr.Append(errs, fmt.Errorf("engine.poll_interval must not be negative"))
	}
	if c.Engine.MaxPhases < 1 {
		errs = multierr.Append(errs, fmt.Errorf("engine.max_phases must be positive, got %d", c.Engine.MaxPhases))
	}
	for cat, ids := range c.Businesses {
		if strings.TrimSpace(ids) == "" {
			errs = multierr.Append(errs, fmt.Errorf("businesses.%s selects nothing", cat))
		}
	}
	if c.Metrics.Addr == "" {
		errs = multierr.Append(errs, fmt.Errorf("metrics.addr is required"))
	}

	switch c.Alert.Kind {
	case AlertNone:
	case AlertWebhook, AlertNATS:
		if c.Alert.URL == "" {
			errs = multierr.Append(errs, fmt.Errorf("alert.url is required for kind %s", c.Alert.Kind))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("alert.kind must be one of none, webhook, nats, got %q", c.Alert.Kind))
	}
	if c.Alert.Cooldown < 0 {
		errs = multierr.Append(errs, fmt.Errorf("alert.cooldown must not be negative"))
	}

	if c.Web.Retry < 0 {
		errs = multierr.Append(errs, fmt.Errorf("web.retry must not be negative"))
	}

	for _, name := range c.DatabaseNames() {
		conn := c.Databases[name]
		if _, ok := db.DialectFor(conn.Driver); !ok {
			errs = multierr.Append(errs, fmt.Errorf("databases.%s.driver %q is not one of postgres, pgx, mysql", name, conn.Driver))
		}
		if conn.DSN == "" {
			errs = multierr.Append(errs, fmt.Errorf("databases.%s.dsn is required", name))
		}
	}

	if c.OPCUA.Endpoint != "" {
		if err := c.OPCUA.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("opcua config: %w", err))
		}
	}
	return errs
}

// DatabaseNames lists configured connections, sorted.
func (c *Config) DatabaseNames() []string {
	names := make([]string, 0, len(c.Databases))
	for n := range c.Databases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
