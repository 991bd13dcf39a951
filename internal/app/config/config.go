package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
)

type Config struct {
	Source    SourceConfig    `yaml:"source"`
	ThirtyMHz ThirtyMHzConfig `yaml:"thirtymhz"`
	Documents DocumentsConfig `yaml:"documents"`
	Stats     StatsConfig     `yaml:"stats"`
	Ledger    LedgerConfig    `yaml:"ledger"`

	// Packages maps an analysis package code to its display name; rows with
	// an unlisted code are out of scope.
	Packages map[string]string `yaml:"packages"`

	// Metrics maps a result code or unit description to a telemetry metric
	// label. The "default" entry is required and catches everything else.
	Metrics map[string]string `yaml:"metrics"`

	// Tenants routes rows to remote accounts by their relation id. Rows
	// without a match use the thirtymhz credentials as the default tenant.
	Tenants []TenantConfig `yaml:"tenants"`

	SchemaVersion string `yaml:"schema_version"`
	WindowDays    int    `yaml:"window_days"`
	Timezone      string `yaml:"timezone"`
}

type SourceConfig struct {
	// Driver is one of mssql, postgres, mysql, or json.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
	Query  string `yaml:"query"`
	File   string `yaml:"file"`
}

type ThirtyMHzConfig struct {
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	Organization string `yaml:"organization"`
}

type DocumentsConfig struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout converts the configured seconds into a duration.
func (d DocumentsConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

type StatsConfig struct {
	// Backend is one of statsd, prometheus, or none.
	Backend string `yaml:"backend"`
	Addr    string `yaml:"addr"`
	Prefix  string `yaml:"prefix"`
}

type LedgerConfig struct {
	Path string `yaml:"path"`
}

type TenantConfig struct {
	RelationID   string `yaml:"relation_id"`
	APIKey       string `yaml:"api_key"`
	Organization string `yaml:"organization"`
}

// Load reads YAML from disk, expands ${ENV} references, applies defaults,
// and validates.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultTenant returns the tenant that owns shared sensor types.
func (c *Config) DefaultTenant() domain.Tenant {
	return domain.Tenant{APIKey: c.ThirtyMHz.APIKey, Organization: c.ThirtyMHz.Organization}
}

// TenantByRelation builds the relation-id routing table for the transformer.
func (c *Config) TenantByRelation() map[string]domain.Tenant {
	out := make(map[string]domain.Tenant, len(c.Tenants))
	for _, t := range c.Tenants {
		out[t.RelationID] = domain.Tenant{APIKey: t.APIKey, Organization: t.Organization}
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.ThirtyMHz.BaseURL == "" {
		c.ThirtyMHz.BaseURL = "https://api.30mhz.com/api"
	}
	if c.WindowDays == 0 {
		c.WindowDays = 7
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Amsterdam"
	}
	if c.Stats.Backend == "" {
		c.Stats.Backend = "statsd"
	}
	if c.Stats.Addr == "" {
		c.Stats.Addr = "127.0.0.1:8125"
	}
	if c.Stats.Prefix == "" {
		c.Stats.Prefix = "efa_sync"
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "./data/already_done.txt"
	}
	if c.Documents.TimeoutSeconds == 0 {
		c.Documents.TimeoutSeconds = 30
	}
}

func (c *Config) validate() error {
	switch c.Source.Driver {
	case "mssql", "postgres", "mysql":
		if c.Source.DSN == "" {
			return fmt.Errorf("source.dsn is required for driver %s", c.Source.Driver)
		}
		if c.Source.Table == "" && c.Source.Query == "" {
			return fmt.Errorf("source.table or source.query is required")
		}
	case "json":
		if c.Source.File == "" {
			return fmt.Errorf("source.file is required for the json driver")
		}
	default:
		return fmt.Errorf("source.driver %q is not one of mssql, postgres, mysql, json", c.Source.Driver)
	}

	if c.ThirtyMHz.APIKey == "" || c.ThirtyMHz.Organization == "" {
		return fmt.Errorf("thirtymhz.api_key and thirtymhz.organization are required")
	}
	if len(c.Packages) == 0 {
		return fmt.Errorf("packages table is empty")
	}
	if _, ok := c.Metrics["default"]; !ok {
		return fmt.Errorf("metrics table needs a default entry")
	}
	if c.WindowDays < 0 {
		return fmt.Errorf("window_days must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	switch c.Stats.Backend {
	case "statsd", "prometheus", "none":
	default:
		return fmt.Errorf("stats.backend %q is not one of statsd, prometheus, none", c.Stats.Backend)
	}
	return nil
}
