package efasync

import (
	"github.com/PEAXdata/EFA-datapipeline/internal/app/config"
)

// Config re-exports the root configuration struct so callers can construct
// or modify it programmatically.
type Config = config.Config

type (
	SourceConfig    = config.SourceConfig
	ThirtyMHzConfig = config.ThirtyMHzConfig
	DocumentsConfig = config.DocumentsConfig
	StatsConfig     = config.StatsConfig
	LedgerConfig    = config.LedgerConfig
	TenantConfig    = config.TenantConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
