package opcbridge

import (
	"github.com/ghalamif/opcbridge/internal/adapters/influx"
	"github.com/ghalamif/opcbridge/internal/adapters/mqtt"
	"github.com/ghalamif/opcbridge/internal/adapters/observability"
	"github.com/ghalamif/opcbridge/internal/adapters/opcua"
	"github.com/ghalamif/opcbridge/internal/app/config"
	"github.com/ghalamif/opcbridge/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls the writer's queue between bus and store.
	Policy = ports.Policy
	// OPCUAConfig holds the source session details.
	OPCUAConfig = opcua.Config
	// MQTTConfig holds the broker and deployment topic.
	MQTTConfig = mqtt.Config
	// InfluxConfig points the writer at an InfluxDB bucket.
	InfluxConfig = influx.Config
	// TimescaleConfig configures the alternative Postgres store.
	TimescaleConfig = config.TimescaleConfig
	StoreConfig     = config.StoreConfig
	// FilesConfig locates the catalog, selection and settings files.
	FilesConfig      = config.FilesConfig
	CatalogConfig    = config.CatalogConfig
	PollerConfig     = config.PollerConfig
	SupervisorConfig = config.SupervisorConfig
	HTTPConfig       = config.HTTPConfig
	LogConfig        = observability.LogConfig
)

const (
	StoreInfluxDB  = config.StoreInfluxDB
	StoreTimescale = config.StoreTimescale
	ModeTask       = config.ModeTask
	ModeProcess    = config.ModeProcess
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
