package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/go-playground/validator.v9"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/opcbridge/internal/adapters/influx"
	"github.com/ghalamif/opcbridge/internal/adapters/mqtt"
	"github.com/ghalamif/opcbridge/internal/adapters/observability"
	"github.com/ghalamif/opcbridge/internal/adapters/opcua"
	"github.com/ghalamif/opcbridge/internal/ports"
)

const (
	StoreInfluxDB  = "influxdb"
	StoreTimescale = "timescale"

	ModeTask    = "task"
	ModeProcess = "process"
)

// Environment variables that override the deployment-specific endpoints.
const (
	EnvOPCUAEndpoint = "OPCBRIDGE_OPCUA_ENDPOINT"
	EnvMQTTBroker    = "OPCBRIDGE_MQTT_BROKER"
	EnvInfluxURL     = "OPCBRIDGE_INFLUX_URL"
	EnvInfluxToken   = "OPCBRIDGE_INFLUX_TOKEN"
)

type Config struct {
	// Path is the file the config was loaded from; workers started in
	// process mode receive it on their command line.
	Path string `yaml:"-"`

	OPCUA      opcua.Config            `yaml:"opcua"`
	MQTT       mqtt.Config             `yaml:"mqtt"`
	Influx     influx.Config           `yaml:"influx"`
	Timescale  TimescaleConfig         `yaml:"timescale"`
	Store      StoreConfig             `yaml:"store"`
	Files      FilesConfig             `yaml:"files"`
	Catalog    CatalogConfig           `yaml:"catalog"`
	Poller     PollerConfig            `yaml:"poller"`
	Writer     ports.Policy            `yaml:"writer"`
	Supervisor SupervisorConfig        `yaml:"supervisor"`
	HTTP       HTTPConfig              `yaml:"http"`
	Log        observability.LogConfig `yaml:"log"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type StoreConfig struct {
	Kind string `yaml:"kind" validate:"omitempty,oneof=influxdb timescale"`
}

type FilesConfig struct {
	Catalog   string `yaml:"catalog"`
	Selection string `yaml:"selection"`
	Settings  string `yaml:"settings"`
	// Manual holds operator-added nodes merged into the available list.
	Manual string `yaml:"manual"`
}

type CatalogConfig struct {
	ExportOnStart bool `yaml:"export_on_start"`
}

type PollerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	WatchFiles bool          `yaml:"watch_files"`
}

type SupervisorConfig struct {
	Mode        string        `yaml:"mode" validate:"omitempty,oneof=task process"`
	Executable  string        `yaml:"executable"`
	LogsDir     string        `yaml:"logs_dir"`
	SettleDelay time.Duration `yaml:"settle_delay"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.Path = path

	cfg.applyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.OPCUA.Endpoint, EnvOPCUAEndpoint)
	set(&c.MQTT.Broker, EnvMQTTBroker)
	set(&c.Influx.URL, EnvInfluxURL)
	set(&c.Influx.Token, EnvInfluxToken)
}

// ApplyDefaults fills every unset field, including the adapter sections.
func (c *Config) ApplyDefaults() {
	if c.Writer.MaxQueueLen == 0 {
		c.Writer.MaxQueueLen = 10_000
	}
	if c.Writer.MaxBatchSize == 0 {
		c.Writer.MaxBatchSize = 50
	}
	if c.Writer.IdleSleep == 0 {
		c.Writer.IdleSleep = 50 * time.Millisecond
	}
	if c.Writer.OnQueueFull == "" {
		c.Writer.OnQueueFull = "drop"
	}
	if c.Store.Kind == "" {
		c.Store.Kind = StoreInfluxDB
	}
	if c.Timescale.Table == "" {
		c.Timescale.Table = "sensor_data"
	}
	if c.Files.Catalog == "" {
		c.Files.Catalog = "./data/nodes.csv"
	}
	if c.Files.Selection == "" {
		c.Files.Selection = "./data/selected.csv"
	}
	if c.Files.Settings == "" {
		c.Files.Settings = "./data/runtime.yaml"
	}
	if c.Files.Manual == "" {
		c.Files.Manual = "./data/manual_nodes.csv"
	}
	if c.Poller.Interval <= 0 {
		c.Poller.Interval = 5 * time.Second
	}
	if c.Supervisor.Mode == "" {
		c.Supervisor.Mode = ModeTask
	}
	if c.Supervisor.Mode == ModeProcess && c.Supervisor.Executable == "" {
		if exe, err := os.Executable(); err == nil {
			c.Supervisor.Executable = exe
		}
	}
	if c.Supervisor.LogsDir == "" {
		c.Supervisor.LogsDir = "./data/logs"
	}
	if c.Supervisor.SettleDelay <= 0 {
		c.Supervisor.SettleDelay = time.Second
	}
	if c.Supervisor.StopTimeout <= 0 {
		c.Supervisor.StopTimeout = 10 * time.Second
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	c.OPCUA.ApplyDefaults()
	c.MQTT.ApplyDefaults()
	c.Influx.ApplyDefaults()
}

var validate = validator.New()

// Validate runs the struct-tag checks and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}

	if err := c.OPCUA.Validate(); err != nil {
		return fmt.Errorf("opcua config: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}
	switch c.Store.Kind {
	case StoreInfluxDB:
		if err := c.Influx.Validate(); err != nil {
			return fmt.Errorf("influx config: %w", err)
		}
	case StoreTimescale:
		if c.Timescale.ConnString == "" {
			return fmt.Errorf("timescale.conn_string is required when store.kind is timescale")
		}
	}
	if c.Writer.MaxBatchSize > c.Writer.MaxQueueLen {
		return fmt.Errorf("writer.max_batch_size (%d) exceeds writer.max_queue_len (%d)", c.Writer.MaxBatchSize, c.Writer.MaxQueueLen)
	}
	if c.Supervisor.Mode == ModeProcess && c.Supervisor.Executable == "" {
		return fmt.Errorf("supervisor.executable is required in process mode")
	}
	return nil
}
