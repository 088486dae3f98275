package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv(EnvOPCUAEndpoint, "")
	t.Setenv(EnvMQTTBroker, "")
	t.Setenv(EnvInfluxURL, "")
	t.Setenv(EnvInfluxToken, "")

	path := writeConfig(t, `
writer:
  max_queue_len: 1000
opcua:
  endpoint: opc.tcp://localhost:4840
mqtt:
  topic: plant1
influx:
  url: http://localhost:8086
  org: factory
  bucket: telemetry
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Writer.IdleSleep != 50*time.Millisecond {
		t.Fatalf("expected IdleSleep default 50ms, got %s", cfg.Writer.IdleSleep)
	}
	if cfg.Writer.MaxBatchSize != 50 {
		t.Fatalf("expected MaxBatchSize default 50, got %d", cfg.Writer.MaxBatchSize)
	}
	if cfg.Writer.MaxQueueLen != 1000 {
		t.Fatalf("expected MaxQueueLen 1000, got %d", cfg.Writer.MaxQueueLen)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected default http addr :8080, got %s", cfg.HTTP.Addr)
	}
	if cfg.Poller.Interval != 5*time.Second {
		t.Fatalf("expected default poll interval 5s, got %s", cfg.Poller.Interval)
	}
	if cfg.Store.Kind != StoreInfluxDB {
		t.Fatalf("expected influxdb store, got %s", cfg.Store.Kind)
	}
	if cfg.Supervisor.Mode != ModeTask {
		t.Fatalf("expected task mode, got %s", cfg.Supervisor.Mode)
	}
	if cfg.Influx.Measurement != "sensor_data" {
		t.Fatalf("expected measurement sensor_data, got %s", cfg.Influx.Measurement)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Fatalf("expected default broker, got %s", cfg.MQTT.Broker)
	}
	if cfg.Path != path {
		t.Fatalf("expected Path %s, got %s", path, cfg.Path)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvOPCUAEndpoint, "opc.tcp://plc:4840")
	t.Setenv(EnvMQTTBroker, "tcp://broker:1883")
	t.Setenv(EnvInfluxURL, "http://influx:8086")
	t.Setenv(EnvInfluxToken, "secret")

	path := writeConfig(t, `
opcua:
  endpoint: opc.tcp://localhost:4840
influx:
  org: factory
  bucket: telemetry
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.OPCUA.Endpoint != "opc.tcp://plc:4840" {
		t.Fatalf("endpoint not overridden: %s", cfg.OPCUA.Endpoint)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Fatalf("broker not overridden: %s", cfg.MQTT.Broker)
	}
	if cfg.Influx.URL != "http://influx:8086" || cfg.Influx.Token != "secret" {
		t.Fatalf("influx not overridden: %+v", cfg.Influx)
	}
}

func TestLoadRejectsUnknownStoreKind(t *testing.T) {
	t.Setenv(EnvOPCUAEndpoint, "")
	path := writeConfig(t, `
opcua:
  endpoint: opc.tcp://localhost:4840
store:
  kind: cassandra
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "oneof") {
		t.Fatalf("expected oneof validation error, got %v", err)
	}
}

func TestLoadTimescaleNeedsConnString(t *testing.T) {
	t.Setenv(EnvOPCUAEndpoint, "")
	path := writeConfig(t, `
opcua:
  endpoint: opc.tcp://localhost:4840
store:
  kind: timescale
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing timescale.conn_string")
	}
}

func TestLoadRequiresEndpoint(t *testing.T) {
	t.Setenv(EnvOPCUAEndpoint, "")
	path := writeConfig(t, `
influx:
  url: http://localhost:8086
  org: factory
  bucket: telemetry
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing opcua endpoint")
	}
}

func TestProcessModeExecutableIsADefault(t *testing.T) {
	t.Setenv(EnvOPCUAEndpoint, "")
	path := writeConfig(t, `
opcua:
  endpoint: opc.tcp://localhost:4840
influx:
  url: http://localhost:8086
  org: factory
  bucket: telemetry
supervisor:
  mode: process
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Supervisor.Executable == "" {
		t.Fatalf("expected ApplyDefaults to fill supervisor.executable")
	}
	if cfg.Files.Manual != "./data/manual_nodes.csv" {
		t.Fatalf("expected default manual nodes file, got %s", cfg.Files.Manual)
	}

	cfg.Supervisor.Executable = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty executable in process mode")
	}
	if cfg.Supervisor.Executable != "" {
		t.Fatalf("Validate must not fill defaults, got %q", cfg.Supervisor.Executable)
	}
}
