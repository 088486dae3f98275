package opcbridge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/opcbridge/internal/app/supervisor"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	return &Config{
		OPCUA: OPCUAConfig{Endpoint: "opc.tcp://test:4840"},
		MQTT:  MQTTConfig{Topic: "plant1"},
		Files: FilesConfig{
			Catalog:   filepath.Join(dir, "nodes.csv"),
			Selection: filepath.Join(dir, "selected.csv"),
			Settings:  filepath.Join(dir, "runtime.yaml"),
			Manual:    filepath.Join(dir, "manual_nodes.csv"),
		},
		Supervisor: SupervisorConfig{LogsDir: filepath.Join(dir, "logs")},
		Writer:     Policy{MaxQueueLen: 16, MaxBatchSize: 4, IdleSleep: time.Millisecond},
	}
}

func TestNewAppliesDefaultsAndOverrides(t *testing.T) {
	cfg := testConfig(t)
	obs := &stubObservability{}

	rt, err := New(cfg,
		WithObservability(obs),
		WithSourceDialer(func(context.Context, OPCUAConfig) (Source, error) { return &stubSource{}, nil }),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if rt.obs != obs {
		t.Fatalf("expected custom observability to be used")
	}
	if rt.prom != nil {
		t.Fatalf("expected no prometheus observability when a custom one is set")
	}
	if cfg.Influx.Measurement != "sensor_data" {
		t.Fatalf("expected defaults to be applied, got measurement %q", cfg.Influx.Measurement)
	}
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestRunWriterEndToEnd(t *testing.T) {
	bus := newStubBus()
	sink, batches := NewChannelSink("test", 4)

	rt, err := New(testConfig(t),
		WithObservability(&stubObservability{}),
		WithBusDialer(bus.dial),
		WithSink(sink),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.RunWriter(ctx, nil) }()

	handler := bus.waitSubscribed(t)
	if got := bus.subscribedTopic(); got != "plant1/#" {
		t.Fatalf("expected subscription plant1/#, got %s", got)
	}

	handler("plant1", []byte(`{"node_id":"broken"`))
	handler("plant1", []byte(`{"node_id":"X","value":23.5}`))

	select {
	case batch := <-batches:
		if len(batch) != 1 {
			t.Fatalf("expected one point, got %+v", batch)
		}
		p := batch[0]
		if p.Measurement != "sensor_data" || p.Sensor != "X" || p.Value != 23.5 || p.Time.IsZero() {
			t.Fatalf("unexpected point %+v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for point")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunWriter returned error: %v", err)
	}
	if !bus.isClosed() {
		t.Fatalf("expected bus to be closed on exit")
	}
}

func TestRunWriterFailsFastWhenStoreUnreachable(t *testing.T) {
	storeErr := errors.New("dial tcp 127.0.0.1:8086: connection refused")
	rt, err := New(testConfig(t),
		WithObservability(&stubObservability{}),
		WithBusDialer(newStubBus().dial),
		WithSinkDialer(func(context.Context, *Config) (Sink, error) { return nil, storeErr }),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := rt.RunWriter(context.Background(), nil); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestRunPollerPublishesSelection(t *testing.T) {
	bus := newStubBus()
	src := &stubSource{values: map[NodeID]any{"ns=2;s=Tank.Level": 12.0}}

	rt, err := New(testConfig(t),
		WithObservability(&stubObservability{}),
		WithSourceDialer(func(context.Context, OPCUAConfig) (Source, error) { return src, nil }),
		WithBusDialer(bus.dial),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := rt.ReplaceSelection([]SelectionEntry{{NodeID: "ns=2;s=Tank.Level", Description: "level"}}); err != nil {
		t.Fatalf("ReplaceSelection returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.RunPoller(ctx, nil) }()

	select {
	case msg := <-bus.published:
		if msg != `plant1 {"node_id":"Tank.Level","value":12}` {
			t.Fatalf("unexpected publish %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for publish")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunPoller returned error: %v", err)
	}
	if !src.closed {
		t.Fatalf("expected source session to be closed")
	}
}

func TestRunPollerFailsFastOnConnect(t *testing.T) {
	rt, err := New(testConfig(t),
		WithObservability(&stubObservability{}),
		WithSourceDialer(func(context.Context, OPCUAConfig) (Source, error) {
			return nil, fmt.Errorf("connect: %w", ErrSessionClosed)
		}),
		WithBusDialer(newStubBus().dial),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := rt.RunPoller(context.Background(), nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestExportCatalogWritesAvailableNodes(t *testing.T) {
	src := &stubSource{
		children: map[NodeID][]NodeID{
			"i=84":     {"ns=2;i=1"},
			"ns=2;i=1": {"ns=2;i=5"},
			"i=90":     {"i=11"},
		},
		names: map[NodeID]string{"i=84": "Root", "ns=2;i=1": "Plant", "ns=2;i=5": "Temperature", "i=90": "DataTypes", "i=11": "Double"},
		classes: map[NodeID]NodeClass{
			"ns=2;i=1": 1,
			"ns=2;i=5": 2,
		},
		types: map[NodeID]NodeID{"ns=2;i=5": "i=11"},
	}

	rt, err := New(testConfig(t),
		WithObservability(&stubObservability{}),
		WithSourceDialer(func(context.Context, OPCUAConfig) (Source, error) { return src, nil }),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	n, err := rt.ExportCatalog(context.Background())
	if err != nil {
		t.Fatalf("ExportCatalog returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 exported nodes, got %d", n)
	}

	avail, err := rt.Available()
	if err != nil {
		t.Fatalf("Available returned error: %v", err)
	}
	if len(avail) != 1 || avail[0].NodeID != "ns=2;i=5" || avail[0].Description != "Temperature" {
		t.Fatalf("unexpected available list %+v", avail)
	}

	if err := rt.AddNode(SelectionEntry{NodeID: "ns=2;s=Manual.Flow", Description: "flow meter"}); err != nil {
		t.Fatalf("AddNode returned error: %v", err)
	}
	if err := rt.AddNode(SelectionEntry{NodeID: "ns=2;i=5", Description: "duplicate"}); err != nil {
		t.Fatalf("AddNode returned error: %v", err)
	}
	avail, err = rt.Available()
	if err != nil {
		t.Fatalf("Available returned error: %v", err)
	}
	if len(avail) != 2 || avail[0].Description != "Temperature" || avail[1].NodeID != "ns=2;s=Manual.Flow" {
		t.Fatalf("unexpected merged list %+v", avail)
	}
}

func TestRunnerModes(t *testing.T) {
	cfg := testConfig(t)
	rt, err := New(cfg, WithObservability(&stubObservability{}))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	r, err := rt.runner(WorkerPoller)
	if err != nil {
		t.Fatalf("runner returned error: %v", err)
	}
	if _, ok := r.(supervisor.Task); !ok {
		t.Fatalf("expected in-process task in task mode, got %T", r)
	}

	cfg.Supervisor.Mode = ModeProcess
	if _, err := rt.runner(WorkerWriter); err == nil {
		t.Fatalf("expected error in process mode without a config path")
	}

	cfg.Path = "/etc/opcbridge/config.yaml"
	cfg.Supervisor.Executable = "/usr/local/bin/opcbridge"
	r, err = rt.runner(WorkerWriter)
	if err != nil {
		t.Fatalf("runner returned error: %v", err)
	}
	cmd, ok := r.(*supervisor.Command)
	if !ok {
		t.Fatalf("expected command runner, got %T", r)
	}
	want := []string{"writer", "--config", "/etc/opcbridge/config.yaml", "--supervised"}
	if fmt.Sprint(cmd.Args) != fmt.Sprint(want) || cmd.Path != "/usr/local/bin/opcbridge" {
		t.Fatalf("unexpected command %s %v", cmd.Path, cmd.Args)
	}
}

func TestCheckBus(t *testing.T) {
	probeErr := errors.New("connection refused")
	rt, err := New(testConfig(t),
		WithObservability(&stubObservability{}),
		WithBusDialer(func(context.Context, MQTTConfig, string) (Bus, error) { return nil, probeErr }),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := rt.CheckBus(context.Background()); !errors.Is(err, probeErr) {
		t.Fatalf("expected probe error, got %v", err)
	}
}

type stubSource struct {
	values   map[NodeID]any
	children map[NodeID][]NodeID
	names    map[NodeID]string
	classes  map[NodeID]NodeClass
	types    map[NodeID]NodeID
	closed   bool
}

func (s *stubSource) Children(_ context.Context, id NodeID) ([]NodeID, error) {
	return s.children[id], nil
}

func (s *stubSource) Parent(context.Context, NodeID) (NodeID, error) { return "", nil }

func (s *stubSource) BrowseName(_ context.Context, id NodeID) (QualifiedName, error) {
	return QualifiedName{NamespaceIndex: id.Namespace(), Name: s.names[id]}, nil
}

func (s *stubSource) NodeClass(_ context.Context, id NodeID) (NodeClass, error) {
	return s.classes[id], nil
}

func (s *stubSource) DataType(_ context.Context, id NodeID) (NodeID, error) { return s.types[id], nil }

func (s *stubSource) DisplayName(_ context.Context, id NodeID) (string, error) {
	return s.names[id], nil
}

func (s *stubSource) Description(context.Context, NodeID) (string, error) { return "", nil }

func (s *stubSource) ReadValue(_ context.Context, id NodeID) (any, error) {
	v, ok := s.values[id]
	if !ok {
		return nil, ErrNodeAbsent
	}
	return v, nil
}

func (s *stubSource) Close(context.Context) error {
	s.closed = true
	return nil
}

type stubBus struct {
	published  chan string
	subscribed chan MessageHandler

	mu     sync.Mutex
	topic  string
	closed bool
}

func newStubBus() *stubBus {
	return &stubBus{published: make(chan string, 16), subscribed: make(chan MessageHandler, 1)}
}

func (b *stubBus) dial(context.Context, MQTTConfig, string) (Bus, error) { return b, nil }

func (b *stubBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.published <- topic + " " + string(payload)
	return nil
}

func (b *stubBus) Subscribe(_ context.Context, topic string, h MessageHandler) error {
	b.mu.Lock()
	b.topic = topic
	b.mu.Unlock()
	b.subscribed <- h
	return nil
}

func (b *stubBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *stubBus) waitSubscribed(t *testing.T) MessageHandler {
	t.Helper()
	select {
	case h := <-b.subscribed:
		return h
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for subscription")
		return nil
	}
}

func (b *stubBus) subscribedTopic() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.topic
}

func (b *stubBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type stubObservability struct{}

func (s *stubObservability) LogInfo(string, ...Field)            {}
func (s *stubObservability) LogError(string, error, ...Field)    {}
func (s *stubObservability) LogCritical(string, error, ...Field) {}
func (s *stubObservability) IncCounter(string, float64)          {}
func (s *stubObservability) ObserveLatency(string, float64)      {}
func (s *stubObservability) SetGauge(string, float64)            {}
func (s *stubObservability) RecordDrop(string, error, ...Field)  {}
