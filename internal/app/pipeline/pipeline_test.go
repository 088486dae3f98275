package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

type mockObs struct {
	mu       sync.Mutex
	errors   []error
	drops    map[string]int
	counters map[string]float64
}

func newMockObs() *mockObs {
	return &mockObs{drops: map[string]int{}, counters: map[string]float64{}}
}

func (m *mockObs) LogInfo(string, ...ports.Field) {}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	m.errors = append(m.errors, err)
	m.mu.Unlock()
}
func (m *mockObs) LogCritical(_ string, err error, fields ...ports.Field) { m.LogError("", err, fields...) }
func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	m.counters[name] += v
	m.mu.Unlock()
}
func (m *mockObs) ObserveLatency(string, float64) {}
func (m *mockObs) SetGauge(string, float64)       {}
func (m *mockObs) RecordDrop(reason string, _ error, _ ...ports.Field) {
	m.mu.Lock()
	m.drops[reason]++
	m.mu.Unlock()
}

func (m *mockObs) dropCount(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops[reason]
}

type mockReader struct {
	values map[domain.NodeID]any
}

func (m *mockReader) ReadValue(_ context.Context, id domain.NodeID) (any, error) {
	v, ok := m.values[id]
	if !ok {
		return nil, ports.ErrNodeAbsent
	}
	return v, nil
}

type published struct {
	topic   string
	payload []byte
}

type mockPublisher struct {
	ch   chan published
	fail error
}

func (m *mockPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	if m.fail != nil {
		return m.fail
	}
	m.ch <- published{topic: topic, payload: payload}
	return nil
}

type mockSelection struct {
	entries []domain.SelectionEntry
	err     error
}

func (m *mockSelection) Load() ([]domain.SelectionEntry, error)    { return m.entries, m.err }
func (m *mockSelection) Replace(e []domain.SelectionEntry) error { m.entries = e; return nil }

type mockSettings struct {
	mu sync.Mutex
	st domain.Settings
}

func (m *mockSettings) Load() (domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.PollInterval <= 0 {
		return domain.Settings{}, errors.New("unset")
	}
	return m.st, nil
}

func (m *mockSettings) Save(st domain.Settings) error {
	m.mu.Lock()
	m.st = st
	m.mu.Unlock()
	return nil
}

type mockSink struct {
	mu      sync.Mutex
	batches [][]domain.Point
	fail    error
}

func (m *mockSink) Name() string { return "mock" }
func (m *mockSink) Close() error { return nil }

func (m *mockSink) WriteBatch(_ context.Context, points []*domain.Point) error {
	if m.fail != nil {
		return m.fail
	}
	batch := make([]domain.Point, 0, len(points))
	for _, p := range points {
		batch = append(batch, *p)
	}
	m.mu.Lock()
	m.batches = append(m.batches, batch)
	m.mu.Unlock()
	return nil
}

func (m *mockSink) points() []domain.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Point
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}
