package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

// PollerState is the connection state of a running poller.
type PollerState int32

const (
	StateDisconnected PollerState = iota
	StateConnected
	StatePolling
)

func (s PollerState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StatePolling:
		return "polling"
	default:
		return "disconnected"
	}
}

// Poller reads the selected nodes on a fixed cadence and publishes one
// telemetry message per successful read.
type Poller struct {
	reader    ports.ValueReader
	pub       ports.Publisher
	selection ports.SelectionStore
	settings  ports.SettingsStore
	obs       ports.Observability

	topic    string
	fallback time.Duration
	clock    clockwork.Clock
	wake     <-chan string

	state atomic.Int32
}

type PollerOption func(*Poller)

// WithClock replaces the wall clock used for the poll interval.
func WithClock(c clockwork.Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithWake starts the next cycle early whenever ch delivers.
func WithWake(ch <-chan string) PollerOption {
	return func(p *Poller) { p.wake = ch }
}

// NewPoller expects reader and pub to be connected already. fallback is
// used when the settings store cannot be read.
func NewPoller(reader ports.ValueReader, pub ports.Publisher, selection ports.SelectionStore, settings ports.SettingsStore, topic string, fallback time.Duration, obs ports.Observability, opts ...PollerOption) *Poller {
	p := &Poller{
		reader:    reader,
		pub:       pub,
		selection: selection,
		settings:  settings,
		obs:       obs,
		topic:     topic,
		fallback:  fallback,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.state.Store(int32(StateConnected))
	return p
}

func (p *Poller) State() PollerState { return PollerState(p.state.Load()) }

// Run polls until ctx is cancelled or the source session is lost. The
// interval is re-read after every cycle, so settings changes apply without a
// restart.
func (p *Poller) Run(ctx context.Context) error {
	defer p.state.Store(int32(StateDisconnected))

	p.obs.LogInfo("poller_started", ports.Field{Key: "topic", Value: p.topic})
	for {
		p.state.Store(int32(StatePolling))
		_, err := p.Cycle(ctx)
		p.state.Store(int32(StateConnected))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-p.clock.After(p.Interval()):
		case <-p.wake:
		}
	}
}

// Interval is the current poll period from the settings store.
func (p *Poller) Interval() time.Duration {
	if p.settings == nil {
		return p.fallback
	}
	st, err := p.settings.Load()
	if err != nil || st.PollInterval <= 0 {
		if err != nil {
			p.obs.LogError("settings_load_failed", err)
		}
		return p.fallback
	}
	return st.PollInterval
}

// Cycle reads every selected node once and publishes the results. Read and
// publish failures are per node. Cancellation and a lost source session end
// the cycle early.
func (p *Poller) Cycle(ctx context.Context) (int, error) {
	start := p.clock.Now()

	entries, err := p.selection.Load()
	if err != nil {
		p.obs.LogError("selection_load_failed", err)
		entries = nil
	}
	p.obs.SetGauge("bridge_selected_nodes", float64(len(entries)))

	published := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return published, err
		}

		v, err := p.reader.ReadValue(ctx, e.NodeID)
		if err != nil {
			p.obs.IncCounter("bridge_node_read_errors_total", 1)
			fields := []ports.Field{{Key: "node_id", Value: e.NodeID.String()}}
			if errors.Is(err, ports.ErrSessionClosed) {
				p.obs.LogCritical("source_connection_lost", err, fields...)
				return published, fmt.Errorf("read %s: %w", e.NodeID, err)
			}
			p.obs.LogError("node_read_failed", err, fields...)
			continue
		}
		p.obs.IncCounter("bridge_node_reads_total", 1)

		payload, err := domain.NewTelemetryMessage(e.NodeID, v).Encode()
		if err != nil {
			p.obs.LogError("encode_failed", err, ports.Field{Key: "node_id", Value: e.NodeID.String()})
			continue
		}
		if err := p.pub.Publish(ctx, p.topic, payload); err != nil {
			p.obs.IncCounter("bridge_publish_errors_total", 1)
			p.obs.LogError("publish_failed", err, ports.Field{Key: "node_id", Value: e.NodeID.String()})
			continue
		}
		p.obs.IncCounter("bridge_messages_published_total", 1)
		published++
	}

	p.obs.IncCounter("bridge_poll_cycles_total", 1)
	p.obs.ObserveLatency("bridge_poll_cycle_seconds", p.clock.Since(start).Seconds())
	return published, nil
}
