package opcbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/ghalamif/opcbridge/internal/adapters/filestore"
	"github.com/ghalamif/opcbridge/internal/adapters/observability"
	"github.com/ghalamif/opcbridge/internal/adapters/queue"
	"github.com/ghalamif/opcbridge/internal/adapters/watch"
	"github.com/ghalamif/opcbridge/internal/app/catalog"
	"github.com/ghalamif/opcbridge/internal/app/pipeline"
	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

const closeTimeout = 5 * time.Second

// Option customizes the dependencies used by Runtime.
type Option func(*overrides)

type overrides struct {
	dialSource    SourceDialer
	dialBus       BusDialer
	dialSink      SinkDialer
	observability Observability
	logger        *logrus.Logger
	clock         clockwork.Clock
}

// WithSourceDialer replaces the OPC UA client, for simulators or tests.
func WithSourceDialer(d SourceDialer) Option {
	return func(o *overrides) {
		o.dialSource = d
	}
}

// WithBusDialer replaces the MQTT client.
func WithBusDialer(d BusDialer) Option {
	return func(o *overrides) {
		o.dialBus = d
	}
}

// WithSinkDialer lets the writer persist points to any store.
func WithSinkDialer(d SinkDialer) Option {
	return func(o *overrides) {
		o.dialSink = d
	}
}

// WithSink is WithSinkDialer for a sink that is already open.
func WithSink(s Sink) Option {
	return WithSinkDialer(func(context.Context, *Config) (Sink, error) { return s, nil })
}

// WithObservability plugs in a custom observability backend. Worker log
// files then only receive what the backend itself writes.
func WithObservability(obs Observability) Option {
	return func(o *overrides) {
		o.observability = obs
	}
}

// WithLogger sets the logger of the control process.
func WithLogger(l *logrus.Logger) Option {
	return func(o *overrides) {
		o.logger = l
	}
}

// WithClock sets the clock that paces the poller.
func WithClock(c clockwork.Clock) Option {
	return func(o *overrides) {
		o.clock = c
	}
}

// Runtime wires the adapters to the catalog builder, the two workers and the
// control process.
type Runtime struct {
	cfg      *Config
	log      *logrus.Logger
	obs      ports.Observability
	prom     *observability.PromObs
	registry *prometheus.Registry
	clock    clockwork.Clock

	dialSource SourceDialer
	dialBus    BusDialer
	dialSink   SinkDialer

	catalog   *filestore.CatalogFile
	manual    *filestore.ManualNodes
	selection *filestore.SelectionStore
	settings  *filestore.SettingsStore
}

// New applies config defaults and builds the default adapters. Options
// override any of them.
func New(cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg.ApplyDefaults()

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	rt := &Runtime{
		cfg:        cfg,
		log:        o.logger,
		obs:        o.observability,
		registry:   prometheus.NewRegistry(),
		clock:      o.clock,
		dialSource: o.dialSource,
		dialBus:    o.dialBus,
		dialSink:   o.dialSink,
	}
	if rt.log == nil {
		rt.log = observability.NewLogger(cfg.Log, os.Stderr, true)
	}
	if rt.obs == nil {
		rt.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rt.prom = observability.NewPromObs(rt.registry, rt.log)
		rt.obs = rt.prom
	}
	if rt.dialSource == nil {
		rt.dialSource = dialSource
	}
	if rt.dialBus == nil {
		rt.dialBus = dialBus
	}
	if rt.dialSink == nil {
		rt.dialSink = dialSink
	}

	heal := func(path string, cause error) {
		rt.obs.LogError("file_reset_to_default", cause, ports.Field{Key: "path", Value: path})
	}
	rt.catalog = filestore.NewCatalogFile(cfg.Files.Catalog)
	rt.manual = filestore.NewManualNodes(cfg.Files.Manual)
	rt.selection = filestore.NewSelectionStore(cfg.Files.Selection)
	rt.selection.OnHeal = heal
	rt.settings = filestore.NewSettingsStore(cfg.Files.Settings, domain.Settings{PollInterval: cfg.Poller.Interval})
	rt.settings.OnHeal = heal

	return rt, nil
}

func (r *Runtime) Config() *Config { return r.cfg }

// Available lists the catalog's selectable nodes followed by the manually
// added ones.
func (r *Runtime) Available() ([]SelectionEntry, error) {
	derived, err := r.catalog.Available()
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	manual, err := r.manual.Load()
	if err != nil {
		return nil, fmt.Errorf("read manual nodes: %w", err)
	}
	return domain.MergeAvailable(derived, manual), nil
}

// AddNode makes a node selectable that the catalog traversal did not
// produce.
func (r *Runtime) AddNode(e SelectionEntry) error {
	if err := r.manual.Add(e); err != nil {
		return err
	}
	r.obs.LogInfo("node_added",
		ports.Field{Key: "node_id", Value: e.NodeID.String()},
		ports.Field{Key: "description", Value: e.Description})
	return nil
}

// Selection is the current monitored set.
func (r *Runtime) Selection() ([]SelectionEntry, error) { return r.selection.Load() }

// ReplaceSelection overwrites the monitored set.
func (r *Runtime) ReplaceSelection(entries []SelectionEntry) error {
	return r.selection.Replace(entries)
}

// Settings are the runtime-tunable values.
func (r *Runtime) Settings() (Settings, error) { return r.settings.Load() }

func (r *Runtime) SaveSettings(st Settings) error { return r.settings.Save(st) }

// ExportCatalog browses the server and replaces the catalog file. It
// returns the number of exported nodes.
func (r *Runtime) ExportCatalog(ctx context.Context) (int, error) {
	src, err := r.dialSource(ctx, r.cfg.OPCUA)
	if err != nil {
		return 0, fmt.Errorf("connect source: %w", err)
	}
	defer r.closeSource(src, r.obs)

	b := catalog.NewBuilder(src, r.obs, r.cfg.OPCUA.Namespace)
	nodes, err := b.Build(ctx, domain.NodeID(r.cfg.OPCUA.RootNodeID), domain.NodeID(r.cfg.OPCUA.DataTypesNode))
	if err != nil {
		return 0, err
	}
	if err := r.catalog.Write(nodes); err != nil {
		return 0, fmt.Errorf("write catalog: %w", err)
	}
	r.obs.LogInfo("catalog_exported",
		ports.Field{Key: "path", Value: r.catalog.Path()},
		ports.Field{Key: "nodes", Value: len(nodes)})
	return len(nodes), nil
}

// CheckBus connects and disconnects a throwaway bus client.
func (r *Runtime) CheckBus(ctx context.Context) error {
	bus, err := r.dialBus(ctx, r.cfg.MQTT, "probe")
	if err != nil {
		return err
	}
	return bus.Close()
}

// RunPoller is the poller worker. It fails fast if either connection cannot
// be made and otherwise polls until ctx is cancelled. Logs go to out when
// set.
func (r *Runtime) RunPoller(ctx context.Context, out io.Writer) error {
	obs := r.workerObs(out)

	src, err := r.dialSource(ctx, r.cfg.OPCUA)
	if err != nil {
		obs.LogCritical("opcua_connect_failed", err, ports.Field{Key: "endpoint", Value: r.cfg.OPCUA.Endpoint})
		return fmt.Errorf("connect source: %w", err)
	}
	defer r.closeSource(src, obs)

	bus, err := r.dialBus(ctx, r.cfg.MQTT, string(domain.WorkerPoller))
	if err != nil {
		obs.LogCritical("mqtt_connect_failed", err, ports.Field{Key: "broker", Value: r.cfg.MQTT.Broker})
		return fmt.Errorf("connect bus: %w", err)
	}
	defer bus.Close()

	var popts []pipeline.PollerOption
	if r.clock != nil {
		popts = append(popts, pipeline.WithClock(r.clock))
	}
	if r.cfg.Poller.WatchFiles {
		fw, err := watch.New([]string{r.selection.Path(), r.settings.Path()}, func(err error) {
			obs.LogError("file_watch_error", err)
		})
		if err != nil {
			obs.LogError("file_watch_disabled", err)
		} else {
			defer fw.Close()
			popts = append(popts, pipeline.WithWake(fw.C()))
		}
	}

	p := pipeline.NewPoller(src, bus, r.selection, r.settings, r.cfg.MQTT.Topic, r.cfg.Poller.Interval, obs, popts...)
	return p.Run(ctx)
}

// RunWriter is the writer worker. It fails fast if the bus or the store is
// unreachable and otherwise writes until ctx is cancelled.
func (r *Runtime) RunWriter(ctx context.Context, out io.Writer) error {
	obs := r.workerObs(out)

	snk, err := r.dialSink(ctx, r.cfg)
	if err != nil {
		obs.LogCritical("store_connect_failed", err, ports.Field{Key: "store", Value: r.cfg.Store.Kind})
		return fmt.Errorf("connect store: %w", err)
	}
	defer snk.Close()

	w := pipeline.NewWriter(snk, queue.NewMemQueue(r.cfg.Writer.MaxQueueLen), r.cfg.Writer, r.cfg.Influx.Measurement, obs)

	bus, err := r.dialBus(ctx, r.cfg.MQTT, string(domain.WorkerWriter))
	if err != nil {
		obs.LogCritical("mqtt_connect_failed", err, ports.Field{Key: "broker", Value: r.cfg.MQTT.Broker})
		return fmt.Errorf("connect bus: %w", err)
	}
	defer bus.Close()

	filter := r.cfg.MQTT.SubscribeFilter()
	if err := bus.Subscribe(ctx, filter, w.HandleMessage); err != nil {
		obs.LogCritical("mqtt_subscribe_failed", err, ports.Field{Key: "topic", Value: filter})
		return fmt.Errorf("subscribe: %w", err)
	}
	obs.LogInfo("writer_subscribed", ports.Field{Key: "topic", Value: filter})

	return w.Run(ctx)
}

// workerObs returns observability that logs to out while sharing metrics.
func (r *Runtime) workerObs(out io.Writer) ports.Observability {
	if out == nil || r.prom == nil {
		return r.obs
	}
	return r.prom.WithLogger(observability.NewLogger(r.cfg.Log, out, false))
}

func (r *Runtime) closeSource(src Source, obs ports.Observability) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := src.Close(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		obs.LogError("opcua_close_failed", err)
	}
}
