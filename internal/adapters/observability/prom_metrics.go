package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ghalamif/opcbridge/internal/ports"
)

type PromObs struct {
	log      logrus.FieldLogger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
	drops    *prometheus.CounterVec
}

// NewPromObs registers the bridge metrics on reg (the default registerer
// when nil) and logs through logger.
func NewPromObs(reg prometheus.Registerer, logger logrus.FieldLogger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	counters := map[string]prometheus.Counter{
		"bridge_poll_cycles_total":        counter("bridge_poll_cycles_total", "Completed poller cycles."),
		"bridge_node_reads_total":         counter("bridge_node_reads_total", "Successful node value reads."),
		"bridge_node_read_errors_total":   counter("bridge_node_read_errors_total", "Node value reads that failed."),
		"bridge_messages_published_total": counter("bridge_messages_published_total", "Telemetry messages published to the bus."),
		"bridge_publish_errors_total":     counter("bridge_publish_errors_total", "Telemetry messages the bus refused."),
		"bridge_messages_received_total":  counter("bridge_messages_received_total", "Telemetry messages received by the writer."),
		"bridge_points_written_total":     counter("bridge_points_written_total", "Points written to the metric store."),
		"bridge_worker_starts_total":      counter("bridge_worker_starts_total", "Worker starts issued by the supervisor."),
		"bridge_worker_stops_total":       counter("bridge_worker_stops_total", "Worker stops issued by the supervisor."),
		"bridge_worker_exits_total":       counter("bridge_worker_exits_total", "Worker exits observed by the supervisor."),
	}
	gauges := map[string]prometheus.Gauge{
		"bridge_selected_nodes":      gauge("bridge_selected_nodes", "Nodes in the current selection."),
		"bridge_writer_queue_length": gauge("bridge_writer_queue_length", "Points buffered between bus and store."),
		"bridge_poller_running":      gauge("bridge_poller_running", "1 while the poller worker is running."),
		"bridge_writer_running":      gauge("bridge_writer_running", "1 while the writer worker is running."),
	}
	pollLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridge_poll_cycle_seconds",
		Help:    "Duration of one poll cycle over the selection.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})
	writeLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridge_write_latency_seconds",
		Help:    "Latency of one batch write to the metric store.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	drops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_items_dropped_total",
		Help: "Items discarded by reason (decode, write, queue_full).",
	}, []string{"reason"})

	collectors := []prometheus.Collector{pollLatency, writeLatency, drops}
	for _, c := range counters {
		collectors = append(collectors, c)
	}
	for _, g := range gauges {
		collectors = append(collectors, g)
	}
	reg.MustRegister(collectors...)

	return &PromObs{
		log:      logger,
		counters: counters,
		gauges:   gauges,
		histos: map[string]prometheus.Observer{
			"bridge_poll_cycle_seconds":    pollLatency,
			"bridge_write_latency_seconds": writeLatency,
		},
		drops: drops,
	}
}

// WithLogger returns a view that shares metrics with p but logs elsewhere.
// Each supervised worker gets one pointed at its own log sink.
func (p *PromObs) WithLogger(logger logrus.FieldLogger) *PromObs {
	cp := *p
	cp.log = logger
	return &cp
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.WithFields(toLogrus(fields)).Info(msg)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.WithFields(toLogrus(fields)).WithError(err).Error(msg)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.WithFields(toLogrus(fields)).WithError(err).WithField("critical", true).Error(msg)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDrop(reason string, err error, fields ...ports.Field) {
	p.drops.WithLabelValues(reason).Inc()
	p.log.WithFields(toLogrus(fields)).WithError(err).WithField("reason", reason).Warn("dropped")
}

func toLogrus(fields []ports.Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
