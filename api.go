package opcbridge

import (
	base "github.com/ghalamif/opcbridge/pkg/opcbridge"
)

// Re-exported errors for convenience.
var (
	ErrSessionClosed     = base.ErrSessionClosed
	ErrNodeAbsent        = base.ErrNodeAbsent
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/ghalamif/opcbridge directly.
type (
	Config         = base.Config
	Policy         = base.Policy
	OPCUAConfig    = base.OPCUAConfig
	MQTTConfig     = base.MQTTConfig
	InfluxConfig   = base.InfluxConfig
	Runtime        = base.Runtime
	Option         = base.Option
	SourceDialer   = base.SourceDialer
	BusDialer      = base.BusDialer
	SinkDialer     = base.SinkDialer
	Source         = base.Source
	Bus            = base.Bus
	Sink           = base.Sink
	Observability  = base.Observability
	Point          = base.Point
	PointBatchSink = base.PointBatchSink
	SelectionEntry = base.SelectionEntry
	CatalogNode    = base.CatalogNode
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Runtime and options.
func New(cfg *Config, opts ...Option) (*Runtime, error) {
	return base.New(cfg, opts...)
}

func WithSourceDialer(d SourceDialer) Option {
	return base.WithSourceDialer(d)
}

func WithBusDialer(d BusDialer) Option {
	return base.WithBusDialer(d)
}

func WithSinkDialer(d SinkDialer) Option {
	return base.WithSinkDialer(d)
}

func WithSink(s Sink) Option {
	return base.WithSink(s)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

// Sink adapters.
func NewCallbackSink(name string, fn PointBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Point) {
	return base.NewChannelSink(name, buffer)
}
