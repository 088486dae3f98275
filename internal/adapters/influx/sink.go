package influx

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

// Config points the sink at one org/bucket.
type Config struct {
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	Org         string        `yaml:"org"`
	Bucket      string        `yaml:"bucket"`
	Measurement string        `yaml:"measurement"`
	Timeout     time.Duration `yaml:"timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.Measurement == "" {
		c.Measurement = "sensor_data"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if c.Org == "" {
		return errors.New("org is required")
	}
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	return nil
}

type Sink struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
}

// Dial creates the client and pings the server; an unreachable store is a
// connection error for the writer.
func Dial(ctx context.Context, cfg Config) (*Sink, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(cfg.Timeout / time.Second))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	ok, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influx ping %s: %w", cfg.URL, err)
	}
	if !ok {
		client.Close()
		return nil, fmt.Errorf("influx ping %s: server not ready", cfg.URL)
	}

	return NewSink(client, cfg.Org, cfg.Bucket), nil
}

func NewSink(client influxdb2.Client, org, bucket string) *Sink {
	return &Sink{client: client, writer: client.WriteAPIBlocking(org, bucket)}
}

func (s *Sink) Name() string { return "influxdb" }

func (s *Sink) WriteBatch(ctx context.Context, points []*domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	return s.writer.WritePoint(ctx, toInflux(points)...)
}

func (s *Sink) Close() error {
	s.client.Close()
	return nil
}

func toInflux(points []*domain.Point) []*write.Point {
	out := make([]*write.Point, 0, len(points))
	for _, p := range points {
		out = append(out, influxdb2.NewPoint(
			p.Measurement,
			map[string]string{"sensor": p.Sensor},
			map[string]interface{}{"value": p.Value},
			p.Time,
		))
	}
	return out
}

var _ ports.Sink = (*Sink)(nil)
