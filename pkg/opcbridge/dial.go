package opcbridge

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/ghalamif/opcbridge/internal/adapters/influx"
	"github.com/ghalamif/opcbridge/internal/adapters/mqtt"
	"github.com/ghalamif/opcbridge/internal/adapters/opcua"
	"github.com/ghalamif/opcbridge/internal/adapters/sink"
)

// SourceDialer opens an OPC UA session.
type SourceDialer func(ctx context.Context, cfg OPCUAConfig) (Source, error)

// BusDialer connects to the broker. role ends up in the client id.
type BusDialer func(ctx context.Context, cfg MQTTConfig, role string) (Bus, error)

// SinkDialer opens the configured metric store.
type SinkDialer func(ctx context.Context, cfg *Config) (Sink, error)

func dialSource(ctx context.Context, cfg OPCUAConfig) (Source, error) {
	s, err := opcua.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func dialBus(ctx context.Context, cfg MQTTConfig, role string) (Bus, error) {
	b, err := mqtt.Dial(ctx, cfg, role)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func dialSink(ctx context.Context, cfg *Config) (Sink, error) {
	switch cfg.Store.Kind {
	case StoreTimescale:
		db, err := sql.Open("postgres", cfg.Timescale.ConnString)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("timescale ping: %w", err)
		}
		return sink.NewTimescaleSink(db, cfg.Timescale.Table), nil
	default:
		s, err := influx.Dial(ctx, cfg.Influx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
