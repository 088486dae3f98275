package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/opcbridge/pkg/opcbridge"
)

// Runs only the writer and prints every point instead of storing it.
func main() {
	cfg, err := opcbridge.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	printer := opcbridge.NewCallbackSink("stdout", func(_ context.Context, batch []opcbridge.Point) error {
		for _, p := range batch {
			fmt.Printf("%s %s sensor=%s value=%g\n",
				p.Time.Format(time.RFC3339Nano),
				p.Measurement,
				p.Sensor,
				p.Value,
			)
		}
		return nil
	})

	rt, err := opcbridge.New(cfg, opcbridge.WithSink(printer))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.RunWriter(ctx, os.Stdout); err != nil {
		log.Fatalf("writer exited: %v", err)
	}
}
