package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/opcbridge"
)

func main() {
	cfg, err := opcbridge.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := opcbridge.New(cfg)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Serve(ctx); err != nil && err != context.Canceled {
		log.Fatalf("control process exited: %v", err)
	}
}
