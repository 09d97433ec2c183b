package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bpowers/ronvoy/internal/config"
	"github.com/bpowers/ronvoy/internal/eventloop"
	"github.com/bpowers/ronvoy/internal/ingest"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Error("failed to parse arguments", "error", err)
		os.Exit(1)
	}

	bootstrap, err := config.LoadBootstrap(cfg.ConfigPath)
	if err != nil {
		log.Error("failed to load bootstrap", "error", err)
		os.Exit(1)
	}

	proxy := ingest.Load(log, bootstrap)
	log.Info("bootstrap ingested",
		"node_id", proxy.Node.GetId(),
		"clusters", len(proxy.Table.Load()),
		"listeners", len(proxy.Listeners),
	)

	if len(proxy.Listeners) == 0 {
		log.Warn("bootstrap produced no usable listeners, idling until signalled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("received shutdown signal")
		cancel()
	}()

	reactorKind := eventloop.SharedPoolKind
	if cfg.Reactor == config.IndependentReactor {
		reactorKind = eventloop.IndependentKind
	}
	log.Info("using event loop", "kind", reactorKind)

	loop := eventloop.New(reactorKind, cfg.Concurrency, log)
	if err := loop.Run(ctx, proxy.Listeners); err != nil {
		log.Error("event loop exited with error", "error", err)
		os.Exit(1)
	}

	log.Info("exiting")
}
