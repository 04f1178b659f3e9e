package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"PcapLedger/internal/config"
	"PcapLedger/internal/engine/extractor"
	"PcapLedger/internal/factory"
	"PcapLedger/internal/log"
	"PcapLedger/internal/probe"
)

func main() {
	mode := flag.String("mode", "sub", "Operating mode: 'pub' to replay captures and publish, 'sub' to subscribe and store.")
	dir := flag.String("dir", "", "Capture directory to replay in pub mode (defaults to capture.directory).")
	configPath := flag.String("config", "", "config file path (defaults plus environment when empty)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := log.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	if *dir == "" {
		*dir = cfg.Capture.Directory
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "pub":
		err = runProbe(ctx, cfg, *dir)
	case "sub":
		err = runIngest(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error("probe failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

// runProbe replays the capture files in dir and publishes every record it
// extracts.
func runProbe(ctx context.Context, cfg *config.Config, dir string) error {
	slog.Info("starting probe", "directory", dir, "subject", cfg.Probe.Subject)

	pub, err := probe.NewPublisher(cfg.Probe)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer pub.Close()

	ex := extractor.New(cfg.Capture.MaxPacketsPerFile, cfg.Capture.Workers)
	stats, err := probe.Replay(ctx, dir, ex, pub)
	if errors.Is(err, context.Canceled) {
		slog.Info("shutdown signal received", "published", stats.Published)
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("replay finished",
		"files", stats.Files,
		"published", stats.Published,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
	)
	return nil
}

// runIngest subscribes to the record stream and stores what arrives.
func runIngest(ctx context.Context, cfg *config.Config) error {
	c, err := factory.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Store.CreateSchema(ctx); err != nil {
		return err
	}

	ing, err := probe.NewIngestor(c.Store, cfg.Probe, c.Metrics)
	if err != nil {
		return err
	}
	// Flushes must outlive the signal so the final batch is written.
	ing.Start(context.WithoutCancel(ctx))

	sub, err := probe.NewSubscriber(cfg.Probe)
	if err != nil {
		ing.Stop()
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	if err := sub.Start(ing.Handle); err != nil {
		sub.Close()
		ing.Stop()
		return fmt.Errorf("subscriber failed to start: %w", err)
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, flushing")
	sub.Close()
	return ing.Stop()
}
