package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PcapLedger/internal/api"
	"PcapLedger/internal/config"
	"PcapLedger/internal/core/model"
	"PcapLedger/internal/engine/aggregator"
	"PcapLedger/internal/factory"
	"PcapLedger/internal/log"
	"PcapLedger/internal/rpc"

	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", "", "config file path (defaults plus environment when empty)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := log.Init(cfg.Log); err != nil {
		slog.Error("failed to initialize logging", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := factory.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to build components", "error", err)
		os.Exit(1)
	}
	defer c.Close()
	if err := c.Store.CreateSchema(ctx); err != nil {
		slog.Error("failed to create schema", "error", err)
		os.Exit(1)
	}

	querier := c.Querier()

	// gRPC
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(rpc.MetricsInterceptor(c.Metrics)))
	rpc.Register(grpcServer, querier)
	lis, err := net.Listen("tcp", cfg.API.GRPCListenAddr)
	if err != nil {
		slog.Error("failed to listen", "addr", cfg.API.GRPCListenAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC server starting", "addr", cfg.API.GRPCListenAddr)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC server error", "error", err)
			stop()
		}
	}()

	// HTTP
	httpServer := &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           api.NewRouter(querier, c.Metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	if c.Alerter != nil && cfg.Alerter.CheckInterval != "" {
		interval, _ := time.ParseDuration(cfg.Alerter.CheckInterval)
		go c.Alerter.Run(ctx, interval, func(ctx context.Context) (model.Report, error) {
			records, err := c.Store.QueryAll(ctx)
			if err != nil {
				return model.Report{}, err
			}
			return aggregator.Summarize(records), nil
		})
	}

	<-ctx.Done()
	slog.Info("servers shutting down")

	grpcServer.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced to shutdown", "error", err)
	}
	slog.Info("all servers exited")
}
