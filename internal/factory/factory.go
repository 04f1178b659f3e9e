// Package factory builds the long-lived components of the binaries from
// configuration. Importing it registers every storage backend.
package factory

import (
	"context"
	"fmt"
	"log/slog"

	"PcapLedger/internal/alerter"
	"PcapLedger/internal/config"
	"PcapLedger/internal/metrics"
	"PcapLedger/internal/notification"
	"PcapLedger/internal/pipeline"
	"PcapLedger/internal/query"
	"PcapLedger/internal/storage"
	_ "PcapLedger/internal/storage/boltstore"  // registers bolt://
	_ "PcapLedger/internal/storage/clickhouse" // registers clickhouse://
	_ "PcapLedger/internal/storage/sqlstore"   // registers sqlite:// and mysql://
)

// Components groups what the commands share.
type Components struct {
	Config  *config.Config
	Store   storage.Store
	Metrics *metrics.Metrics
	// Alerter is nil when alerting is disabled.
	Alerter *alerter.Alerter
}

// Build opens the configured store and creates metrics and, when enabled,
// the alerter.
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	var al *alerter.Alerter
	if cfg.Alerter.Enabled {
		var err error
		al, err = alerter.New(cfg.Alerter, notification.FromConfig(cfg.SMTP))
		if err != nil {
			return nil, err
		}
		slog.Info("alerter enabled", "rules", len(cfg.Alerter.Rules))
	}

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	return &Components{
		Config:  cfg,
		Store:   store,
		Metrics: metrics.New(),
		Alerter: al,
	}, nil
}

// App returns a pipeline over the components.
func (c *Components) App() *pipeline.App {
	opts := []pipeline.Option{pipeline.WithMetrics(c.Metrics)}
	if c.Alerter != nil {
		opts = append(opts, pipeline.WithAlerter(c.Alerter))
	}
	return pipeline.New(c.Config, c.Store, opts...)
}

// Querier returns a query service over the store.
func (c *Components) Querier() query.Querier {
	return query.NewStoreQuerier(c.Store)
}

// Close releases the store.
func (c *Components) Close() error {
	return c.Store.Close()
}
