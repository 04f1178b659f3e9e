package factory

import (
	"context"
	"path/filepath"
	"testing"

	"PcapLedger/internal/config"
	"PcapLedger/internal/engine/filter"
	"PcapLedger/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boltConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.URL = "bolt:///" + filepath.Join(t.TempDir(), "ledger.bolt")
	return cfg
}

func TestBackendsRegistered(t *testing.T) {
	assert.Equal(t, []string{"bolt", "clickhouse", "mysql", "sqlite"}, storage.Drivers())
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	cfg := boltConfig(t)
	cfg.Alerter = config.AlerterConfig{
		Enabled: true,
		Rules:   []config.AlerterRule{{Name: "busy", Metric: "total_packets", Operator: ">", Threshold: 10}},
	}

	c, err := Build(ctx, cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Alerter)
	assert.NotNil(t, c.Metrics)

	app := c.App()
	require.NoError(t, app.InitDatabase(ctx))

	res, err := c.Querier().Records(ctx, filter.RawSpec{})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
}

func TestBuild_AlertingDisabled(t *testing.T) {
	cfg := boltConfig(t)
	cfg.Alerter.Rules = []config.AlerterRule{{Name: "ignored", Metric: "nonsense", Operator: "?"}}

	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()
	assert.Nil(t, c.Alerter)
}

func TestBuild_Errors(t *testing.T) {
	cfg := boltConfig(t)
	cfg.Alerter = config.AlerterConfig{
		Enabled: true,
		Rules:   []config.AlerterRule{{Name: "bad", Metric: "total_packets", Operator: "!="}},
	}
	_, err := Build(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown operator")

	cfg = config.Default()
	cfg.Database.URL = "bolt:///" + filepath.Join(t.TempDir(), "missing", "dir", "ledger.bolt")
	_, err = Build(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to open storage")
}
