package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"PcapLedger/internal/alerter"
	"PcapLedger/internal/config"
	"PcapLedger/internal/core/model"
	"PcapLedger/internal/engine/filter"
	"PcapLedger/internal/export"
	"PcapLedger/internal/framegen"
	"PcapLedger/internal/metrics"
	"PcapLedger/internal/storage"
	"PcapLedger/internal/storage/boltstore"
	"PcapLedger/pkg/pcap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// scenarioFrames are one TCP, one UDP and one ARP frame with wire lengths
// 100, 80 and 60.
func scenarioFrames() []model.RawFrame {
	tcp := framegen.Frame(framegen.Must(framegen.TCPv4("192.168.1.100", "192.168.1.1", 12345, 80,
		framegen.TCPOptions{SYN: true, Seq: 1}, nil)), base, "")
	tcp.Length = 100
	udp := framegen.Frame(framegen.Must(framegen.UDPv4("192.168.1.100", "8.8.8.8", 53000, 53, nil)), base.Add(time.Second), "")
	udp.Length = 80
	arp := framegen.Frame(framegen.Must(framegen.ARPRequest("192.168.1.100", "192.168.1.1")), base.Add(2*time.Second), "")
	arp.Length = 60
	return []model.RawFrame{tcp, udp, arp}
}

type fixture struct {
	app   *App
	store storage.Store
	cfg   *config.Config
	dir   string
	out   string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Capture.Directory = filepath.Join(root, "pcaps")
	cfg.Storage.BatchSize = 2
	cfg.Export.OutputFile = filepath.Join(root, "out", "traffic_export.json")
	require.NoError(t, os.MkdirAll(cfg.Capture.Directory, 0o755))

	store, err := boltstore.New(filepath.Join(root, "ledger.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &fixture{
		app:   New(cfg, store, opts...),
		store: store,
		cfg:   cfg,
		dir:   cfg.Capture.Directory,
		out:   cfg.Export.OutputFile,
	}
}

func (f *fixture) writeCapture(t *testing.T, name string, frames []model.RawFrame) {
	t.Helper()
	require.NoError(t, framegen.WritePcap(filepath.Join(f.dir, name), frames))
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t, WithMetrics(metrics.New()))
	f.writeCapture(t, "scenario.pcap", scenarioFrames())

	rep, err := f.app.Run(context.Background(), "", ExportOptions{IncludeStatistics: true})
	require.NoError(t, err)
	require.True(t, rep.OK())

	var names []string
	for _, s := range rep.Stages {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{StageInit, StageParse, StageSave, StageExport}, names)
	for _, name := range []string{StageParse, StageSave, StageExport} {
		s, ok := rep.Stage(name)
		require.True(t, ok)
		assert.Equal(t, 3, s.Count, name)
	}

	var records export.RecordsDocument
	readJSON(t, f.out, &records)
	require.Len(t, records.Records, 3)
	assert.Equal(t, model.ProtocolTCP, records.Records[0].Protocol)
	assert.Equal(t, "scenario.pcap", records.Records[0].SourceFile)
	assert.Equal(t, model.TCPMetadata{Flags: "S", Seq: 1}, records.Records[0].Metadata)
	assert.Equal(t, model.ProtocolOther, records.Records[2].Protocol)

	var stats export.StatisticsDocument
	readJSON(t, rep.Export.StatisticsPath, &stats)
	assert.Equal(t, filepath.Join(filepath.Dir(f.out), "traffic_export_statistics.json"), rep.Export.StatisticsPath)
	assert.Equal(t, records.Metadata.RunID, stats.Metadata.RunID)
	assert.Equal(t, map[string]int{"TCP": 1, "UDP": 1, "Other": 1}, stats.Statistics.ProtocolDistribution)
	assert.Equal(t, model.SizeStats{Min: 60, Max: 100, Average: 80, Total: 240}, stats.Statistics.PacketSizeStats)
}

func TestRun_FilteredExportKeepsFullStatistics(t *testing.T) {
	f := newFixture(t)
	f.writeCapture(t, "scenario.pcap", scenarioFrames())

	rep, err := f.app.Run(context.Background(), "", ExportOptions{
		Filter:            filter.RawSpec{Protocol: "TCP"},
		IncludeStatistics: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Export.Exported)

	var records export.RecordsDocument
	readJSON(t, f.out, &records)
	require.Len(t, records.Records, 1)
	assert.Equal(t, "192.168.1.100", records.Records[0].SrcIP)
	require.NotNil(t, records.Metadata.FiltersApplied)
	assert.Equal(t, model.ProtocolTCP, records.Metadata.FiltersApplied.Protocol)

	var stats export.StatisticsDocument
	readJSON(t, rep.Export.StatisticsPath, &stats)
	assert.Equal(t, 3, stats.Statistics.TotalPackets)
}

func TestExport_NoMatchIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.writeCapture(t, "scenario.pcap", scenarioFrames())
	_, err := f.app.Run(context.Background(), "", ExportOptions{})
	require.NoError(t, err)

	res, err := f.app.Export(context.Background(), ExportOptions{Filter: filter.RawSpec{MinSize: "1000"}})
	require.NoError(t, err)
	assert.Zero(t, res.Exported)
	assert.Empty(t, res.StatisticsPath)

	var records export.RecordsDocument
	readJSON(t, f.out, &records)
	assert.Empty(t, records.Records)
	assert.Zero(t, records.Metadata.TotalPackets)
}

func TestExport_PushesDownNarrowingFilters(t *testing.T) {
	f := newFixture(t)
	f.writeCapture(t, "scenario.pcap", scenarioFrames())
	_, err := f.app.Run(context.Background(), "", ExportOptions{})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "udp.json")
	res, err := f.app.Export(context.Background(), ExportOptions{
		Output: out,
		Filter: filter.RawSpec{Protocol: "UDP", Port: "53"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Exported)
	assert.Equal(t, out, res.RecordsPath)

	res, err = f.app.Export(context.Background(), ExportOptions{
		Output: out,
		Filter: filter.RawSpec{Address: "10.9.9.9"},
	})
	require.NoError(t, err)
	assert.Zero(t, res.Exported)
}

func TestExport_EmptyStore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.app.InitDatabase(context.Background()))

	_, err := f.app.Export(context.Background(), ExportOptions{IncludeStatistics: true})
	assert.ErrorIs(t, err, storage.ErrNoRecords)

	_, err = f.app.Export(context.Background(), ExportOptions{Filter: filter.RawSpec{Protocol: "TCP"}})
	assert.ErrorIs(t, err, storage.ErrNoRecords)
}

func TestExport_InvalidFilter(t *testing.T) {
	f := newFixture(t)

	_, err := f.app.Export(context.Background(), ExportOptions{Filter: filter.RawSpec{StartTime: "last tuesday"}})

	var invalid *filter.InvalidSpecError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "start_time", invalid.Field)
	_, statErr := os.Stat(f.out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_MissingDirectory(t *testing.T) {
	f := newFixture(t)

	rep, err := f.app.Run(context.Background(), filepath.Join(t.TempDir(), "absent"), ExportOptions{})

	var unavailable *pcap.SourceUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.False(t, rep.OK())
	require.Len(t, rep.Stages, 2)
	assert.True(t, rep.Stages[0].OK)
	assert.False(t, rep.Stages[1].OK)
}

func TestRun_UnreadableFilesParseNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "broken.pcap"), []byte("garbage!"), 0o644))

	rep, err := f.app.Run(context.Background(), "", ExportOptions{})

	assert.ErrorIs(t, err, ErrNothingParsed)
	require.Len(t, rep.Parse.FileErrors, 1)
	assert.Equal(t, filepath.Join(f.dir, "broken.pcap"), rep.Parse.FileErrors[0].File)
}

func TestParseDirectory_CapAndFailures(t *testing.T) {
	f := newFixture(t)
	f.cfg.Capture.MaxPacketsPerFile = 2
	f.app = New(f.cfg, f.store)

	frames := scenarioFrames()
	f.writeCapture(t, "a.pcap", frames)
	f.writeCapture(t, "b.pcap", frames[:1])

	res, err := f.app.ParseDirectory(context.Background(), "")
	require.NoError(t, err)

	assert.Len(t, res.Records, 3)
	assert.Equal(t, 1, res.Truncated)
	assert.Equal(t, []string{"a.pcap"}, res.CappedFiles)
	assert.Equal(t, "a.pcap", res.Records[0].SourceFile)
	assert.Equal(t, "b.pcap", res.Records[2].SourceFile)
}

type recordingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *recordingNotifier) Send(string, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return nil
}

func TestExport_EvaluatesAlerts(t *testing.T) {
	n := &recordingNotifier{}
	al, err := alerter.New(config.AlerterConfig{Rules: []config.AlerterRule{
		{Name: "udp present", Metric: "protocol:UDP", Operator: ">=", Threshold: 1},
	}}, n)
	require.NoError(t, err)

	f := newFixture(t, WithAlerter(al))
	f.writeCapture(t, "scenario.pcap", scenarioFrames())

	rep, err := f.app.Run(context.Background(), "", ExportOptions{})
	require.NoError(t, err)
	require.Len(t, rep.Export.Alerts, 1)
	assert.Equal(t, "udp present", rep.Export.Alerts[0].Rule.Name)
	assert.Equal(t, 1, n.count)
}
