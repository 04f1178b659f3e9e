package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"PcapLedger/internal/core/model"
	"PcapLedger/internal/engine/aggregator"
	"PcapLedger/internal/engine/filter"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)

func newTestWriter(path string) *Writer {
	w := NewWriter(path)
	w.now = func() time.Time { return fixed }
	return w
}

func sample() []model.Record {
	return []model.Record{
		{
			Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), SrcIP: "10.0.0.1", DstIP: "10.0.0.2",
			Ports: &model.PortPair{Src: 40000, Dst: 80}, Protocol: model.ProtocolTCP, Size: 80,
			Metadata: model.TCPMetadata{Flags: "S"}, SourceFile: "a.pcap",
		},
		{Timestamp: time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC), Protocol: model.ProtocolOther, Size: 40, SourceFile: "a.pcap"},
	}
}

func TestStatisticsPath(t *testing.T) {
	assert.Equal(t, "out/traffic_export_statistics.json", StatisticsPath("out/traffic_export.json"))
	assert.Equal(t, "REPORT_statistics.json", StatisticsPath("REPORT.JSON"))
	assert.Equal(t, "dump_statistics.json", StatisticsPath("dump"))
}

func TestWriteRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "traffic_export.json")
	w := newTestWriter(path)
	_, err := uuid.Parse(w.RunID())
	require.NoError(t, err)

	spec := filter.Spec{Protocol: model.ProtocolTCP}
	require.NoError(t, w.WriteRecords(sample()[:1], spec))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Metadata map[string]any   `json:"metadata"`
		Records  []map[string]any `json:"records"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "1.0", doc.Metadata["export_version"])
	assert.Equal(t, float64(1), doc.Metadata["total_packets"])
	assert.Equal(t, w.RunID(), doc.Metadata["run_id"])
	assert.Equal(t, "2024-03-02T08:30:00Z", doc.Metadata["export_timestamp"])
	assert.Equal(t, map[string]any{"protocol": "TCP"}, doc.Metadata["filters_applied"])
	require.Len(t, doc.Records, 1)
	assert.Equal(t, "10.0.0.1", doc.Records[0]["source_ip"])

	var typed RecordsDocument
	require.NoError(t, json.Unmarshal(data, &typed))
	assert.Equal(t, sample()[:1], typed.Records)
}

func TestWriteRecords_EmptyAndUnfiltered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	w := newTestWriter(path)
	require.NoError(t, w.WriteRecords(nil, filter.Spec{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []any{}, doc["records"])
	assert.Nil(t, doc["metadata"].(map[string]any)["filters_applied"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteStatistics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traffic_export.json")
	w := newTestWriter(path)

	report := aggregator.Summarize(sample())
	require.NoError(t, w.WriteStatistics(report, filter.Spec{}))

	data, err := os.ReadFile(w.StatisticsPath())
	require.NoError(t, err)

	var doc StatisticsDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, w.RunID(), doc.Metadata.RunID)
	assert.Equal(t, 2, doc.Metadata.TotalPackets)
	assert.Equal(t, report, doc.Statistics)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "records document is not written by WriteStatistics")
}

func TestWriteRecords_UnwritableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	w := newTestWriter(filepath.Join(blocker, "out.json"))
	assert.Error(t, w.WriteRecords(sample(), filter.Spec{}))
}
