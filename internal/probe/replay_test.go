package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"PcapLedger/internal/core/model"
	"PcapLedger/internal/engine/extractor"
	"PcapLedger/internal/framegen"
	"PcapLedger/pkg/pcap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	records []model.Record
	failOn  int
}

func (p *fakePublisher) Publish(r model.Record) error {
	if p.failOn > 0 && r.Size == p.failOn {
		return errors.New("nats: connection closed")
	}
	p.records = append(p.records, r)
	return nil
}

func writeCapture(t *testing.T, path string, n int) {
	t.Helper()
	frames := make([]model.RawFrame, n)
	for i := range frames {
		data := framegen.Must(framegen.UDPv4("10.0.0.1", "10.0.0.2", uint16(1000+i), 53, nil))
		frames[i] = framegen.Frame(data, base, "")
		frames[i].Length = 100 + i
	}
	require.NoError(t, framegen.WritePcap(path, frames))
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, filepath.Join(dir, "b.pcap"), 2)
	writeCapture(t, filepath.Join(dir, "a.pcap"), 3)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.pcap"), []byte("junk"), 0o644))

	pub := &fakePublisher{failOn: 101}
	stats, err := Replay(context.Background(), dir, extractor.New(2, 1), pub)
	require.NoError(t, err)

	assert.Equal(t, ReplayStats{Files: 2, Published: 2, Failed: 2, Skipped: 1}, stats)
	require.Len(t, pub.records, 2)
	assert.Equal(t, "a.pcap", pub.records[0].SourceFile)
	assert.Equal(t, 100, pub.records[0].Size)
	assert.Equal(t, "b.pcap", pub.records[1].SourceFile)
}

func TestReplay_MissingDirectory(t *testing.T) {
	_, err := Replay(context.Background(), filepath.Join(t.TempDir(), "nope"), extractor.New(0, 1), &fakePublisher{})

	var unavailable *pcap.SourceUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}
