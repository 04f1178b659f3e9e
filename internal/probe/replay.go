package probe

import (
	"context"
	"log/slog"

	"PcapLedger/internal/core/model"
	"PcapLedger/internal/engine/extractor"
	"PcapLedger/pkg/pcap"
)

// RecordPublisher is satisfied by *Publisher.
type RecordPublisher interface {
	Publish(r model.Record) error
}

// ReplayStats counts what a replay did.
type ReplayStats struct {
	Files     int
	Published int
	Failed    int // records the publisher rejected
	Skipped   int // frames that could not be classified or were over the cap
}

// Replay extracts the records of every capture file in dir and publishes
// them in file then frame order. Unreadable files are logged and skipped.
func Replay(ctx context.Context, dir string, ex *extractor.Extractor, pub RecordPublisher) (ReplayStats, error) {
	var stats ReplayStats
	files, err := pcap.ListCaptureFiles(dir)
	if err != nil {
		return stats, err
	}

	for _, file := range files {
		frames, err := pcap.ReadFrames(file)
		if err != nil {
			slog.Warn("error reading capture file", "file", file, "frames_read", len(frames), "error", err)
		}
		if len(frames) == 0 {
			continue
		}
		stats.Files++

		res := ex.ExtractFile(frames, frames[0].SourceFile)
		stats.Skipped += len(res.Failures) + res.Truncated
		for _, r := range res.Records {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if err := pub.Publish(r); err != nil {
				stats.Failed++
				slog.Warn("failed to publish record", "file", r.SourceFile, "error", err)
				continue
			}
			stats.Published++
		}
		slog.Info("replayed capture file", "file", file, "records", len(res.Records))
	}
	return stats, nil
}
