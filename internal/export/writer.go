// Package export writes records and statistics reports as JSON documents.
package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"PcapLedger/internal/core/model"
	"PcapLedger/internal/engine/filter"

	"github.com/google/uuid"
)

// Version is the document schema version.
const Version = "1.0"

// Metadata heads every exported document.
type Metadata struct {
	ExportTimestamp time.Time    `json:"export_timestamp"`
	RunID           string       `json:"run_id"`
	TotalPackets    int          `json:"total_packets"`
	FiltersApplied  *filter.Spec `json:"filters_applied"`
	ExportVersion   string       `json:"export_version"`
}

// RecordsDocument is the layout of the records export.
type RecordsDocument struct {
	Metadata Metadata       `json:"metadata"`
	Records  []model.Record `json:"records"`
}

// StatisticsDocument is the layout of the statistics export.
type StatisticsDocument struct {
	Metadata   Metadata     `json:"metadata"`
	Statistics model.Report `json:"statistics"`
}

// Writer writes the documents of one export run. Both documents of a run
// share its run id.
type Writer struct {
	path  string
	runID string
	now   func() time.Time
}

// NewWriter creates a writer for the records document at path.
func NewWriter(path string) *Writer {
	return &Writer{
		path:  path,
		runID: uuid.NewString(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RunID identifies this export run.
func (w *Writer) RunID() string { return w.runID }

// Path is where the records document goes.
func (w *Writer) Path() string { return w.path }

// StatisticsPath is where the statistics document goes.
func (w *Writer) StatisticsPath() string { return StatisticsPath(w.path) }

// StatisticsPath derives <name>_statistics.json from a records path.
func StatisticsPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		path = path[:len(path)-len(".json")]
	}
	return path + "_statistics.json"
}

func (w *Writer) metadata(total int, spec filter.Spec) Metadata {
	md := Metadata{
		ExportTimestamp: w.now(),
		RunID:           w.runID,
		TotalPackets:    total,
		ExportVersion:   Version,
	}
	if !spec.IsEmpty() {
		md.FiltersApplied = &spec
	}
	return md
}

// WriteRecords writes the records document.
func (w *Writer) WriteRecords(records []model.Record, spec filter.Spec) error {
	if records == nil {
		records = []model.Record{}
	}
	doc := RecordsDocument{Metadata: w.metadata(len(records), spec), Records: records}
	if err := writeJSON(w.path, doc); err != nil {
		return err
	}
	slog.Info("records exported", "path", w.path, "records", len(records), "run_id", w.runID)
	return nil
}

// WriteStatistics writes the statistics document.
func (w *Writer) WriteStatistics(report model.Report, spec filter.Spec) error {
	path := w.StatisticsPath()
	doc := StatisticsDocument{Metadata: w.metadata(report.TotalPackets, spec), Statistics: report}
	if err := writeJSON(path, doc); err != nil {
		return err
	}
	slog.Info("statistics exported", "path", path, "run_id", w.runID)
	return nil
}

// writeJSON writes v to a temporary file next to path and renames it into
// place, so readers never see a half-written document.
func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	return nil
}
