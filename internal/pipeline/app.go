// Package pipeline wires capture reading, extraction, storage and export
// into the init → parse → save → export run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"PcapLedger/internal/alerter"
	"PcapLedger/internal/config"
	"PcapLedger/internal/core/model"
	"PcapLedger/internal/engine/aggregator"
	"PcapLedger/internal/engine/extractor"
	"PcapLedger/internal/engine/filter"
	"PcapLedger/internal/export"
	"PcapLedger/internal/metrics"
	"PcapLedger/internal/storage"
	"PcapLedger/pkg/pcap"
)

// ErrNothingParsed is returned by Run when the capture directory yielded no
// records at all.
var ErrNothingParsed = errors.New("pcapledger: no records were parsed from capture files")

// App runs pipeline stages against one store.
type App struct {
	cfg       *config.Config
	store     storage.Store
	extractor *extractor.Extractor
	metrics   *metrics.Metrics
	alerter   *alerter.Alerter
}

// Option customizes an App.
type Option func(*App)

// WithMetrics records stage counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithAlerter evaluates alert rules after every export.
func WithAlerter(al *alerter.Alerter) Option {
	return func(a *App) { a.alerter = al }
}

// New creates an App. The store is owned by the caller.
func New(cfg *config.Config, store storage.Store, opts ...Option) *App {
	a := &App{
		cfg:       cfg,
		store:     store,
		extractor: extractor.New(cfg.Capture.MaxPacketsPerFile, cfg.Capture.Workers),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// InitDatabase creates the storage schema.
func (a *App) InitDatabase(ctx context.Context) error {
	if err := a.store.CreateSchema(ctx); err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	slog.Info("database initialized successfully")
	return nil
}

// FileError is a capture file that could not be read completely.
type FileError struct {
	File string
	Err  error
}

// ParseResult is the extraction result of a directory plus per-file read
// problems.
type ParseResult struct {
	extractor.Result
	Files      []string
	FileErrors []FileError
}

// ParseDirectory reads and classifies every capture file in dir, or in the
// configured directory when dir is empty. A missing or empty directory is a
// *pcap.SourceUnavailableError. Files that fail to read are reported in
// FileErrors; frames read before the failure are still extracted.
func (a *App) ParseDirectory(ctx context.Context, dir string) (ParseResult, error) {
	if dir == "" {
		dir = a.cfg.Capture.Directory
	}

	files, err := pcap.ListCaptureFiles(dir)
	if err != nil {
		return ParseResult{}, err
	}
	slog.Info("starting to parse capture files", "directory", dir, "files", len(files))

	res := ParseResult{Files: files}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		frames, err := pcap.ReadFrames(file)
		if err != nil {
			slog.Warn("error reading capture file", "file", file, "frames_read", len(frames), "error", err)
			res.FileErrors = append(res.FileErrors, FileError{File: file, Err: err})
		}
		if len(frames) == 0 {
			continue
		}

		fileRes := a.extractor.ExtractFile(frames, frames[0].SourceFile)
		for _, f := range fileRes.Failures {
			slog.Debug("frame skipped", "file", f.SourceFile, "frame", f.FrameIndex, "error", f.Cause)
		}
		if fileRes.Truncated > 0 {
			slog.Info("reached per-file packet limit", "file", file, "limit", a.extractor.Cap(), "skipped", fileRes.Truncated)
		}
		slog.Info("parsed capture file", "file", file, "records", len(fileRes.Records), "failures", len(fileRes.Failures))
		res.Merge(fileRes)
	}

	a.metrics.Classified(res.Records)
	a.metrics.Extraction(len(res.Failures), res.Truncated)
	slog.Info("parsed records from capture files", "records", len(res.Records), "failures", len(res.Failures))
	return res, nil
}

// SaveRecords stores records in batches of the configured size. On failure
// the returned count is what was committed before the failing batch.
func (a *App) SaveRecords(ctx context.Context, records []model.Record) (int, error) {
	if len(records) == 0 {
		slog.Warn("no record data to save")
		return 0, nil
	}

	slog.Info("saving records to database", "records", len(records), "batch_size", a.cfg.Storage.BatchSize)
	saved, err := storage.SaveBatches(ctx, a.store, records, a.cfg.Storage.BatchSize)
	a.metrics.Saved(saved, err != nil)
	if err != nil {
		return saved, fmt.Errorf("error saving to database: %w", err)
	}
	slog.Info("successfully saved all records to database", "records", saved)
	return saved, nil
}

// ExportOptions selects what Export writes.
type ExportOptions struct {
	// Output overrides the configured records document path.
	Output            string
	Filter            filter.RawSpec
	IncludeStatistics bool
}

// ExportResult describes a finished export.
type ExportResult struct {
	RunID          string
	Exported       int
	RecordsPath    string
	StatisticsPath string
	Alerts         []alerter.Alert
}

// Export writes the filtered stored records and, if requested, statistics
// over every stored record. An invalid filter fails before storage is read;
// an empty store fails with storage.ErrNoRecords; a filter matching nothing
// writes an empty document.
func (a *App) Export(ctx context.Context, opts ExportOptions) (ExportResult, error) {
	spec, err := filter.Parse(opts.Filter)
	if err != nil {
		return ExportResult{}, err
	}

	needAll := opts.IncludeStatistics || a.alerter != nil
	candidates, all, err := a.load(ctx, spec, needAll)
	if err != nil {
		return ExportResult{}, err
	}
	records := filter.Apply(candidates, spec)

	output := opts.Output
	if output == "" {
		output = a.cfg.Export.OutputFile
	}
	w := export.NewWriter(output)
	if err := w.WriteRecords(records, spec); err != nil {
		return ExportResult{}, fmt.Errorf("error exporting to JSON: %w", err)
	}
	a.metrics.Exported(len(records))

	res := ExportResult{RunID: w.RunID(), Exported: len(records), RecordsPath: w.Path()}
	if !needAll {
		return res, nil
	}

	report := aggregator.Summarize(all)
	if opts.IncludeStatistics {
		if err := w.WriteStatistics(report, filter.Spec{}); err != nil {
			return res, fmt.Errorf("error exporting statistics: %w", err)
		}
		res.StatisticsPath = w.StatisticsPath()
	}
	if a.alerter != nil {
		alerts, err := a.alerter.Check(report)
		if err != nil {
			slog.Error("alert notification failed", "error", err)
		}
		a.metrics.AlertsTriggered(len(alerts))
		res.Alerts = alerts
	}
	return res, nil
}

// load returns the records the filter is applied to and, when needAll is
// set, every stored record. Protocol and address filters are pushed down to
// the store when the full set is not needed.
func (a *App) load(ctx context.Context, spec filter.Spec, needAll bool) (candidates, all []model.Record, err error) {
	if needAll || (spec.Protocol == "" && spec.Address == "") {
		all, err = a.store.QueryAll(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("error loading records: %w", err)
		}
		if len(all) == 0 {
			return nil, nil, storage.ErrNoRecords
		}
		return all, all, nil
	}

	if spec.Protocol != "" {
		candidates, err = a.store.QueryByProtocol(ctx, spec.Protocol)
	} else {
		candidates, err = a.store.QueryByAddress(ctx, spec.Address)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error loading records: %w", err)
	}
	if len(candidates) == 0 {
		// Distinguish an empty store from a filter that matches nothing.
		everything, err := a.store.QueryAll(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("error loading records: %w", err)
		}
		if len(everything) == 0 {
			return nil, nil, storage.ErrNoRecords
		}
	}
	return candidates, nil, nil
}
