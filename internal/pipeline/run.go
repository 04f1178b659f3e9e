package pipeline

import (
	"context"
	"log/slog"
)

// Stage names as they appear in a Report.
const (
	StageInit   = "init"
	StageParse  = "parse"
	StageSave   = "save"
	StageExport = "export"
)

// StageResult is the outcome of one stage. Count is the number of records
// the stage handled: parsed, saved or exported.
type StageResult struct {
	Name  string
	OK    bool
	Count int
	Err   error
}

// Report lists the stages a run got through, in order.
type Report struct {
	Stages []StageResult
	Parse  ParseResult
	Export ExportResult
}

// OK reports whether every stage succeeded.
func (r Report) OK() bool {
	for _, s := range r.Stages {
		if !s.OK {
			return false
		}
	}
	return len(r.Stages) > 0
}

// Stage returns the result of the named stage, if it ran.
func (r Report) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

func (r *Report) record(name string, count int, err error) error {
	r.Stages = append(r.Stages, StageResult{Name: name, OK: err == nil, Count: count, Err: err})
	if err != nil {
		slog.Error("pipeline stage failed", "stage", name, "count", count, "error", err)
	} else {
		slog.Info("pipeline stage completed", "stage", name, "count", count)
	}
	return err
}

// Run executes init, parse, save and export in order and stops at the first
// failing stage. Parsing zero records fails the run with ErrNothingParsed.
func (a *App) Run(ctx context.Context, dir string, opts ExportOptions) (Report, error) {
	slog.Info("starting full traffic parsing pipeline")
	var rep Report

	if err := rep.record(StageInit, 0, a.InitDatabase(ctx)); err != nil {
		return rep, err
	}

	parsed, err := a.ParseDirectory(ctx, dir)
	rep.Parse = parsed
	if err == nil && len(parsed.Records) == 0 {
		err = ErrNothingParsed
	}
	if err := rep.record(StageParse, len(parsed.Records), err); err != nil {
		return rep, err
	}

	saved, err := a.SaveRecords(ctx, parsed.Records)
	if err := rep.record(StageSave, saved, err); err != nil {
		return rep, err
	}

	exported, err := a.Export(ctx, opts)
	rep.Export = exported
	if err := rep.record(StageExport, exported.Exported, err); err != nil {
		return rep, err
	}

	slog.Info("pipeline completed successfully")
	return rep, nil
}
