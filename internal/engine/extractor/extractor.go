package extractor

import (
	"errors"
	"sync"

	"PcapLedger/internal/core/model"
	"PcapLedger/internal/engine/protocol"
)

// DefaultCap mirrors the default per-file packet limit.
const DefaultCap = 10000

// Source is one capture file's decoded frames.
type Source struct {
	File   string
	Frames []model.RawFrame
}

// Result holds the records extracted from one or more sources together with
// the frames that could not be classified.
type Result struct {
	Records  []model.Record
	Failures []*protocol.ExtractionError
	// Truncated counts frames skipped because a source exceeded the cap.
	Truncated int
	// CappedFiles lists the sources that hit the cap, in processing order.
	CappedFiles []string
}

// Merge appends other to r, preserving order.
func (r *Result) Merge(other Result) {
	r.Records = append(r.Records, other.Records...)
	r.Failures = append(r.Failures, other.Failures...)
	r.Truncated += other.Truncated
	r.CappedFiles = append(r.CappedFiles, other.CappedFiles...)
}

// Extractor applies the frame classifier over batches of frames.
type Extractor struct {
	limit   int
	workers int
}

// New creates an extractor. limit <= 0 disables the per-source cap and
// workers <= 1 classifies sequentially.
func New(limit, workers int) *Extractor {
	if limit < 0 {
		limit = 0
	}
	if workers < 1 {
		workers = 1
	}
	return &Extractor{limit: limit, workers: workers}
}

// Cap returns the per-source frame cap, 0 meaning unlimited.
func (e *Extractor) Cap() int {
	return e.limit
}

// ExtractFile classifies at most limit frames of one source, in order.
// Frames past the cap are never classified.
func (e *Extractor) ExtractFile(frames []model.RawFrame, sourceFile string) Result {
	var res Result
	if e.limit > 0 && len(frames) > e.limit {
		res.Truncated = len(frames) - e.limit
		res.CappedFiles = []string{sourceFile}
		frames = frames[:e.limit]
	}

	outcomes := e.classifyAll(frames, sourceFile)

	res.Records = make([]model.Record, 0, len(frames))
	for _, o := range outcomes {
		if o.err != nil {
			res.Failures = append(res.Failures, o.err)
			continue
		}
		res.Records = append(res.Records, o.rec)
	}
	return res
}

// ExtractDirectory concatenates per-source results in source order.
func (e *Extractor) ExtractDirectory(sources []Source) Result {
	var res Result
	for _, src := range sources {
		res.Merge(e.ExtractFile(src.Frames, src.File))
	}
	return res
}

type outcome struct {
	rec model.Record
	err *protocol.ExtractionError
}

func (e *Extractor) classifyAll(frames []model.RawFrame, sourceFile string) []outcome {
	outcomes := make([]outcome, len(frames))
	if e.workers == 1 || len(frames) < 2 {
		for i := range frames {
			outcomes[i] = classifyOne(frames[i], i, sourceFile)
		}
		return outcomes
	}

	// Each worker writes only its own indexes, so the slice needs no lock.
	indexes := make(chan int, e.workers)
	var wg sync.WaitGroup
	wg.Add(e.workers)
	for w := 0; w < e.workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				outcomes[i] = classifyOne(frames[i], i, sourceFile)
			}
		}()
	}
	for i := range frames {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return outcomes
}

func classifyOne(frame model.RawFrame, index int, sourceFile string) outcome {
	if frame.SourceFile == "" {
		frame.SourceFile = sourceFile
	}
	rec, err := protocol.Classify(frame, index)
	if err != nil {
		var extractErr *protocol.ExtractionError
		if !errors.As(err, &extractErr) {
			extractErr = &protocol.ExtractionError{FrameIndex: index, SourceFile: frame.SourceFile, Cause: err}
		}
		return outcome{err: extractErr}
	}
	return outcome{rec: rec}
}
