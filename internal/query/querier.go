package query

import (
	"context"
	"fmt"

	"PcapLedger/internal/core/model"
	"PcapLedger/internal/engine/aggregator"
	"PcapLedger/internal/engine/filter"
	"PcapLedger/internal/storage"
)

// Querier answers record and statistics queries over stored records.
type Querier interface {
	Records(ctx context.Context, raw filter.RawSpec) (*RecordsResult, error)
	Summarize(ctx context.Context, raw filter.RawSpec) (*SummaryResult, error)
}

// RecordsResult holds the records matching Filter, in storage order.
type RecordsResult struct {
	Filter  filter.Spec
	Records []model.Record
}

// SummaryResult holds the statistics over the records matching Filter.
type SummaryResult struct {
	Filter filter.Spec
	Report model.Report
}

// storeQuerier implements Querier on top of a storage.Store.
type storeQuerier struct {
	store storage.Store
}

// NewStoreQuerier creates a querier reading from store.
func NewStoreQuerier(store storage.Store) Querier {
	return &storeQuerier{store: store}
}

// Records parses raw and returns the matching records. Filter errors are
// returned as *filter.InvalidSpecError before storage is touched.
func (q *storeQuerier) Records(ctx context.Context, raw filter.RawSpec) (*RecordsResult, error) {
	spec, err := filter.Parse(raw)
	if err != nil {
		return nil, err
	}
	candidates, err := q.load(ctx, spec)
	if err != nil {
		return nil, err
	}
	records := filter.Apply(candidates, spec)
	if records == nil {
		records = []model.Record{}
	}
	return &RecordsResult{Filter: spec, Records: records}, nil
}

// Summarize aggregates the records matching raw.
func (q *storeQuerier) Summarize(ctx context.Context, raw filter.RawSpec) (*SummaryResult, error) {
	res, err := q.Records(ctx, raw)
	if err != nil {
		return nil, err
	}
	return &SummaryResult{Filter: res.Filter, Report: aggregator.Summarize(res.Records)}, nil
}

// load narrows the scan with the store's indexed queries when the spec
// allows it.
func (q *storeQuerier) load(ctx context.Context, spec filter.Spec) ([]model.Record, error) {
	var (
		records []model.Record
		err     error
	)
	switch {
	case spec.Protocol != "":
		records, err = q.store.QueryByProtocol(ctx, spec.Protocol)
	case spec.Address != "":
		records, err = q.store.QueryByAddress(ctx, spec.Address)
	default:
		records, err = q.store.QueryAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	return records, nil
}
