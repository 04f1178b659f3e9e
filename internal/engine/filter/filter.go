package filter

import (
	"time"

	"PcapLedger/internal/core/model"
)

// Spec constrains which records are kept. Zero-valued fields impose no
// constraint; all set fields must hold.
type Spec struct {
	Protocol  model.Protocol `json:"protocol,omitempty"`
	Address   string         `json:"ip_address,omitempty"`
	Port      *uint16        `json:"port,omitempty"`
	MinSize   *int           `json:"min_size,omitempty"`
	MaxSize   *int           `json:"max_size,omitempty"`
	StartTime *time.Time     `json:"start_time,omitempty"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
}

// IsEmpty reports whether the spec constrains nothing.
func (s Spec) IsEmpty() bool {
	return s.Protocol == "" && s.Address == "" && s.Port == nil &&
		s.MinSize == nil && s.MaxSize == nil &&
		s.StartTime == nil && s.EndTime == nil
}

// Match reports whether a single record satisfies every set field.
func (s Spec) Match(r model.Record) bool {
	if s.Protocol != "" && r.Protocol != s.Protocol {
		return false
	}
	if s.Address != "" && r.SrcIP != s.Address && r.DstIP != s.Address {
		return false
	}
	if s.Port != nil {
		if r.Ports == nil {
			return false
		}
		if r.Ports.Src != *s.Port && r.Ports.Dst != *s.Port {
			return false
		}
	}
	if s.MinSize != nil && r.Size < *s.MinSize {
		return false
	}
	if s.MaxSize != nil && r.Size > *s.MaxSize {
		return false
	}
	if s.StartTime != nil && r.Timestamp.Before(*s.StartTime) {
		return false
	}
	if s.EndTime != nil && r.Timestamp.After(*s.EndTime) {
		return false
	}
	return true
}

// Apply returns the records matching spec in their original order.
// An empty spec returns records unchanged.
func Apply(records []model.Record, spec Spec) []model.Record {
	if spec.IsEmpty() {
		return records
	}

	matched := make([]model.Record, 0, len(records))
	for _, r := range records {
		if spec.Match(r) {
			matched = append(matched, r)
		}
	}
	return matched
}
