package filter

import (
	"errors"
	"testing"
	"time"

	"PcapLedger/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func sampleRecords() []model.Record {
	return []model.Record{
		{
			Timestamp: t0, SrcIP: "192.168.1.100", DstIP: "192.168.1.1",
			Ports: &model.PortPair{Src: 12345, Dst: 80}, Protocol: model.ProtocolTCP, Size: 80,
		},
		{
			Timestamp: t0.Add(time.Second), SrcIP: "192.168.1.100", DstIP: "8.8.8.8",
			Ports: &model.PortPair{Src: 53000, Dst: 53}, Protocol: model.ProtocolUDP, Size: 60,
		},
		{
			Timestamp: t0.Add(2 * time.Second), Protocol: model.ProtocolOther, Size: 40,
		},
		{
			Timestamp: t0.Add(3 * time.Second), SrcIP: "8.8.8.8", DstIP: "192.168.1.100",
			Protocol: model.ProtocolICMP, Size: 98,
		},
	}
}

func TestApply(t *testing.T) {
	records := sampleRecords()

	tests := []struct {
		name string
		spec Spec
		want []int
	}{
		{"protocol", Spec{Protocol: model.ProtocolTCP}, []int{0}},
		{"address matches either endpoint", Spec{Address: "8.8.8.8"}, []int{1, 3}},
		{"port matches either endpoint", Spec{Port: ptr[uint16](53)}, []int{1}},
		{"port never matches portless records", Spec{Port: ptr[uint16](0)}, nil},
		{"min size", Spec{MinSize: ptr(60)}, []int{0, 1, 3}},
		{"max size", Spec{MaxSize: ptr(60)}, []int{1, 2}},
		{"size range inclusive", Spec{MinSize: ptr(40), MaxSize: ptr(80)}, []int{0, 1, 2}},
		{"time window inclusive", Spec{StartTime: ptr(t0.Add(time.Second)), EndTime: ptr(t0.Add(2 * time.Second))}, []int{1, 2}},
		{"fields combine with AND", Spec{Address: "192.168.1.100", MaxSize: ptr(70)}, []int{1}},
		{"no match is empty, not an error", Spec{MinSize: ptr(100)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(records, tt.spec)

			want := []model.Record{}
			for _, i := range tt.want {
				want = append(want, records[i])
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestApply_EmptySpecReturnsInput(t *testing.T) {
	records := sampleRecords()

	got := Apply(records, Spec{})

	assert.Equal(t, records, got)
}

func TestApply_IdempotentAndMonotonic(t *testing.T) {
	records := sampleRecords()
	specs := []Spec{
		{},
		{Protocol: model.ProtocolUDP},
		{Address: "192.168.1.100", MinSize: ptr(50)},
		{Port: ptr[uint16](80), EndTime: ptr(t0)},
	}

	for _, spec := range specs {
		once := Apply(records, spec)
		twice := Apply(once, spec)
		assert.Equal(t, once, twice)
		assert.LessOrEqual(t, len(once), len(records))
	}
}

func TestParse(t *testing.T) {
	spec, err := Parse(RawSpec{
		Protocol:  "TCP",
		Address:   "::FFFF:192.168.1.1",
		Port:      "443",
		MinSize:   "10",
		MaxSize:   "1500",
		StartTime: "2024-03-01T12:00:00",
		EndTime:   "2024-03-01T13:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ProtocolTCP, spec.Protocol)
	assert.Equal(t, "192.168.1.1", spec.Address)
	assert.Equal(t, uint16(443), *spec.Port)
	assert.Equal(t, 10, *spec.MinSize)
	assert.Equal(t, 1500, *spec.MaxSize)
	assert.True(t, spec.StartTime.Equal(t0))
	assert.True(t, spec.EndTime.Equal(t0.Add(time.Hour)))
}

func TestParse_Empty(t *testing.T) {
	spec, err := Parse(RawSpec{})
	require.NoError(t, err)
	assert.True(t, spec.IsEmpty())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		raw   RawSpec
		field string
	}{
		{RawSpec{StartTime: "yesterday"}, "start_time"},
		{RawSpec{EndTime: "2024-13-45"}, "end_time"},
		{RawSpec{Port: "70000"}, "port"},
		{RawSpec{MinSize: "-1"}, "min_size"},
		{RawSpec{MaxSize: "big"}, "max_size"},
		{RawSpec{Address: "not-an-ip"}, "ip_address"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			spec, err := Parse(tt.raw)

			var invalid *InvalidSpecError
			require.True(t, errors.As(err, &invalid), "expected InvalidSpecError, got %v", err)
			assert.Equal(t, tt.field, invalid.Field)
			assert.True(t, spec.IsEmpty(), "no partial spec on error")
		})
	}
}

func TestParseTime_Layouts(t *testing.T) {
	for _, s := range []string{
		"2024-03-01T12:00:00Z",
		"2024-03-01T14:00:00+02:00",
		"2024-03-01T12:00:00.000",
		"2024-03-01 12:00:00",
	} {
		got, err := ParseTime(s)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(t0), "%s parsed as %v", s, got)
	}
}
