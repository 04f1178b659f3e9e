package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"PcapLedger/internal/core/model"

	"inet.af/netaddr"
)

// RawSpec is the textual form of a filter as received from flags, query
// parameters or RPC requests. Empty strings mean "not set".
type RawSpec struct {
	Protocol  string
	Address   string
	Port      string
	MinSize   string
	MaxSize   string
	StartTime string
	EndTime   string
}

// InvalidSpecError reports a filter field that could not be parsed.
type InvalidSpecError struct {
	Field  string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid filter %s: %s", e.Field, e.Reason)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Parse validates raw and converts it into a Spec. Either the whole spec is
// returned or an *InvalidSpecError naming the first bad field.
func Parse(raw RawSpec) (Spec, error) {
	var spec Spec

	if p := strings.TrimSpace(raw.Protocol); p != "" {
		spec.Protocol = model.Protocol(p)
	}

	if a := strings.TrimSpace(raw.Address); a != "" {
		ip, err := netaddr.ParseIP(a)
		if err != nil {
			return Spec{}, &InvalidSpecError{Field: "ip_address", Reason: err.Error()}
		}
		spec.Address = CanonicalAddress(ip)
	}

	if p := strings.TrimSpace(raw.Port); p != "" {
		v, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Spec{}, &InvalidSpecError{Field: "port", Reason: fmt.Sprintf("%q is not a port number", p)}
		}
		port := uint16(v)
		spec.Port = &port
	}

	var err error
	if spec.MinSize, err = parseSize("min_size", raw.MinSize); err != nil {
		return Spec{}, err
	}
	if spec.MaxSize, err = parseSize("max_size", raw.MaxSize); err != nil {
		return Spec{}, err
	}
	if spec.StartTime, err = parseTime("start_time", raw.StartTime); err != nil {
		return Spec{}, err
	}
	if spec.EndTime, err = parseTime("end_time", raw.EndTime); err != nil {
		return Spec{}, err
	}

	return spec, nil
}

// CanonicalAddress renders ip the way the classifier renders addresses.
func CanonicalAddress(ip netaddr.IP) string {
	if ip.Is4in6() {
		return ip.Unmap().String()
	}
	return ip.String()
}

func parseSize(field, s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return nil, &InvalidSpecError{Field: field, Reason: fmt.Sprintf("%q is not a non-negative integer", s)}
	}
	return &v, nil
}

// ParseTime accepts RFC3339 and zone-less ISO-8601 forms. Zone-less values
// are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func parseTime(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return nil, &InvalidSpecError{Field: field, Reason: err.Error()}
	}
	return &t, nil
}
