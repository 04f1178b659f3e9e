package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// recordJSON is the exported document shape of a Record.
type recordJSON struct {
	ID              int64           `json:"id,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	SourceIP        *string         `json:"source_ip"`
	DestinationIP   *string         `json:"destination_ip"`
	SourcePort      *uint16         `json:"source_port"`
	DestinationPort *uint16         `json:"destination_port"`
	Protocol        Protocol        `json:"protocol"`
	PacketSize      int             `json:"packet_size"`
	PacketData      json.RawMessage `json:"packet_data"`
	FileName        string          `json:"file_name"`
	CreatedAt       *time.Time      `json:"created_at,omitempty"`
}

// MarshalJSON writes absent addresses, ports and metadata as null.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		Protocol:   r.Protocol,
		PacketSize: r.Size,
		FileName:   r.SourceFile,
	}
	if !r.CreatedAt.IsZero() {
		created := r.CreatedAt
		out.CreatedAt = &created
	}
	if r.HasAddresses() {
		src, dst := r.SrcIP, r.DstIP
		out.SourceIP = &src
		out.DestinationIP = &dst
	}
	if r.Ports != nil {
		src, dst := r.Ports.Src, r.Ports.Dst
		out.SourcePort = &src
		out.DestinationPort = &dst
	}
	if r.Metadata != nil {
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, err
		}
		out.PacketData = raw
	} else {
		out.PacketData = json.RawMessage("null")
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a Record, choosing the metadata variant by label.
func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Protocol != "" && !in.Protocol.Valid() {
		return fmt.Errorf("unknown protocol label %q", in.Protocol)
	}

	md, err := DecodeMetadata(in.Protocol, in.PacketData)
	if err != nil {
		return err
	}

	*r = Record{
		ID:         in.ID,
		Timestamp:  in.Timestamp,
		Protocol:   in.Protocol,
		Size:       in.PacketSize,
		Metadata:   md,
		SourceFile: in.FileName,
	}
	if in.CreatedAt != nil {
		r.CreatedAt = *in.CreatedAt
	}
	if in.SourceIP != nil && in.DestinationIP != nil {
		r.SrcIP = *in.SourceIP
		r.DstIP = *in.DestinationIP
	}
	if in.SourcePort != nil && in.DestinationPort != nil {
		r.Ports = &PortPair{Src: *in.SourcePort, Dst: *in.DestinationPort}
	}
	return nil
}
