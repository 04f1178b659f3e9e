package model

import (
	"time"

	"github.com/google/gopacket/layers"
)

// Protocol is the label attached to every normalized record.
type Protocol string

const (
	ProtocolIP    Protocol = "IP"
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolICMP  Protocol = "ICMP"
	ProtocolIPv6  Protocol = "IPv6"
	ProtocolTCPv6 Protocol = "TCPv6"
	ProtocolUDPv6 Protocol = "UDPv6"
	ProtocolOther Protocol = "Other"
)

// Protocols lists every label a record may carry.
var Protocols = []Protocol{
	ProtocolIP, ProtocolTCP, ProtocolUDP, ProtocolICMP,
	ProtocolIPv6, ProtocolTCPv6, ProtocolUDPv6, ProtocolOther,
}

// Valid reports whether p is one of the known labels.
func (p Protocol) Valid() bool {
	for _, known := range Protocols {
		if p == known {
			return true
		}
	}
	return false
}

// RawFrame is one decoded capture unit handed over by the capture reader.
// It is only read during classification.
type RawFrame struct {
	Timestamp  time.Time
	Length     int // total on-the-wire length; 0 means len(Data)
	Data       []byte
	LinkType   layers.LinkType
	SourceFile string
}

// PortPair holds the transport-layer ports of a record.
type PortPair struct {
	Src uint16
	Dst uint16
}

// Record is the normalized, protocol-tagged representation of one frame.
type Record struct {
	Timestamp time.Time
	// SrcIP and DstIP are both empty for frames without a network layer.
	SrcIP string
	DstIP string
	// Ports is nil unless a transport layer was matched.
	Ports      *PortPair
	Protocol   Protocol
	Size       int // on-the-wire length, not the captured byte count
	Metadata   Metadata
	SourceFile string

	// ID and CreatedAt are assigned by the store; zero until persisted.
	ID        int64
	CreatedAt time.Time
}

// HasAddresses reports whether the record carries network-layer addresses.
func (r Record) HasAddresses() bool {
	return r.SrcIP != "" || r.DstIP != ""
}

// SrcPort returns the source port and whether the record has ports at all.
func (r Record) SrcPort() (uint16, bool) {
	if r.Ports == nil {
		return 0, false
	}
	return r.Ports.Src, true
}

// DstPort returns the destination port and whether the record has ports at all.
func (r Record) DstPort() (uint16, bool) {
	if r.Ports == nil {
		return 0, false
	}
	return r.Ports.Dst, true
}

// Count is one entry of a frequency table.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// PortCount is one entry of a port frequency table.
type PortCount struct {
	Port  uint16 `json:"port"`
	Count int    `json:"count"`
}

// SizeStats summarizes record sizes.
type SizeStats struct {
	Min     int     `json:"min"`
	Max     int     `json:"max"`
	Average float64 `json:"average"`
	Total   int64   `json:"total_bytes"`
}

// Report is the statistics summary over a set of records.
type Report struct {
	TotalPackets         int            `json:"total_packets"`
	ProtocolDistribution map[string]int `json:"protocol_distribution"`
	TopSourceIPs         []Count        `json:"top_source_ips"`
	TopDestinationIPs    []Count        `json:"top_destination_ips"`
	TopSourcePorts       []PortCount    `json:"top_source_ports"`
	TopDestinationPorts  []PortCount    `json:"top_destination_ports"`
	PacketSizeStats      SizeStats      `json:"packet_size_stats"`
}
