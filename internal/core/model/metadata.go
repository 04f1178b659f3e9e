package model

import (
	"encoding/json"
	"fmt"
)

// Metadata carries protocol-specific fields. The concrete type always matches
// the record's protocol label.
type Metadata interface {
	Protocol() Protocol
	isMetadata()
}

// TCPMetadata is attached to IPv4 TCP records.
type TCPMetadata struct {
	Flags  string `json:"tcp_flags"`
	Seq    uint32 `json:"tcp_seq"`
	Ack    uint32 `json:"tcp_ack"`
	Window uint16 `json:"tcp_window"`
}

// UDPMetadata is attached to IPv4 UDP records.
type UDPMetadata struct {
	Length   uint16 `json:"udp_length"`
	Checksum uint16 `json:"udp_checksum"`
}

// ICMPMetadata is attached to IPv4 ICMP records.
type ICMPMetadata struct {
	Type uint8 `json:"icmp_type"`
	Code uint8 `json:"icmp_code"`
}

// OtherMetadata describes frames without a recognized network layer.
type OtherMetadata struct {
	Summary string   `json:"packet_summary"`
	Layers  []string `json:"packet_layers"`
}

func (TCPMetadata) Protocol() Protocol   { return ProtocolTCP }
func (UDPMetadata) Protocol() Protocol   { return ProtocolUDP }
func (ICMPMetadata) Protocol() Protocol  { return ProtocolICMP }
func (OtherMetadata) Protocol() Protocol { return ProtocolOther }

func (TCPMetadata) isMetadata()   {}
func (UDPMetadata) isMetadata()   {}
func (ICMPMetadata) isMetadata()  {}
func (OtherMetadata) isMetadata() {}

// DecodeMetadata rebuilds the metadata variant for label from its JSON form.
// Labels that never carry metadata decode to nil.
func DecodeMetadata(label Protocol, raw []byte) (Metadata, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var (
		md  Metadata
		err error
	)
	switch label {
	case ProtocolTCP:
		var m TCPMetadata
		err = json.Unmarshal(raw, &m)
		md = m
	case ProtocolUDP:
		var m UDPMetadata
		err = json.Unmarshal(raw, &m)
		md = m
	case ProtocolICMP:
		var m ICMPMetadata
		err = json.Unmarshal(raw, &m)
		md = m
	case ProtocolOther:
		var m OtherMetadata
		err = json.Unmarshal(raw, &m)
		md = m
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s metadata: %w", label, err)
	}
	return md, nil
}
