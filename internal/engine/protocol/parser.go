package protocol

import (
	"fmt"
	"strings"

	"PcapLedger/internal/core/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Classify decodes a raw frame and derives its normalized record.
// IPv4 takes precedence over IPv6; frames with neither fall back to "Other".
// index is the frame's position in its source and is only used for errors.
func Classify(frame model.RawFrame, index int) (rec model.Record, err error) {
	fail := func(cause error) error {
		return &ExtractionError{FrameIndex: index, SourceFile: frame.SourceFile, Cause: cause}
	}

	if len(frame.Data) == 0 {
		return model.Record{}, fail(ErrEmptyFrame)
	}
	if frame.Length < 0 {
		return model.Record{}, fail(fmt.Errorf("%w: %d", ErrInvalidLength, frame.Length))
	}

	defer func() {
		if r := recover(); r != nil {
			rec = model.Record{}
			err = fail(fmt.Errorf("%w: %v", ErrUndecodable, r))
		}
	}()

	packet := gopacket.NewPacket(frame.Data, frame.LinkType, gopacket.Default)
	decoded := decodedLayers(packet, frame.Data)

	// Nothing decoded means not even the link layer was readable.
	if len(decoded) == 0 {
		if el := packet.ErrorLayer(); el != nil {
			return model.Record{}, fail(fmt.Errorf("%w: %v", ErrUndecodable, el.Error()))
		}
		return model.Record{}, fail(ErrUndecodable)
	}

	rec = model.Record{
		Timestamp:  frame.Timestamp,
		Size:       frame.Length,
		SourceFile: frame.SourceFile,
	}
	if rec.Size == 0 {
		rec.Size = len(frame.Data)
	}

	if l := findLayer(decoded, layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		rec.SrcIP = ip.SrcIP.String()
		rec.DstIP = ip.DstIP.String()
		classifyIPv4Transport(decoded, &rec)
		return rec, nil
	}

	if l := findLayer(decoded, layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		rec.SrcIP = ip.SrcIP.String()
		rec.DstIP = ip.DstIP.String()
		classifyIPv6Transport(decoded, &rec)
		return rec, nil
	}

	rec.Protocol = model.ProtocolOther
	rec.Metadata = describeLayers(packet, decoded)
	return rec, nil
}

// recheck lists the layers whose gopacket decoders add the layer before
// reporting that its header could not be read.
var recheck = map[gopacket.LayerType]func() gopacket.DecodingLayer{
	layers.LayerTypeIPv4: func() gopacket.DecodingLayer { return &layers.IPv4{} },
	layers.LayerTypeIPv6: func() gopacket.DecodingLayer { return &layers.IPv6{} },
	layers.LayerTypeTCP:  func() gopacket.DecodingLayer { return &layers.TCP{} },
	layers.LayerTypeUDP:  func() gopacket.DecodingLayer { return &layers.UDP{} },
}

// decodedLayers returns the layers of packet that decoded completely, in
// order, without the trailing decode failure. When decoding stopped early
// the last layer is decoded again on its own input and dropped if that
// fails.
func decodedLayers(packet gopacket.Packet, data []byte) []gopacket.Layer {
	all := packet.Layers()
	if packet.ErrorLayer() == nil {
		return all
	}

	ls := make([]gopacket.Layer, 0, len(all))
	for _, l := range all {
		if l.LayerType() != gopacket.LayerTypeDecodeFailure {
			ls = append(ls, l)
		}
	}
	if n := len(ls); n > 0 && ls[n-1].LayerType() == layers.LayerTypeIPv6HopByHop {
		if n > 1 && ls[n-2].LayerType() == layers.LayerTypeIPv6 && !decodesAlone(ls[:n-2], ls[n-2], data) {
			return ls[:n-2]
		}
		return ls
	}
	if n := len(ls); n > 0 && !decodesAlone(ls[:n-1], ls[n-1], data) {
		return ls[:n-1]
	}
	return ls
}

// decodesAlone reports whether l decodes from the payload of the layer
// before it, or from the whole frame when it is the first layer.
func decodesAlone(before []gopacket.Layer, l gopacket.Layer, data []byte) bool {
	fresh, ok := recheck[l.LayerType()]
	if !ok {
		return true
	}
	input := data
	if len(before) > 0 {
		input = before[len(before)-1].LayerPayload()
	}
	return fresh().DecodeFromBytes(input, gopacket.NilDecodeFeedback) == nil
}

func findLayer(ls []gopacket.Layer, t gopacket.LayerType) gopacket.Layer {
	for _, l := range ls {
		if l.LayerType() == t {
			return l
		}
	}
	return nil
}

func classifyIPv4Transport(decoded []gopacket.Layer, rec *model.Record) {
	rec.Protocol = model.ProtocolIP

	if l := findLayer(decoded, layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		rec.Protocol = model.ProtocolTCP
		rec.Ports = &model.PortPair{Src: uint16(tcp.SrcPort), Dst: uint16(tcp.DstPort)}
		rec.Metadata = model.TCPMetadata{
			Flags:  TCPFlags(tcp),
			Seq:    tcp.Seq,
			Ack:    tcp.Ack,
			Window: tcp.Window,
		}
	} else if l := findLayer(decoded, layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		rec.Protocol = model.ProtocolUDP
		rec.Ports = &model.PortPair{Src: uint16(udp.SrcPort), Dst: uint16(udp.DstPort)}
		rec.Metadata = model.UDPMetadata{
			Length:   udp.Length,
			Checksum: udp.Checksum,
		}
	} else if l := findLayer(decoded, layers.LayerTypeICMPv4); l != nil {
		icmp := l.(*layers.ICMPv4)
		rec.Protocol = model.ProtocolICMP
		rec.Metadata = model.ICMPMetadata{
			Type: icmp.TypeCode.Type(),
			Code: icmp.TypeCode.Code(),
		}
	}
}

// IPv6 records only get ports; no metadata is extracted on this path.
func classifyIPv6Transport(decoded []gopacket.Layer, rec *model.Record) {
	rec.Protocol = model.ProtocolIPv6

	if l := findLayer(decoded, layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		rec.Protocol = model.ProtocolTCPv6
		rec.Ports = &model.PortPair{Src: uint16(tcp.SrcPort), Dst: uint16(tcp.DstPort)}
	} else if l := findLayer(decoded, layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		rec.Protocol = model.ProtocolUDPv6
		rec.Ports = &model.PortPair{Src: uint16(udp.SrcPort), Dst: uint16(udp.DstPort)}
	}
}

func describeLayers(packet gopacket.Packet, decoded []gopacket.Layer) model.OtherMetadata {
	names := make([]string, 0, len(decoded))
	for _, l := range decoded {
		names = append(names, l.LayerType().String())
	}

	summary := strings.Join(names, " / ")
	if link := packet.LinkLayer(); link != nil {
		summary = fmt.Sprintf("%s %s", summary, link.LinkFlow())
	}
	return model.OtherMetadata{Summary: summary, Layers: names}
}

// TCPFlags renders the set flags in F S R P A U E C N order, e.g. "SA".
func TCPFlags(tcp *layers.TCP) string {
	flags := []struct {
		set    bool
		letter byte
	}{
		{tcp.FIN, 'F'},
		{tcp.SYN, 'S'},
		{tcp.RST, 'R'},
		{tcp.PSH, 'P'},
		{tcp.ACK, 'A'},
		{tcp.URG, 'U'},
		{tcp.ECE, 'E'},
		{tcp.CWR, 'C'},
		{tcp.NS, 'N'},
	}

	var b strings.Builder
	for _, f := range flags {
		if f.set {
			b.WriteByte(f.letter)
		}
	}
	return b.String()
}
