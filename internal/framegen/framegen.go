// Package framegen builds Ethernet frames for sample captures and tests.
package framegen

import (
	"fmt"
	"net"
	"os"
	"time"

	"PcapLedger/internal/core/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// TCPOptions tweaks the TCP header of generated frames.
type TCPOptions struct {
	Seq    uint32
	Ack    uint32
	Window uint16

	SYN, ACK, PSH, FIN, RST, URG bool
}

func serialize(ls ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}

func ethernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: t}
}

func ipv4(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

func ipv6(src, dst string, next layers.IPProtocol) *layers.IPv6 {
	return &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: next,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
}

func tcp(sport, dport uint16, o TCPOptions) *layers.TCP {
	return &layers.TCP{
		SrcPort: layers.TCPPort(sport),
		DstPort: layers.TCPPort(dport),
		Seq:     o.Seq,
		Ack:     o.Ack,
		Window:  o.Window,
		SYN:     o.SYN,
		ACK:     o.ACK,
		PSH:     o.PSH,
		FIN:     o.FIN,
		RST:     o.RST,
		URG:     o.URG,
	}
}

// TCPv4 builds Ethernet/IPv4/TCP with the given payload.
func TCPv4(src, dst string, sport, dport uint16, o TCPOptions, payload []byte) ([]byte, error) {
	ip := ipv4(src, dst, layers.IPProtocolTCP)
	t := tcp(sport, dport, o)
	if err := t.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, t, gopacket.Payload(payload))
}

// UDPv4 builds Ethernet/IPv4/UDP with the given payload.
func UDPv4(src, dst string, sport, dport uint16, payload []byte) ([]byte, error) {
	ip := ipv4(src, dst, layers.IPProtocolUDP)
	u := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	if err := u.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, u, gopacket.Payload(payload))
}

// ICMPv4 builds Ethernet/IPv4/ICMP with the given type and code.
func ICMPv4(src, dst string, typ, code uint8) ([]byte, error) {
	ip := ipv4(src, dst, layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(typ, code), Id: 1, Seq: 1}
	return serialize(ethernet(layers.EthernetTypeIPv4), ip, icmp)
}

// BareIPv4 builds an IPv4 frame with no transport payload.
func BareIPv4(src, dst string, proto layers.IPProtocol) ([]byte, error) {
	return serialize(ethernet(layers.EthernetTypeIPv4), ipv4(src, dst, proto))
}

// TCPv6 builds Ethernet/IPv6/TCP.
func TCPv6(src, dst string, sport, dport uint16, o TCPOptions, payload []byte) ([]byte, error) {
	ip := ipv6(src, dst, layers.IPProtocolTCP)
	t := tcp(sport, dport, o)
	if err := t.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	return serialize(ethernet(layers.EthernetTypeIPv6), ip, t, gopacket.Payload(payload))
}

// UDPv6 builds Ethernet/IPv6/UDP.
func UDPv6(src, dst string, sport, dport uint16, payload []byte) ([]byte, error) {
	ip := ipv6(src, dst, layers.IPProtocolUDP)
	u := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	if err := u.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	return serialize(ethernet(layers.EthernetTypeIPv6), ip, u, gopacket.Payload(payload))
}

// ARPRequest builds an Ethernet/ARP who-has frame.
func ARPRequest(senderIP, targetIP string) ([]byte, error) {
	eth := ethernet(layers.EthernetTypeARP)
	eth.DstMAC = layers.EthernetBroadcast
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte(net.ParseIP(senderIP).To4()),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(net.ParseIP(targetIP).To4()),
	}
	return serialize(eth, arp)
}

// Frame wraps bytes into a RawFrame as the capture reader would.
func Frame(data []byte, ts time.Time, source string) model.RawFrame {
	return model.RawFrame{
		Timestamp:  ts,
		Length:     len(data),
		Data:       data,
		LinkType:   layers.LinkTypeEthernet,
		SourceFile: source,
	}
}

// Must panics on error. Intended for tests and generators.
func Must(data []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return data
}

// WritePcap writes frames to a classic pcap file at path. A frame Length
// larger than its data is kept as the original wire length.
func WritePcap(path string, frames []model.RawFrame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}
	for i, fr := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     fr.Timestamp,
			CaptureLength: len(fr.Data),
			Length:        max(fr.Length, len(fr.Data)),
		}
		if err := w.WritePacket(ci, fr.Data); err != nil {
			return fmt.Errorf("failed to write frame %d: %w", i, err)
		}
	}
	return f.Close()
}
