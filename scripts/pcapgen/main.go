// Command pcapgen writes a capture file of random mixed traffic for trying
// out the ledger.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"PcapLedger/internal/core/model"
	"PcapLedger/internal/framegen"

	"github.com/google/gopacket/layers"
)

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.Parse()

	rng := rand.New(rand.NewPCG(*seed, 0))
	start := time.Now().UTC().Add(-time.Hour)

	log.Printf("Generating %d packets into %s...", *packetCount, *outputFile)
	frames := make([]model.RawFrame, 0, *packetCount)
	for i := range *packetCount {
		data, err := randomFrame(rng)
		if err != nil {
			log.Fatalf("Failed to build frame %d: %v", i, err)
		}
		ts := start.Add(time.Duration(i) * time.Duration(rng.IntN(5000)+1) * time.Microsecond)
		frames = append(frames, framegen.Frame(data, ts, ""))
	}

	if err := framegen.WritePcap(*outputFile, frames); err != nil {
		log.Fatalf("Failed to write capture: %v", err)
	}
	log.Printf("Done.")
}

func randomIPv4(rng *rand.Rand) string {
	return fmt.Sprintf("10.%d.%d.%d", rng.IntN(4), rng.IntN(256), rng.IntN(254)+1)
}

func randomPort(rng *rand.Rand) uint16 {
	return uint16(rng.IntN(65535-1024) + 1024)
}

var wellKnown = []uint16{22, 53, 80, 123, 443, 8080}

// randomFrame picks a frame kind with a rough real-world mix.
func randomFrame(rng *rand.Rand) ([]byte, error) {
	payload := make([]byte, rng.IntN(1400))
	for i := range payload {
		payload[i] = byte(rng.Uint32())
	}
	src, dst := randomIPv4(rng), randomIPv4(rng)
	service := wellKnown[rng.IntN(len(wellKnown))]

	switch n := rng.IntN(100); {
	case n < 55:
		opts := framegen.TCPOptions{Seq: rng.Uint32(), Ack: rng.Uint32(), Window: 14600, ACK: true, PSH: len(payload) > 0}
		return framegen.TCPv4(src, dst, randomPort(rng), service, opts, payload)
	case n < 80:
		return framegen.UDPv4(src, dst, randomPort(rng), service, payload[:min(len(payload), 512)])
	case n < 88:
		return framegen.ICMPv4(src, dst, uint8(rng.IntN(2)*8), 0)
	case n < 93:
		return framegen.TCPv6("2001:db8::1", "2001:db8::2", randomPort(rng), service, framegen.TCPOptions{SYN: true}, nil)
	case n < 96:
		return framegen.UDPv6("2001:db8::1", "2001:db8::53", randomPort(rng), 53, payload[:min(len(payload), 128)])
	case n < 98:
		return framegen.BareIPv4(src, dst, layers.IPProtocolGRE)
	default:
		return framegen.ARPRequest(src, dst)
	}
}
