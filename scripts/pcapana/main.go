// Command pcapana prints the first records classified from a capture file.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"PcapLedger/internal/engine/protocol"
	"PcapLedger/pkg/pcap"
)

func main() {
	limit := flag.Int("n", 5, "Number of frames to show (0 for all)")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/pcapana [-n N] <path_to_capture_file>")
		os.Exit(1)
	}

	r, err := pcap.NewReader(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	for i := 0; *limit == 0 || i < *limit; i++ {
		frame, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal(err)
		}

		rec, err := protocol.Classify(frame, i)
		if err != nil {
			fmt.Printf("#%d skipped: %v\n", i, err)
			continue
		}
		src, dst := rec.SrcIP, rec.DstIP
		if sp, ok := rec.SrcPort(); ok {
			dp, _ := rec.DstPort()
			src, dst = fmt.Sprintf("%s:%d", src, sp), fmt.Sprintf("%s:%d", dst, dp)
		}
		fmt.Printf("#%d [%s] %-6s %s -> %s len=%d meta=%+v\n",
			i, rec.Timestamp.Format("15:04:05.000"), rec.Protocol, src, dst, rec.Size, rec.Metadata)
	}
}
