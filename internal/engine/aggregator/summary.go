package aggregator

import (
	"sort"

	"PcapLedger/internal/core/model"
)

// TopN is the number of entries kept in each endpoint table.
const TopN = 10

// counter is a frequency table that remembers first-seen order so that ties
// are broken deterministically.
type counter[K comparable] struct {
	counts map[K]int
	order  []K
}

func newCounter[K comparable]() *counter[K] {
	return &counter[K]{counts: make(map[K]int)}
}

func (c *counter[K]) add(k K) {
	if _, ok := c.counts[k]; !ok {
		c.order = append(c.order, k)
	}
	c.counts[k]++
}

// top returns up to n keys by descending count, first-seen first on ties.
func (c *counter[K]) top(n int) []K {
	keys := make([]K, len(c.order))
	copy(keys, c.order)
	sort.SliceStable(keys, func(i, j int) bool {
		return c.counts[keys[i]] > c.counts[keys[j]]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Summarize computes the statistics report over records in a single pass.
// Records without addresses or ports are left out of the endpoint tables.
func Summarize(records []model.Record) model.Report {
	protocols := make(map[string]int)
	srcIPs, dstIPs := newCounter[string](), newCounter[string]()
	srcPorts, dstPorts := newCounter[uint16](), newCounter[uint16]()

	var size model.SizeStats
	for i, r := range records {
		protocols[string(r.Protocol)]++

		if r.HasAddresses() {
			srcIPs.add(r.SrcIP)
			dstIPs.add(r.DstIP)
		}
		if r.Ports != nil {
			srcPorts.add(r.Ports.Src)
			dstPorts.add(r.Ports.Dst)
		}

		if i == 0 || r.Size < size.Min {
			size.Min = r.Size
		}
		if i == 0 || r.Size > size.Max {
			size.Max = r.Size
		}
		size.Total += int64(r.Size)
	}
	if len(records) > 0 {
		size.Average = float64(size.Total) / float64(len(records))
	}

	return model.Report{
		TotalPackets:         len(records),
		ProtocolDistribution: protocols,
		TopSourceIPs:         ipCounts(srcIPs),
		TopDestinationIPs:    ipCounts(dstIPs),
		TopSourcePorts:       portCounts(srcPorts),
		TopDestinationPorts:  portCounts(dstPorts),
		PacketSizeStats:      size,
	}
}

func ipCounts(c *counter[string]) []model.Count {
	out := make([]model.Count, 0, TopN)
	for _, k := range c.top(TopN) {
		out = append(out, model.Count{Key: k, Count: c.counts[k]})
	}
	return out
}

func portCounts(c *counter[uint16]) []model.PortCount {
	out := make([]model.PortCount, 0, TopN)
	for _, k := range c.top(TopN) {
		out = append(out, model.PortCount{Port: k, Count: c.counts[k]})
	}
	return out
}
