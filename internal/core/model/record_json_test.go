package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordJSON_TCP(t *testing.T) {
	r := Record{
		Timestamp:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		SrcIP:      "10.0.0.1",
		DstIP:      "10.0.0.2",
		Ports:      &PortPair{Src: 40000, Dst: 443},
		Protocol:   ProtocolTCP,
		Size:       74,
		Metadata:   TCPMetadata{Flags: "S", Seq: 1, Window: 64240},
		SourceFile: "a.pcap",
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "10.0.0.1", doc["source_ip"])
	assert.Equal(t, float64(443), doc["destination_port"])
	assert.Equal(t, "TCP", doc["protocol"])
	assert.Equal(t, "a.pcap", doc["file_name"])
	assert.Equal(t, "S", doc["packet_data"].(map[string]any)["tcp_flags"])

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r, back)
}

func TestRecordJSON_AbsentFieldsAreNull(t *testing.T) {
	r := Record{Protocol: ProtocolIPv6, SrcIP: "2001:db8::1", DstIP: "2001:db8::2", Size: 54}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"source_port", "destination_port", "packet_data"} {
		v, ok := doc[key]
		assert.True(t, ok, "%s present", key)
		assert.Nil(t, v, "%s is null", key)
	}

	bare, err := json.Marshal(Record{Protocol: ProtocolOther, Size: 60})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(bare, &doc))
	assert.Nil(t, doc["source_ip"])
	assert.Nil(t, doc["destination_ip"])
}

func TestRecordJSON_UnknownLabel(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"protocol":"SCTP","packet_size":10}`), &r)
	assert.Error(t, err)
}

func TestDecodeMetadata(t *testing.T) {
	md, err := DecodeMetadata(ProtocolUDP, []byte(`{"udp_length":18,"udp_checksum":4660}`))
	require.NoError(t, err)
	assert.Equal(t, UDPMetadata{Length: 18, Checksum: 4660}, md)

	md, err = DecodeMetadata(ProtocolOther, []byte(`{"packet_summary":"ARP","packet_layers":["Ethernet","ARP"]}`))
	require.NoError(t, err)
	assert.Equal(t, ProtocolOther, md.Protocol())

	md, err = DecodeMetadata(ProtocolTCPv6, []byte(`{"x":1}`))
	require.NoError(t, err)
	assert.Nil(t, md)

	md, err = DecodeMetadata(ProtocolICMP, nil)
	require.NoError(t, err)
	assert.Nil(t, md)

	_, err = DecodeMetadata(ProtocolTCP, []byte(`{"tcp_seq":"nope"}`))
	assert.Error(t, err)
}

func TestProtocolValid(t *testing.T) {
	for _, p := range Protocols {
		assert.True(t, p.Valid(), string(p))
	}
	assert.False(t, Protocol("tcp").Valid())
	assert.False(t, Protocol("").Valid())
}
