package netqx

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFrame(t *testing.T, l3 gopacket.SerializableLayer, l4 gopacket.SerializableLayer) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC: net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC: net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
	}
	switch l3.(type) {
	case *layers.IPv4:
		eth.EthernetType = layers.EthernetTypeIPv4
	case *layers.IPv6:
		eth.EthernetType = layers.EthernetTypeIPv6
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, l3, l4, gopacket.Payload([]byte("data"))))
	return buf.Bytes()
}

func TestGetPacketLayoutTCPv4(t *testing.T) {
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)}
	tcp := &layers.TCP{SrcPort: 1234, DstPort: 80, DataOffset: 5}

	frame := buildFrame(t, ip, tcp)
	layout := GetPacketLayout(frame)

	assert.EqualValues(t, 0x0800, layout.EtherType)
	assert.Equal(t, Layer3IPv4, layout.Layer3)
	assert.Equal(t, Layer4TCP, layout.Layer4)
	assert.EqualValues(t, 14, layout.L2HeaderLength)
	assert.EqualValues(t, 20, layout.L3HeaderLength)
	assert.EqualValues(t, 20, layout.L4HeaderLength)
}

func TestGetPacketLayoutUDPv6(t *testing.T) {
	ip := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolUDP,
		SrcIP: net.ParseIP("fd00::1"), DstIP: net.ParseIP("fd00::2")}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}

	frame := buildFrame(t, ip, udp)
	layout := GetPacketLayout(frame)

	assert.EqualValues(t, 0x86dd, layout.EtherType)
	assert.Equal(t, Layer3IPv6, layout.Layer3)
	assert.Equal(t, Layer4UDP, layout.Layer4)
}

func TestGetPacketLayoutRuntFrame(t *testing.T) {
	layout := GetPacketLayout([]byte{1, 2, 3})
	assert.Equal(t, Layer3Unknown, layout.Layer3)
	assert.Equal(t, Layer4Unknown, layout.Layer4)

	_, ok := EtherTypeOf([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestEtherTypeOf(t *testing.T) {
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)}
	tcp := &layers.TCP{SrcPort: 1, DstPort: 2, DataOffset: 5}

	et, ok := EtherTypeOf(buildFrame(t, ip, tcp))
	require.True(t, ok)
	assert.EqualValues(t, 0x0800, et)
}

func TestSupportsLso(t *testing.T) {
	a, _ := softDeviceAdapter(t)

	v4tcp := PacketLayout{Layer3: Layer3IPv4, Layer4: Layer4TCP}
	v6tcp := PacketLayout{Layer3: Layer3IPv6, Layer4: Layer4TCP}
	v4udp := PacketLayout{Layer3: Layer3IPv4, Layer4: Layer4UDP}

	// The test adapter advertises LSO for IPv4 only.
	assert.True(t, a.SupportsLso(v4tcp))
	assert.False(t, a.SupportsLso(v6tcp))
	assert.False(t, a.SupportsLso(v4udp))
}
