package netqx

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Layer3Type classifies the network header of a frame for offload decisions.
type Layer3Type uint8

const (
	Layer3Unknown Layer3Type = iota
	Layer3IPv4
	Layer3IPv6
)

// Layer4Type classifies the transport header of a frame.
type Layer4Type uint8

const (
	Layer4Unknown Layer4Type = iota
	Layer4TCP
	Layer4UDP
)

// PacketLayout is the parsed shape of one frame: which headers it carries and
// where the payload starts. Offload paths (checksum, LSO) consult it to
// decide whether the extension semantics apply to a given packet.
type PacketLayout struct {
	EtherType uint16

	Layer3 Layer3Type
	Layer4 Layer4Type

	// L2HeaderLength..L4HeaderLength are the byte lengths of the parsed
	// headers; zero when the corresponding layer is unknown.
	L2HeaderLength uint8
	L3HeaderLength uint8
	L4HeaderLength uint8
}

// EtherTypeOf extracts the ethertype of an Ethernet frame without a full
// parse. Returns false for runt frames.
func EtherTypeOf(frame []byte) (uint16, bool) {
	if len(frame) < 14 {
		return 0, false
	}
	return uint16(frame[12])<<8 | uint16(frame[13]), true
}

// GetPacketLayout parses an Ethernet frame into its layout. Parsing is lazy
// and zero-copy; a frame with headers the parser does not recognize comes
// back with the corresponding layers marked unknown, never an error, since a
// NIC forwards traffic it cannot classify.
func GetPacketLayout(frame []byte) PacketLayout {
	var layout PacketLayout

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})

	eth, ok := pkt.LinkLayer().(*layers.Ethernet)
	if !ok {
		return layout
	}
	layout.EtherType = uint16(eth.EthernetType)
	layout.L2HeaderLength = uint8(len(eth.Contents))

	switch l3 := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		layout.Layer3 = Layer3IPv4
		layout.L3HeaderLength = uint8(len(l3.Contents))
	case *layers.IPv6:
		layout.Layer3 = Layer3IPv6
		layout.L3HeaderLength = uint8(len(l3.Contents))
	default:
		return layout
	}

	switch l4 := pkt.TransportLayer().(type) {
	case *layers.TCP:
		layout.Layer4 = Layer4TCP
		layout.L4HeaderLength = uint8(len(l4.Contents))
	case *layers.UDP:
		layout.Layer4 = Layer4UDP
		layout.L4HeaderLength = uint8(len(l4.Contents))
	}

	return layout
}

// SupportsLso reports whether the adapter's LSO advertisement covers the
// given layout: an LSO send must be TCP over an offload-enabled IP version.
func (a *Adapter) SupportsLso(layout PacketLayout) bool {
	if layout.Layer4 != Layer4TCP {
		return false
	}
	switch layout.Layer3 {
	case Layer3IPv4:
		return a.lsoCaps.IPv4
	case Layer3IPv6:
		return a.lsoCaps.IPv6
	}
	return false
}
