package netqx

import (
	"github.com/sirupsen/logrus"

	"github.com/netqx/netqx/verifier"
)

// MappingRequirement states how the driver expects payload buffers to be
// mapped before descriptors reference them.
type MappingRequirement uint8

const (
	MappingNone MappingRequirement = iota
	MappingDmaMapped
)

// DmaCapabilities describes the DMA engine backing a DMA-mapped datapath.
// The core only checks for its presence; actual mapping is owned by the
// bus-specific collaborator.
type DmaCapabilities struct {
	MaximumTransferLength uint64
	AddressWidth          uint8
	CacheCoherent         bool
}

// RxAllocationMode states who allocates receive fragment buffers.
type RxAllocationMode uint8

const (
	RxAllocationModeSystem RxAllocationMode = iota
	RxAllocationModeDriver
)

// RxAttachmentMode states who attaches receive buffers to descriptors.
type RxAttachmentMode uint8

const (
	RxAttachmentModeSystem RxAttachmentMode = iota
	RxAttachmentModeDriver
)

// TxCapabilities is the transmit half of the adapter's advertised datapath
// capabilities.
type TxCapabilities struct {
	MappingRequirement MappingRequirement
	Dma                *DmaCapabilities

	MaximumNumberOfQueues uint32

	// FragmentBufferAlignment of zero selects the platform default;
	// anything else must be a power of two.
	FragmentBufferAlignment          uint32
	FragmentRingNumberOfElementsHint uint32
}

func (c TxCapabilities) verify(l logrus.FieldLogger) {
	if c.MappingRequirement == MappingDmaMapped {
		verifier.Verify(l, c.Dma != nil,
			verifier.FailureCodeInvalidTxCapabilities,
			"dma-mapped tx datapath without dma capabilities")
	}
	verifier.Verify(l, c.MaximumNumberOfQueues != 0,
		verifier.FailureCodeInvalidTxCapabilities,
		"maximum number of tx queues is zero")
	if c.FragmentBufferAlignment != 0 {
		verifier.Verify(l, verifier.IsPowerOfTwo(c.FragmentBufferAlignment),
			verifier.FailureCodeInvalidTxCapabilities,
			"tx fragment buffer alignment %d", c.FragmentBufferAlignment)
	}
	if c.FragmentRingNumberOfElementsHint != 0 {
		verifier.VerifyPowerOfTwo(l, c.FragmentRingNumberOfElementsHint,
			"tx fragment ring size hint")
	}
}

// RxCapabilities is the receive half of the adapter's advertised datapath
// capabilities.
type RxCapabilities struct {
	AllocationMode RxAllocationMode
	AttachmentMode RxAttachmentMode

	// ReturnRxBuffer gives driver-allocated receive buffers back to the
	// driver; mandatory when AllocationMode is driver.
	ReturnRxBuffer func(frameOffset uint32)

	MappingRequirement MappingRequirement
	Dma                *DmaCapabilities

	MaximumNumberOfQueues uint32

	FragmentBufferAlignment          uint32
	FragmentRingNumberOfElementsHint uint32
}

func (c RxCapabilities) verify(l logrus.FieldLogger) {
	if c.AllocationMode == RxAllocationModeDriver {
		verifier.Verify(l,
			c.AttachmentMode == RxAttachmentModeDriver && c.ReturnRxBuffer != nil,
			verifier.FailureCodeInvalidRxCapabilities,
			"driver-allocated rx buffers without driver attachment and return callback")
	}
	if c.MappingRequirement == MappingDmaMapped {
		verifier.Verify(l, c.Dma != nil,
			verifier.FailureCodeInvalidRxCapabilities,
			"dma-mapped rx datapath without dma capabilities")
	}
	verifier.Verify(l, c.MaximumNumberOfQueues != 0,
		verifier.FailureCodeInvalidRxCapabilities,
		"maximum number of rx queues is zero")
	if c.FragmentBufferAlignment != 0 {
		verifier.Verify(l, verifier.IsPowerOfTwo(c.FragmentBufferAlignment),
			verifier.FailureCodeInvalidRxCapabilities,
			"rx fragment buffer alignment %d", c.FragmentBufferAlignment)
	}
	if c.FragmentRingNumberOfElementsHint != 0 {
		verifier.VerifyPowerOfTwo(l, c.FragmentRingNumberOfElementsHint,
			"rx fragment ring size hint")
	}
}

// LsoCapabilities is the adapter's large-send-offload advertisement.
type LsoCapabilities struct {
	IPv4 bool
	IPv6 bool

	MaximumOffloadSize  uint32
	MinimumSegmentCount uint32
}

func (c LsoCapabilities) verify(l logrus.FieldLogger) {
	if !c.IPv4 && !c.IPv6 {
		return
	}
	verifier.Verify(l, c.MaximumOffloadSize != 0,
		verifier.FailureCodeInvalidLsoCapabilities,
		"lso enabled with zero maximum offload size")
	verifier.Verify(l, c.MinimumSegmentCount != 0,
		verifier.FailureCodeInvalidLsoCapabilities,
		"lso enabled with zero minimum segment count")
}
