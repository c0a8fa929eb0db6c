package netqx

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/netqx/netqx/extension"
	"github.com/netqx/netqx/ring"
)

// SoftDevice is an in-memory NIC: it implements the driver side of the queue
// protocol against the ring API, completing transmit descriptors as soon as
// it sees them and synthesizing receive traffic into free descriptors. The
// bench binary and the integration tests drive real queues through it.
type SoftDevice struct {
	l *logrus.Logger

	// BatchSize caps how many descriptors one EvtAdvance call drains,
	// mimicking a DMA engine's burst limit. Zero means unlimited.
	BatchSize uint32

	// RxFrameLength is the synthetic length stamped on received frames.
	RxFrameLength uint32

	txCompleted atomic.Uint64
	rxDelivered atomic.Uint64

	txArmed atomic.Bool
	rxArmed atomic.Bool
}

// NewSoftDevice returns a software NIC with a 64-descriptor burst limit.
func NewSoftDevice(l *logrus.Logger) *SoftDevice {
	return &SoftDevice{l: l, BatchSize: 64, RxFrameLength: 1514}
}

// Datapath returns the adapter-level callbacks wiring this device's queue
// constructors into the framework.
func (d *SoftDevice) Datapath() DatapathCallbacks {
	return DatapathCallbacks{
		CreateTxQueue: d.createTxQueue,
		CreateRxQueue: d.createRxQueue,
	}
}

func (d *SoftDevice) createTxQueue(cc *CreationContext) (*Queue, error) {
	cc.AddPacketExtension(extension.Checksum())
	cc.AddPacketExtension(extension.LSO())
	return cc.CreateQueue(QueueConfig{
		Callbacks: Callbacks{
			EvtAdvance:                d.txAdvance,
			EvtCancel:                 d.cancel,
			EvtSetNotificationEnabled: d.txSetNotificationEnabled,
		},
	})
}

func (d *SoftDevice) createRxQueue(cc *CreationContext) (*Queue, error) {
	cc.AddPacketExtension(extension.Checksum())
	return cc.CreateQueue(QueueConfig{
		Callbacks: Callbacks{
			EvtAdvance:                d.rxAdvance,
			EvtCancel:                 d.cancel,
			EvtSetNotificationEnabled: d.rxSetNotificationEnabled,
		},
	})
}

// txAdvance plays the transmit DMA engine: every descriptor the host has
// committed is "sent" and completed back to the host.
func (d *SoftDevice) txAdvance(q *Queue) {
	pr := q.GetRingCollection().Packet()

	var done uint32
	for {
		if d.BatchSize != 0 && done >= d.BatchSize {
			break
		}
		slot := pr.NextSlotToComplete()
		if slot == nil {
			break
		}
		slot.Flags |= ring.DescriptorCompleted
		pr.CompleteSlot()
		done++
	}

	if done > 0 {
		pr.AddPacketCounters(0, uint64(done))
		d.txCompleted.Add(uint64(done))
		q.NotifyMorePacketsAvailable()
	}
}

// rxAdvance plays the receive engine: free descriptors the host posted are
// filled with synthetic frames and completed so the host can collect them.
// The device only ever touches the NIC-owned region of the ring.
func (d *SoftDevice) rxAdvance(q *Queue) {
	pr := q.GetRingCollection().Packet()

	var done uint32
	for {
		if d.BatchSize != 0 && done >= d.BatchSize {
			break
		}
		slot := pr.NextSlotToComplete()
		if slot == nil {
			break
		}
		slot.FrameLength = d.RxFrameLength
		slot.Flags = ring.DescriptorValid | ring.DescriptorCompleted
		pr.CompleteSlot()
		done++
	}

	if done > 0 {
		pr.AddPacketCounters(0, uint64(done))
		d.rxDelivered.Add(uint64(done))
		q.NotifyMorePacketsAvailable()
	}
}

func (d *SoftDevice) cancel(q *Queue) {
	// Nothing in flight to unwind; completions happen inline in advance.
	d.l.WithField("queue", q.ID()).Debug("Soft device cancel")
}

func (d *SoftDevice) txSetNotificationEnabled(q *Queue, armed bool) {
	d.txArmed.Store(armed)
}

func (d *SoftDevice) rxSetNotificationEnabled(q *Queue, armed bool) {
	d.rxArmed.Store(armed)
}

// TxCompleted returns the lifetime count of transmit descriptors the device
// has completed.
func (d *SoftDevice) TxCompleted() uint64 {
	return d.txCompleted.Load()
}

// RxDelivered returns the lifetime count of receive descriptors the device
// has delivered.
func (d *SoftDevice) RxDelivered() uint64 {
	return d.rxDelivered.Load()
}
