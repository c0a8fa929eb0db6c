// Package netqx is the datapath core of a network-adapter driver framework:
// fixed-capacity descriptor rings, per-packet extension negotiation, and the
// packet queue control protocol that moves descriptors between a host network
// stack and a hardware (or simulated) NIC without copying payloads.
package netqx

import (
	"fmt"
	"sync/atomic"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/netqx/netqx/extension"
	"github.com/netqx/netqx/ring"
	"github.com/netqx/netqx/verifier"
)

// Direction tags a queue as transmit or receive. The two variants share all
// queue behavior; direction-specific work lives in the driver callbacks.
type Direction uint8

const (
	DirectionTx Direction = iota
	DirectionRx
)

func (d Direction) String() string {
	if d == DirectionTx {
		return "tx"
	}
	return "rx"
}

type queueState uint32

const (
	queueCreated queueState = iota
	queueInitialized
	queueStarted
	queueCanceling
	queueStopped
)

func (s queueState) String() string {
	switch s {
	case queueCreated:
		return "created"
	case queueInitialized:
		return "initialized"
	case queueStarted:
		return "started"
	case queueCanceling:
		return "canceling"
	case queueStopped:
		return "stopped"
	}
	return "unknown"
}

// Callbacks is the fixed-shape table the device driver supplies at queue
// creation. All three entries are mandatory; a table with any of them nil is
// rejected before a single ring is allocated.
type Callbacks struct {
	// EvtAdvance is invoked from Queue.Advance to let the driver drain
	// newly produced descriptors and complete finished ones.
	EvtAdvance func(*Queue)
	// EvtCancel is invoked once when the queue enters its drain state.
	EvtCancel func(*Queue)
	// EvtSetNotificationEnabled is invoked when the opposite side arms or
	// disarms "more work available" notifications.
	EvtSetNotificationEnabled func(*Queue, bool)
}

func (cb Callbacks) complete() bool {
	return cb.EvtAdvance != nil && cb.EvtCancel != nil && cb.EvtSetNotificationEnabled != nil
}

// QueueConfig sizes the rings of a queue. Ring element counts must be powers
// of two; zero selects the adapter defaults.
type QueueConfig struct {
	Callbacks Callbacks

	PacketRingSize   uint32
	FragmentRingSize uint32
}

const (
	defaultPacketRingSize   = 1024
	defaultFragmentRingSize = 2048
)

// Queue is one transmit or receive packet queue: a ring collection, a
// resolved extension layout, and the driver callback table, glued together by
// the Start/Advance/Cancel/SetArmed/Stop protocol. A queue is driven by two
// execution contexts that never block on each other; the armed flag and the
// ring cursors are the only state they share.
type Queue struct {
	id        uint32
	direction Direction
	adapter   *Adapter

	rings  *ring.Collection
	layout *extension.Layout

	callbacks Callbacks
	notify    func(*Queue)

	state atomic.Uint32
	armed atomic.Bool

	advanceCounter metrics.Counter
	notifyCounter  metrics.Counter
	depthGauge     metrics.Gauge

	l logrus.FieldLogger
}

// ID returns the queue identity within its adapter and direction.
func (q *Queue) ID() uint32 {
	return q.id
}

// Direction returns whether this is a transmit or receive queue.
func (q *Queue) Direction() Direction {
	return q.direction
}

// Adapter returns the owning adapter.
func (q *Queue) Adapter() *Adapter {
	return q.adapter
}

// GetRingCollection returns the queue's rings. The collection is immutable
// after initialization and safe to read from both execution contexts.
func (q *Queue) GetRingCollection() *ring.Collection {
	return q.rings
}

// GetExtension returns the resolved descriptor for (name, version). Querying
// an extension that is not part of the queue's resolved set is a contract
// violation: the caller negotiated the set at creation and is expected to
// know it.
func (q *Queue) GetExtension(name string, version uint32) extension.ResolvedExtension {
	extension.ValidateQuery(q.l, name, version)

	e, ok := q.layout.Get(name, version)
	if !ok {
		verifier.Report(q.l, verifier.FailureCodeExtensionNotResolved,
			"extension %q version %d on %s queue %d", name, version, q.direction, q.id)
	}
	return e
}

func (q *Queue) currentState() queueState {
	return queueState(q.state.Load())
}

func (q *Queue) verifyState(op string, want ...queueState) queueState {
	s := q.currentState()
	for _, w := range want {
		if s == w {
			return s
		}
	}
	verifier.Report(q.l, verifier.FailureCodeInvalidQueueState,
		"%s on %s queue %d in state %s", op, q.direction, q.id, s)
	return s
}

// Start marks the queue eligible to exchange descriptors with the NIC-facing
// side. Starting a queue twice is a contract violation.
func (q *Queue) Start() {
	q.adapter.verifyOperational()
	q.verifyState("start", queueInitialized)
	q.state.Store(uint32(queueStarted))
	q.l.WithField("packetRing", q.rings.Packet().Count()).Info("Queue started")
}

// Advance runs one scheduling quantum of the queue: the driver's EvtAdvance
// walks newly produced descriptors and completes finished ones, then the
// queue samples ring depth telemetry. Calling Advance with nothing pending is
// a no-op; calling it before Start or after Stop is a contract violation.
func (q *Queue) Advance() {
	q.verifyState("advance", queueStarted, queueCanceling)

	q.callbacks.EvtAdvance(q)

	q.sampleCounters()
	q.advanceCounter.Inc(1)
}

func (q *Queue) sampleCounters() {
	pr := q.rings.Packet()
	pr.UpdateDepthCounters()
	q.depthGauge.Update(int64(pr.Depth()))
	if fr := q.rings.Fragment(); fr != nil {
		fr.UpdateDepthCounters()
	}
}

// SetArmed toggles delivery of "more packets available" notifications to the
// opposite side and forwards the new state to the driver so it can switch
// between polling and interrupt-driven operation.
func (q *Queue) SetArmed(armed bool) {
	q.verifyState("setArmed", queueStarted, queueCanceling)
	q.armed.Store(armed)
	q.callbacks.EvtSetNotificationEnabled(q, armed)
}

// NotifyMorePacketsAvailable is the producer-side signal that ring depth went
// above zero. The notification fires only while armed and disarms itself as
// it fires, so a burst of producer activity wakes the consumer once. The
// armed check and the disarm are a single atomic swap: a notification can
// never be lost between them, which is the correctness-critical guarantee
// here. Spurious wakeups on the consumer side are tolerated.
func (q *Queue) NotifyMorePacketsAvailable() {
	if !q.armed.Swap(false) {
		return
	}
	q.notifyCounter.Inc(1)
	if q.notify != nil {
		q.notify(q)
	}
}

// Cancel transitions the queue to its drain state: no new descriptors are
// accepted, descriptors already handed to the NIC may still complete. The
// driver's EvtCancel runs once. Quiescence is observed by the caller polling
// ring depth to zero under its own deadline; the queue itself never waits.
func (q *Queue) Cancel() {
	q.verifyState("cancel", queueStarted)
	q.state.Store(uint32(queueCanceling))
	q.callbacks.EvtCancel(q)
	q.l.Debug("Queue canceled")
}

// Stop releases the rings and the callback table. After Stop every further
// queue operation is a contract violation.
func (q *Queue) Stop() {
	q.verifyState("stop", queueInitialized, queueStarted, queueCanceling)
	q.state.Store(uint32(queueStopped))

	q.adapter.removeQueue(q)
	q.rings = nil
	q.callbacks = Callbacks{}
	q.notify = nil
	q.l.Info("Queue stopped")
}

// CounterSnapshot copies the packet ring counters and resets the interval
// portion, giving each reporting interval an independent sample.
func (q *Queue) CounterSnapshot() ring.Counters {
	pr := q.rings.Packet()
	c := pr.Counters()
	pr.ResetCounters()
	return c
}

func queueMetricName(a *Adapter, d Direction, id uint32, leaf string) string {
	return fmt.Sprintf("datapath.%s.%s.%d.%s", a.name, d, id, leaf)
}
