package netqx

import (
	"fmt"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/netqx/netqx/extension"
	"github.com/netqx/netqx/ring"
	"github.com/netqx/netqx/verifier"
)

const creationContextSignature uint32 = 0x7840dd95

// CreationContext is the one-shot staging area for a queue-creation request.
// It is bound to the goroutine that created it, tagged with a signature to
// catch stale or corrupted contexts, and consumed at most once: a context
// that already produced a queue cannot produce another. All three checks are
// contract checks, verified on every use.
type CreationContext struct {
	signature uint32
	goroutine uint64

	adapter   *Adapter
	queueID   uint32
	direction Direction

	// notify is the host-stack side's wakeup, invoked by
	// NotifyMorePacketsAvailable while the queue is armed.
	notify func(*Queue)

	requested *extension.Registry

	created *Queue
}

// NewQueueCreationContext stages a queue-creation request on the calling
// goroutine. notify may be nil for purely polled queues.
func (a *Adapter) NewQueueCreationContext(direction Direction, queueID uint32, notify func(*Queue)) *CreationContext {
	return &CreationContext{
		signature: creationContextSignature,
		goroutine: verifier.GoroutineID(),
		adapter:   a,
		queueID:   queueID,
		direction: direction,
		notify:    notify,
		requested: extension.NewRegistry(a.l),
	}
}

func (cc *CreationContext) verify() {
	l := cc.adapter.l
	verifier.Verify(l, cc.signature == creationContextSignature,
		verifier.FailureCodeCorruptedContext,
		"signature %#x", cc.signature)
	verifier.Verify(l, cc.goroutine == verifier.GoroutineID(),
		verifier.FailureCodeWrongGoroutine,
		"context created on goroutine %d", cc.goroutine)
	verifier.Verify(l, cc.created == nil,
		verifier.FailureCodeQueueAlreadyCreated,
		"%s queue %d", cc.direction, cc.queueID)
}

// AddPacketExtension adds a client-requested extension to the set that will
// be reconciled with the adapter-advertised set when the context is consumed.
// May be called any number of times before queue creation.
func (cc *CreationContext) AddPacketExtension(e extension.Extension) {
	cc.verify()
	cc.requested.Register(e)
}

// CreateQueue consumes the context and produces the queue.
//
// Configuration errors in the callback table or ring sizing are contract
// violations and halt before any ring is allocated. Environmental failures
// (adapter not operational, queue id collisions, queue count exhaustion)
// return an error; no queue object is produced and nothing stays allocated.
func (cc *CreationContext) CreateQueue(config QueueConfig) (*Queue, error) {
	cc.verify()
	a := cc.adapter

	// Contract checks first: nothing may be allocated before the
	// configuration is known to be well formed.
	verifier.Verify(a.l, config.Callbacks.complete(),
		verifier.FailureCodeInvalidQueueConfiguration,
		"%s queue %d is missing a mandatory callback", cc.direction, cc.queueID)

	packetRingSize := config.PacketRingSize
	if packetRingSize == 0 {
		packetRingSize = defaultPacketRingSize
	}
	fragmentRingSize := config.FragmentRingSize
	if fragmentRingSize == 0 {
		fragmentRingSize = a.fragmentRingHint(cc.direction)
	}
	verifier.VerifyPowerOfTwo(a.l, packetRingSize, "packet ring size")
	verifier.VerifyPowerOfTwo(a.l, fragmentRingSize, "fragment ring size")

	layout := extension.ResolveLayout(a.l, a.advertised.Extensions(), cc.requested.Extensions())

	q := &Queue{
		id:        cc.queueID,
		direction: cc.direction,
		adapter:   a,
		layout:    layout,
		callbacks: config.Callbacks,
		notify:    cc.notify,
		l: a.l.WithFields(logrus.Fields{
			"queue":     cc.queueID,
			"direction": cc.direction.String(),
		}),
	}

	if err := a.addQueue(q); err != nil {
		return nil, fmt.Errorf("registering %s queue %d: %w", cc.direction, cc.queueID, err)
	}

	q.rings = ring.NewCollection(
		ring.New(ring.TypePacket, packetRingSize, layout.Size()),
		ring.New(ring.TypeFragment, fragmentRingSize, 0),
	)

	q.advanceCounter = metrics.GetOrRegisterCounter(queueMetricName(a, cc.direction, cc.queueID, "advances"), nil)
	q.notifyCounter = metrics.GetOrRegisterCounter(queueMetricName(a, cc.direction, cc.queueID, "notifications"), nil)
	q.depthGauge = metrics.GetOrRegisterGauge(queueMetricName(a, cc.direction, cc.queueID, "depth"), nil)

	q.state.Store(uint32(queueInitialized))

	cc.created = q
	q.l.WithFields(logrus.Fields{
		"packetRing":    packetRingSize,
		"fragmentRing":  fragmentRingSize,
		"extensionSize": layout.Size(),
	}).Debug("Queue created")

	return q, nil
}
