package netqx

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/netqx/netqx/extension"
	"github.com/netqx/netqx/verifier"
)

// DatapathCallbacks are the adapter-level entry points the device driver
// supplies so the framework can ask it to instantiate queues. Both are
// mandatory.
type DatapathCallbacks struct {
	CreateTxQueue func(*CreationContext) (*Queue, error)
	CreateRxQueue func(*CreationContext) (*Queue, error)
}

// AdapterConfig carries everything an adapter advertises at creation:
// datapath callbacks, Tx/Rx/LSO capabilities, and the extension set offered
// to every queue.
type AdapterConfig struct {
	Datapath DatapathCallbacks

	Tx  TxCapabilities
	Rx  RxCapabilities
	Lso LsoCapabilities

	// AdvertisedExtensions is merged with each queue's client-requested
	// set when the queue's extension layout is resolved.
	AdvertisedExtensions []extension.Extension
}

// Adapter owns the per-device configuration the queue core consumes: the
// advertised extension set, capability flags, the registry mapping queue
// identity to the owned queue instance, and the operational power gate. It
// stands in for the device lifecycle collaborator; enumeration and power
// policy live outside this core.
type Adapter struct {
	name string

	datapath   DatapathCallbacks
	txCaps     TxCapabilities
	rxCaps     RxCapabilities
	lsoCaps    LsoCapabilities
	advertised *extension.Registry

	// operational gates every queue operation; it tracks the device power
	// state owned by the lifecycle collaborator.
	operational atomic.Bool

	mu     sync.Mutex
	queues map[queueKey]*Queue

	l logrus.FieldLogger
}

type queueKey struct {
	direction Direction
	id        uint32
}

// NewAdapter validates the advertised configuration and returns an adapter in
// the non-operational state. Capability and callback defects are contract
// violations; the driver advertised them, so they are programming errors, not
// environmental conditions.
func NewAdapter(l *logrus.Logger, name string, config AdapterConfig) *Adapter {
	log := l.WithField("adapter", name)

	verifier.Verify(log,
		config.Datapath.CreateTxQueue != nil && config.Datapath.CreateRxQueue != nil,
		verifier.FailureCodeInvalidDatapathCallbacks,
		"adapter %s", name)

	config.Tx.verify(log)
	config.Rx.verify(log)
	config.Lso.verify(log)

	advertised := extension.NewRegistry(log)
	for _, e := range config.AdvertisedExtensions {
		advertised.Register(e)
	}

	return &Adapter{
		name:       name,
		datapath:   config.Datapath,
		txCaps:     config.Tx,
		rxCaps:     config.Rx,
		lsoCaps:    config.Lso,
		advertised: advertised,
		queues:     make(map[queueKey]*Queue),
		l:          log,
	}
}

// Name returns the adapter name used in metric and log keys.
func (a *Adapter) Name() string {
	return a.name
}

// TxCapabilities returns the advertised transmit capabilities.
func (a *Adapter) TxCapabilities() TxCapabilities {
	return a.txCaps
}

// RxCapabilities returns the advertised receive capabilities.
func (a *Adapter) RxCapabilities() RxCapabilities {
	return a.rxCaps
}

// LsoCapabilities returns the advertised large-send-offload capabilities.
func (a *Adapter) LsoCapabilities() LsoCapabilities {
	return a.lsoCaps
}

// SetOperational is driven by the device lifecycle collaborator as the device
// enters or leaves an operational power state.
func (a *Adapter) SetOperational(up bool) {
	was := a.operational.Swap(up)
	if was != up {
		a.l.WithField("operational", up).Info("Adapter power state changed")
	}
}

func (a *Adapter) verifyOperational() {
	verifier.Verify(a.l, a.operational.Load(),
		verifier.FailureCodeAdapterNotOperational, "adapter %s", a.name)
}

func (a *Adapter) maxQueues(d Direction) uint32 {
	if d == DirectionTx {
		return a.txCaps.MaximumNumberOfQueues
	}
	return a.rxCaps.MaximumNumberOfQueues
}

func (a *Adapter) fragmentRingHint(d Direction) uint32 {
	var hint uint32
	if d == DirectionTx {
		hint = a.txCaps.FragmentRingNumberOfElementsHint
	} else {
		hint = a.rxCaps.FragmentRingNumberOfElementsHint
	}
	if hint == 0 {
		return defaultFragmentRingSize
	}
	return hint
}

func (a *Adapter) addQueue(q *Queue) error {
	if !a.operational.Load() {
		return fmt.Errorf("adapter %s is not operational", a.name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := queueKey{direction: q.direction, id: q.id}
	if _, exists := a.queues[key]; exists {
		return fmt.Errorf("%s queue %d already exists", q.direction, q.id)
	}

	var count uint32
	for k := range a.queues {
		if k.direction == q.direction {
			count++
		}
	}
	if limit := a.maxQueues(q.direction); count >= limit {
		return fmt.Errorf("%s queue limit %d reached", q.direction, limit)
	}

	a.queues[key] = q
	return nil
}

func (a *Adapter) removeQueue(q *Queue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.queues, queueKey{direction: q.direction, id: q.id})
}

// LookupQueue resolves a queue identity to the owned queue instance, or nil
// if no such queue exists. This registry replaces opaque-handle resolution;
// the core itself never maps handles to objects.
func (a *Adapter) LookupQueue(d Direction, id uint32) *Queue {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queues[queueKey{direction: d, id: id}]
}

// QueueCount returns the number of live queues in the given direction.
func (a *Adapter) QueueCount(d Direction) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for k := range a.queues {
		if k.direction == d {
			n++
		}
	}
	return n
}

// CreateTxQueue stages a creation context and hands it to the driver's
// CreateTxQueue callback, which requests extensions and consumes the context.
func (a *Adapter) CreateTxQueue(id uint32, notify func(*Queue)) (*Queue, error) {
	cc := a.NewQueueCreationContext(DirectionTx, id, notify)
	q, err := a.datapath.CreateTxQueue(cc)
	if err != nil {
		return nil, fmt.Errorf("creating tx queue %d: %w", id, err)
	}
	return q, nil
}

// CreateRxQueue stages a creation context and hands it to the driver's
// CreateRxQueue callback.
func (a *Adapter) CreateRxQueue(id uint32, notify func(*Queue)) (*Queue, error) {
	cc := a.NewQueueCreationContext(DirectionRx, id, notify)
	q, err := a.datapath.CreateRxQueue(cc)
	if err != nil {
		return nil, fmt.Errorf("creating rx queue %d: %w", id, err)
	}
	return q, nil
}
