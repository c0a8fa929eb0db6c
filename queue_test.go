package netqx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netqx/netqx/extension"
	"github.com/netqx/netqx/util"
	"github.com/netqx/netqx/verifier"
)

func noopCallbacks() Callbacks {
	return Callbacks{
		EvtAdvance:                func(*Queue) {},
		EvtCancel:                 func(*Queue) {},
		EvtSetNotificationEnabled: func(*Queue, bool) {},
	}
}

func testAdapter(t *testing.T) *Adapter {
	t.Helper()
	l := util.NewTestLogger()

	a := NewAdapter(l, "test0", AdapterConfig{
		Datapath: DatapathCallbacks{
			CreateTxQueue: func(cc *CreationContext) (*Queue, error) {
				return cc.CreateQueue(QueueConfig{Callbacks: noopCallbacks()})
			},
			CreateRxQueue: func(cc *CreationContext) (*Queue, error) {
				return cc.CreateQueue(QueueConfig{Callbacks: noopCallbacks()})
			},
		},
		Tx: TxCapabilities{MaximumNumberOfQueues: 2},
		Rx: RxCapabilities{MaximumNumberOfQueues: 2},
		AdvertisedExtensions: []extension.Extension{
			extension.Checksum(),
		},
	})
	a.SetOperational(true)
	return a
}

func TestQueueCreateMissingCallbackFailsBeforeAllocation(t *testing.T) {
	a := testAdapter(t)

	cases := []Callbacks{
		{},
		{EvtAdvance: func(*Queue) {}, EvtCancel: func(*Queue) {}},
		{EvtAdvance: func(*Queue) {}, EvtSetNotificationEnabled: func(*Queue, bool) {}},
		{EvtCancel: func(*Queue) {}, EvtSetNotificationEnabled: func(*Queue, bool) {}},
	}
	for _, cb := range cases {
		cc := a.NewQueueCreationContext(DirectionTx, 0, nil)
		assert.Panics(t, func() {
			cc.CreateQueue(QueueConfig{Callbacks: cb})
		})
		// Nothing was registered, so nothing leaked.
		assert.Zero(t, a.QueueCount(DirectionTx))
	}
}

func TestQueueCreateNonPowerOfTwoRingSize(t *testing.T) {
	a := testAdapter(t)

	cc := a.NewQueueCreationContext(DirectionTx, 0, nil)
	assert.Panics(t, func() {
		cc.CreateQueue(QueueConfig{Callbacks: noopCallbacks(), PacketRingSize: 100})
	})
}

func TestCreationContextSingleUse(t *testing.T) {
	a := testAdapter(t)

	cc := a.NewQueueCreationContext(DirectionTx, 0, nil)
	q, err := cc.CreateQueue(QueueConfig{Callbacks: noopCallbacks()})
	require.NoError(t, err)
	require.NotNil(t, q)

	assert.Panics(t, func() {
		cc.CreateQueue(QueueConfig{Callbacks: noopCallbacks()})
	})
	assert.Panics(t, func() { cc.AddPacketExtension(extension.LSO()) })
}

func TestCreationContextWrongGoroutine(t *testing.T) {
	a := testAdapter(t)
	cc := a.NewQueueCreationContext(DirectionTx, 0, nil)

	panicked := make(chan bool)
	go func() {
		defer func() { panicked <- recover() != nil }()
		cc.CreateQueue(QueueConfig{Callbacks: noopCallbacks()})
	}()
	assert.True(t, <-panicked)
}

func TestCreationContextCorruptedSignature(t *testing.T) {
	a := testAdapter(t)
	cc := a.NewQueueCreationContext(DirectionTx, 0, nil)
	cc.signature = 0xdeadbeef

	assert.Panics(t, func() { cc.AddPacketExtension(extension.LSO()) })
}

func TestQueueCreateEnvironmentalFailures(t *testing.T) {
	a := testAdapter(t)

	// Duplicate queue id.
	_, err := a.CreateTxQueue(0, nil)
	require.NoError(t, err)
	_, err = a.CreateTxQueue(0, nil)
	assert.Error(t, err)

	// Queue limit.
	_, err = a.CreateTxQueue(1, nil)
	require.NoError(t, err)
	_, err = a.CreateTxQueue(2, nil)
	assert.Error(t, err)

	// Power gate.
	a.SetOperational(false)
	_, err = a.CreateRxQueue(0, nil)
	assert.Error(t, err)
}

func TestQueueLifecycle(t *testing.T) {
	a := testAdapter(t)

	q, err := a.CreateTxQueue(0, nil)
	require.NoError(t, err)

	// Advance before Start is a contract violation.
	assert.Panics(t, func() { q.Advance() })

	q.Start()
	assert.Panics(t, func() { q.Start() }, "starting a started queue")

	// Advance with zero available descriptors is a no-op.
	assert.NotPanics(t, func() { q.Advance() })

	q.Cancel()
	assert.Panics(t, func() { q.Cancel() }, "cancel is one-shot")

	// Advance with nothing pending after Cancel stays a no-op and does
	// not move the state machine.
	assert.NotPanics(t, func() { q.Advance() })
	assert.NotPanics(t, func() { q.Advance() })

	q.Stop()
	assert.Zero(t, a.QueueCount(DirectionTx))
	assert.Panics(t, func() { q.Advance() })
	assert.Panics(t, func() { q.Cancel() })
	assert.Panics(t, func() { q.Stop() })
}

func TestQueueStartRequiresOperationalAdapter(t *testing.T) {
	a := testAdapter(t)
	q, err := a.CreateTxQueue(0, nil)
	require.NoError(t, err)

	a.SetOperational(false)
	assert.Panics(t, func() { q.Start() })
}

func TestQueueExtensions(t *testing.T) {
	a := testAdapter(t)

	cc := a.NewQueueCreationContext(DirectionRx, 0, nil)
	cc.AddPacketExtension(extension.LSO())
	q, err := cc.CreateQueue(QueueConfig{Callbacks: noopCallbacks()})
	require.NoError(t, err)

	// Adapter-advertised and client-requested extensions both resolve.
	csum := q.GetExtension(extension.ChecksumName, extension.ChecksumVersion1)
	lso := q.GetExtension(extension.LSOName, extension.LSOVersion1)
	assert.NotEqual(t, csum.Offset, lso.Offset)

	// The ring slots carry enough extension storage for the layout.
	slot := q.GetRingCollection().Packet().Slot(0)
	assert.GreaterOrEqual(t, slot.ExtensionCapacity(), lso.Offset+lso.Size)

	// Unresolved extensions are contract violations.
	assert.Panics(t, func() { q.GetExtension("vendor_missing", 1) })

	violated := func() (v verifier.Violation) {
		defer func() {
			v = recover().(verifier.Violation)
		}()
		q.GetExtension("vendor_missing", 1)
		return
	}()
	assert.Equal(t, verifier.FailureCodeExtensionNotResolved, violated.Code)
}

func TestQueueNotifyOneShot(t *testing.T) {
	a := testAdapter(t)

	notified := 0
	cc := a.NewQueueCreationContext(DirectionTx, 0, func(*Queue) { notified++ })

	var armedSeen []bool
	q, err := cc.CreateQueue(QueueConfig{Callbacks: Callbacks{
		EvtAdvance: func(*Queue) {},
		EvtCancel:  func(*Queue) {},
		EvtSetNotificationEnabled: func(_ *Queue, armed bool) {
			armedSeen = append(armedSeen, armed)
		},
	}})
	require.NoError(t, err)
	q.Start()

	// Disarmed: the signal is swallowed.
	q.NotifyMorePacketsAvailable()
	assert.Zero(t, notified)

	// Armed: exactly one notification fires, then the queue disarms
	// itself; a second signal without rearming is dropped.
	q.SetArmed(true)
	q.NotifyMorePacketsAvailable()
	q.NotifyMorePacketsAvailable()
	assert.Equal(t, 1, notified)

	q.SetArmed(true)
	q.NotifyMorePacketsAvailable()
	assert.Equal(t, 2, notified)

	assert.Equal(t, []bool{true, true}, armedSeen)
}

func TestAdapterQueueRegistry(t *testing.T) {
	a := testAdapter(t)

	q, err := a.CreateTxQueue(1, nil)
	require.NoError(t, err)

	assert.Same(t, q, a.LookupQueue(DirectionTx, 1))
	assert.Nil(t, a.LookupQueue(DirectionRx, 1))
	assert.Nil(t, a.LookupQueue(DirectionTx, 9))

	q.Start()
	q.Cancel()
	q.Stop()
	assert.Nil(t, a.LookupQueue(DirectionTx, 1))
}

func TestAdapterConfigurationViolations(t *testing.T) {
	l := util.NewTestLogger()
	datapath := DatapathCallbacks{
		CreateTxQueue: func(cc *CreationContext) (*Queue, error) { return nil, nil },
		CreateRxQueue: func(cc *CreationContext) (*Queue, error) { return nil, nil },
	}
	valid := AdapterConfig{
		Datapath: datapath,
		Tx:       TxCapabilities{MaximumNumberOfQueues: 1},
		Rx:       RxCapabilities{MaximumNumberOfQueues: 1},
	}
	assert.NotPanics(t, func() { NewAdapter(l, "ok0", valid) })

	missing := valid
	missing.Datapath.CreateRxQueue = nil
	assert.Panics(t, func() { NewAdapter(l, "bad0", missing) })

	zeroQueues := valid
	zeroQueues.Tx.MaximumNumberOfQueues = 0
	assert.Panics(t, func() { NewAdapter(l, "bad1", zeroQueues) })

	dma := valid
	dma.Tx.MappingRequirement = MappingDmaMapped
	assert.Panics(t, func() { NewAdapter(l, "bad2", dma) })
	dma.Tx.Dma = &DmaCapabilities{AddressWidth: 64}
	assert.NotPanics(t, func() { NewAdapter(l, "ok1", dma) })

	badAlign := valid
	badAlign.Rx.FragmentBufferAlignment = 3
	assert.Panics(t, func() { NewAdapter(l, "bad3", badAlign) })

	badHint := valid
	badHint.Tx.FragmentRingNumberOfElementsHint = 100
	assert.Panics(t, func() { NewAdapter(l, "bad4", badHint) })

	driverRx := valid
	driverRx.Rx.AllocationMode = RxAllocationModeDriver
	assert.Panics(t, func() { NewAdapter(l, "bad5", driverRx) })
	driverRx.Rx.AttachmentMode = RxAttachmentModeDriver
	driverRx.Rx.ReturnRxBuffer = func(uint32) {}
	assert.NotPanics(t, func() { NewAdapter(l, "ok2", driverRx) })

	lso := valid
	lso.Lso = LsoCapabilities{IPv4: true}
	assert.Panics(t, func() { NewAdapter(l, "bad6", lso) })
	lso.Lso.MaximumOffloadSize = 0x10000
	lso.Lso.MinimumSegmentCount = 2
	assert.NotPanics(t, func() { NewAdapter(l, "ok3", lso) })
}
