package netqx

import (
	"context"
	"encoding/binary"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/netqx/netqx/extension"
	"github.com/netqx/netqx/ring"
)

const (
	hostBatchSize     = 64
	hostPollInterval  = 50 * time.Microsecond
	defaultDrainWait  = time.Second
	defaultReportTick = time.Second
	benchFrameLength  = 1514
)

// Control owns the assembled datapath: the adapter, the software device, and
// one host-side runner goroutine per queue playing the network stack. It is
// the device lifecycle collaborator of the queue core: it flips the adapter's
// power gate, owns the drain deadline at shutdown, and tears queues down in
// order.
type Control struct {
	l       *logrus.Logger
	adapter *Adapter
	device  *SoftDevice

	txQueues int
	rxQueues int

	statsStart func()

	cancel context.CancelFunc
	wg     sync.WaitGroup

	txPackets atomic.Uint64
	txBytes   atomic.Uint64
	rxPackets atomic.Uint64
	rxBytes   atomic.Uint64

	queues []*Queue
}

// Adapter returns the adapter under control.
func (c *Control) Adapter() *Adapter {
	return c.adapter
}

// Device returns the software device backing the adapter.
func (c *Control) Device() *SoftDevice {
	return c.device
}

// Start powers the adapter up, creates the configured queues, and launches
// the host-side runners. Nonblocking; use ShutdownBlock to wait for a signal.
func (c *Control) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.adapter.SetOperational(true)

	for i := 0; i < c.txQueues; i++ {
		wake := make(chan struct{}, 1)
		q, err := c.adapter.CreateTxQueue(uint32(i), wakeNotify(wake))
		if err != nil {
			c.Stop()
			return err
		}
		q.Start()
		c.queues = append(c.queues, q)

		c.wg.Add(1)
		go c.runTx(ctx, q, wake)
	}

	for i := 0; i < c.rxQueues; i++ {
		wake := make(chan struct{}, 1)
		q, err := c.adapter.CreateRxQueue(uint32(i), wakeNotify(wake))
		if err != nil {
			c.Stop()
			return err
		}
		q.Start()
		c.queues = append(c.queues, q)

		c.wg.Add(1)
		go c.runRx(ctx, q, wake)
	}

	if c.statsStart != nil {
		go c.statsStart()
	}

	c.wg.Add(1)
	go c.report(ctx)

	c.l.WithFields(logrus.Fields{
		"txQueues": c.txQueues,
		"rxQueues": c.rxQueues,
	}).Info("Datapath started")
	return nil
}

func wakeNotify(wake chan struct{}) func(*Queue) {
	return func(*Queue) {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// Stop cancels the runners, waits for each queue to drain and stop, and
// powers the adapter down.
func (c *Control) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.adapter.SetOperational(false)
	c.l.WithFields(logrus.Fields{
		"txPackets": humanize.Comma(int64(c.txPackets.Load())),
		"txBytes":   humanize.IBytes(c.txBytes.Load()),
		"rxPackets": humanize.Comma(int64(c.rxPackets.Load())),
		"rxBytes":   humanize.IBytes(c.rxBytes.Load()),
	}).Info("Goodbye")
}

// ShutdownBlock blocks on term and interrupt signals, then runs Stop.
func (c *Control) ShutdownBlock() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	signal.Notify(sigChan, syscall.SIGINT)

	rawSig := <-sigChan
	c.l.WithField("signal", rawSig.String()).Info("Caught signal, shutting down")
	c.Stop()
}

// runTx plays the host network stack on one transmit queue: post frames,
// advance the driver, collect completions, and sleep armed when idle.
func (c *Control) runTx(ctx context.Context, q *Queue, wake chan struct{}) {
	defer c.wg.Done()
	defer c.quiesce(q)

	pr := q.GetRingCollection().Packet()
	csum := q.GetExtension(extension.ChecksumName, extension.ChecksumVersion1)

	var seq uint32
	for {
		if ctx.Err() != nil {
			return
		}

		var posted uint64
		for posted < hostBatchSize {
			slot := pr.NextSlotForNIC()
			if slot == nil {
				break
			}
			slot.Reset()
			slot.FrameOffset = seq * benchFrameLength
			slot.FrameLength = benchFrameLength
			slot.Flags = ring.DescriptorValid
			binary.LittleEndian.PutUint32(slot.Extension(csum.Offset, csum.Size), seq)
			pr.CommitSlotToNIC()
			seq++
			posted++
		}
		if posted > 0 {
			pr.AddPacketCounters(posted, 0)
		}

		q.Advance()

		var collected uint64
		for {
			d := pr.TakeSlotFromNIC()
			if d == nil {
				break
			}
			c.txBytes.Add(uint64(d.FrameLength))
			collected++
		}
		c.txPackets.Add(collected)

		if posted == 0 && collected == 0 {
			c.idle(ctx, q, wake)
		}
	}
}

// runRx plays the host network stack on one receive queue: post free
// descriptors, advance the driver, collect received frames.
func (c *Control) runRx(ctx context.Context, q *Queue, wake chan struct{}) {
	defer c.wg.Done()
	defer c.quiesce(q)

	pr := q.GetRingCollection().Packet()

	for {
		if ctx.Err() != nil {
			return
		}

		var posted uint64
		for posted < hostBatchSize {
			slot := pr.NextSlotForNIC()
			if slot == nil {
				break
			}
			slot.Reset()
			pr.CommitSlotToNIC()
			posted++
		}
		if posted > 0 {
			pr.AddPacketCounters(posted, 0)
		}

		q.Advance()

		var collected uint64
		for {
			d := pr.TakeSlotFromNIC()
			if d == nil {
				break
			}
			c.rxBytes.Add(uint64(d.FrameLength))
			collected++
		}
		c.rxPackets.Add(collected)

		if posted == 0 && collected == 0 {
			c.idle(ctx, q, wake)
		}
	}
}

// idle arms notifications and waits for a wakeup, cancellation, or the poll
// interval, whichever comes first.
func (c *Control) idle(ctx context.Context, q *Queue, wake chan struct{}) {
	q.SetArmed(true)
	select {
	case <-wake:
	case <-ctx.Done():
	case <-time.After(hostPollInterval):
		q.SetArmed(false)
	}
}

// quiesce cancels the queue, polls its depth to zero under the drain
// deadline, and stops it. Cancellation is advisory; descriptors already with
// the device still complete, so the poll keeps advancing until the ring
// empties or the deadline passes.
func (c *Control) quiesce(q *Queue) {
	q.Cancel()

	pr := q.GetRingCollection().Packet()
	deadline := time.Now().Add(defaultDrainWait)
	for pr.Depth() > 0 && time.Now().Before(deadline) {
		q.Advance()
		for pr.TakeSlotFromNIC() != nil {
		}
	}
	for pr.TakeSlotFromNIC() != nil {
	}
	if depth := pr.Depth(); depth > 0 {
		q.l.WithField("depth", depth).Warn("Queue failed to drain before deadline")
	}
	q.Stop()
}

// report logs throughput once per tick.
func (c *Control) report(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(defaultReportTick)
	defer ticker.Stop()

	var lastTx, lastRx uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tx := c.txPackets.Load()
			rx := c.rxPackets.Load()
			c.l.WithFields(logrus.Fields{
				"txPps": humanize.Comma(int64(tx - lastTx)),
				"rxPps": humanize.Comma(int64(rx - lastRx)),
			}).Info("Datapath throughput")
			lastTx, lastRx = tx, rx
		}
	}
}
