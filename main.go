package netqx

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/netqx/netqx/config"
	"github.com/netqx/netqx/extension"
	"github.com/netqx/netqx/util"
)

// Main assembles a running datapath from config: a software device, an
// adapter advertising its capabilities and extensions, and the host-side
// queue runners. The returned Control starts and stops everything.
func Main(c *config.C, buildVersion string, logger *logrus.Logger) (*Control, error) {
	l := logger
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}

	err := configLogger(l, c)
	if err != nil {
		return nil, util.NewContextualError("Failed to configure the logger", nil, err)
	}

	device := NewSoftDevice(l)
	if batch := c.GetUint32("device.batch_size", 0); batch > 0 {
		device.BatchSize = batch
	}
	if frame := c.GetUint32("device.rx_frame_length", 0); frame > 0 {
		device.RxFrameLength = frame
	}

	txQueues := c.GetUint32("adapter.tx_queues", 1)
	rxQueues := c.GetUint32("adapter.rx_queues", 1)
	if txQueues == 0 || rxQueues == 0 {
		return nil, fmt.Errorf("adapter.tx_queues and adapter.rx_queues must be nonzero")
	}

	adapterConfig := AdapterConfig{
		Datapath: device.Datapath(),
		Tx: TxCapabilities{
			MaximumNumberOfQueues:            txQueues,
			FragmentRingNumberOfElementsHint: c.GetUint32("adapter.tx_fragment_ring", 0),
		},
		Rx: RxCapabilities{
			MaximumNumberOfQueues:            rxQueues,
			FragmentRingNumberOfElementsHint: c.GetUint32("adapter.rx_fragment_ring", 0),
		},
		Lso: LsoCapabilities{
			IPv4:                c.GetBool("offload.lso.v4", true),
			IPv6:                c.GetBool("offload.lso.v6", true),
			MaximumOffloadSize:  c.GetUint32("offload.lso.max_size", 0x40000),
			MinimumSegmentCount: c.GetUint32("offload.lso.min_segments", 2),
		},
		AdvertisedExtensions: []extension.Extension{
			extension.Checksum(),
			extension.LSO(),
		},
	}

	adapter := NewAdapter(l, c.GetString("adapter.name", "netqx0"), adapterConfig)

	statsStart, err := startStats(l, c, buildVersion)
	if err != nil {
		return nil, util.NewContextualError("Failed to start stats emission", nil, err)
	}

	return &Control{
		l:          l,
		adapter:    adapter,
		device:     device,
		txQueues:   int(txQueues),
		rxQueues:   int(rxQueues),
		statsStart: statsStart,
	}, nil
}
