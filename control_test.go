package netqx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netqx/netqx/config"
	"github.com/netqx/netqx/util"
)

func TestMainBuildsControlFromConfig(t *testing.T) {
	l := util.NewTestLogger()
	c := config.NewC(l)
	require.NoError(t, c.LoadString(`
adapter:
  name: bench0
  tx_queues: 2
  rx_queues: 1
device:
  batch_size: 32
`))

	ctrl, err := Main(c, "test", l)
	require.NoError(t, err)
	require.NotNil(t, ctrl)

	assert.Equal(t, "bench0", ctrl.Adapter().Name())
	assert.EqualValues(t, 2, ctrl.Adapter().TxCapabilities().MaximumNumberOfQueues)
	assert.EqualValues(t, 32, ctrl.Device().BatchSize)
}

func TestMainRejectsZeroQueues(t *testing.T) {
	l := util.NewTestLogger()
	c := config.NewC(l)
	require.NoError(t, c.LoadString(`
adapter:
  tx_queues: 0
`))

	_, err := Main(c, "test", l)
	assert.Error(t, err)
}

func TestMainRejectsBadStatsConfig(t *testing.T) {
	l := util.NewTestLogger()
	c := config.NewC(l)
	require.NoError(t, c.LoadString(`
stats:
  type: prometheus
`))

	_, err := Main(c, "test", l)
	assert.Error(t, err)
}

func TestControlRunsAndDrains(t *testing.T) {
	l := util.NewTestLogger()
	c := config.NewC(l)
	require.NoError(t, c.LoadString(`
adapter:
  tx_queues: 1
  rx_queues: 1
`))

	ctrl, err := Main(c, "test", l)
	require.NoError(t, err)
	require.NoError(t, ctrl.Start())

	// Let the runners move some traffic, then shut down; Stop blocks
	// until every queue has drained and stopped.
	time.Sleep(50 * time.Millisecond)
	ctrl.Stop()

	assert.Positive(t, ctrl.Device().TxCompleted())
	assert.Positive(t, ctrl.Device().RxDelivered())
	assert.Zero(t, ctrl.Adapter().QueueCount(DirectionTx))
	assert.Zero(t, ctrl.Adapter().QueueCount(DirectionRx))
}
