package verifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPowerOfTwo(t *testing.T) {
	for _, v := range []uint32{1, 2, 4, 64, 1024, 1 << 31} {
		assert.True(t, IsPowerOfTwo(v), "%d", v)
	}
	for _, v := range []uint32{0, 3, 6, 100, 1<<31 + 1} {
		assert.False(t, IsPowerOfTwo(v), "%d", v)
	}
}

func TestReportCarriesCode(t *testing.T) {
	defer func() {
		v, ok := recover().(Violation)
		require.True(t, ok)
		assert.Equal(t, FailureCodeNotPowerOfTwo, v.Code)
		assert.Contains(t, v.Error(), "ring size")
	}()
	Report(nil, FailureCodeNotPowerOfTwo, "ring size: %d", 100)
}

func TestVerifyPassesWhenConditionHolds(t *testing.T) {
	assert.NotPanics(t, func() {
		Verify(nil, true, FailureCodeInvalidQueueState, "")
	})
	assert.Panics(t, func() {
		Verify(nil, false, FailureCodeInvalidQueueState, "")
	})
}

func TestGoroutineID(t *testing.T) {
	id := GoroutineID()
	require.NotZero(t, id)
	assert.Equal(t, id, GoroutineID())

	other := make(chan uint64)
	go func() { other <- GoroutineID() }()
	assert.NotEqual(t, id, <-other)
}
