package ring

// Counters is the per-ring telemetry block. The owning queue samples it once
// per scheduling quantum; all fields are monotonically non-decreasing within
// a reporting interval and reset together by ResetCounters. Sampling and
// reset both happen on the queue's advance context, so no synchronization is
// needed.
type Counters struct {
	IterationsInInterval      uint64
	CumulativeDepthInInterval uint64

	EmptyCount             uint64
	FullyOccupiedCount     uint64
	PartiallyOccupiedCount uint64

	PacketsProduced uint64
	PacketsConsumed uint64
}

// UpdateDepthCounters samples the current depth into the depth-bucket and
// cumulative counters.
func (r *Ring) UpdateDepthCounters() {
	r.counters.IterationsInInterval++

	depth := r.Depth()
	r.counters.CumulativeDepthInInterval += uint64(depth)

	switch {
	case depth == 0:
		r.counters.EmptyCount++
	case depth == r.elementCount-1:
		r.counters.FullyOccupiedCount++
	default:
		r.counters.PartiallyOccupiedCount++
	}
}

// AddPacketCounters folds a produced/consumed delta into the cumulative
// packet counters.
func (r *Ring) AddPacketCounters(produced, consumed uint64) {
	r.counters.PacketsProduced += produced
	r.counters.PacketsConsumed += consumed
}

// Counters returns a copy of the current counter block.
func (r *Ring) Counters() Counters {
	return r.counters
}

// ResetCounters zeroes the interval counters at the start of a new reporting
// interval. The cumulative packet counters survive; they are lifetime totals.
func (r *Ring) ResetCounters() {
	r.counters.IterationsInInterval = 0
	r.counters.CumulativeDepthInInterval = 0
	r.counters.EmptyCount = 0
	r.counters.FullyOccupiedCount = 0
	r.counters.PartiallyOccupiedCount = 0
}
