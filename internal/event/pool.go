package event

import "sync"

// barPool recycles BarUpdateEvents. Bars are the highest-rate message in
// the pipeline and the only event type worth pooling.
var barPool = sync.Pool{
	New: func() any { return new(BarUpdateEvent) },
}

// AcquireBarUpdateEvent returns a zeroed bar event from the pool.
func AcquireBarUpdateEvent() *BarUpdateEvent {
	return barPool.Get().(*BarUpdateEvent)
}

// ReleaseBarUpdateEvent resets ev and returns it to the pool. The caller
// must not touch the event afterwards.
func ReleaseBarUpdateEvent(ev *BarUpdateEvent) {
	*ev = BarUpdateEvent{}
	barPool.Put(ev)
}

// Warmup pre-populates the pool so the opening burst of bars after a
// subscribe does not allocate.
func Warmup() {
	const n = 64
	events := make([]*BarUpdateEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, AcquireBarUpdateEvent())
	}
	for _, ev := range events {
		ReleaseBarUpdateEvent(ev)
	}
}
