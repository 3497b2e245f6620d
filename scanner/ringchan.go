package scanner

import "sync/atomic"

// ringChannel is a bounded event buffer that never blocks the producer: when
// full, the oldest event is dropped to make room.
type ringChannel[T any] struct {
	ch          chan T
	overwritten atomic.Int64
}

func newRingChannel[T any](capacity int) *ringChannel[T] {
	if capacity <= 0 {
		panic("scanner: ring capacity must be > 0")
	}
	return &ringChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side.
func (rc *ringChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest buffered value if needed. It reports
// whether a value was dropped. Send is meant for a single producer.
func (rc *ringChannel[T]) Send(v T) (dropped bool) {
	select {
	case rc.ch <- v:
		return false
	default:
	}

	select {
	case <-rc.ch:
		rc.overwritten.Add(1)
		dropped = true
	default:
	}
	rc.ch <- v
	return dropped
}

// Overwritten returns how many events were dropped so far.
func (rc *ringChannel[T]) Overwritten() int64 {
	return rc.overwritten.Load()
}
