package engine

import (
	"sync/atomic"
	"time"
)

// WallClock supplies "now" in epoch milliseconds to the state machines.
type WallClock interface {
	NowMillis() int64
}

// SystemClock reads the process wall clock.
type SystemClock struct{}

// NowMillis returns time.Now() in epoch milliseconds.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Sequence is a monotonic logical counter used to order submitted rounds.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence starting at a specific value.
// Used to continue numbering a journal that already holds rounds.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next increments the sequence and returns the new value.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the current value without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
