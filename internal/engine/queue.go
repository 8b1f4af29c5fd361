package engine

import (
	"sync"

	"github.com/roach88/dampen/internal/ir"
)

// Round is one evaluation round for one dampening key, as delivered by the
// condition engine.
type Round struct {
	Key   ir.Key             `json:"key"`
	Match ir.Match           `json:"match"`
	Evals []ir.ConditionEval `json:"evals"`

	// Time is the round's wall-clock time in epoch millis. Zero means the
	// lifecycle clock is read when the round is applied.
	Time int64 `json:"time,omitempty"`
}

// roundQueue is a thread-safe unbounded FIFO of rounds owned by one worker.
//
// The queue uses a channel for signaling so the worker loop can wait on it
// alongside context cancellation.
type roundQueue struct {
	mu     sync.Mutex
	rounds []Round
	closed bool
	signal chan struct{} // buffered, size 1
}

func newRoundQueue() *roundQueue {
	return &roundQueue{
		rounds: make([]Round, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a round to the back of the queue. Returns false if the queue
// is closed.
func (q *roundQueue) Enqueue(r Round) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.rounds = append(q.rounds, r)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front round without blocking.
func (q *roundQueue) TryDequeue() (Round, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.rounds) == 0 {
		return Round{}, false
	}
	r := q.rounds[0]

	// Clear the slot so the evals slice can be collected.
	q.rounds[0] = Round{}
	if len(q.rounds) == 1 {
		q.rounds = q.rounds[:0]
	} else {
		q.rounds = q.rounds[1:]
	}
	return r, true
}

// Wait returns a channel that signals when rounds may be available. The
// channel is closed when the queue is closed.
func (q *roundQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending rounds.
func (q *roundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.rounds)
}

// Drained reports whether the queue is closed and empty.
func (q *roundQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.rounds) == 0
}

// Close stops accepting rounds and wakes the waiting worker. Pending rounds
// remain available to TryDequeue.
func (q *roundQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
