package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dampen/internal/ir"
)

func roundFor(trigger string, at int64) Round {
	return Round{
		Key:   ir.Key{TenantID: "tenant", TriggerID: trigger, Mode: ir.ModeFiring},
		Match: ir.MatchAny,
		Evals: []ir.ConditionEval{ce(0, 1, true)},
		Time:  at,
	}
}

func TestRoundQueue_FIFO(t *testing.T) {
	q := newRoundQueue()

	for i := int64(1); i <= 3; i++ {
		require.True(t, q.Enqueue(roundFor("a", i)))
	}

	for i := int64(1); i <= 3; i++ {
		r, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, i, r.Time)
	}
}

func TestRoundQueue_TryDequeue_Empty(t *testing.T) {
	q := newRoundQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestRoundQueue_Len(t *testing.T) {
	q := newRoundQueue()
	assert.Equal(t, 0, q.Len())

	q.Enqueue(roundFor("a", 1))
	q.Enqueue(roundFor("a", 2))
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
}

func TestRoundQueue_CloseRejectsEnqueue(t *testing.T) {
	q := newRoundQueue()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(roundFor("a", 1)))
	assert.True(t, q.Drained())
}

func TestRoundQueue_CloseKeepsPending(t *testing.T) {
	q := newRoundQueue()
	q.Enqueue(roundFor("a", 1))
	q.Close()

	assert.False(t, q.Drained())
	r, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(1), r.Time)
	assert.True(t, q.Drained())
}

func TestRoundQueue_WaitSignals(t *testing.T) {
	q := newRoundQueue()

	select {
	case <-q.Wait():
		t.Fatal("wait should block on an empty queue")
	default:
	}

	q.Enqueue(roundFor("a", 1))

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("wait should signal after enqueue")
	}
}

func TestRoundQueue_ConcurrentEnqueue(t *testing.T) {
	q := newRoundQueue()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Enqueue(roundFor("a", int64(i+1)))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, q.Len())
}
