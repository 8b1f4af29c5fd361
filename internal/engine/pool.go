package engine

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// VerdictSink receives the outcome of every round a Pool applies.
//
// Deliver is called from worker goroutines: rounds for one key are delivered
// in submission order, but rounds for different keys may be delivered
// concurrently, so implementations must be safe for concurrent use.
type VerdictSink interface {
	Deliver(r Round, v Verdict, err error)
}

// VerdictSinkFunc adapts a function to VerdictSink.
type VerdictSinkFunc func(r Round, v Verdict, err error)

// Deliver calls f(r, v, err).
func (f VerdictSinkFunc) Deliver(r Round, v Verdict, err error) {
	f(r, v, err)
}

// DefaultWorkers is the worker count used when NewPool is given n < 1.
const DefaultWorkers = 4

// Pool applies rounds on a fixed set of single-owner workers. Every round
// for a key is routed to the same worker, so rounds for one key are applied
// one at a time in FIFO order while different keys proceed in parallel.
//
// Thread-safety model:
//   - Submit and Close: safe from any goroutine
//   - Run: must be called once
type Pool struct {
	lifecycle *Lifecycle
	sink      VerdictSink
	queues    []*roundQueue
	logger    *slog.Logger
	metrics   *Metrics
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the pool logger. Default: slog.Default().
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithPoolMetrics records per-worker queue lengths to m.
func WithPoolMetrics(m *Metrics) PoolOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

// NewPool creates a pool of n workers applying rounds to l and delivering
// verdicts to sink.
func NewPool(l *Lifecycle, n int, sink VerdictSink, opts ...PoolOption) *Pool {
	if n < 1 {
		n = DefaultWorkers
	}
	p := &Pool{
		lifecycle: l,
		sink:      sink,
		queues:    make([]*roundQueue, n),
		logger:    slog.Default(),
	}
	for i := range p.queues {
		p.queues[i] = newRoundQueue()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the number of workers.
func (p *Pool) Workers() int {
	return len(p.queues)
}

// Submit queues r on the worker owning its key. Returns false after Close.
func (p *Pool) Submit(r Round) bool {
	w := p.worker(r)
	q := p.queues[w]
	if !q.Enqueue(r) {
		p.logger.Warn("round dropped: pool closed", "key", r.Key.String())
		return false
	}
	p.metrics.setQueueLength(strconv.Itoa(w), q.Len())
	return true
}

// Close stops accepting rounds. Workers finish the rounds already queued and
// Run then returns nil.
func (p *Pool) Close() {
	for _, q := range p.queues {
		q.Close()
	}
}

// Run starts the workers and blocks until they exit. It returns ctx.Err() if
// ctx is cancelled first, or nil once Close has been called and every queue
// has been drained.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("pool starting", "workers", len(p.queues))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range p.queues {
		g.Go(func() error {
			return p.work(gctx, strconv.Itoa(i), q)
		})
	}
	err := g.Wait()

	p.logger.Info("pool stopped", "error", err)
	return err
}

// work is the loop of one worker: it is the only goroutine that applies
// rounds taken from q.
func (p *Pool) work(ctx context.Context, name string, q *roundQueue) error {
	for {
		if r, ok := q.TryDequeue(); ok {
			p.metrics.setQueueLength(name, q.Len())
			p.apply(r)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.Wait():
			// Closed signal channels fire immediately.
			if q.Drained() {
				return nil
			}
		}
	}
}

func (p *Pool) apply(r Round) {
	var (
		v   Verdict
		err error
	)
	if r.Time == 0 {
		v, err = p.lifecycle.Evaluate(r.Key, r.Match, r.Evals)
	} else {
		v, err = p.lifecycle.EvaluateAt(r.Key, r.Match, r.Evals, r.Time)
	}
	if err != nil {
		p.logger.Warn("round rejected", "key", r.Key.String(), "error", err)
	}
	if p.sink != nil {
		p.sink.Deliver(r, v, err)
	}
}

// worker returns the index of the worker owning r's key.
func (p *Pool) worker(r Round) int {
	h := fnv.New32a()
	h.Write([]byte(r.Key.String()))
	return int(h.Sum32() % uint32(len(p.queues)))
}
