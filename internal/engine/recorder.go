package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/dampen/internal/ir"
	"github.com/roach88/dampen/internal/store"
)

// Recorder drives a Lifecycle and journals every operation it applies, so
// the run can later be replayed with Replay.
//
// Recorder is a VerdictSink: a Pool delivering to it journals each round
// with the verdict it produced.
//
// Thread-safety: all methods are safe from any goroutine. Journal seq
// numbers follow the order operations complete; for one key that is the
// order its rounds were applied.
type Recorder struct {
	ctx       context.Context
	lifecycle *Lifecycle
	journal   *store.Journal
	runID     string
	seq       *Sequence

	mu  sync.Mutex
	err error
}

// NewRecorder starts a journal run labelled label for l.
func NewRecorder(ctx context.Context, l *Lifecycle, j *store.Journal, label string) (*Recorder, error) {
	runID, err := j.BeginRun(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("new recorder: %w", err)
	}
	return &Recorder{
		ctx:       ctx,
		lifecycle: l,
		journal:   j,
		runID:     runID,
		seq:       NewSequence(),
	}, nil
}

// RunID returns the journal run id.
func (r *Recorder) RunID() string { return r.runID }

// Activate activates d for source and journals it.
func (r *Recorder) Activate(source string, d ir.Dampening) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lifecycle.ActivateSource(source, d); err != nil {
		return err
	}
	return r.journal.RecordActivation(r.ctx, r.runID, r.seq.Next(), source, d)
}

// Deactivate discards key and journals it. Inactive keys are not journaled.
func (r *Recorder) Deactivate(key ir.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lifecycle.Deactivate(key) {
		return nil
	}
	return r.journal.RecordDeactivation(r.ctx, r.runID, r.seq.Next(), key)
}

// Reset resets key and journals it.
func (r *Recorder) Reset(key ir.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lifecycle.Reset(key); err != nil {
		return err
	}
	return r.journal.RecordReset(r.ctx, r.runID, r.seq.Next(), key)
}

// Evaluate applies round on the lifecycle and journals it with its verdict.
func (r *Recorder) Evaluate(round Round) (Verdict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		v   Verdict
		err error
	)
	if round.Time == 0 {
		v, err = r.lifecycle.Evaluate(round.Key, round.Match, round.Evals)
	} else {
		v, err = r.lifecycle.EvaluateAt(round.Key, round.Match, round.Evals, round.Time)
	}
	if jerr := r.record(round, v, err); jerr != nil {
		return v, jerr
	}
	return v, err
}

// Deliver journals a round applied by a Pool. Journal failures are kept and
// reported by Err.
func (r *Recorder) Deliver(round Round, v Verdict, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if jerr := r.record(round, v, err); jerr != nil && r.err == nil {
		r.err = jerr
	}
}

// Err returns the first journal failure seen by Deliver.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) record(round Round, v Verdict, err error) error {
	rec, oerr := outcomeOf(round, v, err)
	if oerr != nil {
		return oerr
	}
	return r.journal.RecordRound(r.ctx, r.runID, r.seq.Next(), round.Key, rec)
}

// outcomeOf is the journal form of a round and the verdict it produced.
func outcomeOf(round Round, v Verdict, err error) (store.RoundRecord, error) {
	rec := store.RoundRecord{
		Match: round.Match,
		Evals: round.Evals,
		Time:  round.Time,
	}
	if err != nil {
		var e *ir.Error
		if errors.As(err, &e) {
			rec.ErrorCode = string(e.Code)
		} else {
			rec.ErrorCode = "UNKNOWN"
		}
		return rec, nil
	}

	hash, herr := ir.EvidenceHash(v.Key, v.Evidence)
	if herr != nil {
		return rec, herr
	}
	rec.Time = v.Time
	rec.Applied = v.Applied
	rec.Satisfied = v.Satisfied
	rec.NumTrueEvals = v.NumTrueEvals
	rec.NumEvals = v.NumEvals
	rec.EvidenceHash = hash
	return rec, nil
}
