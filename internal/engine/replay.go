package engine

import (
	"context"
	"fmt"

	"github.com/roach88/dampen/internal/store"
)

// ReplayResult reports a replayed journal run.
type ReplayResult struct {
	RunID     string     `json:"run_id"`
	Events    int        `json:"events"`
	Rounds    int        `json:"rounds"`
	Satisfied int        `json:"satisfied"`
	Mismatch  []Mismatch `json:"mismatch,omitempty"`
}

// Deterministic reports whether every replayed round matched the recording.
func (r *ReplayResult) Deterministic() bool {
	return len(r.Mismatch) == 0
}

// Mismatch is a replayed round whose outcome differs from the recording.
type Mismatch struct {
	Seq      int64             `json:"seq"`
	Key      string            `json:"key"`
	Recorded store.RoundRecord `json:"recorded"`
	Replayed store.RoundRecord `json:"replayed"`
}

// Replay re-applies a recorded run on a fresh Lifecycle and compares every
// round's outcome with the recording. Rounds are applied at their recorded
// time, so the result does not depend on the wall clock.
//
// Returns an error only if the journal cannot be read or an activation that
// succeeded when recorded is rejected now.
func Replay(ctx context.Context, j *store.Journal, runID string, opts ...LifecycleOption) (*ReplayResult, error) {
	events, err := j.Events(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}

	l := NewLifecycle(opts...)
	res := &ReplayResult{RunID: runID, Events: len(events)}

	for _, ev := range events {
		switch ev.Kind {
		case store.EventActivate:
			if ev.Policy == nil {
				return nil, fmt.Errorf("replay %s: event %d: activation without policy", runID, ev.Seq)
			}
			if err := l.ActivateSource(ev.Source, *ev.Policy); err != nil {
				return nil, fmt.Errorf("replay %s: event %d: %w", runID, ev.Seq, err)
			}

		case store.EventDeactivate:
			l.Deactivate(ev.Key)

		case store.EventReset:
			// NotFound here is itself a divergence; it surfaces at the
			// key's next round.
			_ = l.Reset(ev.Key)

		case store.EventRound:
			res.Rounds++
			want := *ev.Round
			round := Round{Key: ev.Key, Match: want.Match, Evals: want.Evals, Time: want.Time}

			v, err := l.EvaluateAt(round.Key, round.Match, round.Evals, round.Time)
			got, oerr := outcomeOf(round, v, err)
			if oerr != nil {
				return nil, fmt.Errorf("replay %s: event %d: %w", runID, ev.Seq, oerr)
			}
			if got.Satisfied {
				res.Satisfied++
			}
			if !sameOutcome(want, got) {
				res.Mismatch = append(res.Mismatch, Mismatch{
					Seq:      ev.Seq,
					Key:      ev.Key.String(),
					Recorded: want,
					Replayed: got,
				})
			}

		default:
			return nil, fmt.Errorf("replay %s: event %d: unknown kind %q", runID, ev.Seq, ev.Kind)
		}
	}
	return res, nil
}

// sameOutcome compares the verdict fields of two round records.
func sameOutcome(a, b store.RoundRecord) bool {
	return a.Applied == b.Applied &&
		a.Satisfied == b.Satisfied &&
		a.NumTrueEvals == b.NumTrueEvals &&
		a.NumEvals == b.NumEvals &&
		a.EvidenceHash == b.EvidenceHash &&
		a.ErrorCode == b.ErrorCode
}
