package engine

import (
	"sort"

	"github.com/roach88/dampen/internal/ir"
)

// RuntimeState is the mutable evaluation state of one dampening. It is never
// part of ir.Dampening so counters cannot be persisted or shared by accident.
type RuntimeState struct {
	// CurrentEvals holds the most recent eval for each member of the
	// condition set, keyed by condition set index. Survives Reset.
	CurrentEvals map[int]ir.ConditionEval `json:"current_evals"`

	NumTrueEvals int `json:"num_true_evals"`
	NumEvals     int `json:"num_evals"`

	// TrueEvalsStartTime is the epoch millis of the first true eval of the
	// current windowed streak, 0 when unset.
	TrueEvalsStartTime int64 `json:"true_evals_start_time"`

	Satisfied bool `json:"satisfied"`

	// SatisfyingEvals holds one snapshot of CurrentEvals per true round.
	SatisfyingEvals []ir.EvalSet `json:"satisfying_evals"`
}

// clone returns a deep copy of st.
func (st RuntimeState) clone() RuntimeState {
	out := st
	out.CurrentEvals = make(map[int]ir.ConditionEval, len(st.CurrentEvals))
	for k, v := range st.CurrentEvals {
		out.CurrentEvals[k] = v
	}
	out.SatisfyingEvals = make([]ir.EvalSet, len(st.SatisfyingEvals))
	for i, set := range st.SatisfyingEvals {
		out.SatisfyingEvals[i] = ir.NewEvalSet(set)
	}
	return out
}

// SourceDampening is the dampening state machine for one trigger, one mode
// and the data source applied to it.
//
// States: ACCUMULATING (not satisfied) and SATISFIED. Apply moves
// ACCUMULATING to SATISFIED; only Reset moves back.
//
// SourceDampening is not safe for concurrent use. Lifecycle guarantees a
// single owner per key.
type SourceDampening struct {
	source    string
	dampening ir.Dampening
	state     RuntimeState
}

// NewSourceDampening creates a state machine for d in its initial state.
func NewSourceDampening(source string, d ir.Dampening) *SourceDampening {
	sd := &SourceDampening{
		source:    source,
		dampening: d,
		state: RuntimeState{
			CurrentEvals: make(map[int]ir.ConditionEval, 5),
		},
	}
	sd.Reset()
	return sd
}

// Reset returns counters, time anchor, satisfied flag and evidence to their
// initial values. The last-known evaluation per index is kept so the
// condition set does not need to be re-sampled.
func (sd *SourceDampening) Reset() {
	sd.state.NumTrueEvals = 0
	sd.state.NumEvals = 0
	sd.state.TrueEvalsStartTime = 0
	sd.state.Satisfied = false
	sd.state.SatisfyingEvals = nil
}

// Perform aggregates a round with match and, if the round resolves, applies
// the verdict at now. applied is false when an ALL round is incomplete.
func (sd *SourceDampening) Perform(match ir.Match, round []ir.ConditionEval, now int64) (applied bool, err error) {
	verdict, ok, err := Aggregate(sd.state.CurrentEvals, match, round)
	if err != nil || !ok {
		return false, err
	}
	sd.Apply(verdict, now)
	return true, nil
}

// Apply advances the state machine with one resolved round verdict at now
// (epoch millis).
//
// SATISFIED is terminal: once satisfied, Apply leaves counters, anchor and
// evidence untouched until Reset, so the trail that satisfied the policy is
// what the caller reads.
func (sd *SourceDampening) Apply(trueEval bool, now int64) {
	d := sd.dampening
	st := &sd.state
	if st.Satisfied {
		return
	}

	// A started RELAXED_TIME window that has lapsed must start over.
	if d.Type() == ir.RelaxedTime && st.TrueEvalsStartTime != 0 {
		if now-st.TrueEvalsStartTime > d.EvalTimeSetting() {
			sd.Reset()
		}
	}

	st.NumEvals++
	if trueEval {
		st.NumTrueEvals++
		st.SatisfyingEvals = append(st.SatisfyingEvals, sd.currentSnapshot())

		switch d.Type() {
		case ir.Strict, ir.RelaxedCount:
			if st.NumTrueEvals == d.EvalTrueSetting() {
				st.Satisfied = true
			}

		case ir.RelaxedTime:
			if st.TrueEvalsStartTime == 0 {
				st.TrueEvalsStartTime = now
			}
			if st.NumTrueEvals == d.EvalTrueSetting() && now-st.TrueEvalsStartTime < d.EvalTimeSetting() {
				st.Satisfied = true
			}

		case ir.StrictTime, ir.StrictTimeout:
			if st.TrueEvalsStartTime == 0 {
				st.TrueEvalsStartTime = now
			} else if now-st.TrueEvalsStartTime >= d.EvalTimeSetting() {
				st.Satisfied = true
			}
		}
		return
	}

	switch d.Type() {
	case ir.Strict, ir.StrictTime, ir.StrictTimeout:
		sd.Reset()

	case ir.RelaxedCount:
		numNeeded := d.EvalTrueSetting() - st.NumTrueEvals
		chancesLeft := d.EvalTotalSetting() - st.NumEvals
		if numNeeded > chancesLeft {
			sd.Reset()
		}

	case ir.RelaxedTime:
		// false evals do not break a time-bounded count
	}
}

func (sd *SourceDampening) currentSnapshot() ir.EvalSet {
	evals := make([]ir.ConditionEval, 0, len(sd.state.CurrentEvals))
	for _, ce := range sd.state.CurrentEvals {
		evals = append(evals, ce)
	}
	return ir.NewEvalSet(evals)
}

// Source returns the data source applied to the trigger.
func (sd *SourceDampening) Source() string { return sd.source }

// Dampening returns the policy this state machine applies.
func (sd *SourceDampening) Dampening() ir.Dampening { return sd.dampening }

// Key returns the dampening key.
func (sd *SourceDampening) Key() ir.Key { return sd.dampening.Key() }

// Satisfied reports whether the dampening pattern has been met.
func (sd *SourceDampening) Satisfied() bool { return sd.state.Satisfied }

// NumTrueEvals returns the true evals counted since the last reset.
func (sd *SourceDampening) NumTrueEvals() int { return sd.state.NumTrueEvals }

// NumEvals returns the evals counted since the last reset.
func (sd *SourceDampening) NumEvals() int { return sd.state.NumEvals }

// TrueEvalsStartTime returns the time anchor, 0 when unset.
func (sd *SourceDampening) TrueEvalsStartTime() int64 { return sd.state.TrueEvalsStartTime }

// SatisfyingEvals returns a copy of the evidence trail.
func (sd *SourceDampening) SatisfyingEvals() []ir.EvalSet {
	out := make([]ir.EvalSet, len(sd.state.SatisfyingEvals))
	for i, set := range sd.state.SatisfyingEvals {
		out[i] = ir.NewEvalSet(set)
	}
	return out
}

// CurrentEvals returns the last-known evaluations ordered by index.
func (sd *SourceDampening) CurrentEvals() []ir.ConditionEval {
	return sd.currentSnapshot()
}

// State returns a deep copy of the runtime state.
func (sd *SourceDampening) State() RuntimeState {
	return sd.state.clone()
}

// currentIndexes returns the indexes held in CurrentEvals in order.
func (sd *SourceDampening) currentIndexes() []int {
	idx := make([]int, 0, len(sd.state.CurrentEvals))
	for i := range sd.state.CurrentEvals {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}
