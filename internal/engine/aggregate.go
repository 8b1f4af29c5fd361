package engine

import "github.com/roach88/dampen/internal/ir"

// Aggregate folds one round of condition evaluations into current (the most
// recent evaluation per condition set index) and returns the round verdict.
//
// ok is false when match is ALL and current does not yet hold an evaluation
// for every index of the condition set. Such a round must not advance the
// state machine: the set has to be fully sampled at least once before ALL can
// assert true.
//
// The round is validated before current is touched, so an error never leaves
// current partially updated.
func Aggregate(current map[int]ir.ConditionEval, match ir.Match, round []ir.ConditionEval) (verdict bool, ok bool, err error) {
	if len(round) == 0 {
		return false, false, ir.InvalidArgument("condition eval round can not be empty")
	}
	if match != ir.MatchAll && match != ir.MatchAny {
		return false, false, ir.InvalidArgument("unexpected match type %q", match)
	}

	for _, ce := range round {
		current[ce.ConditionSetIndex] = ce
	}

	// All evals of one trigger share the condition set size.
	setSize := round[0].ConditionSetSize

	switch match {
	case ir.MatchAll:
		for i := 0; i < setSize; i++ {
			if _, seen := current[i]; !seen {
				return false, false, nil
			}
		}
		for _, ce := range current {
			if !ce.Match {
				return false, true, nil
			}
		}
		return true, true, nil

	default:
		for _, ce := range current {
			if ce.Match {
				return true, true, nil
			}
		}
		return false, true, nil
	}
}
