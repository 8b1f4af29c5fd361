package engine

import (
	"fmt"
	"strings"
)

// Log renders the state for diagnostics. The format carries no contract.
//
//	[cpu, triggerMode=FIRING, source=host-1, numTrueEvals=2, numEvals=3, trueEvalsStartTime=0, satisfied=true]
//		[[1/2 match=true] [2/2 match=true]]
//
// When satisfied, one indented line per evidence entry follows.
func (sd *SourceDampening) Log() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s, triggerMode=%s, source=%s, numTrueEvals=%d, numEvals=%d, trueEvalsStartTime=%d, satisfied=%t]",
		sd.dampening.TriggerID(), sd.dampening.TriggerMode(), sd.source,
		sd.state.NumTrueEvals, sd.state.NumEvals, sd.state.TrueEvalsStartTime, sd.state.Satisfied)
	if sd.state.Satisfied {
		for _, set := range sd.state.SatisfyingEvals {
			sb.WriteString("\n\t[")
			for i, ce := range set {
				if i > 0 {
					sb.WriteString(" ")
				}
				sb.WriteString("[")
				sb.WriteString(ce.DisplayString())
				sb.WriteString("]")
			}
			sb.WriteString("]")
		}
	}
	return sb.String()
}

// String renders the full state, including tenant, type and current evals.
func (sd *SourceDampening) String() string {
	var evals strings.Builder
	for i, idx := range sd.currentIndexes() {
		if i > 0 {
			evals.WriteString(", ")
		}
		fmt.Fprintf(&evals, "%d=%s", idx, sd.state.CurrentEvals[idx].DisplayString())
	}
	return fmt.Sprintf("SourceDampening [tenantId=%s, triggerId=%s, source=%s, triggerMode=%s, type=%s, "+
		"numTrueEvals=%d, numEvals=%d, trueEvalsStartTime=%d, currentEvals={%s}, satisfied=%t]",
		sd.dampening.TenantID(), sd.dampening.TriggerID(), sd.source, sd.dampening.TriggerMode(),
		sd.dampening.Type(), sd.state.NumTrueEvals, sd.state.NumEvals, sd.state.TrueEvalsStartTime,
		evals.String(), sd.state.Satisfied)
}
