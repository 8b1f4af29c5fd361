package harness

import "github.com/roach88/dampen/internal/ir"

// TraceEvent records one executed step.
// Round fields are zero for activate, deactivate and reset steps.
type TraceEvent struct {
	Step int    `json:"step"`
	Op   string `json:"op"`
	Key  ir.Key `json:"key"`
	At   int64  `json:"at"`

	Applied            bool        `json:"applied,omitempty"`
	Satisfied          bool        `json:"satisfied,omitempty"`
	NumTrueEvals       int         `json:"num_true_evals,omitempty"`
	NumEvals           int         `json:"num_evals,omitempty"`
	TrueEvalsStartTime int64       `json:"true_evals_start_time,omitempty"`
	Evidence           int         `json:"evidence,omitempty"`
	Timeout            *ir.Timeout `json:"timeout,omitempty"`

	// Error is the error code of a rejected step.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// RunID is the journal run the scenario was recorded under.
	RunID string `json:"run_id"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// SatisfiedCount returns the number of satisfied round verdicts.
func (r *Result) SatisfiedCount() int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Op == OpRound && ev.Satisfied {
			n++
		}
	}
	return n
}
