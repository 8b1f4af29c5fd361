package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dampen/internal/engine"
	"github.com/roach88/dampen/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s at=%d satisfied=%t\n",
				event.Step, event.Op, event.Key, event.At, event.Satisfied)
		}
	}

	return buf.String()
}

// AssertionContext provides the state assertions are evaluated against.
type AssertionContext struct {
	Lifecycle *engine.Lifecycle

	// Default is the key used when an assertion names no trigger or mode.
	Default ir.Key
}

// checkExpect compares an event with the expected fields that are set.
func checkExpect(want Expect, got TraceEvent) []string {
	if want.Error != "" {
		if got.Error != want.Error {
			return []string{fmt.Sprintf("error: expected %s, got %q", want.Error, got.Error)}
		}
		return nil
	}
	if got.Error != "" {
		return []string{fmt.Sprintf("unexpected error %s", got.Error)}
	}

	var errs []string
	mismatch := func(field string, want, got any) {
		errs = append(errs, fmt.Sprintf("%s: expected %v, got %v", field, want, got))
	}

	if want.Applied != nil && *want.Applied != got.Applied {
		mismatch("applied", *want.Applied, got.Applied)
	}
	if want.Satisfied != nil && *want.Satisfied != got.Satisfied {
		mismatch("satisfied", *want.Satisfied, got.Satisfied)
	}
	if want.NumTrueEvals != nil && *want.NumTrueEvals != got.NumTrueEvals {
		mismatch("num_true_evals", *want.NumTrueEvals, got.NumTrueEvals)
	}
	if want.NumEvals != nil && *want.NumEvals != got.NumEvals {
		mismatch("num_evals", *want.NumEvals, got.NumEvals)
	}
	if want.TrueEvalsStartTime != nil && *want.TrueEvalsStartTime != got.TrueEvalsStartTime {
		mismatch("true_evals_start_time", *want.TrueEvalsStartTime, got.TrueEvalsStartTime)
	}
	if want.Evidence != nil && *want.Evidence != got.Evidence {
		mismatch("evidence", *want.Evidence, got.Evidence)
	}

	if want.Timeout != nil || want.TimeoutCanceled != nil {
		if got.Timeout == nil {
			errs = append(errs, "timeout: expected a timeout hint, got none")
			return errs
		}
		if want.Timeout != nil && *want.Timeout != got.Timeout.Time {
			mismatch("timeout", *want.Timeout, got.Timeout.Time)
		}
		if want.TimeoutCanceled != nil && *want.TimeoutCanceled != got.Timeout.Canceled {
			mismatch("timeout_canceled", *want.TimeoutCanceled, got.Timeout.Canceled)
		}
	}
	return errs
}

// assertSatisfiedCount checks exactly Count round verdicts were satisfied.
func assertSatisfiedCount(result *Result, assertion Assertion) error {
	count := result.SatisfiedCount()
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertSatisfiedCount,
			Expected: fmt.Sprintf("%d satisfied verdicts", assertion.Count),
			Actual:   fmt.Sprintf("%d satisfied verdicts", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertActiveCount checks exactly Count dampenings remain active.
func assertActiveCount(l *engine.Lifecycle, assertion Assertion) error {
	if n := l.Len(); n != assertion.Count {
		return &AssertionError{
			Type:     AssertActiveCount,
			Expected: fmt.Sprintf("%d active dampenings", assertion.Count),
			Actual:   fmt.Sprintf("%d active dampenings", n),
		}
	}
	return nil
}

// assertFinalState checks the runtime state of one dampening. The applied
// and timeout fields of the expectation do not apply to state and must be
// left unset. An inactive dampening reports error NOT_FOUND.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	key := resolveKey(actx.Default, assertion.Trigger, assertion.Mode)
	got := TraceEvent{Op: AssertFinalState, Key: key}

	st, err := actx.Lifecycle.Snapshot(key)
	if err != nil {
		var e *ir.Error
		if !errors.As(err, &e) {
			return err
		}
		got.Error = string(e.Code)
	} else {
		got.Satisfied = st.Satisfied
		got.NumTrueEvals = st.NumTrueEvals
		got.NumEvals = st.NumEvals
		got.TrueEvalsStartTime = st.TrueEvalsStartTime
		got.Evidence = len(st.SatisfyingEvals)
	}

	if msgs := checkExpect(*assertion.Expect, got); len(msgs) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("state of %s", key),
			Actual:   strings.Join(msgs, "; "),
		}
	}
	return nil
}

// assertLogContains checks the log line of one dampening contains Text.
func assertLogContains(actx *AssertionContext, assertion Assertion) error {
	key := resolveKey(actx.Default, assertion.Trigger, assertion.Mode)
	line, err := actx.Lifecycle.Log(key)
	if err != nil {
		return &AssertionError{
			Type:     AssertLogContains,
			Expected: fmt.Sprintf("log of %s containing %q", key, assertion.Text),
			Actual:   err.Error(),
		}
	}
	if !strings.Contains(line, assertion.Text) {
		return &AssertionError{
			Type:     AssertLogContains,
			Expected: fmt.Sprintf("log of %s containing %q", key, assertion.Text),
			Actual:   line,
		}
	}
	return nil
}

// EvaluateAssertions runs all assertions and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertSatisfiedCount:
			err = assertSatisfiedCount(result, assertion)
		case AssertActiveCount, AssertFinalState, AssertLogContains:
			if actx == nil || actx.Lifecycle == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a lifecycle", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertActiveCount:
				err = assertActiveCount(actx.Lifecycle, assertion)
			case AssertFinalState:
				err = assertFinalState(actx, assertion)
			default:
				err = assertLogContains(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
