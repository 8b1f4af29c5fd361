package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/dampen/internal/engine"
	"github.com/roach88/dampen/internal/ir"
	"github.com/roach88/dampen/internal/store"
	"github.com/roach88/dampen/internal/testutil"
)

// scenarioRunID is the journal run id of every scenario run, so traces are
// stable across runs.
const scenarioRunID = "scenario"

// Harness is the test execution engine.
// It runs scenarios on a manual clock, journaling every step.
type Harness struct {
	recorder *engine.Recorder
	clock    *testutil.ManualClock
	policies map[ir.Key]ir.Dampening
	source   string
	defaults ir.Key
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal for isolation.
//
// Execution flow:
// 1. Create fresh in-memory journal
// 2. Activate every policy
// 3. Execute steps with expect validation
// 4. Evaluate assertions
// 5. Replay the journal and check the verdicts are reproduced
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	j, err := store.Open(":memory:", store.WithIDGenerator(fixedID(scenarioRunID)))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer j.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	clock := testutil.NewManualClock(0)
	l := engine.NewLifecycle(engine.WithClock(clock), engine.WithLogger(logger))

	rec, err := engine.NewRecorder(ctx, l, j, scenario.Name)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		recorder: rec,
		clock:    clock,
		policies: make(map[ir.Key]ir.Dampening, len(scenario.Policies)),
		source:   scenario.Source,
	}

	for i, p := range scenario.Policies {
		d, err := p.Dampening()
		if err != nil {
			return nil, fmt.Errorf("policies[%d]: %w", i, err)
		}
		if i == 0 {
			h.defaults = ir.Key{TenantID: d.TenantID(), TriggerID: d.TriggerID(), Mode: ir.ModeFiring}
		}
		h.policies[d.Key()] = d
		if err := rec.Activate(h.source, d); err != nil {
			return nil, fmt.Errorf("policies[%d]: %w", i, err)
		}
	}

	result := NewResult()
	result.RunID = rec.RunID()
	for i, step := range scenario.Steps {
		if err := h.executeStep(i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	actx := &AssertionContext{Lifecycle: l, Default: h.defaults}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	replay, err := engine.Replay(ctx, j, rec.RunID(), engine.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to replay scenario: %w", err)
	}
	for _, m := range replay.Mismatch {
		result.AddError(fmt.Sprintf("replay: event %d (%s) diverged from recording", m.Seq, m.Key))
	}

	return result, nil
}

// executeStep runs one step, adding its trace event and any expect failure
// to result. Returns an error only for failures of the harness itself.
func (h *Harness) executeStep(index int, step Step, result *Result) error {
	if step.At != 0 {
		h.clock.Set(step.At)
	}
	key := resolveKey(h.defaults, step.Trigger, step.Mode)
	ev := TraceEvent{Step: index, Op: step.Op, Key: key, At: h.clock.NowMillis()}
	if ev.Op == "" {
		ev.Op = OpRound
	}

	var err error
	switch ev.Op {
	case OpActivate:
		d, ok := h.policies[key]
		if !ok {
			return fmt.Errorf("no policy for %s", key)
		}
		err = h.recorder.Activate(h.source, d)
	case OpDeactivate:
		err = h.recorder.Deactivate(key)
	case OpReset:
		err = h.recorder.Reset(key)
	default:
		match := ir.MatchAll
		if step.Match != "" {
			if match, err = ir.ParseMatch(step.Match); err != nil {
				return err
			}
		}
		var v engine.Verdict
		v, err = h.recorder.Evaluate(engine.Round{Key: key, Match: match, Evals: step.Evals})
		if err == nil {
			ev.Applied = v.Applied
			ev.Satisfied = v.Satisfied
			ev.NumTrueEvals = v.NumTrueEvals
			ev.NumEvals = v.NumEvals
			ev.TrueEvalsStartTime = v.TrueEvalsStartTime
			ev.Evidence = len(v.Evidence)
			ev.Timeout = v.Timeout
		}
	}

	if err != nil {
		var e *ir.Error
		if !errors.As(err, &e) {
			return err
		}
		ev.Error = string(e.Code)
	}
	result.Trace = append(result.Trace, ev)

	if step.Expect != nil {
		for _, msg := range checkExpect(*step.Expect, ev) {
			result.AddError(fmt.Sprintf("steps[%d]: %s", index, msg))
		}
	}
	return nil
}

// resolveKey returns the key a step or assertion refers to. Empty trigger
// and mode keep the scenario defaults.
func resolveKey(defaults ir.Key, trigger, mode string) ir.Key {
	key := defaults
	if trigger != "" {
		key.TriggerID = trigger
	}
	if m, err := ir.ParseMode(mode); err == nil {
		key.Mode = m
	}
	return key
}

// fixedID generates the same run id every time.
type fixedID string

func (f fixedID) Generate() string { return string(f) }
