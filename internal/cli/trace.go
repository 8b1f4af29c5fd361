package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dampen/internal/harness"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Trigger string // optional - filter to one trigger
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Scenario string               `json:"scenario"`
	Pass     bool                 `json:"pass"`
	Timeline []harness.TraceEvent `json:"timeline"`
	Errors   []string             `json:"errors,omitempty"`
	Stats    TraceStats           `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Steps      int `json:"steps"`
	Rounds     int `json:"rounds"`
	Incomplete int `json:"incomplete"`
	Satisfied  int `json:"satisfied"`
	Rejected   int `json:"rejected"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <scenario-file>",
		Short: "Show the verdict timeline of a scenario",
		Long: `Run a scenario and show the verdict produced by every step.

The output includes:
- Timeline: one line per step with the counters after the step
- Stats: rounds applied, incomplete, satisfied and rejected

Examples:
  dampen trace ./scenarios/relaxed.yaml
  dampen trace ./scenarios/modes.yaml --trigger cpu
  dampen trace ./scenarios/relaxed.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Trigger, "trigger", "", "filter to one trigger id")

	return cmd
}

func runTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	trace := buildTraceResult(scenario.Name, result, opts.Trigger)

	if opts.Format == "json" {
		if err := formatter.Success(trace); err != nil {
			return err
		}
	} else {
		outputTraceText(formatter.Writer, trace)
	}

	if !trace.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

// buildTraceResult filters the timeline to trigger (all triggers if empty)
// and computes its stats.
func buildTraceResult(name string, result *harness.Result, trigger string) TraceResult {
	trace := TraceResult{
		Scenario: name,
		Pass:     result.Pass,
		Timeline: []harness.TraceEvent{},
		Errors:   result.Errors,
	}

	for _, ev := range result.Trace {
		if trigger != "" && ev.Key.TriggerID != trigger {
			continue
		}
		trace.Timeline = append(trace.Timeline, ev)
		trace.Stats.Steps++

		if ev.Op != harness.OpRound {
			continue
		}
		switch {
		case ev.Error != "":
			trace.Stats.Rejected++
		case !ev.Applied:
			trace.Stats.Incomplete++
		default:
			trace.Stats.Rounds++
		}
		if ev.Satisfied {
			trace.Stats.Satisfied++
		}
	}
	return trace
}

func outputTraceText(w io.Writer, trace TraceResult) {
	fmt.Fprintf(w, "Scenario: %s\n\n", trace.Scenario)

	for _, ev := range trace.Timeline {
		fmt.Fprintf(w, "[%d] t=%d %-10s %s", ev.Step, ev.At, ev.Op, ev.Key)
		switch {
		case ev.Op != harness.OpRound:
		case ev.Error != "":
			fmt.Fprintf(w, " error=%s", ev.Error)
		case !ev.Applied:
			fmt.Fprint(w, " incomplete")
		default:
			fmt.Fprintf(w, " true=%d evals=%d start=%d", ev.NumTrueEvals, ev.NumEvals, ev.TrueEvalsStartTime)
			if ev.Satisfied {
				fmt.Fprintf(w, " SATISFIED evidence=%d", ev.Evidence)
			}
			if ev.Timeout != nil {
				state := "due"
				if ev.Timeout.Canceled {
					state = "canceled"
				}
				fmt.Fprintf(w, " timeout=%d(%s)", ev.Timeout.Time, state)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d step(s), %d round(s), %d incomplete, %d satisfied, %d rejected\n",
		trace.Stats.Steps, trace.Stats.Rounds, trace.Stats.Incomplete, trace.Stats.Satisfied, trace.Stats.Rejected)

	if len(trace.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "✗ Expectations failed")
		for _, e := range trace.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}
