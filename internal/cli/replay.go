package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dampen/internal/engine"
	"github.com/roach88/dampen/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	List     bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a journaled run and verify determinism",
		Long: `Replay a run recorded by the run command.

Every activation, deactivation, reset and round of the run is applied
again, in journal order, on a fresh set of dampenings at the recorded
times. Each replayed verdict must match the recorded one: counters,
satisfied flag and evidence.

Exit codes:
  0 - Replay reproduced every verdict
  1 - One or more verdicts diverged
  2 - Command error (database not found, unknown run, etc.)

Examples:
  dampen replay --db ./dampen.db
  dampen replay --db ./dampen.db --run 0190a1b2-...
  dampen replay --db ./dampen.db --list`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to replay (default: latest run)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list recorded runs instead of replaying")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	j, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer j.Close()

	if opts.List {
		runs, err := j.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if opts.Format == "json" {
			return formatter.Success(runs)
		}
		outputRunsText(formatter.Writer, runs)
		return nil
	}

	runID := opts.RunID
	if runID == "" {
		if runID, err = j.LatestRun(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to find latest run", err)
		}
	}
	formatter.VerboseLog("Replaying run %s", runID)

	logger := newLogger(formatter.GetErrWriter(), opts.Verbose)
	result, err := engine.Replay(ctx, j, runID, engine.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	if result.Events == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s has no recorded events", runID))
	}

	if opts.Format == "json" {
		if !result.Deterministic() {
			if err := formatter.Failure(ErrCodeNonDeterministic, "determinism verification failed", result); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "determinism verification failed")
		}
		return formatter.Success(result)
	}

	return outputReplayText(formatter.Writer, result, opts.Verbose)
}

func outputRunsText(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %d event(s)  %s\n", r.ID, r.Events, r.Label)
	}
}

// outputReplayText outputs the replay result as text.
func outputReplayText(w io.Writer, result *engine.ReplayResult, verbose bool) error {
	fmt.Fprintf(w, "Replay Summary: run %s\n", result.RunID)
	fmt.Fprintf(w, "  Events: %d, rounds: %d, satisfied: %d\n", result.Events, result.Rounds, result.Satisfied)
	fmt.Fprintln(w)

	for _, m := range result.Mismatch {
		fmt.Fprintf(w, "✗ event %d (%s): recorded satisfied=%t true=%d evals=%d, replayed satisfied=%t true=%d evals=%d\n",
			m.Seq, m.Key,
			m.Recorded.Satisfied, m.Recorded.NumTrueEvals, m.Recorded.NumEvals,
			m.Replayed.Satisfied, m.Replayed.NumTrueEvals, m.Replayed.NumEvals)
		if verbose {
			fmt.Fprintf(w, "  evidence: recorded %s, replayed %s\n", m.Recorded.EvidenceHash, m.Replayed.EvidenceHash)
			if m.Recorded.ErrorCode != "" || m.Replayed.ErrorCode != "" {
				fmt.Fprintf(w, "  error: recorded %q, replayed %q\n", m.Recorded.ErrorCode, m.Replayed.ErrorCode)
			}
		}
	}

	if result.Deterministic() {
		fmt.Fprintln(w, "✓ Run verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
