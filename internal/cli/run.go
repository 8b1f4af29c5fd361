package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/dampen/internal/compiler"
	"github.com/roach88/dampen/internal/engine"
	"github.com/roach88/dampen/internal/ir"
	"github.com/roach88/dampen/internal/store"
)

// maxRoundLine bounds one JSON round on stdin.
const maxRoundLine = 1 << 20

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Policies string
	Database string
	Source   string
	Workers  int
	Reset    bool
	Watch    bool

	// MetricsOut is a file the final metrics are written to in the
	// Prometheus text format. Empty: not written.
	MetricsOut string

	// IDs allows overriding the journal run id generator (for testing).
	// If nil, defaults to UUIDv7.
	IDs store.IDGenerator
}

// RunSummary reports what a run applied.
type RunSummary struct {
	RunID      string             `json:"run_id"`
	Dampenings int                `json:"dampenings"`
	Rounds     int                `json:"rounds"`
	Applied    int                `json:"applied"`
	Incomplete int                `json:"incomplete"`
	Satisfied  int                `json:"satisfied"`
	Rejected   int                `json:"rejected"`
	Skipped    int                `json:"skipped"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate rounds from stdin",
		Long: `Activate the dampening policies of a directory and evaluate rounds read
from stdin, one JSON object per line:

  {"key":{"tenant_id":"acme","trigger_id":"cpu","trigger_mode":"FIRING"},
   "match":"ALL","evals":[{"condition_set_index":0,"condition_set_size":1,"match":true}],
   "time":1700000000000}

time is optional and defaults to the wall clock. Every activation, round
and verdict is journaled to the SQLite database so the run can be checked
with replay. Satisfied verdicts are printed as they happen.

With --watch, editing the policies directory re-applies it to the running
engine: changed dampenings restart from a fresh state, removed or
disabled ones are deactivated and unchanged ones keep their state.

Example:
  dampen run --policies ./policies --db ./dampen.db < rounds.jsonl
  dampen run --policies ./policies --db ./dampen.db --workers 8 --source host-1
  dampen run --policies ./policies --db ./dampen.db --watch --metrics-out metrics.prom`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Policies, "policies", "", "directory of CUE policy definitions (required)")
	_ = cmd.MarkFlagRequired("policies")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Source, "source", "", "data source for every trigger (default: the trigger's source)")
	cmd.Flags().IntVar(&opts.Workers, "workers", engine.DefaultWorkers, "number of evaluation workers")
	cmd.Flags().BoolVar(&opts.Reset, "reset", true, "reset a dampening once it is satisfied")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload policies when a CUE file of the policies directory changes")
	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "write final metrics to this file in Prometheus text format")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	dampenings, triggers, err := compilePolicies(opts.Policies)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile policies", err)
	}
	logger.Info("policies compiled", "dampenings", len(dampenings), "triggers", len(triggers))

	var journalOpts []store.Option
	if opts.IDs != nil {
		journalOpts = append(journalOpts, store.WithIDGenerator(opts.IDs))
	}
	j, err := store.Open(opts.Database, journalOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := j.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)
	l := engine.NewLifecycle(engine.WithLogger(logger), engine.WithMetrics(metrics))

	rec, err := engine.NewRecorder(ctx, l, j, opts.Policies)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start journal run", err)
	}

	policies := newPolicySet(rec, logger, opts.Source)
	if _, _, err := policies.apply(dampenings, triggers); err != nil {
		return WrapExitError(ExitCommandError, "failed to activate policies", err)
	}
	summary := RunSummary{RunID: rec.RunID(), Dampenings: policies.Len()}

	sink := &runSink{recorder: rec, logger: logger, reset: opts.Reset, summary: &summary}
	if opts.Format != "json" {
		sink.out = formatter.Writer
	}
	pool := engine.NewPool(l, opts.Workers, sink,
		engine.WithPoolLogger(logger),
		engine.WithPoolMetrics(metrics),
	)

	g, gctx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	defer stopWatch()

	g.Go(func() error {
		return pool.Run(gctx)
	})
	g.Go(func() error {
		defer pool.Close()
		defer stopWatch()
		return readRounds(gctx, cmd.InOrStdin(), pool, sink)
	})
	if opts.Watch {
		g.Go(func() error {
			return watchPolicies(watchCtx, opts.Policies, logger, func() {
				policies.reload(opts.Policies)
			})
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "run failed", err)
	}
	if err := rec.Err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to journal rounds", err)
	}

	if summary.Metrics, err = gatherTotals(reg); err != nil {
		return WrapExitError(ExitFailure, "failed to gather metrics", err)
	}
	if opts.MetricsOut != "" {
		if err := writeMetrics(reg, opts.MetricsOut); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}
	logger.Info("run finished", "run_id", summary.RunID, "rounds", summary.Rounds, "satisfied", summary.Satisfied)

	if opts.Format == "json" {
		return formatter.Success(summary)
	}
	fmt.Fprintf(formatter.Writer, "Run %s: %d round(s), %d applied, %d incomplete, %d satisfied, %d rejected, %d skipped\n",
		summary.RunID, summary.Rounds, summary.Applied, summary.Incomplete, summary.Satisfied, summary.Rejected, summary.Skipped)
	return nil
}

// compilePolicies loads and validates every definition of a directory.
func compilePolicies(dir string) ([]ir.Dampening, []ir.Trigger, error) {
	loadResult, loadErrors := LoadPolicies(dir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, nil, loadErrors[0]
	}
	if errs := compiler.Validate(loadResult.Dampenings, loadResult.Triggers); len(errs) > 0 {
		return nil, nil, errs[0]
	}
	return loadResult.Dampenings, loadResult.Triggers, nil
}

// readRounds submits every JSON round of r to pool. Malformed lines are
// logged and skipped.
func readRounds(ctx context.Context, r io.Reader, pool *engine.Pool, sink *runSink) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRoundLine)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var round engine.Round
		if err := json.Unmarshal(data, &round); err != nil {
			sink.logger.Warn("skipping malformed round", "line", line, "error", err)
			sink.count(func(s *RunSummary) { s.Skipped++ })
			continue
		}

		sink.count(func(s *RunSummary) { s.Rounds++ })
		if !pool.Submit(round) {
			return fmt.Errorf("line %d: pool closed", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading rounds: %w", err)
	}
	return nil
}

// runSink journals every verdict, tallies it and prints satisfied verdicts.
type runSink struct {
	recorder *engine.Recorder
	logger   *slog.Logger
	reset    bool
	out      io.Writer // nil: do not print verdicts

	mu      sync.Mutex
	summary *RunSummary
}

func (s *runSink) Deliver(r engine.Round, v engine.Verdict, err error) {
	s.recorder.Deliver(r, v, err)

	s.mu.Lock()
	switch {
	case err != nil:
		s.summary.Rejected++
	case !v.Applied:
		s.summary.Incomplete++
	default:
		s.summary.Applied++
	}
	satisfied := err == nil && v.Satisfied
	if satisfied {
		s.summary.Satisfied++
		if s.out != nil {
			fmt.Fprintf(s.out, "SATISFIED %s t=%d source=%s true=%d evals=%d evidence=%d\n",
				v.Key, v.Time, v.Source, v.NumTrueEvals, v.NumEvals, len(v.Evidence))
		}
	}
	s.mu.Unlock()

	// The next round for this key is applied by the same worker after
	// Deliver returns, so the reset is ordered before it.
	if satisfied && s.reset {
		if err := s.recorder.Reset(v.Key); err != nil {
			s.logger.Warn("reset failed", "key", v.Key.String(), "error", err)
		}
	}
}

// count updates the summary under the sink lock.
func (s *runSink) count(fn func(*RunSummary)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.summary)
}

// gatherTotals sums every counter and gauge family of g by name.
func gatherTotals(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	totals := make(map[string]float64, len(families))
	for _, mf := range families {
		var sum float64
		for _, m := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				sum += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				sum += m.GetGauge().GetValue()
			}
		}
		totals[mf.GetName()] = sum
	}
	return totals, nil
}

// writeMetrics writes every metric family of g to path in the Prometheus
// text exposition format.
func writeMetrics(g prometheus.Gatherer, path string) (err error) {
	families, err := g.Gather()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
