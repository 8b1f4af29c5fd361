package engine

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/dampen/internal/ir"
)

// Verdict is the outcome of one evaluation round for one dampening.
type Verdict struct {
	Key    ir.Key `json:"key"`
	Source string `json:"source,omitempty"`

	// Time is the wall-clock "now" (epoch millis) the round was applied at.
	Time int64 `json:"time"`

	// Applied is false when an ALL round was incomplete and the state
	// machine was not advanced.
	Applied bool `json:"applied"`

	Satisfied          bool  `json:"satisfied"`
	NumTrueEvals       int   `json:"num_true_evals"`
	NumEvals           int   `json:"num_evals"`
	TrueEvalsStartTime int64 `json:"true_evals_start_time"`

	// Evidence holds one evaluation set per true round since the last reset.
	Evidence []ir.EvalSet `json:"evidence"`

	// Timeout is set for STRICT_TIMEOUT dampenings when the round anchored
	// or broke a streak.
	Timeout *ir.Timeout `json:"timeout,omitempty"`
}

// entry pairs a state machine with the lock that serializes access to it.
type entry struct {
	mu      sync.Mutex
	sd      *SourceDampening
	removed bool
}

// Lifecycle owns one SourceDampening per active (tenant, trigger, mode) key.
//
// Thread-safety model:
//   - All methods are safe from any goroutine.
//   - Rounds for one key are serialized by a per-key mutex; at most one
//     Apply is in flight per key.
//   - Different keys share no mutable state beyond the registry map.
//   - Activate and Deactivate wait for an in-flight round on the same key.
type Lifecycle struct {
	clock   WallClock
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	entries map[ir.Key]*entry
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithClock sets the wall clock used by Evaluate. Default: SystemClock.
func WithClock(c WallClock) LifecycleOption {
	return func(l *Lifecycle) {
		l.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) LifecycleOption {
	return func(l *Lifecycle) {
		l.logger = logger
	}
}

// WithMetrics records round outcomes and active dampenings to m.
func WithMetrics(m *Metrics) LifecycleOption {
	return func(l *Lifecycle) {
		l.metrics = m
	}
}

// NewLifecycle creates an empty Lifecycle.
func NewLifecycle(opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		clock:   SystemClock{},
		logger:  slog.Default(),
		entries: make(map[ir.Key]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Activate creates or replaces the state machine for the policy's key. The
// new state machine starts fresh: a policy change never carries over old
// counters.
func (l *Lifecycle) Activate(d ir.Dampening) error {
	return l.ActivateSource("", d)
}

// ActivateSource is Activate for a trigger applied to the given data source.
func (l *Lifecycle) ActivateSource(source string, d ir.Dampening) error {
	if err := d.Validate(); err != nil {
		return err
	}
	key := d.Key()

	l.mu.Lock()
	if old, ok := l.entries[key]; ok {
		old.retire()
	}
	l.entries[key] = &entry{sd: NewSourceDampening(source, d)}
	n := len(l.entries)
	l.mu.Unlock()

	l.metrics.setActive(n)
	l.logger.Info("dampening activated",
		"key", key.String(),
		"type", d.Type(),
		"source", source,
	)
	return nil
}

// Deactivate discards the state machine for key. Deactivating an inactive
// key is a no-op and reports false.
func (l *Lifecycle) Deactivate(key ir.Key) bool {
	l.mu.Lock()
	old, ok := l.entries[key]
	if ok {
		old.retire()
		delete(l.entries, key)
	}
	n := len(l.entries)
	l.mu.Unlock()

	if !ok {
		return false
	}
	l.metrics.setActive(n)
	l.logger.Info("dampening deactivated", "key", key.String())
	return true
}

// retire marks the entry removed once any in-flight round has finished.
func (e *entry) retire() {
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
}

// Evaluate applies one round for key at the lifecycle clock's current time.
func (l *Lifecycle) Evaluate(key ir.Key, match ir.Match, evals []ir.ConditionEval) (Verdict, error) {
	return l.EvaluateAt(key, match, evals, l.clock.NowMillis())
}

// EvaluateAt applies one round for key at now (epoch millis).
//
// Returns a NotFound error when no dampening is active for key, and an
// InvalidArgument error for an empty round or an unknown match. On error the
// state of key is unchanged.
func (l *Lifecycle) EvaluateAt(key ir.Key, match ir.Match, evals []ir.ConditionEval, now int64) (Verdict, error) {
	var v Verdict
	err := l.with(key, func(sd *SourceDampening) error {
		before := sd.TrueEvalsStartTime()
		wasSatisfied := sd.Satisfied()

		applied, err := sd.Perform(match, evals, now)
		if err != nil {
			return err
		}

		v = verdictOf(sd, now, applied)
		if applied {
			v.Timeout = timeoutHint(sd, before)
		}

		l.logger.Debug("round evaluated",
			"key", key.String(),
			"applied", applied,
			"state", sd.Log(),
		)
		if sd.Satisfied() && !wasSatisfied {
			l.metrics.satisfy(string(key.Mode), string(sd.Dampening().Type()))
			l.logger.Info("dampening satisfied",
				"key", key.String(),
				"num_true_evals", sd.NumTrueEvals(),
				"num_evals", sd.NumEvals(),
			)
		}
		return nil
	})

	switch {
	case ir.IsNotFound(err):
		l.metrics.round(string(key.Mode), OutcomeNotFound)
	case err != nil:
		l.metrics.round(string(key.Mode), OutcomeInvalid)
	case !v.Applied:
		l.metrics.round(string(key.Mode), OutcomeIncomplete)
	default:
		l.metrics.round(string(key.Mode), OutcomeApplied)
	}
	return v, err
}

// EvaluateTrigger applies one round for the trigger's current mode using the
// trigger's match for that mode. A disabled trigger has no active dampening.
func (l *Lifecycle) EvaluateTrigger(t ir.Trigger, evals []ir.ConditionEval) (Verdict, error) {
	key := t.DampeningKey()
	if !t.Enabled {
		return Verdict{}, ir.NotFound(key)
	}
	return l.Evaluate(key, t.Match(), evals)
}

// SwitchMode moves a trigger to the mode of next: the dampening for the
// trigger's current mode is discarded and next is activated for the
// trigger's source. Returns the trigger in its new mode.
func (l *Lifecycle) SwitchMode(t ir.Trigger, next ir.Dampening) (ir.Trigger, error) {
	if next.TenantID() != t.TenantID || next.TriggerID() != t.ID {
		return t, ir.InvalidArgument("dampening %s does not belong to trigger %s-%s",
			next.DampeningID(), t.TenantID, t.ID)
	}
	if next.TriggerMode() == t.Mode {
		return t, ir.InvalidArgument("trigger %s-%s is already in mode %s",
			t.TenantID, t.ID, t.Mode)
	}
	if err := next.Validate(); err != nil {
		return t, err
	}

	l.Deactivate(t.DampeningKey())
	if err := l.ActivateSource(t.Source, next); err != nil {
		return t, err
	}
	t.Mode = next.TriggerMode()
	return t, nil
}

// Reset returns the state machine for key to its initial state, keeping the
// last-known evaluation per condition. Used after a satisfied dampening has
// been acted on.
func (l *Lifecycle) Reset(key ir.Key) error {
	return l.with(key, func(sd *SourceDampening) error {
		sd.Reset()
		l.logger.Debug("dampening reset", "key", key.String())
		return nil
	})
}

// Snapshot returns a copy of the runtime state for key.
func (l *Lifecycle) Snapshot(key ir.Key) (RuntimeState, error) {
	var st RuntimeState
	err := l.with(key, func(sd *SourceDampening) error {
		st = sd.State()
		return nil
	})
	return st, err
}

// Log returns the diagnostic log line for key.
func (l *Lifecycle) Log(key ir.Key) (string, error) {
	var line string
	err := l.with(key, func(sd *SourceDampening) error {
		line = sd.Log()
		return nil
	})
	return line, err
}

// Policy returns the dampening active for key.
func (l *Lifecycle) Policy(key ir.Key) (ir.Dampening, error) {
	var d ir.Dampening
	err := l.with(key, func(sd *SourceDampening) error {
		d = sd.Dampening()
		return nil
	})
	return d, err
}

// Keys returns the active keys ordered by composite id.
func (l *Lifecycle) Keys() []ir.Key {
	l.mu.RLock()
	keys := make([]ir.Key, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	l.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Len returns the number of active dampenings.
func (l *Lifecycle) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// with runs fn holding the lock of the live entry for key. An entry retired
// while waiting for its lock is looked up again so a concurrent Activate
// never surfaces as NotFound.
func (l *Lifecycle) with(key ir.Key, fn func(sd *SourceDampening) error) error {
	for {
		l.mu.RLock()
		e, ok := l.entries[key]
		l.mu.RUnlock()
		if !ok {
			return ir.NotFound(key)
		}

		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		err := fn(e.sd)
		e.mu.Unlock()
		return err
	}
}

func verdictOf(sd *SourceDampening, now int64, applied bool) Verdict {
	return Verdict{
		Key:                sd.Key(),
		Source:             sd.Source(),
		Time:               now,
		Applied:            applied,
		Satisfied:          sd.Satisfied(),
		NumTrueEvals:       sd.NumTrueEvals(),
		NumEvals:           sd.NumEvals(),
		TrueEvalsStartTime: sd.TrueEvalsStartTime(),
		Evidence:           sd.SatisfyingEvals(),
	}
}

// timeoutHint reports the re-check a STRICT_TIMEOUT dampening needs after a
// round moved its anchor from before to its current value.
func timeoutHint(sd *SourceDampening, before int64) *ir.Timeout {
	d := sd.Dampening()
	if d.Type() != ir.StrictTimeout {
		return nil
	}
	after := sd.TrueEvalsStartTime()
	switch {
	case before == 0 && after != 0:
		return ir.NewTimeout(d.Key(), after, d.EvalTimeSetting())
	case before != 0 && after == 0:
		t := ir.NewTimeout(d.Key(), before, d.EvalTimeSetting())
		t.Canceled = true
		return t
	default:
		return nil
	}
}
