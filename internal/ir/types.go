package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Mode is the trigger mode a dampening applies to.
type Mode string

const (
	// ModeFiring is active while the trigger waits for its firing conditions.
	ModeFiring Mode = "FIRING"
	// ModeAutoResolve is active after firing, while the trigger waits to resolve.
	ModeAutoResolve Mode = "AUTORESOLVE"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeFiring || m == ModeAutoResolve
}

// ParseMode converts a case-insensitive mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", InvalidArgument("unknown trigger mode %q", s)
	}
	return m, nil
}

// Match is how the condition evaluations of one round combine.
type Match string

const (
	// MatchAll requires every condition of the set to match.
	MatchAll Match = "ALL"
	// MatchAny requires at least one condition of the set to match.
	MatchAny Match = "ANY"
)

// ParseMatch converts a case-insensitive match name.
func ParseMatch(s string) (Match, error) {
	m := Match(strings.ToUpper(strings.TrimSpace(s)))
	if m != MatchAll && m != MatchAny {
		return "", InvalidArgument("unknown match %q", s)
	}
	return m, nil
}

// DampeningType selects the temporal rule applied to true evaluations.
type DampeningType string

const (
	// Strict fires after N consecutive true evaluations.
	Strict DampeningType = "STRICT"
	// RelaxedCount fires after N true evaluations out of M total.
	RelaxedCount DampeningType = "RELAXED_COUNT"
	// RelaxedTime fires after N true evaluations within T milliseconds.
	RelaxedTime DampeningType = "RELAXED_TIME"
	// StrictTime fires after only true evaluations for at least T milliseconds.
	StrictTime DampeningType = "STRICT_TIME"
	// StrictTimeout fires after only true evaluations for T milliseconds.
	// The evaluation logic is the same as StrictTime.
	StrictTimeout DampeningType = "STRICT_TIMEOUT"
)

// Valid reports whether t is one of the five dampening types.
func (t DampeningType) Valid() bool {
	switch t {
	case Strict, RelaxedCount, RelaxedTime, StrictTime, StrictTimeout:
		return true
	}
	return false
}

// ParseDampeningType converts a case-insensitive type name.
func ParseDampeningType(s string) (DampeningType, error) {
	t := DampeningType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", InvalidArgument("unknown dampening type %q", s)
	}
	return t, nil
}

// Key identifies one dampening: a trigger within a tenant, in one mode.
type Key struct {
	TenantID  string `json:"tenant_id"`
	TriggerID string `json:"trigger_id"`
	Mode      Mode   `json:"trigger_mode"`
}

// String renders the composite dampening id: tenant-trigger-MODE.
func (k Key) String() string {
	var sb strings.Builder
	sb.WriteString(k.TenantID)
	sb.WriteString("-")
	sb.WriteString(k.TriggerID)
	sb.WriteString("-")
	sb.WriteString(string(k.Mode))
	return sb.String()
}

// ConditionEval is one evaluation of one condition, produced by the external
// condition engine.
type ConditionEval struct {
	// ConditionSetIndex is the position of the condition within the
	// trigger's condition set. Stable across rounds.
	ConditionSetIndex int `json:"condition_set_index" yaml:"index"`

	// ConditionSetSize is the cardinality of the condition set.
	ConditionSetSize int `json:"condition_set_size" yaml:"size"`

	// Match is the evaluation outcome.
	Match bool `json:"match" yaml:"match"`

	// EvalTime is when the condition was evaluated, in epoch millis.
	EvalTime int64 `json:"eval_time,omitempty" yaml:"eval_time,omitempty"`

	// Display is an optional human-readable rendering used in audit trails.
	Display string `json:"display,omitempty" yaml:"display,omitempty"`
}

// DisplayString returns the audit rendering of the evaluation.
func (c ConditionEval) DisplayString() string {
	if c.Display != "" {
		return c.Display
	}
	return fmt.Sprintf("%d/%d match=%t", c.ConditionSetIndex+1, c.ConditionSetSize, c.Match)
}

// EvalSet is the evidence of one true round: the evaluation of every
// condition that contributed, ordered by condition set index.
type EvalSet []ConditionEval

// NewEvalSet copies evals into an EvalSet ordered by condition set index.
func NewEvalSet(evals []ConditionEval) EvalSet {
	set := make(EvalSet, len(evals))
	copy(set, evals)
	sort.Slice(set, func(i, j int) bool {
		return set[i].ConditionSetIndex < set[j].ConditionSetIndex
	})
	return set
}

// Trigger is the view of a trigger needed to drive dampening: its identity,
// the data source being applied, its match per mode and whether it is enabled.
type Trigger struct {
	TenantID         string `json:"tenant_id"`
	ID               string `json:"id"`
	Source           string `json:"source,omitempty"`
	FiringMatch      Match  `json:"firing_match"`
	AutoResolveMatch Match  `json:"auto_resolve_match"`
	Mode             Mode   `json:"mode"`
	Enabled          bool   `json:"enabled"`
}

// NewTrigger creates an enabled trigger in FIRING mode matching ALL in both modes.
func NewTrigger(tenantID, id string) Trigger {
	return Trigger{
		TenantID:         tenantID,
		ID:               id,
		FiringMatch:      MatchAll,
		AutoResolveMatch: MatchAll,
		Mode:             ModeFiring,
		Enabled:          true,
	}
}

// Match returns the match for the trigger's current mode.
func (t Trigger) Match() Match {
	if t.Mode == ModeAutoResolve {
		return t.AutoResolveMatch
	}
	return t.FiringMatch
}

// DampeningKey returns the dampening key for the trigger's current mode.
func (t Trigger) DampeningKey() Key {
	return t.KeyFor(t.Mode)
}

// KeyFor returns the dampening key for the given mode.
func (t Trigger) KeyFor(mode Mode) Key {
	return Key{TenantID: t.TenantID, TriggerID: t.ID, Mode: mode}
}

// Timeout asks an external timer to force a re-check of a dampening at Time.
// It is advisory: the engine never schedules anything itself.
type Timeout struct {
	Key       string `json:"key"`
	Canceled  bool   `json:"canceled"`
	Time      int64  `json:"time"`
	EventTime int64  `json:"event_time"`
}

// NewTimeout creates a timeout due fromNow milliseconds after eventTime.
func NewTimeout(key Key, eventTime, fromNow int64) *Timeout {
	return &Timeout{
		Key:       key.String(),
		EventTime: eventTime,
		Time:      eventTime + fromNow,
	}
}
