package cli

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/dampen/internal/engine"
	"github.com/roach88/dampen/internal/ir"
)

// policySet tracks the dampenings a run has activated so a reloaded
// policies directory can be applied as a diff.
//
// Not safe for concurrent use: apply and reload are called by one goroutine
// at a time.
type policySet struct {
	rec    *engine.Recorder
	logger *slog.Logger
	source string // overrides the trigger's source when set

	active map[ir.Key]activePolicy
}

type activePolicy struct {
	source string
	policy ir.Dampening
}

func newPolicySet(rec *engine.Recorder, logger *slog.Logger, source string) *policySet {
	return &policySet{
		rec:    rec,
		logger: logger,
		source: source,
		active: make(map[ir.Key]activePolicy),
	}
}

// Len returns the number of active dampenings.
func (p *policySet) Len() int {
	return len(p.active)
}

// apply activates every dampening whose trigger is enabled and deactivates
// active keys that are no longer wanted. A dampening whose settings and
// source are unchanged keeps its state. Dampenings without a trigger
// definition are treated as enabled.
func (p *policySet) apply(dampenings []ir.Dampening, triggers []ir.Trigger) (activated, deactivated int, err error) {
	wanted := p.wanted(dampenings, triggers)

	for _, d := range dampenings {
		want, ok := wanted[d.Key()]
		if !ok {
			continue
		}
		if cur, ok := p.active[d.Key()]; ok && cur.source == want.source && cur.policy.IsSame(want.policy) {
			continue
		}
		if err := p.rec.Activate(want.source, want.policy); err != nil {
			return activated, deactivated, fmt.Errorf("activate %s: %w", d.DampeningID(), err)
		}
		p.active[d.Key()] = want
		activated++
	}

	for _, key := range p.sortedKeys() {
		if _, ok := wanted[key]; ok {
			continue
		}
		if err := p.rec.Deactivate(key); err != nil {
			return activated, deactivated, fmt.Errorf("deactivate %s: %w", key, err)
		}
		delete(p.active, key)
		deactivated++
	}
	return activated, deactivated, nil
}

// reload recompiles dir and applies it. A directory that no longer compiles
// leaves the active dampenings untouched.
func (p *policySet) reload(dir string) {
	dampenings, triggers, err := compilePolicies(dir)
	if err != nil {
		p.logger.Error("policy reload failed, keeping active policies", "dir", dir, "error", err)
		return
	}
	activated, deactivated, err := p.apply(dampenings, triggers)
	if err != nil {
		p.logger.Error("policy reload incomplete", "dir", dir, "error", err)
		return
	}
	p.logger.Info("policies reloaded",
		"dir", dir,
		"activated", activated,
		"deactivated", deactivated,
		"active", len(p.active),
	)
}

// wanted returns the dampenings to keep active with the source each applies
// to.
func (p *policySet) wanted(dampenings []ir.Dampening, triggers []ir.Trigger) map[ir.Key]activePolicy {
	byID := make(map[string]ir.Trigger, len(triggers))
	for _, t := range triggers {
		byID[t.TenantID+"-"+t.ID] = t
	}

	wanted := make(map[ir.Key]activePolicy, len(dampenings))
	for _, d := range dampenings {
		src := p.source
		if t, ok := byID[d.TenantID()+"-"+d.TriggerID()]; ok {
			if !t.Enabled {
				p.logger.Info("trigger disabled, dampening not activated", "key", d.DampeningID())
				continue
			}
			if src == "" {
				src = t.Source
			}
		}
		wanted[d.Key()] = activePolicy{source: src, policy: d}
	}
	return wanted
}

func (p *policySet) sortedKeys() []ir.Key {
	keys := make([]ir.Key, 0, len(p.active))
	for k := range p.active {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}
