package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/dampen/internal/ir"
)

// CompileTrigger parses a CUE trigger definition into an ir.Trigger.
// Unset fields take the ir.NewTrigger defaults: enabled, FIRING mode and ALL
// matching in both modes.
func CompileTrigger(v cue.Value) (ir.Trigger, error) {
	if err := v.Err(); err != nil {
		return ir.Trigger{}, formatCUEError(err)
	}

	tenant, err := requireString(v, "tenant")
	if err != nil {
		return ir.Trigger{}, err
	}
	id, err := lookupString(v, "id", label(v))
	if err != nil {
		return ir.Trigger{}, err
	}
	if id == "" {
		return ir.Trigger{}, &CompileError{Field: "id", Message: "id is required", Pos: v.Pos()}
	}

	t := ir.NewTrigger(tenant, id)

	if t.Source, err = lookupString(v, "source", ""); err != nil {
		return ir.Trigger{}, err
	}
	if t.Enabled, err = lookupBool(v, "enabled", true); err != nil {
		return ir.Trigger{}, err
	}

	modeStr, err := lookupString(v, "mode", string(ir.ModeFiring))
	if err != nil {
		return ir.Trigger{}, err
	}
	if t.Mode, err = ir.ParseMode(modeStr); err != nil {
		return ir.Trigger{}, fieldError(v, "mode", err)
	}

	if t.FiringMatch, err = compileMatch(v, "firing_match"); err != nil {
		return ir.Trigger{}, err
	}
	if t.AutoResolveMatch, err = compileMatch(v, "auto_resolve_match"); err != nil {
		return ir.Trigger{}, err
	}
	return t, nil
}

func compileMatch(v cue.Value, field string) (ir.Match, error) {
	s, err := lookupString(v, field, string(ir.MatchAll))
	if err != nil {
		return "", err
	}
	m, err := ir.ParseMatch(s)
	if err != nil {
		return "", fieldError(v, field, err)
	}
	return m, nil
}
