package compiler

import (
	"errors"

	"cuelang.org/go/cue"

	"github.com/roach88/dampen/internal/ir"
)

// CompileDampening parses a CUE dampening definition into a validated
// ir.Dampening. Settings are checked with the ir factory for the type, so a
// compiled dampening always satisfies the factory contract.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`dampening: cpu: { ... }`)
//	d, err := CompileDampening(v.LookupPath(cue.ParsePath("dampening.cpu")))
func CompileDampening(v cue.Value) (ir.Dampening, error) {
	if err := v.Err(); err != nil {
		return ir.Dampening{}, formatCUEError(err)
	}

	tenant, err := requireString(v, "tenant")
	if err != nil {
		return ir.Dampening{}, err
	}
	trigger, err := requireString(v, "trigger")
	if err != nil {
		return ir.Dampening{}, err
	}

	modeStr, err := lookupString(v, "mode", string(ir.ModeFiring))
	if err != nil {
		return ir.Dampening{}, err
	}
	mode, err := ir.ParseMode(modeStr)
	if err != nil {
		return ir.Dampening{}, fieldError(v, "mode", err)
	}

	typeStr, err := requireString(v, "type")
	if err != nil {
		return ir.Dampening{}, err
	}
	typ, err := ir.ParseDampeningType(typeStr)
	if err != nil {
		return ir.Dampening{}, fieldError(v, "type", err)
	}

	evalTrue, err := lookupInt(v, "eval_true")
	if err != nil {
		return ir.Dampening{}, err
	}
	evalTotal, err := lookupInt(v, "eval_total")
	if err != nil {
		return ir.Dampening{}, err
	}
	evalTime, err := lookupMillis(v, "eval_time")
	if err != nil {
		return ir.Dampening{}, err
	}

	var d ir.Dampening
	switch typ {
	case ir.Strict:
		d, err = ir.ForStrict(tenant, trigger, mode, evalTrue)
	case ir.RelaxedCount:
		d, err = ir.ForRelaxedCount(tenant, trigger, mode, evalTrue, evalTotal)
	case ir.RelaxedTime:
		d, err = ir.ForRelaxedTime(tenant, trigger, mode, evalTrue, evalTime)
	case ir.StrictTime:
		d, err = ir.ForStrictTime(tenant, trigger, mode, evalTime)
	case ir.StrictTimeout:
		d, err = ir.ForStrictTimeout(tenant, trigger, mode, evalTime)
	}
	if err != nil {
		return ir.Dampening{}, fieldError(v, settingField(typ, evalTrue), err)
	}
	return d, nil
}

// settingField names the setting a factory rejected. Factories check
// eval_true first, then the type's second setting.
func settingField(typ ir.DampeningType, evalTrue int) string {
	switch typ {
	case ir.Strict:
		return "eval_true"
	case ir.RelaxedCount:
		if evalTrue < 1 {
			return "eval_true"
		}
		return "eval_total"
	case ir.RelaxedTime:
		if evalTrue < 1 {
			return "eval_true"
		}
		return "eval_time"
	default:
		return "eval_time"
	}
}

// fieldError wraps an ir error as a CompileError positioned at field.
func fieldError(v cue.Value, field string, err error) error {
	pos := v.Pos()
	if fv := v.LookupPath(cue.ParsePath(field)); fv.Exists() {
		pos = fv.Pos()
	}
	msg := err.Error()
	var e *ir.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	return &CompileError{Field: field, Message: msg, Pos: pos}
}
