package compiler

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"
)

// lookupString returns the string at field, or def when the field is absent.
func lookupString(v cue.Value, field, def string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

// requireString returns the non-empty string at field.
func requireString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: fv.Pos()}
	}
	if s == "" {
		return "", &CompileError{Field: field, Message: field + " must be non-empty", Pos: fv.Pos()}
	}
	return s, nil
}

// lookupInt returns the integer at field, or 0 when the field is absent.
func lookupInt(v cue.Value, field string) (int, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: "must be an integer", Pos: fv.Pos()}
	}
	return int(n), nil
}

// lookupBool returns the bool at field, or def when the field is absent.
func lookupBool(v cue.Value, field string, def bool) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, &CompileError{Field: field, Message: "must be a bool", Pos: fv.Pos()}
	}
	return b, nil
}

// lookupMillis returns the duration at field in milliseconds. The value is
// either integer milliseconds or a duration string such as "1m30s".
func lookupMillis(v cue.Value, field string) (int64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, nil
	}

	switch fv.IncompleteKind() {
	case cue.IntKind:
		n, err := fv.Int64()
		if err != nil {
			return 0, formatCUEError(err)
		}
		return n, nil

	case cue.StringKind:
		s, err := fv.String()
		if err != nil {
			return 0, formatCUEError(err)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, &CompileError{Field: field, Message: fmt.Sprintf("invalid duration %q", s), Pos: fv.Pos()}
		}
		if d%time.Millisecond != 0 {
			return 0, &CompileError{Field: field, Message: fmt.Sprintf("duration %q is finer than milliseconds", s), Pos: fv.Pos()}
		}
		return d.Milliseconds(), nil

	default:
		return 0, &CompileError{Field: field, Message: "must be integer milliseconds or a duration string", Pos: fv.Pos()}
	}
}

// label returns the last path selector of v, the definition's name.
func label(v cue.Value) string {
	sel := v.Path().Selectors()
	if len(sel) == 0 {
		return ""
	}
	return sel[len(sel)-1].String()
}
