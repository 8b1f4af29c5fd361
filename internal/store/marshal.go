package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/dampen/internal/ir"
)

// marshalEvals converts round evals to canonical JSON TEXT for storage.
func marshalEvals(evals []ir.ConditionEval) (string, error) {
	data, err := ir.MarshalCanonical(ir.EvalSet(evals))
	if err != nil {
		return "", fmt.Errorf("marshal evals: %w", err)
	}
	return string(data), nil
}

// unmarshalEvals parses stored evals. Returns an empty slice, not nil, for
// an empty column.
func unmarshalEvals(data string) ([]ir.ConditionEval, error) {
	if data == "" {
		return []ir.ConditionEval{}, nil
	}
	var evals []ir.ConditionEval
	if err := json.Unmarshal([]byte(data), &evals); err != nil {
		return nil, fmt.Errorf("unmarshal evals: %w", err)
	}
	if evals == nil {
		evals = []ir.ConditionEval{}
	}
	return evals, nil
}

// marshalPolicy converts a dampening to JSON TEXT for storage.
func marshalPolicy(d ir.Dampening) (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal policy: %w", err)
	}
	return string(data), nil
}

func unmarshalPolicy(data string) (ir.Dampening, error) {
	var d ir.Dampening
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return ir.Dampening{}, fmt.Errorf("unmarshal policy: %w", err)
	}
	return d, nil
}
