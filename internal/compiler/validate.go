package compiler

import (
	"fmt"

	"github.com/roach88/dampen/internal/ir"
)

// Validation error codes (E120-E129)
const (
	ErrDuplicateDampening = "E120" // two dampenings for one key
	ErrDuplicateTrigger   = "E121" // two triggers with one tenant and id
	ErrUnknownTrigger     = "E122" // dampening for a trigger that is not defined
)

// ValidationError represents a cross-definition validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks compiled definitions against each other.
// Returns all errors found (does not fail-fast).
//
// Dampenings for triggers that are not defined are only reported when at
// least one trigger is defined: a policy-only directory is valid.
func Validate(dampenings []ir.Dampening, triggers []ir.Trigger) []ValidationError {
	var errs []ValidationError

	seenTriggers := make(map[string]bool, len(triggers))
	for _, t := range triggers {
		id := t.TenantID + "-" + t.ID
		if seenTriggers[id] {
			errs = append(errs, ValidationError{
				Field:   "trigger",
				Message: fmt.Sprintf("trigger %s defined more than once", id),
				Code:    ErrDuplicateTrigger,
			})
		}
		seenTriggers[id] = true
	}

	seenKeys := make(map[ir.Key]bool, len(dampenings))
	for _, d := range dampenings {
		key := d.Key()
		if seenKeys[key] {
			errs = append(errs, ValidationError{
				Field:   "dampening",
				Message: fmt.Sprintf("dampening %s defined more than once", key),
				Code:    ErrDuplicateDampening,
			})
		}
		seenKeys[key] = true

		if len(triggers) > 0 && !seenTriggers[d.TenantID()+"-"+d.TriggerID()] {
			errs = append(errs, ValidationError{
				Field:   "dampening",
				Message: fmt.Sprintf("dampening %s refers to undefined trigger %s", key, d.TriggerID()),
				Code:    ErrUnknownTrigger,
			})
		}
	}
	return errs
}
