package store

import "github.com/roach88/dampen/internal/ir"

// EventKind distinguishes journal events.
type EventKind string

const (
	EventActivate   EventKind = "activate"
	EventDeactivate EventKind = "deactivate"
	EventReset      EventKind = "reset"
	EventRound      EventKind = "round"
)

// Run is one recorded evaluation session.
type Run struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Events int    `json:"events"`
}

// Event is one journal entry. Policy is set for activate events and Round
// for round events.
type Event struct {
	RunID  string        `json:"run_id"`
	Seq    int64         `json:"seq"`
	Kind   EventKind     `json:"kind"`
	Key    ir.Key        `json:"key"`
	Source string        `json:"source,omitempty"`
	Policy *ir.Dampening `json:"policy,omitempty"`
	Round  *RoundRecord  `json:"round,omitempty"`
}

// RoundRecord is an evaluation round and the verdict it produced.
type RoundRecord struct {
	Match ir.Match           `json:"match"`
	Evals []ir.ConditionEval `json:"evals"`

	// Time is the "now" the round was applied at, in epoch millis.
	Time int64 `json:"time"`

	Applied      bool   `json:"applied"`
	Satisfied    bool   `json:"satisfied"`
	NumTrueEvals int    `json:"num_true_evals"`
	NumEvals     int    `json:"num_evals"`
	EvidenceHash string `json:"evidence_hash"`

	// ErrorCode is the ir.ErrorCode of a rejected round, empty on success.
	ErrorCode string `json:"error_code,omitempty"`
}
