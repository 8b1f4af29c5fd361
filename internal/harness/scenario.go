package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dampen/internal/ir"
)

// Scenario defines a conformance test scenario.
// Scenarios drive a set of dampening policies through a sequence of rounds on
// a manual clock and assert on every verdict and on the final state.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Source is the data source every policy is activated for.
	Source string `yaml:"source,omitempty"`

	// Policies are activated, in order, before the first step.
	Policies []PolicySpec `yaml:"policies"`

	// Steps run in order against the activated policies.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state after all steps.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// PolicySpec is the YAML form of a dampening policy.
type PolicySpec struct {
	Tenant    string `yaml:"tenant"`
	Trigger   string `yaml:"trigger"`
	Mode      string `yaml:"mode,omitempty"`
	Type      string `yaml:"type"`
	EvalTrue  int    `yaml:"eval_true,omitempty"`
	EvalTotal int    `yaml:"eval_total,omitempty"`
	EvalTime  int64  `yaml:"eval_time,omitempty"`
}

// Dampening converts p to a validated policy.
func (p PolicySpec) Dampening() (ir.Dampening, error) {
	mode := ir.ModeFiring
	if p.Mode != "" {
		m, err := ir.ParseMode(p.Mode)
		if err != nil {
			return ir.Dampening{}, err
		}
		mode = m
	}
	typ, err := ir.ParseDampeningType(p.Type)
	if err != nil {
		return ir.Dampening{}, err
	}
	d := ir.NewDampening(p.Tenant, p.Trigger, mode, typ, p.EvalTrue, p.EvalTotal, p.EvalTime)
	if err := d.Validate(); err != nil {
		return ir.Dampening{}, err
	}
	return d, nil
}

// Step is one operation against a dampening.
type Step struct {
	// Op is the operation: round (default), activate, deactivate or reset.
	Op string `yaml:"op,omitempty"`

	// Trigger and Mode select the policy. Default: the first policy's
	// trigger in FIRING mode.
	Trigger string `yaml:"trigger,omitempty"`
	Mode    string `yaml:"mode,omitempty"`

	// At moves the clock before the step (epoch millis). Zero keeps the
	// current time.
	At int64 `yaml:"at,omitempty"`

	// Match and Evals are the round (round steps only). Match defaults to ALL.
	Match string             `yaml:"match,omitempty"`
	Evals []ir.ConditionEval `yaml:"evals,omitempty"`

	// Expect validates the verdict (round steps only).
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies expected verdict fields. Unset fields are not checked.
type Expect struct {
	Applied            *bool  `yaml:"applied,omitempty"`
	Satisfied          *bool  `yaml:"satisfied,omitempty"`
	NumTrueEvals       *int   `yaml:"num_true_evals,omitempty"`
	NumEvals           *int   `yaml:"num_evals,omitempty"`
	TrueEvalsStartTime *int64 `yaml:"true_evals_start_time,omitempty"`

	// Evidence is the number of evaluation sets carried by the verdict.
	Evidence *int `yaml:"evidence,omitempty"`

	// Timeout is the due time of the timeout hint; TimeoutCanceled its state.
	Timeout         *int64 `yaml:"timeout,omitempty"`
	TimeoutCanceled *bool  `yaml:"timeout_canceled,omitempty"`

	// Error is the expected error code (e.g. "NOT_FOUND"). When set, the
	// other fields are ignored.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "satisfied_count": Check exactly Count round verdicts were satisfied
	// - "final_state": Check the runtime state of a dampening after all steps
	// - "log_contains": Check the log line of a dampening contains Text
	// - "active_count": Check exactly Count dampenings remain active
	Type string `yaml:"type"`

	// Trigger and Mode select the dampening (final_state, log_contains).
	Trigger string `yaml:"trigger,omitempty"`
	Mode    string `yaml:"mode,omitempty"`

	// Count is the expected count (satisfied_count, active_count).
	Count int `yaml:"count,omitempty"`

	// Expect contains expected state fields (final_state).
	Expect *Expect `yaml:"expect,omitempty"`

	// Text is the expected substring (log_contains).
	Text string `yaml:"text,omitempty"`
}

// Step operation constants.
const (
	OpRound      = "round"
	OpActivate   = "activate"
	OpDeactivate = "deactivate"
	OpReset      = "reset"
)

// Assertion type constants.
const (
	AssertSatisfiedCount = "satisfied_count"
	AssertFinalState     = "final_state"
	AssertLogContains    = "log_contains"
	AssertActiveCount    = "active_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Policies) == 0 {
		return fmt.Errorf("policies list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, p := range s.Policies {
		if _, err := p.Dampening(); err != nil {
			return fmt.Errorf("policies[%d]: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	if step.Mode != "" {
		if _, err := ir.ParseMode(step.Mode); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	}

	switch step.Op {
	case "", OpRound:
		if len(step.Evals) == 0 {
			return fmt.Errorf("steps[%d]: evals are required for a round", index)
		}
		if step.Match != "" {
			if _, err := ir.ParseMatch(step.Match); err != nil {
				return fmt.Errorf("steps[%d]: %w", index, err)
			}
		}
	case OpActivate, OpDeactivate, OpReset:
		if len(step.Evals) > 0 || step.Expect != nil {
			return fmt.Errorf("steps[%d]: evals and expect are only allowed on a round", index)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSatisfiedCount, AssertActiveCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertFinalState:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertLogContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for log_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
