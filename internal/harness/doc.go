// Package harness provides conformance testing for dampening policies.
//
// The harness activates a set of policies, drives them through a scenario of
// rounds on a manual clock, and validates every verdict. Each run is
// journaled to an in-memory store and replayed once the steps finish, so
// every scenario also checks that its verdicts are reproducible.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	source: host-1
//	policies:
//	  - { tenant: acme, trigger: cpu, type: RELAXED_COUNT, eval_true: 2, eval_total: 3 }
//	steps:
//	  - at: 1000
//	    match: ALL
//	    evals:
//	      - { index: 0, size: 1, match: true }
//	    expect: { satisfied: false, num_true_evals: 1, num_evals: 1 }
//	  - op: reset
//	assertions:
//	  - type: satisfied_count
//	    count: 1
//	  - type: final_state
//	    expect: { num_true_evals: 0 }
//
// Steps default to op round on the first policy's trigger in FIRING mode;
// trigger and mode select another policy. Other ops are activate, deactivate
// and reset.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - satisfied_count: Verifies exactly N round verdicts were satisfied
//   - final_state: Verifies the runtime state of a dampening after all steps
//   - log_contains: Verifies the log line of a dampening contains a substring
//   - active_count: Verifies exactly N dampenings remain active
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON trace of a scenario with
// testdata/golden/<name>.golden; run the tests with -update to regenerate.
package harness
