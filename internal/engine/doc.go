// Package engine implements the dampening core.
//
// The engine decides when a trigger's alert or resolution is actually
// confirmed. It receives rounds of condition evaluations produced by an
// external condition engine and applies the trigger's dampening policy so
// transient spikes do not cause false firings.
//
// ARCHITECTURE:
//
// Components, leaves first:
//   - Aggregate reduces one round of condition evaluations to a single
//     boolean, honoring ALL/ANY matching.
//   - SourceDampening is the per-(tenant, trigger, mode) state machine. It
//     consumes round verdicts plus wall-clock "now" and tracks counters, the
//     time anchor, the satisfied flag and the evidence trail.
//   - Lifecycle owns one SourceDampening per active key. Activation replaces
//     and resets, deactivation discards.
//   - Pool routes rounds to single-owner workers so different keys are
//     evaluated in parallel while each key sees its rounds in order.
//
// Event Processing Flow:
//  1. Rounds are submitted to the Pool (or passed to Lifecycle.Evaluate)
//  2. The Lifecycle takes the per-key lock and finds the state machine
//  3. Aggregate folds the round into the last-known evaluation per index
//  4. SourceDampening.Apply advances counters and the satisfied flag
//  5. A Verdict with the evidence trail is returned to the caller or sink
//
// CONCURRENCY:
//
// At most one Apply is in flight per key: Lifecycle serializes Evaluate,
// Activate, Deactivate and Reset for the same key with a per-key mutex.
// Different keys share no mutable state. Nothing in this package performs
// I/O or blocks beyond lock acquisition.
//
// TIME:
//
// A RELAXED_TIME window lapse is only detected at the next Apply for the key.
// Exact boundary firing requires a collaborator that submits rounds
// periodically. For STRICT_TIMEOUT the Verdict carries an advisory
// ir.Timeout that such a collaborator can schedule.
package engine
