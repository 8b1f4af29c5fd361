// Package ir provides the shared data model for the dampening core.
//
// This package contains type definitions and validation only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Dampening is durable configuration. It carries no runtime counters;
//     evaluation state lives in engine.SourceDampening.
//   - The composite dampening id is derived from tenant, trigger and mode and
//     is recomputed by every operation that changes one of them.
//   - Time values are epoch milliseconds (int64). Zero means "unset".
//   - Evidence serialization uses canonical JSON (MarshalCanonical) so the
//     same evaluation trail always hashes to the same value.
package ir
