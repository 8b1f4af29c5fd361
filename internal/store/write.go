package store

import (
	"context"
	"fmt"

	"github.com/roach88/dampen/internal/ir"
)

// BeginRun creates a run and returns its id.
func (j *Journal) BeginRun(ctx context.Context, label string) (string, error) {
	id := j.ids.Generate()
	_, err := j.db.ExecContext(ctx, `INSERT INTO runs (id, label) VALUES (?, ?)`, id, label)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// RecordActivation records that d became active for source at seq.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency.
func (j *Journal) RecordActivation(ctx context.Context, runID string, seq int64, source string, d ir.Dampening) error {
	policy, err := marshalPolicy(d)
	if err != nil {
		return fmt.Errorf("record activation: %w", err)
	}

	key := d.Key()
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, kind, tenant_id, trigger_id, trigger_mode, source, policy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID, seq, string(EventActivate),
		key.TenantID, key.TriggerID, string(key.Mode),
		source, policy,
	)
	if err != nil {
		return fmt.Errorf("record activation: %w", err)
	}
	return nil
}

// RecordDeactivation records that key was discarded at seq.
func (j *Journal) RecordDeactivation(ctx context.Context, runID string, seq int64, key ir.Key) error {
	if err := j.recordKeyEvent(ctx, runID, seq, EventDeactivate, key); err != nil {
		return fmt.Errorf("record deactivation: %w", err)
	}
	return nil
}

// RecordReset records an explicit reset of key at seq.
func (j *Journal) RecordReset(ctx context.Context, runID string, seq int64, key ir.Key) error {
	if err := j.recordKeyEvent(ctx, runID, seq, EventReset, key); err != nil {
		return fmt.Errorf("record reset: %w", err)
	}
	return nil
}

func (j *Journal) recordKeyEvent(ctx context.Context, runID string, seq int64, kind EventKind, key ir.Key) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, kind, tenant_id, trigger_id, trigger_mode)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID, seq, string(kind),
		key.TenantID, key.TriggerID, string(key.Mode),
	)
	return err
}

// RecordRound records one evaluation round for key and its verdict at seq.
func (j *Journal) RecordRound(ctx context.Context, runID string, seq int64, key ir.Key, r RoundRecord) error {
	evals, err := marshalEvals(r.Evals)
	if err != nil {
		return fmt.Errorf("record round: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, kind, tenant_id, trigger_id, trigger_mode,
		 match, evals, eval_time, applied, satisfied, num_true_evals, num_evals,
		 evidence_hash, error_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID, seq, string(EventRound),
		key.TenantID, key.TriggerID, string(key.Mode),
		string(r.Match), evals, r.Time, r.Applied, r.Satisfied, r.NumTrueEvals, r.NumEvals,
		r.EvidenceHash, r.ErrorCode,
	)
	if err != nil {
		return fmt.Errorf("record round: %w", err)
	}
	return nil
}
