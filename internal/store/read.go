package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/dampen/internal/ir"
)

// Events returns every event of a run ordered by seq.
//
// Returns an empty slice (not nil) if the run has no events.
func (j *Journal) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, seq, kind, tenant_id, trigger_id, trigger_mode, source, policy,
		       match, evals, eval_time, applied, satisfied, num_true_evals, num_evals,
		       evidence_hash, error_code
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Runs returns every run with its event count, ordered by id.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.id, r.label, COUNT(e.seq)
		FROM runs r
		LEFT JOIN events e ON e.run_id = r.id
		GROUP BY r.id, r.label
		ORDER BY r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Label, &r.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the id of the most recently started run. With UUIDv7 ids
// that is the greatest id.
func (j *Journal) LatestRun(ctx context.Context) (string, error) {
	var id string
	err := j.db.QueryRowContext(ctx, `
		SELECT id FROM runs ORDER BY id COLLATE BINARY DESC LIMIT 1
	`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("latest run: no runs recorded")
	}
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	return id, nil
}

// LastSeq returns the highest seq recorded for a run, 0 if none.
func (j *Journal) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (Event, error) {
	var (
		ev                 Event
		kind, mode         string
		policy, match      string
		evals, hash, code  string
		evalTime           int64
		applied, satisfied bool
		numTrue, numEvals  int
	)
	err := row.Scan(
		&ev.RunID, &ev.Seq, &kind, &ev.Key.TenantID, &ev.Key.TriggerID, &mode, &ev.Source, &policy,
		&match, &evals, &evalTime, &applied, &satisfied, &numTrue, &numEvals,
		&hash, &code,
	)
	if err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Kind = EventKind(kind)
	ev.Key.Mode = ir.Mode(mode)

	switch ev.Kind {
	case EventActivate:
		d, err := unmarshalPolicy(policy)
		if err != nil {
			return Event{}, fmt.Errorf("event %d: %w", ev.Seq, err)
		}
		ev.Policy = &d

	case EventRound:
		parsed, err := unmarshalEvals(evals)
		if err != nil {
			return Event{}, fmt.Errorf("event %d: %w", ev.Seq, err)
		}
		ev.Round = &RoundRecord{
			Match:        ir.Match(match),
			Evals:        parsed,
			Time:         evalTime,
			Applied:      applied,
			Satisfied:    satisfied,
			NumTrueEvals: numTrue,
			NumEvals:     numEvals,
			EvidenceHash: hash,
			ErrorCode:    code,
		}
	}
	return ev, nil
}
