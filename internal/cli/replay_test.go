package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dampen/internal/engine"
	"github.com/roach88/dampen/internal/ir"
	"github.com/roach88/dampen/internal/store"
)

func executeReplay(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// recordDivergentRun journals a STRICT 1 round that claims the dampening
// was not satisfied.
func recordDivergentRun(t *testing.T, path string) string {
	t.Helper()
	ctx := t.Context()

	j, err := store.Open(path)
	require.NoError(t, err)
	defer j.Close()

	runID, err := j.BeginRun(ctx, "tampered")
	require.NoError(t, err)

	d, err := ir.ForStrict("acme", "cpu", ir.ModeFiring, 1)
	require.NoError(t, err)
	require.NoError(t, j.RecordActivation(ctx, runID, 1, "host-1", d))
	require.NoError(t, j.RecordRound(ctx, runID, 2, d.Key(), store.RoundRecord{
		Match:        ir.MatchAll,
		Evals:        []ir.ConditionEval{{ConditionSetIndex: 0, ConditionSetSize: 1, Match: true}},
		Time:         1000,
		Applied:      true,
		NumTrueEvals: 1,
		NumEvals:     1,
	}))
	return runID
}

func TestReplayCommandRequiresDB(t *testing.T) {
	_, err := executeReplay(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplayCommandEmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	_, err := executeReplay(t, "text", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to find latest run")
}

func TestReplayCommandRecordedRun(t *testing.T) {
	env := newRunEnv(t)
	_, logs, err := execRun(t, env, "text", runRounds, true)
	require.NoError(t, err, logs)

	out, err := executeReplay(t, "text", "--db", env.db)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Replay Summary: run run-1")
	assert.Contains(t, out, "Events: 8, rounds: 5, satisfied: 2")
	assert.Contains(t, out, "✓ Run verified deterministic")
}

func TestReplayCommandRecordedRunJSON(t *testing.T) {
	env := newRunEnv(t)
	_, logs, err := execRun(t, env, "json", runRounds, false)
	require.NoError(t, err, logs)

	out, err := executeReplay(t, "json", "--db", env.db, "--run", "run-1")
	require.NoError(t, err, out)

	var resp struct {
		Status string              `json:"status"`
		Data   engine.ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.Data.RunID)
	assert.Equal(t, 5, resp.Data.Rounds)
	assert.Equal(t, 3, resp.Data.Satisfied)
	assert.True(t, resp.Data.Deterministic())
}

func TestReplayCommandUnknownRun(t *testing.T) {
	env := newRunEnv(t)
	_, _, err := execRun(t, env, "text", runRounds, true)
	require.NoError(t, err)

	_, err = executeReplay(t, "text", "--db", env.db, "--run", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run missing has no recorded events")
}

func TestReplayCommandDivergentRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dampen.db")
	recordDivergentRun(t, db)

	out, err := executeReplay(t, "text", "--db", db, "-v")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ event 2 (acme-cpu-FIRING): recorded satisfied=false true=1 evals=1, replayed satisfied=true true=1 evals=1")
	assert.Contains(t, out, "✗ Determinism verification failed")
}

func TestReplayCommandDivergentRunJSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dampen.db")
	runID := recordDivergentRun(t, db)

	out, err := executeReplay(t, "json", "--db", db)
	require.Error(t, err)

	var resp struct {
		Status string              `json:"status"`
		Data   engine.ReplayResult `json:"data"`
		Error  *CLIError           `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, runID, resp.Data.RunID)
	require.Len(t, resp.Data.Mismatch, 1)
	assert.Equal(t, int64(2), resp.Data.Mismatch[0].Seq)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNonDeterministic, resp.Error.Code)
}

func TestReplayCommandList(t *testing.T) {
	env := newRunEnv(t)
	_, _, err := execRun(t, env, "text", runRounds, true)
	require.NoError(t, err)

	out, err := executeReplay(t, "text", "--db", env.db, "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1  8 event(s)  "+env.policies)

	out, err = executeReplay(t, "json", "--db", env.db, "--list")
	require.NoError(t, err)
	var resp struct {
		Data []store.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "run-1", resp.Data[0].ID)
}

func TestReplayCommandListEmpty(t *testing.T) {
	out, err := executeReplay(t, "text", "--db", filepath.Join(t.TempDir(), "empty.db"), "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}
