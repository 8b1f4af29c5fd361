package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dampen/internal/ir"
	"github.com/roach88/dampen/internal/testutil"
)

// createTestJournal opens a journal in a temp dir with predictable run ids.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	j, err := Open(path, WithIDGenerator(testutil.NewSequentialIDs("run")))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func testPolicy(t *testing.T) ir.Dampening {
	t.Helper()
	d, err := ir.ForRelaxedCount("tenant", "cpu", ir.ModeFiring, 2, 4)
	require.NoError(t, err)
	return d
}
