package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dampen/internal/ir"
)

func ce(idx, size int, match bool) ir.ConditionEval {
	return ir.ConditionEval{ConditionSetIndex: idx, ConditionSetSize: size, Match: match}
}

func mustDampening(t *testing.T) func(ir.Dampening, error) ir.Dampening {
	return func(d ir.Dampening, err error) ir.Dampening {
		t.Helper()
		require.NoError(t, err)
		return d
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedClock is a WallClock that always reports the same time.
type fixedClock int64

func (c fixedClock) NowMillis() int64 { return int64(c) }
