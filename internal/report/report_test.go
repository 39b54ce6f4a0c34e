// internal/report/report_test.go
package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/trustgo/internal/checker"
	"github.com/vk/trustgo/internal/coverage"
	"github.com/vk/trustgo/internal/exgraph"
)

func TestNew_Verdict(t *testing.T) {
	testCases := []struct {
		name string
		res  checker.Result
		want Verdict
	}{
		{name: "exhausted without bugs", res: checker.Result{Complete: true}, want: VerdictSafe},
		{name: "bug found", res: checker.Result{Complete: true, Bugs: []checker.Bug{{Message: "boom"}}}, want: VerdictBug},
		{name: "stopped early", res: checker.Result{}, want: VerdictIncomplete},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, New(&tc.res, time.Now()).Verdict)
		})
	}
}

func TestWriteAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	res := &checker.Result{
		RunID:      "run-1",
		Program:    "racy_reader",
		Iterations: 3,
		Complete:   true,
		OK:         2,
		Bugs: []checker.Bug{{
			Iteration: 2,
			Message:   "reader saw a forbidden value",
			Schedule:  []exgraph.SchedulingChoice{exgraph.RunTask(1), exgraph.BlockTask(2), exgraph.End()},
		}},
		Coverage: coverage.Summary{Distinct: 3, Total: 3},
		Elapsed:  1500 * time.Millisecond,
	}

	path, err := Write(dir, New(res, now))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "verdict: bug")
	assert.Contains(t, string(raw), "elapsed: 1.5s")

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, VerdictBug, got.Verdict)
	assert.True(t, got.Generated.Equal(now))
	require.NotNil(t, got.Result)
	assert.Equal(t, res.RunID, got.Result.RunID)
	require.Len(t, got.Result.Bugs, 1)
	assert.Equal(t, res.Bugs[0].Schedule, got.Result.Bugs[0].Schedule)
	assert.Equal(t, res.Coverage.Distinct, got.Result.Coverage.Distinct)
	assert.Equal(t, res.Elapsed, got.Result.Elapsed)
}

func TestRead_Errors(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(bad, []byte("verdict: [unclosed"), 0o644))
	_, err = Read(bad)
	assert.Error(t, err)
}
