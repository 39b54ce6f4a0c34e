// internal/cli/cli_test.go
package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/trustgo/internal/app"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		wantExit bool
		wantCode int
		check    func(t *testing.T, cfg *app.Config)
	}{
		{
			name: "positional path with defaults",
			args: []string{"prog.hcl"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, "prog.hcl", cfg.ProgramPath)
				assert.Equal(t, "json", cfg.LogFormat)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, "fifo", cfg.Policy)
				assert.Zero(t, cfg.MaxIterations)
				assert.Empty(t, cfg.Explicit)
			},
		},
		{
			name: "flag wins over positional",
			args: []string{"-program", "a.hcl", "b.hcl"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, "a.hcl", cfg.ProgramPath)
			},
		},
		{
			name: "shorthand",
			args: []string{"-p", "dir"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, "dir", cfg.ProgramPath)
			},
		},
		{
			name: "checker settings are explicit",
			args: []string{"-max-iterations", "5", "-policy", "RANDOM", "-seed", "9", "-stop-on-bug", "-log-level", "DEBUG", "prog.hcl"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, 5, cfg.MaxIterations)
				assert.Equal(t, "random", cfg.Policy)
				assert.Equal(t, uint64(9), cfg.Seed)
				assert.True(t, cfg.StopOnBug)
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.True(t, cfg.Explicit[app.SettingMaxIterations])
				assert.True(t, cfg.Explicit[app.SettingPolicy])
				assert.True(t, cfg.Explicit[app.SettingSeed])
				assert.True(t, cfg.Explicit[app.SettingStopOnBug])
			},
		},
		{
			name: "outputs and viewer",
			args: []string{"-report-dir", "out", "-replay", "-debug-dir", "dbg", "-coverage", "-visualizer-url", "http://localhost:3000", "prog.hcl"},
			check: func(t *testing.T, cfg *app.Config) {
				assert.Equal(t, "out", cfg.ReportDir)
				assert.True(t, cfg.Replay)
				assert.Equal(t, "dbg", cfg.DebugDir)
				assert.True(t, cfg.Coverage)
				assert.Equal(t, "http://localhost:3000", cfg.VisualizerURL)
				assert.Equal(t, "/", cfg.VisualizerNamespace)
			},
		},
		{name: "help", args: []string{"-h"}, wantExit: true},
		{name: "no path", args: nil, wantExit: true},
		{name: "unknown flag", args: []string{"-nope"}, wantCode: 2},
		{name: "bad log format", args: []string{"-log-format", "xml", "prog.hcl"}, wantCode: 2},
		{name: "bad log level", args: []string{"-log-level", "trace", "prog.hcl"}, wantCode: 2},
		{name: "bad policy", args: []string{"-policy", "lifo", "prog.hcl"}, wantCode: 2},
		{name: "replay without report dir", args: []string{"-replay", "prog.hcl"}, wantCode: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			cfg, exit, err := Parse(tc.args, out)

			if tc.wantCode != 0 {
				require.Error(t, err)
				var exitErr *ExitError
				require.ErrorAs(t, err, &exitErr)
				assert.Equal(t, tc.wantCode, exitErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantExit, exit)
			if tc.wantExit {
				assert.Nil(t, cfg)
				assert.Contains(t, out.String(), "Usage:")
				return
			}
			require.NotNil(t, cfg)
			tc.check(t, cfg)
		})
	}
}
