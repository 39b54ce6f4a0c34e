// internal/app/app_test.go
package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/trustgo/internal/checker"
	"github.com/vk/trustgo/internal/hcl"
	"github.com/vk/trustgo/internal/program"
	"github.com/vk/trustgo/internal/report"
	"github.com/vk/trustgo/internal/strategy"
)

const safeCounter = `
checker {
  policy = "random"
  seed   = 7
}

program "counter" {
  var "x" {}

  thread "main" {
    op "spawn" { thread = "a" }
    op "spawn" { thread = "b" }
    op "join"  { thread = "a" }
    op "join"  { thread = "b" }
    op "read" {
      var  = "x"
      into = "total"
    }
    op "assert" {
      condition = total == 2
      message   = "lost increment"
    }
  }

  thread "a" {
    op "fetch_add" {
      var   = "x"
      value = 1
    }
  }

  thread "b" {
    op "fetch_add" {
      var   = "x"
      value = 1
    }
  }
}
`

const racyCounter = `
program "racy_counter" {
  var "x" {}

  thread "main" {
    op "spawn" { thread = "a" }
    op "spawn" { thread = "b" }
    op "join"  { thread = "a" }
    op "join"  { thread = "b" }
    op "read" {
      var  = "x"
      into = "total"
    }
    op "assert" {
      condition = total == 2
      message   = "lost increment"
    }
  }

  thread "a" {
    op "read" {
      var  = "x"
      into = "v"
    }
    op "write" {
      var   = "x"
      value = v + 1
    }
  }

  thread "b" {
    op "read" {
      var  = "x"
      into = "v"
    }
    op "write" {
      var   = "x"
      value = v + 1
    }
  }
}
`

func writeProgram(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "program.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "minimal", cfg: Config{ProgramPath: "p.hcl"}},
		{name: "missing program", cfg: Config{}, wantErr: "ProgramPath is a required"},
		{name: "negative iterations", cfg: Config{ProgramPath: "p.hcl", MaxIterations: -1}, wantErr: "must not be negative"},
		{name: "unknown policy", cfg: Config{ProgramPath: "p.hcl", Policy: "lifo"}, wantErr: "unknown scheduling policy"},
		{name: "port out of range", cfg: Config{ProgramPath: "p.hcl", HealthcheckPort: 70000}, wantErr: "out of range"},
		{name: "replay without report dir", cfg: Config{ProgramPath: "p.hcl", Replay: true}, wantErr: "report directory"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.cfg)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cfg.Explicit)
		})
	}
}

func TestConfig_CheckerConfig(t *testing.T) {
	iterations, policy, seed, stop := 10, "random", int64(3), true
	settings := &program.Settings{MaxIterations: &iterations, Policy: &policy, Seed: &seed, StopOnBug: &stop}

	t.Run("file settings fill in", func(t *testing.T) {
		cfg, err := NewConfig(Config{ProgramPath: "p.hcl", ReportDir: "out"})
		require.NoError(t, err)
		got, err := cfg.checkerConfig(settings, "out/replay.json")
		require.NoError(t, err)
		assert.Equal(t, 10, got.MaxIterations)
		assert.Equal(t, strategy.PolicyRandom, got.Strategy.Policy)
		assert.Equal(t, uint64(3), got.Strategy.Seed)
		assert.True(t, got.StopOnBug)
		assert.Equal(t, "out/replay.json", got.TracePath)
		assert.Empty(t, got.ReplayPath)
	})

	t.Run("explicit flags win", func(t *testing.T) {
		cfg, err := NewConfig(Config{
			ProgramPath:   "p.hcl",
			MaxIterations: 2,
			Policy:        "fifo",
			Explicit:      map[string]bool{SettingMaxIterations: true, SettingPolicy: true, SettingStopOnBug: true},
		})
		require.NoError(t, err)
		got, err := cfg.checkerConfig(settings, "")
		require.NoError(t, err)
		assert.Equal(t, 2, got.MaxIterations)
		assert.Equal(t, strategy.PolicyFIFO, got.Strategy.Policy)
		assert.Equal(t, uint64(3), got.Strategy.Seed)
		assert.False(t, got.StopOnBug)
		assert.Empty(t, got.TracePath)
	})

	t.Run("replay reads the trace", func(t *testing.T) {
		cfg, err := NewConfig(Config{ProgramPath: "p.hcl", ReportDir: "out", Replay: true})
		require.NoError(t, err)
		got, err := cfg.checkerConfig(nil, "out/replay.json")
		require.NoError(t, err)
		assert.Equal(t, "out/replay.json", got.ReplayPath)
		assert.Empty(t, got.TracePath)
	})

	t.Run("bad policy in file", func(t *testing.T) {
		bad := "lifo"
		cfg, err := NewConfig(Config{ProgramPath: "p.hcl"})
		require.NoError(t, err)
		_, err = cfg.checkerConfig(&program.Settings{Policy: &bad}, "")
		assert.ErrorContains(t, err, "checker block")
	})
}

func TestNewApp_PanicsOnLoadError(t *testing.T) {
	path := writeProgram(t, `program "broken" {`)
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.Contains(t, err.Error(), "failed to load program")
	}()
	NewApp(io.Discard, &Config{ProgramPath: path}, hcl.NewLoader())
}

func TestApp_RunSafeProgram(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewConfig(Config{ProgramPath: writeProgram(t, safeCounter), ReportDir: dir})
	require.NoError(t, err)
	a, logs := SetupAppTest(t, cfg)

	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, logs.String(), "program counter: safe")
	assert.Contains(t, logs.String(), "policy=random", "the checker block of the file applies")

	rep, err := report.Read(filepath.Join(dir, report.FileName))
	require.NoError(t, err)
	assert.Equal(t, report.VerdictSafe, rep.Verdict)
	assert.True(t, rep.Result.Complete)
	assert.NoFileExists(t, filepath.Join(dir, strategy.TraceFile))
}

func TestApp_RunBuggyProgramAndReplay(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, racyCounter)

	cfg, err := NewConfig(Config{ProgramPath: path, ReportDir: dir, StopOnBug: true})
	require.NoError(t, err)
	a, logs := SetupAppTest(t, cfg)

	err = a.Run(context.Background())
	require.ErrorIs(t, err, checker.ErrBugFound)
	assert.Contains(t, err.Error(), "lost increment")
	assert.Contains(t, logs.String(), "bug in iteration")
	assert.FileExists(t, filepath.Join(dir, strategy.TraceFile))

	rep, err := report.Read(filepath.Join(dir, report.FileName))
	require.NoError(t, err)
	assert.Equal(t, report.VerdictBug, rep.Verdict)
	require.Len(t, rep.Result.Bugs, 1)

	replayCfg, err := NewConfig(Config{ProgramPath: path, ReportDir: dir, Replay: true})
	require.NoError(t, err)
	replay, _ := SetupAppTest(t, replayCfg)
	err = replay.Run(context.Background())
	require.ErrorIs(t, err, checker.ErrBugFound)
	assert.Contains(t, err.Error(), "lost increment")
}

func TestApp_Routes(t *testing.T) {
	cfg, err := NewConfig(Config{ProgramPath: writeProgram(t, safeCounter)})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg)
	require.NoError(t, a.Run(context.Background()))

	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	testCases := []struct {
		path string
		want string
	}{
		{path: "/health", want: "OK"},
		{path: "/metrics", want: `trustgo_checker_iterations_total{status="ok"}`},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), tc.want)
		})
	}
}

func TestApp_RunWithHealthCheckServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg, err := NewConfig(Config{ProgramPath: writeProgram(t, safeCounter), HealthcheckPort: port})
	require.NoError(t, err)
	a, logs := SetupAppTest(t, cfg)

	require.NoError(t, a.Run(context.Background()), "the server stops once the search is over")
	assert.Contains(t, logs.String(), "Health check server starting")
	assert.Contains(t, logs.String(), "Shutting down health check server")
}

func TestApp_RunCancelled(t *testing.T) {
	cfg, err := NewConfig(Config{ProgramPath: writeProgram(t, safeCounter)})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Run(ctx), context.Canceled)
}
