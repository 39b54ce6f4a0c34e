package app

import (
	"errors"
	"fmt"

	"github.com/vk/trustgo/internal/checker"
	"github.com/vk/trustgo/internal/program"
	"github.com/vk/trustgo/internal/strategy"
)

// Names of the settings a program file may also carry.
const (
	SettingMaxIterations = "max-iterations"
	SettingPolicy        = "policy"
	SettingSeed          = "seed"
	SettingStopOnBug     = "stop-on-bug"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ProgramPath string // .hcl file or directory

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	MaxIterations int // 0 is unbounded
	Policy        string
	Seed          uint64
	StopOnBug     bool

	DebugDir  string // graph dumps and extensive checks
	ReportDir string // report.yaml and replay.json
	Replay    bool   // replay ReportDir/replay.json instead of exploring
	Coverage  bool   // print the coverage series

	VisualizerURL       string
	VisualizerNamespace string

	// Explicit names the settings given on the command line. They win over
	// the checker block of the program file.
	Explicit map[string]bool
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ProgramPath == "" {
		return nil, errors.New("ProgramPath is a required configuration field and cannot be empty")
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("max iterations must not be negative, got %d", cfg.MaxIterations)
	}
	if cfg.Policy != "" {
		if _, err := strategy.ParsePolicy(cfg.Policy); err != nil {
			return nil, err
		}
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("healthcheck port %d is out of range", cfg.HealthcheckPort)
	}
	if cfg.Replay && cfg.ReportDir == "" {
		return nil, errors.New("replay needs a report directory holding the trace")
	}
	if cfg.Explicit == nil {
		cfg.Explicit = map[string]bool{}
	}
	return &cfg, nil
}

// checkerConfig merges the settings of the program file into cfg. Explicit
// values of cfg are kept.
func (cfg *Config) checkerConfig(s *program.Settings, tracePath string) (checker.Config, error) {
	out := checker.Config{
		MaxIterations: cfg.MaxIterations,
		StopOnBug:     cfg.StopOnBug,
		Strategy: strategy.Config{
			Policy:   strategy.Policy(cfg.Policy),
			Seed:     cfg.Seed,
			DebugDir: cfg.DebugDir,
		},
	}
	if s != nil {
		if s.MaxIterations != nil && !cfg.Explicit[SettingMaxIterations] {
			out.MaxIterations = *s.MaxIterations
		}
		if s.Policy != nil && !cfg.Explicit[SettingPolicy] {
			p, err := strategy.ParsePolicy(*s.Policy)
			if err != nil {
				return checker.Config{}, fmt.Errorf("checker block: %w", err)
			}
			out.Strategy.Policy = p
		}
		if s.Seed != nil && !cfg.Explicit[SettingSeed] {
			out.Strategy.Seed = uint64(*s.Seed)
		}
		if s.StopOnBug != nil && !cfg.Explicit[SettingStopOnBug] {
			out.StopOnBug = *s.StopOnBug
		}
	}
	if cfg.ReportDir != "" {
		if cfg.Replay {
			out.ReplayPath = tracePath
		} else {
			out.TracePath = tracePath
		}
	}
	return out, nil
}
