package strategy

import (
	"fmt"
	"os"

	"github.com/vk/trustgo/internal/exgraph"
)

// TraceFile is the conventional name of a recorded trace.
const TraceFile = "replay.json"

// RecordTrace writes choices as a JSON trace. A nil slice records the
// schedule of the current graph instead.
func (s *Strategy) RecordTrace(path string, choices []exgraph.SchedulingChoice) error {
	if choices == nil {
		var err error
		if choices, err = s.algo.TaskSchedule(); err != nil {
			return err
		}
	}
	data, err := exgraph.MarshalChoices(choices)
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write trace %s: %w", path, err)
	}
	s.logger.Debug("Recorded trace.", "path", path, "directives", len(choices))
	return nil
}

// ReplayTrace loads a trace written by RecordTrace. The next run follows it
// verbatim and the engine is bypassed.
func (s *Strategy) ReplayTrace(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read trace %s: %w", path, err)
	}
	choices, err := exgraph.UnmarshalChoices(data)
	if err != nil {
		return fmt.Errorf("invalid trace %s: %w", path, err)
	}
	s.trace = choices
	s.replaying = true
	s.logger.Debug("Loaded trace.", "path", path, "directives", len(choices))
	return nil
}
