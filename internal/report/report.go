// Package report writes the outcome of a search as a YAML document.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/trustgo/internal/checker"
	"gopkg.in/yaml.v3"
)

// FileName is the report written into a report directory.
const FileName = "report.yaml"

// Verdict summarizes a search in one word.
type Verdict string

const (
	// VerdictSafe means the search was exhaustive and found no bug.
	VerdictSafe Verdict = "safe"
	// VerdictBug means at least one run hit a program error.
	VerdictBug Verdict = "bug"
	// VerdictIncomplete means the search stopped early without a bug.
	VerdictIncomplete Verdict = "incomplete"
)

// Report is the document stored in report.yaml.
type Report struct {
	Generated time.Time       `yaml:"generated"`
	Verdict   Verdict         `yaml:"verdict"`
	Result    *checker.Result `yaml:"result"`
}

// New builds a report for res.
func New(res *checker.Result, now time.Time) *Report {
	verdict := VerdictIncomplete
	switch {
	case len(res.Bugs) > 0:
		verdict = VerdictBug
	case res.Complete:
		verdict = VerdictSafe
	}
	return &Report{Generated: now.UTC(), Verdict: verdict, Result: res}
}

// Write stores the report in dir and returns the file path.
func Write(dir string, r *Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// Read loads a report written by Write.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", path, err)
	}
	return &r, nil
}
