// Package coverage measures how many distinct execution graphs a search
// visited.
//
// Each finished run contributes the sha256 hash of its graph serialized
// without locations, so the same interleaving seen in two runs with
// different location ids counts once.
package coverage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/trustgo/internal/exgraph"
)

// Tracker counts visits per graph hash. It is safe for concurrent use; the
// metrics endpoint reads it while the checker records.
type Tracker struct {
	visits   sync.Map // hash -> *atomic.Int64
	distinct atomic.Int64
	total    atomic.Int64

	mu     sync.Mutex
	series []int
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Hash returns the location-free hash of g.
func Hash(g *exgraph.Graph) (string, error) {
	data, err := g.JSONIgnoreLocation()
	if err != nil {
		return "", fmt.Errorf("failed to serialize graph for coverage: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Record counts one visit of g. It reports the hash and whether it was seen
// for the first time.
func (t *Tracker) Record(g *exgraph.Graph) (string, bool, error) {
	hash, err := Hash(g)
	if err != nil {
		return "", false, err
	}
	return hash, t.RecordHash(hash), nil
}

// RecordHash counts one visit of a precomputed hash.
func (t *Tracker) RecordHash(hash string) bool {
	counter, loaded := t.visits.LoadOrStore(hash, new(atomic.Int64))
	counter.(*atomic.Int64).Add(1)
	t.total.Add(1)
	if !loaded {
		t.distinct.Add(1)
	}

	t.mu.Lock()
	t.series = append(t.series, int(t.distinct.Load()))
	t.mu.Unlock()
	return !loaded
}

// Visits returns how often hash was recorded.
func (t *Tracker) Visits(hash string) int {
	v, ok := t.visits.Load(hash)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int64).Load())
}

// Distinct is the number of different graphs recorded.
func (t *Tracker) Distinct() int { return int(t.distinct.Load()) }

// Total is the number of recorded visits.
func (t *Tracker) Total() int { return int(t.total.Load()) }

// Duplicates is the number of visits of an already known graph.
func (t *Tracker) Duplicates() int { return t.Total() - t.Distinct() }

// Series returns the distinct count after each recorded visit.
func (t *Tracker) Series() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int, len(t.series))
	copy(out, t.series)
	return out
}

// Summary is the serializable state of a Tracker.
type Summary struct {
	Distinct   int   `json:"distinct" yaml:"distinct"`
	Total      int   `json:"total" yaml:"total"`
	Duplicates int   `json:"duplicates" yaml:"duplicates"`
	Series     []int `json:"series,omitempty" yaml:"series,omitempty"`
}

// Summary captures the counters.
func (t *Tracker) Summary() Summary {
	return Summary{
		Distinct:   t.Distinct(),
		Total:      t.Total(),
		Duplicates: t.Duplicates(),
		Series:     t.Series(),
	}
}
