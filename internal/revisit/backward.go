package revisit

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/exgraph"
)

// BackwardView is a candidate backward revisit: a new write proposed as the
// source of an earlier read. It owns a clone of the graph and the set of
// events the revisit would prune.
type BackwardView struct {
	graph   *exgraph.Graph
	removed map[event.Key]struct{}
	read    *exgraph.Node
	write   *exgraph.Node
	source  *exgraph.Node

	additional *event.Event
	restricted bool
	logger     *slog.Logger
}

// NewBackwardView builds the view of write revisiting read in g. The write
// must be the last event in total order. Events after the read that are not
// ordered before the write are scheduled for removal.
//
// Revisiting a lock acquire read also removes the read itself and returns it
// as the additional event. Revisiting a plain exclusive read carries its
// removed paired write as the additional event.
func NewBackwardView(g *exgraph.Graph, write, read *exgraph.Node) (*BackwardView, error) {
	idx := g.TOIndex(read.Key())
	if idx < 0 {
		return nil, fmt.Errorf("revisited read %s: %w", read.Key(), exgraph.ErrNoSuchEvent)
	}

	v := &BackwardView{
		graph:   g.Clone(),
		removed: map[event.Key]struct{}{},
		source:  write,
		logger:  g.Logger(),
	}
	all := g.AllEvents()
	for _, n := range all[idx+1 : len(all)-1] {
		if !n.HappensBefore(write) {
			v.removed[n.Key()] = struct{}{}
		}
	}

	var err error
	if v.read, err = v.graph.Node(read.Key()); err != nil {
		return nil, err
	}
	if v.write, err = v.graph.Node(write.Key()); err != nil {
		return nil, err
	}

	switch read.Kind() {
	case event.KindLockAcquireRead:
		v.additional = read.Event.Clone()
		v.removed[read.Key()] = struct{}{}
	case event.KindReadExclusive:
		pair := event.Key{Task: read.Key().Task, Seq: read.Key().Seq + 1}
		if _, ok := v.removed[pair]; ok {
			n, err := v.graph.Node(pair)
			if err != nil {
				return nil, err
			}
			if n.Kind() == event.KindWriteExclusive {
				v.additional = n.Event.Clone()
			}
		}
	}
	return v, nil
}

// MarkFinalLockWrite marks the revisiting lock acquisition as final, both in
// the graph the view was built from and in the view's own graph. Call it once
// the revisit is accepted and before RestrictedGraph.
func (v *BackwardView) MarkFinalLockWrite() {
	exgraph.MarkFinalLockWrite(v.source)
	exgraph.MarkFinalLockWrite(v.write)
}

// Read returns the revisited read in the view's graph.
func (v *BackwardView) Read() *exgraph.Node { return v.read }

// Write returns the revisiting write in the view's graph.
func (v *BackwardView) Write() *exgraph.Node { return v.write }

// AdditionalEvent returns the event that must be replayed after the
// restricted graph is adopted, or nil.
func (v *BackwardView) AdditionalEvent() *event.Event { return v.additional }

// Removed returns the keys the revisit prunes, sorted.
func (v *BackwardView) Removed() []event.Key {
	out := make([]event.Key, 0, len(v.removed))
	for k := range v.removed {
		out = append(out, k)
	}
	slices.SortFunc(out, event.Key.Compare)
	return out
}

// IsMaximalExtension reports whether the revisit is not subsumed by another
// reachable alternative. For every pruned event and the read, the events
// "previous" to it (earlier in total order, or ordered before the revisiting
// write) must not include a read of a pruned write, must include the write
// the event observes, and must not include a coherency successor of that
// write.
func (v *BackwardView) IsMaximalExtension() (bool, error) {
	keys := v.Removed()
	if _, ok := v.removed[v.read.Key()]; !ok {
		keys = append(keys, v.read.Key())
	}
	for _, k := range keys {
		node, err := v.graph.Node(k)
		if err != nil {
			return false, err
		}
		if node.Kind().IsNoop() {
			continue
		}
		idx := v.graph.TOIndex(k)
		previous := func(other event.Key) bool {
			n, err := v.graph.Node(other)
			if err != nil {
				return false
			}
			return v.graph.TOIndex(other) <= idx || n.HappensBefore(v.write)
		}

		if node.Kind().IsWrite() {
			for _, rk := range node.Successors(exgraph.ReadsFrom) {
				if previous(rk) {
					v.logger.Debug("Revisit leaves a dangling read.", "write", k.String(), "read", rk.String())
					return false, nil
				}
			}
		}

		source := node
		if node.Kind().IsRead() {
			preds := node.Predecessors(exgraph.ReadsFrom)
			if len(preds) != 1 {
				return false, fmt.Errorf("%w: read %s has %d reads-from sources", exgraph.ErrCorrupt, k, len(preds))
			}
			if source, err = v.graph.Node(preds[0]); err != nil {
				return false, err
			}
		}
		if !previous(source.Key()) {
			v.logger.Debug("Observed write is not previous.", "event", k.String(), "write", source.Key().String())
			return false, nil
		}

		loc := source.Location()
		if source.Key().IsInit() {
			loc = node.Location()
		}
		writes := v.graph.Writes(loc)
		for _, w := range writes[slices.Index(writes, source)+1:] {
			if previous(w.Key()) {
				v.logger.Debug("Observed write is not coherency maximal.", "event", k.String(), "write", w.Key().String())
				return false, nil
			}
		}
	}
	return true, nil
}

// RestrictedGraph applies the revisit to the view's graph and returns it:
// the write becomes coherency maximal, the read observes it, the pruned
// events are removed and clocks are recomputed. It may be called once.
func (v *BackwardView) RestrictedGraph() (*exgraph.Graph, error) {
	if v.restricted {
		return nil, fmt.Errorf("%w: restricted graph of %s -> %s was already built",
			exgraph.ErrCorrupt, v.write.Key(), v.read.Key())
	}
	v.restricted = true

	v.graph.TrackCoherency(v.write)
	if err := v.graph.ChangeReadsFrom(v.read, v.write); err != nil {
		return nil, err
	}
	if err := v.graph.RestrictBySet(v.removed); err != nil {
		return nil, err
	}
	if err := v.graph.RecomputeVectorClocks(); err != nil {
		return nil, err
	}
	return v.graph, nil
}
