package revisit

import (
	"errors"
	"fmt"

	"github.com/vk/trustgo/internal/exgraph"
)

// LockView checks a lock backward revisit between two lock acquire reads:
// the revisited read and the read of the acquisition that revisits it.
type LockView struct {
	graph       *exgraph.Graph
	event       *exgraph.Node
	revisitRead *exgraph.Node
}

// NewLockView clones g and resolves both reads in the clone.
func NewLockView(g *exgraph.Graph, revisited, revisitRead *exgraph.Node) (*LockView, error) {
	c := g.Clone()
	ev, err := c.Node(revisited.Key())
	if err != nil {
		return nil, fmt.Errorf("revisited lock read: %w", err)
	}
	rr, err := c.Node(revisitRead.Key())
	if err != nil {
		return nil, fmt.Errorf("revisiting lock read: %w", err)
	}
	return &LockView{graph: c, event: ev, revisitRead: rr}, nil
}

// IsRevisitAble re-points the revisited read at the source of the revisiting
// read and reports whether the revisiting read is still unordered with it.
// It mutates the view's private clone only.
func (v *LockView) IsRevisitAble() (bool, error) {
	preds := v.revisitRead.Predecessors(exgraph.ReadsFrom)
	if len(preds) != 1 {
		return false, fmt.Errorf("%w: lock read %s has %d reads-from sources",
			exgraph.ErrCorrupt, v.revisitRead.Key(), len(preds))
	}
	source, err := v.graph.Node(preds[0])
	if err != nil {
		return false, err
	}
	if err := v.graph.ChangeReadsFrom(v.event, source); err != nil {
		return false, err
	}
	if err := v.graph.RecomputeVectorClocks(); err != nil {
		if errors.Is(err, exgraph.ErrCycle) {
			return false, nil
		}
		return false, err
	}
	return !v.revisitRead.HappensBefore(v.event), nil
}
