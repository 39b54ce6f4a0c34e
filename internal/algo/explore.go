package algo

import (
	"fmt"

	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/exgraph"
	"github.com/vk/trustgo/internal/explore"
)

// findNextExplorationChoice pops items until one yields a consistent graph
// and turns that graph into the guiding schedule.
func (a *Algo) findNextExplorationChoice() (Outcome, error) {
	var sorted []*exgraph.Node
	for len(sorted) == 0 {
		item, ok := a.stack.Pop()
		if !ok {
			a.logger.Debug("Exploration stack exhausted.")
			return HaltChecker(), nil
		}
		a.stats.Popped[item.Kind]++
		a.logger.Debug("Popped exploration item.", "item", item.String(), "pending", a.stack.Len())

		if item.IsBackward() {
			if err := a.processBackward(item); err != nil {
				return Outcome{}, a.invariant("process "+item.Kind.String(), err)
			}
			continue
		}

		if item.Graph == nil {
			return Outcome{}, a.invariant("process "+item.Kind.String(), fmt.Errorf("item has no graph"))
		}
		a.graph = item.Graph

		var err error
		switch item.Kind {
		case explore.ForwardReadFromWrite:
			sorted, err = a.processFRW(item)
		case explore.ForwardWriteWrite:
			sorted, err = a.processFWW(item)
		case explore.ForwardMaxCoherencyWrite:
			sorted, err = a.processFLW(item)
		default:
			err = fmt.Errorf("unexpected item kind %s", item.Kind)
		}
		if err != nil {
			return Outcome{}, a.invariant("process "+item.Kind.String(), err)
		}
		if len(sorted) == 0 {
			a.stats.Inconsistent++
			a.logger.Debug("Candidate graph is inconsistent.", "item", item.String())
		}
	}

	// Block requests raised while replaying additional events are encoded
	// by the graph's blocking labels.
	a.mustBlock = false
	a.guiding = exgraph.TaskSchedule(sorted)
	a.logger.Debug("Found consistent graph.", "events", a.graph.Size(), "schedule", len(a.guiding))
	return Continue(), nil
}

// processBackward expands a backward revisit into its alternative coherency
// placings and a coherency-maximal placing of the revisiting write.
func (a *Algo) processBackward(item *explore.Item) error {
	write, _, err := item.Nodes()
	if err != nil {
		return err
	}
	placings, err := item.Graph.CoherentPlacings(write)
	if err != nil {
		return err
	}
	for i := len(placings) - 1; i >= 0; i-- {
		a.push(explore.ForwardWW(write, placings[i], item.Graph))
	}

	flw := explore.ForwardLW(write, item.Graph)
	for _, ev := range item.AdditionalEvents() {
		flw.AddAdditionalEvent(ev)
	}
	a.push(flw)
	return nil
}

func (a *Algo) processFRW(item *explore.Item) ([]*exgraph.Node, error) {
	read, write, err := item.Nodes()
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Processing forward read revisit.", "read", read.Key().String(), "write", write.Key().String())

	if err := a.graph.ChangeReadsFrom(read, write); err != nil {
		return nil, err
	}
	if err := a.graph.Restrict(read); err != nil {
		return nil, err
	}
	if err := a.graph.RecomputeVectorClocks(); err != nil {
		return nil, err
	}
	for _, ev := range item.AdditionalEvents() {
		if err := a.processAdditionalEvent(ev); err != nil {
			return nil, err
		}
	}
	return a.graph.CheckConsistency()
}

func (a *Algo) processFWW(item *explore.Item) ([]*exgraph.Node, error) {
	moved, before, err := item.Nodes()
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Processing forward write revisit.", "write", moved.Key().String(), "before", before.Key().String())

	// Items pushed while recording were cloned before the write was
	// tracked.
	a.graph.TrackCoherency(moved)
	if err := a.graph.SwapCoherency(moved, before); err != nil {
		return nil, err
	}
	if err := a.graph.Restrict(moved); err != nil {
		return nil, err
	}
	return a.graph.CheckConsistency()
}

func (a *Algo) processFLW(item *explore.Item) ([]*exgraph.Node, error) {
	write, _, err := item.Nodes()
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Processing max coherency revisit.", "write", write.Key().String())

	a.graph.TrackCoherency(write)
	if err := a.graph.Restrict(write); err != nil {
		return nil, err
	}
	additional := item.AdditionalEvents()
	if len(additional) > 1 {
		return nil, fmt.Errorf("%s item carries %d additional events", item.Kind, len(additional))
	}
	for _, ev := range additional {
		if err := a.processAdditionalEvent(ev); err != nil {
			return nil, err
		}
	}
	return a.graph.CheckConsistency()
}

// processAdditionalEvent re-adds an event a revisit removed or synthesized.
func (a *Algo) processAdditionalEvent(ev *event.Event) error {
	switch ev.Kind {
	case event.KindLockAcquireRead:
		return a.handleLockAcquireRead(ev)
	case event.KindLockAcquireWrite:
		return a.handleLockAcquireWrite(ev)
	case event.KindWriteExclusive:
		return a.handleWriteX(ev)
	}
	return fmt.Errorf("unexpected additional event %s", ev.Kind)
}
