package algo

import (
	"fmt"

	"github.com/vk/trustgo/internal/event"
	"github.com/vk/trustgo/internal/exgraph"
	"github.com/vk/trustgo/internal/explore"
	"github.com/vk/trustgo/internal/revisit"
)

func (a *Algo) handleRead(ev *event.Event) error {
	read, err := a.graph.AddEvent(ev)
	if err != nil {
		return err
	}
	coMax := a.graph.CoMax(ev.Location)

	// Under sequential consistency a read ordered after the coherency
	// maximal write has no other choice.
	if coMax.HappensBefore(read) {
		a.graph.SetReadsFrom(read, coMax)
		return nil
	}

	alternatives := a.graph.AlternativeWrites(read)
	a.graph.SetReadsFrom(read, coMax)
	if len(alternatives) == 0 {
		return nil
	}

	for i := len(alternatives) - 1; i >= 0; i-- {
		item := explore.ForwardRW(read, alternatives[i], a.graph)
		if read.Kind() == event.KindReadExclusive {
			item.AddAdditionalEvent(event.New(ev.Task(), event.KindWriteExclusive, ev.Location))
		}
		a.push(item)
	}
	return nil
}

func (a *Algo) handleWrite(ev *event.Event) error {
	write, err := a.graph.AddEvent(ev)
	if err != nil {
		return err
	}

	placings, err := a.graph.CoherentPlacings(write)
	if err != nil {
		return err
	}
	for i := len(placings) - 1; i >= 0; i-- {
		a.push(explore.ForwardWW(write, placings[i], a.graph))
	}

	views, err := a.maximalViews(write)
	if err != nil {
		return err
	}
	for i := len(views) - 1; i >= 0; i-- {
		if err := a.pushBackward(views[i], explore.Backward); err != nil {
			return err
		}
	}

	a.graph.TrackCoherency(write)
	return nil
}

func (a *Algo) handleWriteX(ev *event.Event) error {
	write, err := a.graph.AddEvent(ev)
	if err != nil {
		return err
	}

	// Exclusive writes are totally ordered by happens-before, so only
	// backward revisits exist.
	views, err := a.maximalViews(write)
	if err != nil {
		return err
	}
	a.graph.TrackCoherency(write)

	for _, view := range views {
		read := view.Read()
		if t := read.Key().Task; read.Kind().IsExclusiveRead() && !a.graph.IsTaskBlocked(t) {
			a.graph.AddBlockingLabel(t)
		}
		if err := a.pushBackward(view, explore.Backward); err != nil {
			return err
		}
	}
	return nil
}

// maximalViews builds a backward view for every potential read of write and
// keeps the maximal extensions.
func (a *Algo) maximalViews(write *exgraph.Node) ([]*revisit.BackwardView, error) {
	reads, err := a.graph.PotentialReads(write)
	if err != nil {
		return nil, err
	}
	var views []*revisit.BackwardView
	for _, r := range reads {
		view, err := revisit.NewBackwardView(a.graph, write, r)
		if err != nil {
			return nil, err
		}
		ok, err := view.IsMaximalExtension()
		if err != nil {
			return nil, err
		}
		if !ok {
			a.logger.Debug("Skipped non-maximal revisit.", "write", write.Key().String(), "read", r.Key().String())
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

func (a *Algo) pushBackward(view *revisit.BackwardView, build func(*exgraph.Node, *exgraph.Graph) *explore.Item) error {
	restricted, err := view.RestrictedGraph()
	if err != nil {
		return err
	}
	item := build(view.Write(), restricted)
	item.AddAdditionalEvent(view.AdditionalEvent())
	a.push(item)
	return nil
}

func (a *Algo) handleLockAcquireRead(ev *event.Event) error {
	coMax := a.graph.CoMax(ev.Location)
	if coMax.Kind() == event.KindLockAcquireWrite {
		// Held: the task waits and its acquisition is replayed once the
		// lock is released.
		a.graph.BlockTaskForLock(ev)
		a.blockTask(ev.Task())
		return nil
	}

	read, err := a.graph.AddEvent(ev)
	if err != nil {
		return err
	}
	if coMax.HappensBefore(read) {
		a.graph.SetReadsFrom(read, coMax)
		return nil
	}

	alternatives := a.graph.AlternativeLockWrites(read)
	a.graph.SetReadsFrom(read, coMax)
	for i := len(alternatives) - 1; i >= 0; i-- {
		a.logger.Debug("Adding lock read revisit.", "read", read.Key().String(), "write", alternatives[i].Key().String())
		item := explore.ForwardRW(read, alternatives[i], a.graph)
		item.AddAdditionalEvent(event.New(ev.Task(), event.KindLockAcquireWrite, ev.Location))
		a.push(item)
	}
	return nil
}

func (a *Algo) handleLockAcquireWrite(ev *event.Event) error {
	if a.graph.IsTaskBlocked(ev.Task()) {
		// The matching read found the lock held.
		return nil
	}

	write, err := a.graph.AddEvent(ev)
	if err != nil {
		return err
	}
	a.graph.AcquireLock(ev.Location, ev.Task())

	reads, err := a.graph.AlternativeLockReads(write)
	if err != nil {
		return err
	}
	var views []*revisit.BackwardView
	if len(reads) > 0 {
		own, err := a.pairedLockRead(write)
		if err != nil {
			return err
		}
		for _, r := range reads {
			bview, err := revisit.NewBackwardView(a.graph, write, r)
			if err != nil {
				return err
			}
			ok, err := bview.IsMaximalExtension()
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			lview, err := revisit.NewLockView(a.graph, r, own)
			if err != nil {
				return err
			}
			if ok, err = lview.IsRevisitAble(); err != nil {
				return err
			} else if !ok {
				a.logger.Debug("Skipped lock revisit.", "write", write.Key().String(), "read", r.Key().String())
				continue
			}
			bview.MarkFinalLockWrite()
			views = append(views, bview)
		}
	}

	for i := len(views) - 1; i >= 0; i-- {
		if err := a.pushBackward(views[i], explore.LockBackward); err != nil {
			return err
		}
	}
	a.graph.TrackCoherency(write)
	return nil
}

// pairedLockRead returns the lock acquire read that precedes write in its
// task.
func (a *Algo) pairedLockRead(write *exgraph.Node) (*exgraph.Node, error) {
	preds := write.Predecessors(exgraph.ProgramOrder)
	if len(preds) != 1 {
		return nil, fmt.Errorf("%w: lock write %s has %d program order predecessors",
			exgraph.ErrCorrupt, write.Key(), len(preds))
	}
	read, err := a.graph.Node(preds[0])
	if err != nil {
		return nil, err
	}
	if read.Kind() != event.KindLockAcquireRead || read.Location() != write.Location() {
		return nil, fmt.Errorf("%w: lock write %s does not follow its lock read", exgraph.ErrCorrupt, write.Key())
	}
	return read, nil
}

func (a *Algo) handleLockReleaseWrite(ev *event.Event) error {
	write, err := a.graph.AddEvent(ev)
	if err != nil {
		return err
	}
	a.graph.UnblockAllTasksForLock(ev.Location)
	a.graph.TrackCoherency(write)
	return nil
}

// handleLockAcquired replays the acquisition of a task that waited for the
// lock.
func (a *Algo) handleLockAcquired(ev *event.Event) error {
	if !a.graph.WaitingForLock(ev.Location, ev.Task()) {
		return nil
	}
	if err := a.handleLockAcquireRead(event.New(ev.Task(), event.KindLockAcquireRead, ev.Location)); err != nil {
		return err
	}
	return a.handleLockAcquireWrite(event.New(ev.Task(), event.KindLockAcquireWrite, ev.Location))
}

func (a *Algo) handleAssume(ev *event.Event) error {
	if _, err := a.graph.AddEvent(ev); err != nil {
		return err
	}
	if result, _ := event.Attr[bool](ev, event.AttrResult); !result {
		a.blockTask(ev.Task())
	}
	return nil
}

func (a *Algo) handleGuidedAssume(ev *event.Event) {
	if result, _ := event.Attr[bool](ev, event.AttrResult); !result {
		a.blockTask(ev.Task())
	}
}

// handleNoop records thread lifecycle events and their ordering edges.
func (a *Algo) handleNoop(ev *event.Event) error {
	node, err := a.graph.AddEvent(ev)
	if err != nil {
		return err
	}
	switch ev.Kind {
	case event.KindThreadStart:
		a.graph.TrackThreadCreates(node)
		if ev.Task() != 0 {
			return a.graph.TrackThreadStarts(node)
		}
	case event.KindThreadJoin:
		return a.graph.TrackThreadJoins(node)
	}
	return nil
}

func (a *Algo) push(item *explore.Item) {
	a.logger.Debug("Pushed exploration item.", "item", item.String())
	a.stack.Push(item)
}
