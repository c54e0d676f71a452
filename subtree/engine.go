package subtree

import (
	"github.com/petermattis/goid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type dynRequest struct {
	child  ReactiveNode
	parent ReactiveNode
	attach bool
}

// OnInputChange registers source as a subtree seed for turn t: the source
// and its transitive successors are marked, wait counts are established,
// and the source is enqueued ready.
func (g *Graph) OnInputChange(source ReactiveNode, t *Turn) {
	b := source.base()
	if !b.flags.has(flagMarked) {
		b.flags |= flagMarked | flagRoot | flagInitial | flagChanged
		g.visited = append(g.visited, source)
		g.markSuccessors(source)
	}
	b.readyCount.Store(int32(b.waitCount))
	g.queue.push(source)
}

// markSuccessors walks the successor closure of n, marking each reachable
// node and counting one wait per incoming marked edge. Each marked node's
// successor list is walked exactly once, so wait counts end up equal to
// the number of marked predecessors.
func (g *Graph) markSuccessors(n ReactiveNode) {
	for _, s := range n.base().successors {
		sb := s.base()
		if sb.flags.has(flagMarked) {
			sb.waitCount++
			continue
		}
		sb.flags |= flagMarked
		sb.waitCount = 1
		sb.readyCount.Store(0)
		g.visited = append(g.visited, s)
		g.markSuccessors(s)
	}
}

// OnNodePulse records that n's tick produced output and schedules its
// successors.
func (g *Graph) OnNodePulse(n ReactiveNode, t *Turn) {
	n.base().flags |= flagChanged
	g.processSuccessors(n, t)
}

// OnNodeIdlePulse schedules n's successors without marking n changed, so
// downstream nodes stop waiting on it.
func (g *Graph) OnNodeIdlePulse(n ReactiveNode, t *Turn) {
	g.processSuccessors(n, t)
}

func (g *Graph) processSuccessors(n ReactiveNode, t *Turn) {
	b := n.base()
	b.shift.RLock()
	defer b.shift.RUnlock()

	for _, s := range b.successors {
		sb := s.base()
		if !sb.flags.has(flagMarked) {
			continue
		}
		if sb.incReady() {
			g.queue.push(s)
		}
	}
}

// OnDynamicNodeAttach queues a dynamic edge addition requested from inside
// a tick; it is applied after the current batch joins.
func (g *Graph) OnDynamicNodeAttach(child, parent ReactiveNode, t *Turn) {
	g.dynMu.Lock()
	defer g.dynMu.Unlock()
	g.dynRequests = append(g.dynRequests, dynRequest{child: child, parent: parent, attach: true})
}

// OnDynamicNodeDetach queues a dynamic edge removal requested from inside
// a tick.
func (g *Graph) OnDynamicNodeDetach(child, parent ReactiveNode, t *Turn) {
	g.dynMu.Lock()
	defer g.dynMu.Unlock()
	g.dynRequests = append(g.dynRequests, dynRequest{child: child, parent: parent, attach: false})
}

// Propagate drives turn t to completion: level-ordered batches of marked
// nodes tick (in parallel on a parallel graph), deferred dynamic edits are
// applied between batches, and transient state is cleared on the way out.
func (g *Graph) Propagate(t *Turn) error {
	for {
		batch := g.queue.fetchNext()
		if batch == nil {
			break
		}

		// Reconcile levels raised by dynamic re-parenting before running
		// anything at this tier.
		runnable := batch[:0]
		for _, n := range batch {
			b := n.base()
			if b.newLevel > b.level {
				b.level = b.newLevel
				b.flags &^= flagDeferred
				g.queue.push(n)
				continue
			}
			runnable = append(runnable, n)
		}
		if len(runnable) == 0 {
			continue
		}

		if g.parallel && len(runnable) > 1 {
			var eg errgroup.Group
			eg.SetLimit(g.workers)
			for _, n := range runnable {
				n := n
				eg.Go(func() error { return g.tickNode(n, t) })
			}
			if err := eg.Wait(); err != nil {
				g.abortTurn()
				return err
			}
		} else {
			for _, n := range runnable {
				if err := g.tickNode(n, t); err != nil {
					g.abortTurn()
					return err
				}
			}
		}

		g.applyDynamicRequests(t)
	}

	g.finishTurn()
	return nil
}

// tickNode runs one node's tick, converting a panic in a user-supplied
// function into an error after discarding the node's partial output.
// Input nodes are never ticked; their buffers were committed by
// ApplyInput, so they pulse directly.
func (g *Graph) tickNode(n ReactiveNode, t *Turn) (err error) {
	gid := goid.Get()
	g.tickGoids.Add(gid)
	defer func() {
		g.tickGoids.Remove(gid)
		if r := recover(); r != nil {
			if buf, ok := n.(eventBuffer); ok {
				buf.discardEvents()
			}
			err = errors.Errorf("tick %s (node %d, turn %d): %v",
				n.NodeType(), n.base().id, t.id, r)
		}
	}()

	if n.IsInputNode() {
		g.OnNodePulse(n, t)
		return nil
	}
	n.Tick(t)
	return nil
}

// applyDynamicRequests applies edge edits queued during the last batch.
// It runs on the turn driver between batches, so node flags and levels may
// be touched freely.
func (g *Graph) applyDynamicRequests(t *Turn) {
	g.dynMu.Lock()
	reqs := g.dynRequests
	g.dynRequests = nil
	g.dynMu.Unlock()

	for _, r := range reqs {
		if r.attach {
			g.applyDynamicAttach(r.child, r.parent, t)
		} else {
			g.applyDynamicDetach(r.child, r.parent, t)
		}
	}
}

func (g *Graph) applyDynamicAttach(child, parent ReactiveNode, t *Turn) {
	pb := parent.base()
	cb := child.base()

	pb.shift.Lock()
	pb.successors = append(pb.successors, child)
	pb.shift.Unlock()

	if cb.level <= pb.level {
		cb.newLevel = pb.level + 1
		cb.flags |= flagDeferred
		g.visited = append(g.visited, child)
		g.invalidateSuccessors(child)
	}

	// The child's tick that requested the attach returned without
	// pulsing; re-arm it so it runs again behind its new parent.
	cb.flags |= flagRepeated
	if g.logger != nil {
		g.logger.Debug("dynamic attach",
			"child", cb.id, "parent", pb.id, "turn", t.id, "level", cb.effectiveLevel())
	}
	g.queue.push(child)
}

func (g *Graph) applyDynamicDetach(child, parent ReactiveNode, t *Turn) {
	g.OnNodeDetach(child, parent)
	if g.logger != nil {
		g.logger.Debug("dynamic detach",
			"child", child.base().id, "parent", parent.base().id, "turn", t.id)
	}
}

// invalidateSuccessors pushes the pending level raise of n down through
// its subtree via newLevel, to be reconciled when each node is popped (or
// at end of turn for nodes outside this turn's subtree).
func (g *Graph) invalidateSuccessors(n ReactiveNode) {
	b := n.base()
	min := b.effectiveLevel() + 1
	for _, s := range b.successors {
		sb := s.base()
		if sb.effectiveLevel() >= min {
			continue
		}
		sb.newLevel = min
		sb.flags |= flagDeferred
		g.visited = append(g.visited, s)
		g.invalidateSuccessors(s)
	}
}

// finishTurn clears transient flags and counters on every node touched
// this turn. Visited nodes are recorded during marking instead of
// re-walking the subtree here.
func (g *Graph) finishTurn() {
	for _, n := range g.visited {
		b := n.base()
		if b.newLevel > b.level {
			b.level = b.newLevel
		}
		b.newLevel = 0
		b.flags &^= transientFlags
		b.waitCount = 0
		b.readyCount.Store(0)
	}
	g.visited = g.visited[:0]
}

// abortTurn unwinds after a failed tick: the queue is drained, deferred
// edits are dropped, and transient state is cleared so the next turn
// starts clean.
func (g *Graph) abortTurn() {
	g.queue.reset()
	g.dynMu.Lock()
	g.dynRequests = nil
	g.dynMu.Unlock()
	g.finishTurn()
}
