package subtree

// FlattenNode forwards the events of whatever inner stream its outer
// value node currently references. When the outer's value changes to a
// different inner, the flatten performs a dynamic detach from the old
// inner and attach to the new one; the engine re-levels and re-arms it.
type FlattenNode[E any] struct {
	eventStreamNode[E]

	outer *Value[EventStream[E]]
	inner EventStream[E]
}

func NewFlatten[E any](g *Graph, outer *Value[EventStream[E]]) *FlattenNode[E] {
	n := &FlattenNode[E]{outer: outer, inner: outer.Value()}
	g.OnNodeCreate(n)
	initStream(g, &n.eventStreamNode)
	g.OnNodeAttach(n, outer)
	g.OnNodeAttach(n, n.inner)
	return n
}

func (n *FlattenNode[E]) Tick(t *Turn) {
	n.SetCurrentTurn(t, true, false)
	n.inner.SetCurrentTurn(t, false, false)

	newInner := n.outer.Value()
	if newInner != n.inner {
		newInner.SetCurrentTurn(t, false, false)

		// Topology change: hand both edits to the engine and return
		// without pulsing; the engine schedules this node again behind
		// its new parent.
		oldInner := n.inner
		n.inner = newInner

		n.g.OnDynamicNodeDetach(n, oldInner, t)
		n.g.OnDynamicNodeAttach(n, newInner, t)
		return
	}

	n.g.evalBegin(n, t)
	n.events = append(n.events, n.inner.Events()...)
	n.g.evalEnd(n, t)

	if len(n.events) > 0 {
		n.g.OnNodePulse(n, t)
	} else {
		n.g.OnNodeIdlePulse(n, t)
	}
}

func (n *FlattenNode[E]) IsInputNode() bool    { return false }
func (n *FlattenNode[E]) IsDynamicNode() bool  { return true }
func (n *FlattenNode[E]) DependencyCount() int { return 2 }
func (n *FlattenNode[E]) NodeType() string     { return "FlattenNode" }

func (n *FlattenNode[E]) Destroy() {
	n.g.OnNodeDetach(n, n.outer)
	n.g.OnNodeDetach(n, n.inner)
	n.g.OnNodeDestroy(n)
}
