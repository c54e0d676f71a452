package subtree

// SyncedFilterNode filters a stream with a predicate that also sees a
// snapshot of value-node dependencies, taken at evaluation time.
type SyncedFilterNode[E any] struct {
	eventStreamNode[E]

	source EventStream[E]
	pred   func(e E, vals ...any) bool
	deps   []SignalRef
}

func NewSyncedFilter[E any](g *Graph, source EventStream[E], pred func(e E, vals ...any) bool, deps ...SignalRef) *SyncedFilterNode[E] {
	n := &SyncedFilterNode[E]{source: source, pred: pred, deps: deps}
	g.OnNodeCreate(n)
	initStream(g, &n.eventStreamNode)
	g.OnNodeAttach(n, source)
	for _, d := range deps {
		g.OnNodeAttach(n, d)
	}
	return n
}

func (n *SyncedFilterNode[E]) Tick(t *Turn) {
	n.SetCurrentTurn(t, true, false)
	// The tick may have been triggered by a value dep alone; make sure the
	// source is not carrying last turn's events.
	n.source.SetCurrentTurn(t, false, false)

	vals := snapshotValues(n.deps)

	n.g.evalBegin(n, t)
	for _, e := range n.source.Events() {
		if n.pred(e, vals...) {
			n.events = append(n.events, e)
		}
	}
	n.g.evalEnd(n, t)

	if len(n.events) > 0 {
		n.g.OnNodePulse(n, t)
	} else {
		n.g.OnNodeIdlePulse(n, t)
	}
}

func (n *SyncedFilterNode[E]) IsInputNode() bool    { return false }
func (n *SyncedFilterNode[E]) IsDynamicNode() bool  { return false }
func (n *SyncedFilterNode[E]) DependencyCount() int { return 1 + len(n.deps) }
func (n *SyncedFilterNode[E]) NodeType() string     { return "SyncedFilterNode" }

func (n *SyncedFilterNode[E]) Destroy() {
	n.g.OnNodeDetach(n, n.source)
	for _, d := range n.deps {
		n.g.OnNodeDetach(n, d)
	}
	n.g.OnNodeDestroy(n)
}

// SyncedTransformNode maps a stream through a function that also sees a
// snapshot of value-node dependencies.
type SyncedTransformNode[In, Out any] struct {
	eventStreamNode[Out]

	source EventStream[In]
	fn     func(e In, vals ...any) Out
	deps   []SignalRef
}

func NewSyncedTransform[In, Out any](g *Graph, source EventStream[In], fn func(e In, vals ...any) Out, deps ...SignalRef) *SyncedTransformNode[In, Out] {
	n := &SyncedTransformNode[In, Out]{source: source, fn: fn, deps: deps}
	g.OnNodeCreate(n)
	initStream(g, &n.eventStreamNode)
	g.OnNodeAttach(n, source)
	for _, d := range deps {
		g.OnNodeAttach(n, d)
	}
	return n
}

func (n *SyncedTransformNode[In, Out]) Tick(t *Turn) {
	n.SetCurrentTurn(t, true, false)
	n.source.SetCurrentTurn(t, false, false)

	vals := snapshotValues(n.deps)

	n.g.evalBegin(n, t)
	for _, e := range n.source.Events() {
		n.events = append(n.events, n.fn(e, vals...))
	}
	n.g.evalEnd(n, t)

	if len(n.events) > 0 {
		n.g.OnNodePulse(n, t)
	} else {
		n.g.OnNodeIdlePulse(n, t)
	}
}

func (n *SyncedTransformNode[In, Out]) IsInputNode() bool    { return false }
func (n *SyncedTransformNode[In, Out]) IsDynamicNode() bool  { return false }
func (n *SyncedTransformNode[In, Out]) DependencyCount() int { return 1 + len(n.deps) }
func (n *SyncedTransformNode[In, Out]) NodeType() string     { return "SyncedTransformNode" }

func (n *SyncedTransformNode[In, Out]) Destroy() {
	n.g.OnNodeDetach(n, n.source)
	for _, d := range n.deps {
		n.g.OnNodeDetach(n, d)
	}
	n.g.OnNodeDestroy(n)
}

func snapshotValues(deps []SignalRef) []any {
	vals := make([]any, len(deps))
	for i, d := range deps {
		vals[i] = d.anyValue()
	}
	return vals
}
