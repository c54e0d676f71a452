package subtree

// Op describes the computation of an op node: a merge, filter, or
// transform over dependencies that are either addressable stream nodes or
// further ops. Nested ops are collected by direct recursion without
// materializing intermediate buffers, which is why composed operators live
// inside a single node instead of one node each.
type Op[E any] interface {
	collect(t *Turn, emit func(E))
	attach(g *Graph, owner ReactiveNode)
	detach(g *Graph, owner ReactiveNode)
	dependencyCount() int
}

// Dep lifts an addressable stream node into an operator dependency.
func Dep[E any](src EventStream[E]) Op[E] {
	return streamDep[E]{src: src}
}

type streamDep[E any] struct {
	src EventStream[E]
}

func (d streamDep[E]) collect(t *Turn, emit func(E)) {
	// Advance lazy clearing before replaying, in case the source was not
	// touched yet this turn.
	d.src.SetCurrentTurn(t, false, false)
	for _, e := range d.src.Events() {
		emit(e)
	}
}

func (d streamDep[E]) attach(g *Graph, owner ReactiveNode) {
	g.OnNodeAttach(owner, d.src)
}

func (d streamDep[E]) detach(g *Graph, owner ReactiveNode) {
	g.OnNodeDetach(owner, d.src)
}

func (d streamDep[E]) dependencyCount() int { return 1 }

// Merge concatenates the events of every dependency. Events of one
// dependency keep their order; order across dependencies follows the
// dependency sequence.
func Merge[E any](deps ...Op[E]) Op[E] {
	return mergeOp[E]{deps: deps}
}

type mergeOp[E any] struct {
	deps []Op[E]
}

func (o mergeOp[E]) collect(t *Turn, emit func(E)) {
	for _, d := range o.deps {
		d.collect(t, emit)
	}
}

func (o mergeOp[E]) attach(g *Graph, owner ReactiveNode) {
	for _, d := range o.deps {
		d.attach(g, owner)
	}
}

func (o mergeOp[E]) detach(g *Graph, owner ReactiveNode) {
	for _, d := range o.deps {
		d.detach(g, owner)
	}
}

func (o mergeOp[E]) dependencyCount() int {
	total := 0
	for _, d := range o.deps {
		total += d.dependencyCount()
	}
	return total
}

// Filter forwards only events accepted by pred.
func Filter[E any](pred func(E) bool, dep Op[E]) Op[E] {
	return filterOp[E]{pred: pred, dep: dep}
}

type filterOp[E any] struct {
	pred func(E) bool
	dep  Op[E]
}

func (o filterOp[E]) collect(t *Turn, emit func(E)) {
	o.dep.collect(t, func(e E) {
		if o.pred(e) {
			emit(e)
		}
	})
}

func (o filterOp[E]) attach(g *Graph, owner ReactiveNode) { o.dep.attach(g, owner) }
func (o filterOp[E]) detach(g *Graph, owner ReactiveNode) { o.dep.detach(g, owner) }
func (o filterOp[E]) dependencyCount() int                { return o.dep.dependencyCount() }

// Transform maps every incoming event through fn.
func Transform[In, Out any](fn func(In) Out, dep Op[In]) Op[Out] {
	return transformOp[In, Out]{fn: fn, dep: dep}
}

type transformOp[In, Out any] struct {
	fn  func(In) Out
	dep Op[In]
}

func (o transformOp[In, Out]) collect(t *Turn, emit func(Out)) {
	o.dep.collect(t, func(e In) {
		emit(o.fn(e))
	})
}

func (o transformOp[In, Out]) attach(g *Graph, owner ReactiveNode) { o.dep.attach(g, owner) }
func (o transformOp[In, Out]) detach(g *Graph, owner ReactiveNode) { o.dep.detach(g, owner) }
func (o transformOp[In, Out]) dependencyCount() int                { return o.dep.dependencyCount() }

// OpNode is an event node owning a (possibly fused) operator.
type OpNode[E any] struct {
	eventStreamNode[E]

	op     Op[E]
	stolen bool
}

func NewOpNode[E any](g *Graph, op Op[E]) *OpNode[E] {
	n := &OpNode[E]{op: op}
	g.OnNodeCreate(n)
	initStream(g, &n.eventStreamNode)
	op.attach(g, n)
	return n
}

func (n *OpNode[E]) Tick(t *Turn) {
	n.SetCurrentTurn(t, true, false)

	n.g.evalBegin(n, t)
	n.op.collect(t, func(e E) {
		n.events = append(n.events, e)
	})
	n.g.evalEnd(n, t)

	if len(n.events) > 0 {
		n.g.OnNodePulse(n, t)
	} else {
		n.g.OnNodeIdlePulse(n, t)
	}
}

func (n *OpNode[E]) IsInputNode() bool    { return false }
func (n *OpNode[E]) IsDynamicNode() bool  { return false }
func (n *OpNode[E]) DependencyCount() int { return n.op.dependencyCount() }
func (n *OpNode[E]) NodeType() string     { return "OpNode" }

// StealOp transfers the operator out of the node so it can be fused into
// a larger one. The op's dependencies are detached first, atomically with
// the move; the drained node skips detach on Destroy. Stealing twice, or
// stealing while a turn is in flight, is a contract violation.
func (n *OpNode[E]) StealOp() Op[E] {
	if n.stolen {
		panic("subtree: op already stolen")
	}
	if n.g.turnActive.Load() {
		panic("subtree: op stolen during propagation")
	}
	n.stolen = true
	n.op.detach(n.g, n)
	return n.op
}

// Destroy detaches the node from its dependencies and releases its engine
// registration.
func (n *OpNode[E]) Destroy() {
	if !n.stolen {
		n.op.detach(n.g, n)
	}
	n.g.OnNodeDestroy(n)
}
