package subtree

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/petermattis/goid"
)

// Graph owns the dependency graph and the subtree propagation engine.
// Nodes register themselves on construction and drive scheduling through
// the On* hooks; external code appends input to source nodes and calls
// RunTurn.
type Graph struct {
	logger   *slog.Logger
	parallel bool
	workers  int

	regMu sync.Mutex
	nodes map[uint64]ReactiveNode

	pendMu     sync.Mutex
	pendingIDs mapset.Set[uint64]
	pending    []InputNode

	nextID     atomic.Uint64
	nextTurnID atomic.Uint64

	// turnMu serializes turns; turnActive guards input mutation and
	// steal against a turn in flight.
	turnMu     sync.Mutex
	turnActive atomic.Bool

	// tickGoids holds the goroutines currently inside a Tick, so that a
	// user function starting a new turn from within one trips an
	// assertion instead of deadlocking on turnMu.
	tickGoids mapset.Set[int64]

	queue   *topoQueue
	visited []ReactiveNode

	dynMu       sync.Mutex
	dynRequests []dynRequest
}

type Option func(*Graph)

// WithLogger installs a structured logger for the node-evaluate and turn
// observability hooks. Nil (the default) discards them.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// WithSequential disables parallel ticking. Nodes created on a sequential
// graph carry a no-op clear lock.
func WithSequential() Option {
	return func(g *Graph) { g.parallel = false }
}

// WithWorkers caps the number of concurrent ticks per batch.
func WithWorkers(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.workers = n
		}
	}
}

func NewGraph(opts ...Option) *Graph {
	g := &Graph{
		parallel:   true,
		workers:    runtime.GOMAXPROCS(0),
		nodes:      map[uint64]ReactiveNode{},
		pendingIDs: mapset.NewSet[uint64](),
		tickGoids:  mapset.NewSet[int64](),
		queue:      newTopoQueue(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Graph) newClearLock() sync.Locker {
	if g.parallel {
		return &spinLock{}
	}
	return nopLock{}
}

// OnNodeCreate registers n and assigns its object id. Level starts at 0.
func (g *Graph) OnNodeCreate(n ReactiveNode) {
	b := n.base()
	b.g = g
	b.id = g.nextID.Add(1)

	g.regMu.Lock()
	g.nodes[b.id] = n
	g.regMu.Unlock()
}

// OnNodeDestroy removes n from the registry. Detaching from predecessors
// is the node's own job, since only it knows its dependencies.
func (g *Graph) OnNodeDestroy(n ReactiveNode) {
	b := n.base()

	g.regMu.Lock()
	delete(g.nodes, b.id)
	g.regMu.Unlock()

	b.shift.Lock()
	b.successors = nil
	b.shift.Unlock()
}

// OnNodeAttach adds child to parent's successors and raises child's level
// above parent's, transitively raising descendants if child moved.
func (g *Graph) OnNodeAttach(child, parent ReactiveNode) {
	pb := parent.base()

	pb.shift.Lock()
	pb.successors = append(pb.successors, child)
	pb.shift.Unlock()

	raiseLevel(child, pb.level+1)
}

// OnNodeDetach removes child from parent's successors. Levels are not
// lowered: a too-high level only wastes queue tiers, never ordering.
func (g *Graph) OnNodeDetach(child, parent ReactiveNode) {
	pb := parent.base()

	pb.shift.Lock()
	defer pb.shift.Unlock()
	for i, s := range pb.successors {
		if s == child {
			pb.successors = append(pb.successors[:i], pb.successors[i+1:]...)
			return
		}
	}
}

func raiseLevel(n ReactiveNode, min int) {
	b := n.base()
	if b.level >= min {
		return
	}
	b.level = min
	for _, s := range b.successors {
		raiseLevel(s, min+1)
	}
}

// noteInput records an input node with uncommitted external input so the
// next turn applies it.
func (g *Graph) noteInput(n InputNode) {
	if g.turnActive.Load() {
		panic("subtree: input applied while a turn is in flight")
	}
	g.pendMu.Lock()
	defer g.pendMu.Unlock()
	if g.pendingIDs.Add(n.base().id) {
		g.pending = append(g.pending, n)
	}
}

// RunTurn commits all pending external input as one turn and propagates it
// to completion. It returns the error of the first failed tick, if any.
func (g *Graph) RunTurn() error { return g.RunTurnFlags(0) }

func (g *Graph) RunTurnFlags(flags TurnFlags) error {
	if g.tickGoids.Contains(goid.Get()) {
		panic("subtree: turn started from inside a tick")
	}
	g.turnMu.Lock()
	defer g.turnMu.Unlock()

	g.pendMu.Lock()
	pending := g.pending
	g.pending = nil
	g.pendingIDs.Clear()
	g.pendMu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	t := &Turn{id: g.nextTurnID.Add(1), flags: flags}

	g.turnActive.Store(true)
	defer g.turnActive.Store(false)

	changed := false
	for _, in := range pending {
		if in.ApplyInput(t) {
			changed = true
		}
	}
	if !changed {
		return nil
	}

	if g.logger != nil {
		g.logger.Debug("turn begin", "turn", t.id)
	}
	err := g.Propagate(t)
	if g.logger != nil {
		g.logger.Debug("turn end", "turn", t.id, "err", err)
	}
	return err
}

func (g *Graph) evalBegin(n ReactiveNode, t *Turn) {
	if g.logger != nil {
		g.logger.Debug("node evaluate begin",
			"node", n.base().id, "type", n.NodeType(), "turn", t.id)
	}
}

func (g *Graph) evalEnd(n ReactiveNode, t *Turn) {
	if g.logger != nil {
		g.logger.Debug("node evaluate end",
			"node", n.base().id, "type", n.NodeType(), "turn", t.id)
	}
}
