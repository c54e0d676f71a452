package subtree

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node carries the per-node state the engine schedules on. It is embedded
// by every concrete node type.
type node struct {
	g  *Graph
	id uint64

	// successors holds the direct downstream nodes. Appended under shift
	// during attach, iterated under a shared shift lock during scheduling.
	successors []ReactiveNode
	shift      sync.RWMutex

	// level is strictly greater than the level of any current predecessor.
	// newLevel is scratch for dynamic re-leveling, reconciled when the node
	// is next popped from the queue.
	level    int
	newLevel int

	// waitCount is the number of marked predecessors for the current turn.
	// readyCount counts predecessors that have completed; the node becomes
	// eligible to tick when it reaches waitCount.
	waitCount  int
	readyCount atomic.Int32

	flags nodeFlags
}

func (n *node) base() *node { return n }

// incReady records one completed predecessor and reports whether this was
// the last one the node was waiting on.
func (n *node) incReady() bool {
	return int(n.readyCount.Add(1)) == n.waitCount
}

func (n *node) effectiveLevel() int {
	if n.newLevel > n.level {
		return n.newLevel
	}
	return n.level
}

// ID returns the node's stable object id.
func (n *node) ID() uint64 { return n.id }

// Level returns the node's current topological rank.
func (n *node) Level() int { return n.level }

// spinLock serializes the per-node buffer clear in parallel mode. It is
// only contended when two downstream ticks lazily touch the same
// predecessor at once, so spinning beats parking.
type spinLock struct {
	v atomic.Int32
}

func (l *spinLock) Lock() {
	for !l.v.CompareAndSwap(0, 1) {
		spinYield()
	}
}

func (l *spinLock) Unlock() {
	l.v.Store(0)
}

func spinYield() { runtime.Gosched() }

// nopLock replaces the clear lock in sequential graphs so single-threaded
// propagation pays nothing for it.
type nopLock struct{}

func (nopLock) Lock()   {}
func (nopLock) Unlock() {}
