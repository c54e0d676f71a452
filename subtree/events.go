package subtree

import (
	"math"
	"sync"
)

// eventStreamNode is the shared core of every event-carrying node: an
// ordered per-turn buffer plus the lazy turn-scoped clearing protocol.
type eventStreamNode[E any] struct {
	node

	// clearMu serializes buffer clearing. On a sequential graph it is a
	// nopLock, so the footprint of the protocol is a single interface word.
	clearMu   sync.Locker
	events    []E
	curTurnID uint64
}

func initStream[E any](g *Graph, n *eventStreamNode[E]) {
	n.clearMu = g.newClearLock()
	n.curTurnID = math.MaxUint64
}

// Events returns the buffer holding exactly the events emitted during the
// stream's current turn.
func (n *eventStreamNode[E]) Events() []E { return n.events }

// SetCurrentTurn advances the stream to turn t. The first caller to touch
// the stream in a new turn clears the previous turn's buffer; forceUpdate
// re-adopts the turn unconditionally (a tick about to overwrite its own
// buffer), and noClear keeps the buffer (an input source whose buffer
// already holds this turn's inputs).
func (n *eventStreamNode[E]) SetCurrentTurn(t *Turn, forceUpdate, noClear bool) {
	n.clearMu.Lock()
	defer n.clearMu.Unlock()

	if n.curTurnID != t.id || forceUpdate {
		n.curTurnID = t.id
		if !noClear {
			n.events = n.events[:0]
		}
	}
}

func (n *eventStreamNode[E]) discardEvents() {
	n.clearMu.Lock()
	defer n.clearMu.Unlock()
	n.events = n.events[:0]
}

// EventSource is an input node fed by external code between turns.
type EventSource[E any] struct {
	eventStreamNode[E]

	// inputChanged tracks whether the buffer holds the most recent turn's
	// committed input; the first Append after a turn clears it lazily.
	inputChanged bool
}

func NewEventSource[E any](g *Graph) *EventSource[E] {
	s := &EventSource[E]{}
	g.OnNodeCreate(s)
	initStream(g, &s.eventStreamNode)
	return s
}

// Append buffers one input event for the next turn. Must not be called
// while a turn is in flight.
func (s *EventSource[E]) Append(e E) {
	if s.inputChanged {
		s.inputChanged = false
		s.events = s.events[:0]
	}
	s.events = append(s.events, e)
	s.g.noteInput(s)
}

// ApplyInput commits the buffered input at turn start. The buffer already
// holds this turn's events, so the turn is adopted without clearing.
func (s *EventSource[E]) ApplyInput(t *Turn) bool {
	if len(s.events) > 0 && !s.inputChanged {
		s.SetCurrentTurn(t, true, true)
		s.inputChanged = true
		s.g.OnInputChange(s, t)
		return true
	}
	return false
}

func (s *EventSource[E]) Tick(t *Turn) {
	panic("subtree: ticked an event source")
}

func (s *EventSource[E]) IsInputNode() bool    { return true }
func (s *EventSource[E]) IsDynamicNode() bool  { return false }
func (s *EventSource[E]) DependencyCount() int { return 0 }
func (s *EventSource[E]) NodeType() string     { return "EventSource" }

// Destroy releases the source's engine registration.
func (s *EventSource[E]) Destroy() {
	s.g.OnNodeDestroy(s)
}
