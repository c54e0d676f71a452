package subtree

// Value is an opaque value holder participating in the graph as an input
// node. Event nodes read it: synced operators snapshot it during their
// tick, and a flatten node watches one whose value is a stream reference.
type Value[T any] struct {
	node

	value      T
	pending    T
	hasPending bool
	eq         func(a, b T) bool
}

// NewValue creates a value node using == to short-circuit no-op sets.
func NewValue[T comparable](g *Graph, initial T) *Value[T] {
	return NewValueEq(g, initial, func(a, b T) bool { return a == b })
}

// NewValueEq creates a value node with an explicit equality function, for
// value types that are not strictly comparable. A nil eq treats every Set
// as a change.
func NewValueEq[T any](g *Graph, initial T, eq func(a, b T) bool) *Value[T] {
	v := &Value[T]{value: initial, eq: eq}
	g.OnNodeCreate(v)
	return v
}

// Value returns the committed value. During a turn this is the value as
// of the turn's start; synced operators and flatten read it from ticks.
func (v *Value[T]) Value() T { return v.value }

// Set stages a new value for the next turn. Must not be called while a
// turn is in flight.
func (v *Value[T]) Set(next T) {
	v.pending = next
	v.hasPending = true
	v.g.noteInput(v)
}

// ApplyInput commits the staged value, reporting whether it differs from
// the current one.
func (v *Value[T]) ApplyInput(t *Turn) bool {
	if !v.hasPending {
		return false
	}
	v.hasPending = false
	if v.eq != nil && v.eq(v.value, v.pending) {
		return false
	}
	v.value = v.pending
	v.g.OnInputChange(v, t)
	return true
}

func (v *Value[T]) Tick(t *Turn) {
	panic("subtree: ticked a value node")
}

func (v *Value[T]) IsInputNode() bool    { return true }
func (v *Value[T]) IsDynamicNode() bool  { return false }
func (v *Value[T]) DependencyCount() int { return 0 }
func (v *Value[T]) NodeType() string     { return "Value" }

func (v *Value[T]) anyValue() any { return v.value }

// Destroy releases the node's engine registration.
func (v *Value[T]) Destroy() {
	v.g.OnNodeDestroy(v)
}

// NewStreamRef creates a value node holding a stream reference, the outer
// input of a flatten node. Stream identity is reference identity.
func NewStreamRef[E any](g *Graph, initial EventStream[E]) *Value[EventStream[E]] {
	return NewValueEq(g, initial, func(a, b EventStream[E]) bool { return a == b })
}
