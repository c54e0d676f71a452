package subtree_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/delaneyj/turnsignal/subtree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	g := subtree.NewGraph(subtree.WithSequential(), subtree.WithLogger(logger))

	s := subtree.NewEventSource[int](g)
	subtree.NewOpNode(g, subtree.Transform(func(x int) int { return x }, subtree.Dep[int](s)))

	s.Append(1)
	require.NoError(t, g.RunTurn())

	out := buf.String()
	assert.Contains(t, out, "turn begin")
	assert.Contains(t, out, "node evaluate begin")
	assert.Contains(t, out, "node evaluate end")
	assert.Contains(t, out, "turn end")
}

func TestValueEqualityShortCircuit(t *testing.T) {
	g := subtree.NewGraph()

	v := subtree.NewValue(g, 5)
	s := subtree.NewEventSource[int](g)
	f := subtree.NewSyncedFilter[int](g, s, func(e int, vals ...any) bool {
		return e > vals[0].(int)
	}, v)
	_ = f

	// Setting the same value is not a change; the turn has no seeds.
	v.Set(5)
	require.NoError(t, g.RunTurn())
	assert.Equal(t, 5, v.Value())

	v.Set(7)
	require.NoError(t, g.RunTurn())
	assert.Equal(t, 7, v.Value())
}

func TestValueEqCustom(t *testing.T) {
	g := subtree.NewGraph()

	type pair struct{ a, b []int }
	changes := 0
	v := subtree.NewValueEq(g, pair{}, func(x, y pair) bool { return false })
	s := subtree.NewEventSource[int](g)
	subtree.NewSyncedTransform[int, int](g, s, func(e int, vals ...any) int {
		changes++
		return e
	}, v)

	// A nil-equality or always-unequal value node seeds a turn on every Set.
	v.Set(pair{a: []int{1}})
	require.NoError(t, g.RunTurn())
	assert.Zero(t, changes, "no source events, so the transform saw nothing")
}

func TestRunTurnInsideTickPanics(t *testing.T) {
	g := subtree.NewGraph(subtree.WithSequential())

	s := subtree.NewEventSource[int](g)
	subtree.NewOpNode(g, subtree.Transform(func(x int) int {
		g.RunTurn()
		return x
	}, subtree.Dep[int](s)))

	s.Append(1)
	err := g.RunTurn()
	require.Error(t, err, "the nested RunTurn panic unwinds the tick")
	assert.Contains(t, err.Error(), "inside a tick")
}

func TestAppendDuringTurnPanics(t *testing.T) {
	g := subtree.NewGraph(subtree.WithSequential())

	s := subtree.NewEventSource[int](g)
	subtree.NewOpNode(g, subtree.Transform(func(x int) int {
		s.Append(99)
		return x
	}, subtree.Dep[int](s)))

	s.Append(1)
	err := g.RunTurn()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turn is in flight")
}
