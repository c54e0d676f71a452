package subtree

// TurnFlags carry per-turn dispatch hints.
type TurnFlags uint8

const (
	// AllowMerging lets a queuing graph coalesce this submission with
	// adjacent pending submissions into a single turn.
	AllowMerging TurnFlags = 1 << iota
)

// Turn is one externally initiated propagation pass. Ids increase
// monotonically; a node ticks at most once per turn (twice when dynamic
// re-parenting re-arms it).
type Turn struct {
	id    uint64
	flags TurnFlags
}

func (t *Turn) ID() uint64       { return t.id }
func (t *Turn) Flags() TurnFlags { return t.flags }
