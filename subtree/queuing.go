package subtree

import "sync"

// QueuingGraph wraps a Graph with a FIFO turn dispatcher: submissions may
// arrive from any goroutine while a turn is running and are committed and
// propagated strictly one turn at a time. Within a turn the semantics are
// the basic graph's.
type QueuingGraph struct {
	*Graph

	submissions chan submission
	wg          sync.WaitGroup
}

type submission struct {
	commit func()
	flags  TurnFlags
	done   chan error
}

func NewQueuingGraph(opts ...Option) *QueuingGraph {
	q := &QueuingGraph{
		Graph:       NewGraph(opts...),
		submissions: make(chan submission, 64),
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

// Enqueue submits commit, a function applying input to source nodes, to
// run as its own turn. The returned channel yields the turn's outcome.
func (q *QueuingGraph) Enqueue(commit func()) <-chan error {
	return q.EnqueueFlags(0, commit)
}

// EnqueueFlags is Enqueue with turn flags. AllowMerging lets the
// dispatcher coalesce adjacent mergeable submissions into a single turn;
// all of their channels yield that turn's outcome.
func (q *QueuingGraph) EnqueueFlags(flags TurnFlags, commit func()) <-chan error {
	done := make(chan error, 1)
	q.submissions <- submission{commit: commit, flags: flags, done: done}
	return done
}

// Close stops accepting submissions and waits for queued turns to finish.
func (q *QueuingGraph) Close() {
	close(q.submissions)
	q.wg.Wait()
}

func (q *QueuingGraph) loop() {
	defer q.wg.Done()

	var carry *submission
	for {
		var sub submission
		if carry != nil {
			sub = *carry
			carry = nil
		} else {
			s, ok := <-q.submissions
			if !ok {
				return
			}
			sub = s
		}

		dones := []chan error{sub.done}
		sub.commit()

		if sub.flags&AllowMerging != 0 {
		drain:
			for {
				select {
				case next, ok := <-q.submissions:
					if !ok {
						break drain
					}
					if next.flags&AllowMerging == 0 {
						// Not mergeable; runs as the next turn.
						carry = &next
						break drain
					}
					next.commit()
					dones = append(dones, next.done)
				default:
					break drain
				}
			}
		}

		err := q.RunTurnFlags(sub.flags)
		for _, done := range dones {
			done <- err
		}
	}
}
